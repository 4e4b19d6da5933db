package adapter

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/yieldstate/vault-adapter-go/events"
)

// AddRewardRoute allow-lists a (from, to) pair for the external trading
// pipeline. Management only. The adapter's own asset can never be a source:
// it must not be swapped away as a "reward".
func (a *Adapter) AddRewardRoute(caller, from, to common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ops.isManagement(caller) {
		return ErrUnauthorized
	}
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	if from == a.asset.Address() {
		return ErrAssetRouteSource
	}

	targets, ok := a.routes[from]
	if !ok {
		targets = make(map[common.Address]struct{})
		a.routes[from] = targets
	}
	targets[to] = struct{}{}

	a.events.Emit(events.Event{
		Type:    events.TypeRewardRouteUpdated,
		Adapter: a.self,
		Asset:   a.asset.Address(),
		Data:    events.RewardRouteUpdated{From: from, To: to, Allowed: true},
	})
	a.logger.Info("reward route added", "asset", a.asset.Address(), "from", from, "to", to)
	return nil
}

// RemoveRewardRoute deletes a (from, to) pair from the allow-list.
// Management only. Removing an absent route is a no-op.
func (a *Adapter) RemoveRewardRoute(caller, from, to common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ops.isManagement(caller) {
		return ErrUnauthorized
	}
	targets, ok := a.routes[from]
	if !ok {
		return nil
	}
	if _, ok := targets[to]; !ok {
		return nil
	}
	delete(targets, to)
	if len(targets) == 0 {
		delete(a.routes, from)
	}

	a.events.Emit(events.Event{
		Type:    events.TypeRewardRouteUpdated,
		Adapter: a.self,
		Asset:   a.asset.Address(),
		Data:    events.RewardRouteUpdated{From: from, To: to, Allowed: false},
	})
	a.logger.Info("reward route removed", "asset", a.asset.Address(), "from", from, "to", to)
	return nil
}

// RewardRouteAllowed reports whether the trading pipeline may swap from one
// token to another on this adapter's behalf.
func (a *Adapter) RewardRouteAllowed(from, to common.Address) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	targets, ok := a.routes[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}
