// Package registry implements the adapter factory: it creates adapter
// instances, enforces the one-adapter-per-asset invariant, validates
// pool/rewarder compatibility before creation and propagates operator
// configuration to each new instance.
package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yieldstate/vault-adapter-go/adapter"
	"github.com/yieldstate/vault-adapter-go/clients"
	"github.com/yieldstate/vault-adapter-go/events"
)

var (
	ErrUnauthorized         = errors.New("registry: caller is not management")
	ErrAlreadyRegistered    = errors.New("registry: asset already has an adapter")
	ErrAssetMismatch        = errors.New("registry: pool underlying asset does not match")
	ErrStakingTokenMismatch = errors.New("registry: rewarder staking token does not match pool receipt token")
	ErrZeroAddress          = errors.New("registry: zero address")
)

// Operators is the registry-level operator configuration propagated to newly
// created adapters. Changing it never retroactively alters already-created
// instances.
type Operators struct {
	Management     common.Address `json:"management"`
	FeeRecipient   common.Address `json:"feeRecipient"`
	Keeper         common.Address `json:"keeper"`
	EmergencyAdmin common.Address `json:"emergencyAdmin"`
}

// Entry records the single adapter deployed for an asset. Once written it is
// never overwritten; no deletion or asset-reassignment path exists.
type Entry struct {
	Asset    common.Address `json:"asset"`
	Adapter  common.Address `json:"adapter"`
	Pool     common.Address `json:"pool"`
	Rewarder common.Address `json:"rewarder"`
}

// View is a snapshot of the registry state, ordered by asset for stable
// comparison and diffing.
type View struct {
	Entries   []Entry   `json:"entries"`
	Operators Operators `json:"operators"`
}

// Registry is the non-thread-safe core. System wraps it for concurrent use.
type Registry struct {
	self            common.Address
	nonce           uint64
	ops             Operators
	entries         map[common.Address]Entry
	instances       map[common.Address]*adapter.Adapter
	defaultSlippage uint64

	logger     clients.Logger
	registerer prometheus.Registerer
	events     events.Sink
}

// create validates the asset/pool/rewarder triple and constructs a new
// adapter instance. Any validation failure aborts with no state change.
//
// The new instance starts with the registry itself as management and the
// registry's configured management as pending management: the operator takes
// over by completing the accept handshake on the instance.
func (r *Registry) create(
	ctx context.Context,
	caller common.Address,
	token clients.Token,
	pool clients.YieldPool,
	rewarder clients.Rewarder,
) (*adapter.Adapter, error) {
	if caller != r.ops.Management {
		return nil, ErrUnauthorized
	}

	asset := token.Address()
	if _, exists := r.entries[asset]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, asset.Hex())
	}

	poolAsset, err := pool.Asset(ctx)
	if err != nil {
		return nil, fmt.Errorf("create: query pool asset: %w", err)
	}
	if poolAsset != asset {
		return nil, fmt.Errorf("%w: pool reports %s, want %s", ErrAssetMismatch, poolAsset.Hex(), asset.Hex())
	}
	stakingToken, err := rewarder.StakingToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("create: query staking token: %w", err)
	}
	if stakingToken != pool.Address() {
		return nil, fmt.Errorf("%w: rewarder reports %s, want %s", ErrStakingTokenMismatch, stakingToken.Hex(), pool.Address().Hex())
	}

	addr := crypto.CreateAddress(r.self, r.nonce)
	inst, err := adapter.New(&adapter.Config{
		Self:     addr,
		Asset:    token,
		Pool:     pool,
		Rewarder: rewarder,
		Operators: adapter.Operators{
			Management:        r.self,
			PendingManagement: r.ops.Management,
			FeeRecipient:      r.ops.FeeRecipient,
			Keeper:            r.ops.Keeper,
			EmergencyAdmin:    r.ops.EmergencyAdmin,
		},
		Slippage: r.defaultSlippage,
		Logger:   r.logger,
		Registry: r.registerer,
		Events:   r.events,
	})
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	// Commit only after everything above succeeded.
	r.nonce++
	r.entries[asset] = Entry{
		Asset:    asset,
		Adapter:  addr,
		Pool:     pool.Address(),
		Rewarder: rewarder.Address(),
	}
	r.instances[addr] = inst

	symbol, err := pool.Symbol(ctx)
	if err != nil {
		symbol = ""
	}
	r.events.Emit(events.Event{
		Type:    events.TypeAdapterCreated,
		Adapter: addr,
		Asset:   asset,
		Data: events.AdapterCreated{
			Pool:     pool.Address(),
			Rewarder: rewarder.Address(),
			Symbol:   symbol,
		},
	})
	r.logger.Info("adapter created", "asset", asset, "adapter", addr, "pool", pool.Address(), "rewarder", rewarder.Address())
	return inst, nil
}

// updateOperators replaces the configuration propagated to future instances.
// All three values must be non-zero.
func (r *Registry) updateOperators(caller, management, feeRecipient, keeper common.Address) error {
	if caller != r.ops.Management {
		return ErrUnauthorized
	}
	zero := common.Address{}
	if management == zero || feeRecipient == zero || keeper == zero {
		return ErrZeroAddress
	}
	r.ops.Management = management
	r.ops.FeeRecipient = feeRecipient
	r.ops.Keeper = keeper

	r.events.Emit(events.Event{
		Type: events.TypeOperatorsUpdated,
		Data: events.OperatorsUpdated{
			Management:   management,
			FeeRecipient: feeRecipient,
			Keeper:       keeper,
		},
	})
	r.logger.Info("registry operators updated", "management", management, "feeRecipient", feeRecipient, "keeper", keeper)
	return nil
}

// isRegistered reports whether the entry for the given adapter's bound asset
// points at that adapter.
func (r *Registry) isRegistered(adapterAddr common.Address) bool {
	inst, ok := r.instances[adapterAddr]
	if !ok {
		return false
	}
	entry, ok := r.entries[inst.AssetAddress()]
	return ok && entry.Adapter == adapterAddr
}

// view returns a snapshot of the registry state with entries sorted by asset.
func (r *Registry) view() *View {
	entries := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Asset.Bytes(), entries[j].Asset.Bytes()) < 0
	})
	return &View{
		Entries:   entries,
		Operators: r.ops,
	}
}
