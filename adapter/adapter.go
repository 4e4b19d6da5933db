// Package adapter implements the yield-routing vault adapter: the fund
// lifecycle (deploy, free, harvest/report, emergency withdraw), the
// deposit/withdraw capacity policy and the slippage configuration for a
// single asset routed through an external auto-compounding pool and staking
// rewarder.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yieldstate/vault-adapter-go/clients"
	"github.com/yieldstate/vault-adapter-go/events"
)

// Slippage tolerance is expressed in parts per hundred-thousand.
const (
	SlippageScale   uint64 = 100_000
	MaxSlippage     uint64 = 50_000
	DefaultSlippage uint64 = 5_000
)

var (
	ErrUnauthorized      = errors.New("adapter: caller is not authorized")
	ErrShutdown          = errors.New("adapter: shut down, new deploys are suspended")
	ErrSlippageTooHigh   = errors.New("adapter: slippage above maximum")
	ErrExcessiveLoss     = errors.New("adapter: expected loss exceeds slippage tolerance")
	ErrZeroAddress       = errors.New("adapter: zero address")
	ErrAssetRouteSource  = errors.New("adapter: the adapter's own asset cannot be a reward-route source")
	ErrNegativeAmount    = errors.New("adapter: negative amount")
	ErrNotPendingManager = errors.New("adapter: caller is not the pending management")
)

// Config holds everything an adapter instance is bound to at construction.
// The asset, pool and rewarder bindings are immutable for the life of the
// instance.
type Config struct {
	// Self is the adapter's own identity, used as receiver and staking
	// account on all external calls. Assigned by the registry.
	Self common.Address

	Asset    clients.Token
	Pool     clients.YieldPool
	Rewarder clients.Rewarder

	Operators Operators

	// Slippage is the initial tolerance in parts per hundred-thousand.
	// Zero means DefaultSlippage.
	Slippage uint64

	Logger   clients.Logger
	Registry prometheus.Registerer

	// Events receives change notifications. Optional; defaults to a no-op
	// sink.
	Events events.Sink
}

func (c *Config) validate() error {
	if c.Self == (common.Address{}) {
		return errors.New("config: Self is required")
	}
	if c.Asset == nil {
		return errors.New("config: Asset is required")
	}
	if c.Pool == nil {
		return errors.New("config: Pool is required")
	}
	if c.Rewarder == nil {
		return errors.New("config: Rewarder is required")
	}
	if c.Operators.Management == (common.Address{}) {
		return errors.New("config: Operators.Management is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	if c.Slippage > MaxSlippage {
		return ErrSlippageTooHigh
	}
	return nil
}

// Adapter is one deployed binding of asset, pool and rewarder with its own
// accounting and configuration. All state-mutating operations are serialized
// behind a single mutex; balances and conversion rates are always re-queried
// from the external contracts rather than cached across calls.
type Adapter struct {
	mu sync.Mutex

	self     common.Address
	asset    clients.Token
	pool     clients.YieldPool
	rewarder clients.Rewarder

	ops      Operators
	slippage uint64
	shutdown bool

	// routes is the allow-list of (from, to) pairs the external trading
	// pipeline may swap between when liquidating rewards.
	routes map[common.Address]map[common.Address]struct{}

	logger  clients.Logger
	metrics *Metrics
	events  events.Sink
}

// New constructs an adapter instance. The unlimited approvals a chain
// deployment would grant the pool and rewarder are modeled as a standing
// trust grant recorded here and reported by TrustedContracts.
func New(cfg *Config) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	slippage := cfg.Slippage
	if slippage == 0 {
		slippage = DefaultSlippage
	}
	sink := cfg.Events
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Adapter{
		self:     cfg.Self,
		asset:    cfg.Asset,
		pool:     cfg.Pool,
		rewarder: cfg.Rewarder,
		ops:      cfg.Operators,
		slippage: slippage,
		routes:   make(map[common.Address]map[common.Address]struct{}),
		logger:   cfg.Logger,
		metrics:  NewMetrics(cfg.Registry, cfg.Asset.Address()),
		events:   sink,
	}, nil
}

// Address returns the adapter's own identity.
func (a *Adapter) Address() common.Address { return a.self }

// AssetAddress returns the identity of the bound asset.
func (a *Adapter) AssetAddress() common.Address { return a.asset.Address() }

// TrustedContracts lists the external contracts holding the adapter's
// standing allowances: the pool (asset approval) and the rewarder (receipt
// token approval). The grant is set once at construction and never revoked
// in normal operation.
func (a *Adapter) TrustedContracts() []common.Address {
	return []common.Address{a.pool.Address(), a.rewarder.Address()}
}

// DeployFunds puts amount of idle asset to work: it deposits into the pool
// and stakes the minted receipt tokens with the rewarder. The caller
// guarantees amount does not exceed the actual idle balance. Failures
// propagate unrecovered; retry policy belongs to the caller.
func (a *Adapter) DeployFunds(ctx context.Context, amount *big.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.shutdown {
		return ErrShutdown
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}

	shares, err := a.pool.Deposit(ctx, amount, a.self)
	if err != nil {
		return fmt.Errorf("deploy: pool deposit: %w", err)
	}
	if shares.Sign() > 0 {
		if err := a.rewarder.Stake(ctx, a.self, shares); err != nil {
			return fmt.Errorf("deploy: stake: %w", err)
		}
	}

	a.metrics.deploysTotal.Inc()
	a.logger.Debug("deployed funds", "asset", a.asset.Address(), "amount", amount.String(), "shares", shares.String())
	return nil
}

// FreeFunds releases amount of asset back to the adapter's idle balance by
// unstaking and redeeming the equivalent receipt tokens at the pool's
// current rate. Rewards are not claimed on the way out.
//
// Shortfall policy: if the value redeemable for the converted shares falls
// short of the request by more than the slippage tolerance, the whole
// withdrawal is rejected before any funds move. A shortfall within
// tolerance is accepted and surfaced to the caller as the returned loss;
// it is never corrected or papered over internally.
func (a *Adapter) FreeFunds(ctx context.Context, amount *big.Int) (freed, loss *big.Int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if amount.Sign() < 0 {
		return nil, nil, ErrNegativeAmount
	}
	if amount.Sign() == 0 {
		return new(big.Int), new(big.Int), nil
	}

	shares, err := a.pool.ConvertToShares(ctx, amount)
	if err != nil {
		return nil, nil, fmt.Errorf("free: convert to shares: %w", err)
	}
	staked, err := a.rewarder.BalanceOf(ctx, a.self)
	if err != nil {
		return nil, nil, fmt.Errorf("free: staked balance: %w", err)
	}
	if shares.Cmp(staked) > 0 {
		shares = staked
	}

	// Quote the redeemable value before moving anything so an excessive
	// shortfall rejects the withdrawal with no state change.
	expected, err := a.pool.ConvertToAssets(ctx, shares)
	if err != nil {
		return nil, nil, fmt.Errorf("free: convert to assets: %w", err)
	}
	if deficit := new(big.Int).Sub(amount, expected); deficit.Sign() > 0 {
		if deficit.Cmp(a.maxLoss(amount)) > 0 {
			return nil, nil, fmt.Errorf("%w: requested %s, redeemable %s", ErrExcessiveLoss, amount, expected)
		}
	}

	if err := a.rewarder.Withdraw(ctx, a.self, shares, false); err != nil {
		return nil, nil, fmt.Errorf("free: unstake: %w", err)
	}
	freed, err = a.pool.Redeem(ctx, shares, a.self, a.self)
	if err != nil {
		return nil, nil, fmt.Errorf("free: redeem: %w", err)
	}

	loss = new(big.Int).Sub(amount, freed)
	if loss.Sign() < 0 {
		loss.SetInt64(0)
	}

	a.metrics.freesTotal.Inc()
	if loss.Sign() > 0 {
		lossF, _ := new(big.Float).SetInt(loss).Float64()
		a.metrics.realizedLoss.Add(lossF)
		a.logger.Warn("freed funds with shortfall", "asset", a.asset.Address(), "requested", amount.String(), "freed", freed.String(), "loss", loss.String())
	} else {
		a.logger.Debug("freed funds", "asset", a.asset.Address(), "amount", freed.String())
	}
	return freed, loss, nil
}

// HarvestAndReport claims any pending rewards and returns the trusted
// total-asset figure: the idle asset balance plus the staked position valued
// at the pool's live conversion rate. Claimed reward tokens stay idle for
// the external trading pipeline; they are never sold here and, being a
// different token, do not enter the total.
func (a *Adapter) HarvestAndReport(ctx context.Context) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	timer := prometheus.NewTimer(a.metrics.harvestDuration)
	defer timer.ObserveDuration()

	if err := a.rewarder.GetReward(ctx, a.self); err != nil {
		return nil, fmt.Errorf("harvest: claim rewards: %w", err)
	}

	// Balances are read after the external claim call, never before it.
	idle, err := a.asset.BalanceOf(ctx, a.self)
	if err != nil {
		return nil, fmt.Errorf("harvest: idle balance: %w", err)
	}
	deployed, err := a.stakedValue(ctx)
	if err != nil {
		return nil, fmt.Errorf("harvest: %w", err)
	}
	total := new(big.Int).Add(idle, deployed)

	a.metrics.harvestsTotal.Inc()
	totalF, _ := new(big.Float).SetInt(total).Float64()
	a.metrics.lastReportedAssets.Set(totalF)

	a.events.Emit(events.Event{
		Type:    events.TypeHarvest,
		Adapter: a.self,
		Asset:   a.asset.Address(),
		Data:    events.Harvest{TotalAssets: total, Idle: idle, Deployed: deployed},
	})
	a.logger.Info("harvest report", "asset", a.asset.Address(), "total", total.String(), "idle", idle.String(), "deployed", deployed.String())
	return total, nil
}

// ClaimRewards claims pending incentive rewards from the rewarder. The
// proceeds stay idle for the external trading pipeline. Keeper-gated.
func (a *Adapter) ClaimRewards(ctx context.Context, caller common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ops.isKeeper(caller) {
		return ErrUnauthorized
	}
	if err := a.rewarder.GetReward(ctx, a.self); err != nil {
		return fmt.Errorf("claim rewards: %w", err)
	}
	a.logger.Debug("claimed rewards", "asset", a.asset.Address())
	return nil
}

// EmergencyWithdraw frees min(amount, redeemable value) back to the idle
// balance without realizing profit or loss; a later HarvestAndReport
// recognizes any resulting gain or loss. Gated to management and the
// emergency admin.
func (a *Adapter) EmergencyWithdraw(ctx context.Context, caller common.Address, amount *big.Int) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ops.isEmergencyAuthorized(caller) {
		return nil, ErrUnauthorized
	}
	if amount.Sign() < 0 {
		return nil, ErrNegativeAmount
	}

	redeemable, err := a.stakedValue(ctx)
	if err != nil {
		return nil, fmt.Errorf("emergency withdraw: %w", err)
	}
	target := new(big.Int).Set(amount)
	if target.Cmp(redeemable) > 0 {
		target.Set(redeemable)
	}
	if target.Sign() == 0 {
		return new(big.Int), nil
	}

	shares, err := a.pool.ConvertToShares(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("emergency withdraw: convert to shares: %w", err)
	}
	staked, err := a.rewarder.BalanceOf(ctx, a.self)
	if err != nil {
		return nil, fmt.Errorf("emergency withdraw: staked balance: %w", err)
	}
	if shares.Cmp(staked) > 0 {
		shares = staked
	}
	if err := a.rewarder.Withdraw(ctx, a.self, shares, false); err != nil {
		return nil, fmt.Errorf("emergency withdraw: unstake: %w", err)
	}
	freed, err := a.pool.Redeem(ctx, shares, a.self, a.self)
	if err != nil {
		return nil, fmt.Errorf("emergency withdraw: redeem: %w", err)
	}

	a.events.Emit(events.Event{
		Type:    events.TypeEmergencyWithdrawal,
		Adapter: a.self,
		Asset:   a.asset.Address(),
		Data:    events.EmergencyWithdrawal{Requested: amount, Freed: freed},
	})
	a.logger.Warn("emergency withdrawal", "asset", a.asset.Address(), "requested", amount.String(), "freed", freed.String())
	return freed, nil
}

// Shutdown suspends new deploys. FreeFunds and EmergencyWithdraw remain
// callable. Idempotent; gated to management and the emergency admin.
func (a *Adapter) Shutdown(caller common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ops.isEmergencyAuthorized(caller) {
		return ErrUnauthorized
	}
	if a.shutdown {
		return nil
	}
	a.shutdown = true
	a.events.Emit(events.Event{Type: events.TypeShutdown, Adapter: a.self, Asset: a.asset.Address()})
	a.logger.Warn("adapter shut down", "asset", a.asset.Address())
	return nil
}

// IsShutdown reports whether new deploys are suspended.
func (a *Adapter) IsShutdown() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.shutdown
}

// Tend is an optional maintenance hook. The default implementation does
// nothing.
func (a *Adapter) Tend(_ context.Context, caller common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ops.isKeeper(caller) {
		return ErrUnauthorized
	}
	return nil
}

// TendTrigger reports whether a Tend call is currently worthwhile. The
// default implementation never requests one.
func (a *Adapter) TendTrigger(_ context.Context) (bool, error) {
	return false, nil
}

// stakedValue values the staked receipt position in asset terms at the
// pool's live rate. Callers must hold a.mu.
func (a *Adapter) stakedValue(ctx context.Context) (*big.Int, error) {
	staked, err := a.rewarder.BalanceOf(ctx, a.self)
	if err != nil {
		return nil, fmt.Errorf("staked balance: %w", err)
	}
	value, err := a.pool.ConvertToAssets(ctx, staked)
	if err != nil {
		return nil, fmt.Errorf("convert staked to assets: %w", err)
	}
	return value, nil
}

// maxLoss returns the largest acceptable shortfall for a withdrawal of
// amount under the current slippage tolerance. Callers must hold a.mu.
func (a *Adapter) maxLoss(amount *big.Int) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(a.slippage))
	return out.Div(out, new(big.Int).SetUint64(SlippageScale))
}
