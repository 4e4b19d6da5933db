// Package keeper runs the periodic operator loop: on every tick it claims
// rewards and harvests each registered adapter, publishing the reported
// totals to subscribers.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yieldstate/vault-adapter-go/adapter"
	"github.com/yieldstate/vault-adapter-go/clients"
)

// AdapterSource yields the adapters the keeper services on each tick.
// registry.System satisfies it.
type AdapterSource interface {
	Adapters() []*adapter.Adapter
}

// Report carries the outcome of one harvest cycle for one adapter.
type Report struct {
	Adapter     common.Address `json:"adapter"`
	Asset       common.Address `json:"asset"`
	TotalAssets *big.Int       `json:"totalAssets"`
	HarvestedAt int64          `json:"harvestedAt"` // Unix nanoseconds
}

// Config holds the keeper's construction parameters.
type Config struct {
	// Caller is the identity the keeper acts as. It must hold the keeper
	// role on the adapters it services.
	Caller common.Address

	// Interval between harvest cycles.
	Interval time.Duration

	// BufferSize bounds the report channel. Delivery is best-effort; if the
	// consumer is slow, reports are dropped.
	BufferSize uint

	Logger   clients.Logger
	Registry prometheus.Registerer
}

func (c *Config) validate() error {
	if c.Caller == (common.Address{}) {
		return errors.New("config: Caller is required")
	}
	if c.Interval <= 0 {
		return errors.New("config: Interval must be positive")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	return nil
}

// Option configures the Keeper.
// The interface method is unexported to prevent external modification after New.
type Option interface {
	apply(*Keeper)
}

type funcOption func(*Keeper)

func (f funcOption) apply(k *Keeper) {
	f(k)
}

// WithClock overrides the ticker source, for tests.
func WithClock(newTicker func(d time.Duration) *time.Ticker) Option {
	return funcOption(func(k *Keeper) {
		k.newTicker = newTicker
	})
}

// Keeper drives the harvest schedule. Its lifecycle is bound to the context
// passed to New.
type Keeper struct {
	caller   common.Address
	interval time.Duration
	source   AdapterSource
	logger   clients.Logger
	metrics  *Metrics

	newTicker func(d time.Duration) *time.Ticker

	reportCh chan Report
	errCh    chan error

	ctx context.Context
	wg  sync.WaitGroup
}

// New starts the keeper loop. It runs until ctx is cancelled.
func New(ctx context.Context, cfg Config, source AdapterSource, opts ...Option) (*Keeper, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, errors.New("keeper: source is required")
	}

	k := &Keeper{
		caller:    cfg.Caller,
		interval:  cfg.Interval,
		source:    source,
		logger:    cfg.Logger,
		metrics:   NewMetrics(cfg.Registry),
		newTicker: time.NewTicker,
		reportCh:  make(chan Report, cfg.BufferSize),
		errCh:     make(chan error, 1),
	}
	for _, opt := range opts {
		opt.apply(k)
	}

	k.ctx = ctx
	k.wg.Add(1)
	go k.loop()

	k.logger.Info("keeper started", "caller", cfg.Caller, "interval", cfg.Interval)
	return k, nil
}

// Reports channel is best-effort; if the consumer is slow, reports may be
// dropped.
func (k *Keeper) Reports() <-chan Report {
	return k.reportCh
}

func (k *Keeper) Err() <-chan error {
	return k.errCh
}

// Wait blocks until the loop has fully stopped after context cancellation.
func (k *Keeper) Wait() {
	k.wg.Wait()
}

func (k *Keeper) loop() {
	defer k.wg.Done()
	defer func() {
		close(k.reportCh)
		close(k.errCh)
		k.logger.Info("keeper stopped")
	}()

	ticker := k.newTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-k.ctx.Done():
			return
		case <-ticker.C:
			k.runCycle()
		}
	}
}

// runCycle harvests every adapter once. Per-adapter failures are logged and
// counted but do not abort the cycle for the remaining adapters.
func (k *Keeper) runCycle() {
	k.metrics.cyclesTotal.Inc()

	for _, inst := range k.source.Adapters() {
		if k.ctx.Err() != nil {
			return
		}
		report, err := k.harvest(inst)
		if err != nil {
			k.metrics.harvestErrors.Inc()
			k.logger.Error("harvest failed", "adapter", inst.Address(), "asset", inst.AssetAddress(), "err", err)
			select {
			case k.errCh <- err:
			default:
			}
			continue
		}

		select {
		case k.reportCh <- report:
		default:
			k.logger.Warn("report buffer full, discarding report", "adapter", inst.Address())
		}
	}
}

func (k *Keeper) harvest(inst *adapter.Adapter) (Report, error) {
	if err := inst.ClaimRewards(k.ctx, k.caller); err != nil {
		return Report{}, fmt.Errorf("claim rewards: %w", err)
	}
	total, err := inst.HarvestAndReport(k.ctx)
	if err != nil {
		return Report{}, fmt.Errorf("harvest and report: %w", err)
	}
	return Report{
		Adapter:     inst.Address(),
		Asset:       inst.AssetAddress(),
		TotalAssets: total,
		HarvestedAt: time.Now().UnixNano(),
	}, nil
}
