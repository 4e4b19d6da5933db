package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yieldstate/vault-adapter-go/adapter"
	"github.com/yieldstate/vault-adapter-go/clients"
	"github.com/yieldstate/vault-adapter-go/events"
)

// Config holds the registry's construction parameters.
type Config struct {
	// Self is the registry's own identity; new adapter addresses are
	// derived from it.
	Self common.Address

	Operators Operators

	// DefaultSlippage seeds each new adapter's tolerance, in parts per
	// hundred-thousand. Zero means adapter.DefaultSlippage.
	DefaultSlippage uint64

	Logger   clients.Logger
	Registry prometheus.Registerer

	// Events receives creation and configuration notifications. Optional.
	Events events.Sink
}

func (c *Config) validate() error {
	zero := common.Address{}
	if c.Self == zero {
		return errors.New("config: Self is required")
	}
	if c.Operators.Management == zero {
		return errors.New("config: Operators.Management is required")
	}
	if c.Operators.FeeRecipient == zero {
		return errors.New("config: Operators.FeeRecipient is required")
	}
	if c.Operators.Keeper == zero {
		return errors.New("config: Operators.Keeper is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	if c.DefaultSlippage > adapter.MaxSlippage {
		return adapter.ErrSlippageTooHigh
	}
	return nil
}

// System is the concurrency-safe layer over the registry core. Writes go
// through a mutex; reads of the snapshot view are lock-free via an
// atomically cached pointer.
type System struct {
	mu         sync.RWMutex
	registry   *Registry
	cachedView atomic.Pointer[View]
}

func NewSystem(cfg *Config) (*System, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	sink := cfg.Events
	if sink == nil {
		sink = events.NopSink{}
	}
	s := &System{
		registry: &Registry{
			self:            cfg.Self,
			ops:             cfg.Operators,
			entries:         make(map[common.Address]Entry),
			instances:       make(map[common.Address]*adapter.Adapter),
			defaultSlippage: cfg.DefaultSlippage,
			logger:          cfg.Logger,
			registerer:      cfg.Registry,
			events:          sink,
		},
	}
	s.cachedView.Store(s.registry.view())
	return s, nil
}

// updateCachedView refreshes the lock-free snapshot.
// Callers must hold s.mu for writing.
func (s *System) updateCachedView() {
	s.cachedView.Store(s.registry.view())
}

// Create validates and constructs a new adapter bound to the asset, pool
// and rewarder, records its registry entry and propagates the current
// operator configuration. Management-gated; exactly-once per asset.
func (s *System) Create(
	ctx context.Context,
	caller common.Address,
	token clients.Token,
	pool clients.YieldPool,
	rewarder clients.Rewarder,
) (*adapter.Adapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, err := s.registry.create(ctx, caller, token, pool, rewarder)
	if err != nil {
		return nil, err
	}
	s.updateCachedView()
	return inst, nil
}

// UpdateOperators replaces the operator configuration used for future
// instances. Already-created adapters are unaffected.
func (s *System) UpdateOperators(caller, management, feeRecipient, keeper common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.registry.updateOperators(caller, management, feeRecipient, keeper); err != nil {
		return err
	}
	s.updateCachedView()
	return nil
}

// IsRegistered reports whether the registry entry for the given adapter's
// asset points at that adapter.
func (s *System) IsRegistered(adapterAddr common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.isRegistered(adapterAddr)
}

// Adapter returns the instance deployed at addr, if any.
func (s *System) Adapter(addr common.Address) (*adapter.Adapter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.registry.instances[addr]
	return inst, ok
}

// Adapters returns every registered instance, ordered by asset.
func (s *System) Adapters() []*adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := s.registry.view()
	out := make([]*adapter.Adapter, 0, len(view.Entries))
	for _, entry := range view.Entries {
		out = append(out, s.registry.instances[entry.Adapter])
	}
	return out
}

// Entry returns the registry entry for an asset, if any.
func (s *System) Entry(asset common.Address) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.registry.entries[asset]
	return entry, ok
}

// Operators returns the configuration that will be propagated to the next
// created instance.
func (s *System) Operators() Operators {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.ops
}

// View returns a deep copy of the cached registry snapshot. Safe for
// concurrent use and for mutation by the caller.
func (s *System) View() *View {
	cached := s.cachedView.Load()
	if cached == nil {
		return &View{}
	}
	entries := make([]Entry, len(cached.Entries))
	copy(entries, cached.Entries)
	return &View{
		Entries:   entries,
		Operators: cached.Operators,
	}
}
