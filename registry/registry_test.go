package registry

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldstate/vault-adapter-go/adapter"
	"github.com/yieldstate/vault-adapter-go/clients/sim"
	"github.com/yieldstate/vault-adapter-go/events"
)

var (
	registrySelf = common.HexToAddress("0xfac")
	mgmt         = common.HexToAddress("0x100")
	keeperAddr   = common.HexToAddress("0x200")
	feeRecv      = common.HexToAddress("0x300")
	emergency    = common.HexToAddress("0x400")
	stranger     = common.HexToAddress("0xbad")
)

// bundle is one asset/pool/rewarder triple ready for registration.
type bundle struct {
	asset    *sim.Token
	reward   *sim.Token
	pool     *sim.Pool
	rewarder *sim.Rewarder
}

func newBundle(seed byte, symbol string) *bundle {
	base := common.Address{0x50, seed}
	asset := sim.NewToken(base, symbol)
	reward := sim.NewToken(common.Address{0x51, seed}, "RWD")
	pool := sim.NewPool(common.Address{0x52, seed}, "ap"+symbol, asset)
	rewarder := sim.NewRewarder(common.Address{0x53, seed}, pool, reward)
	return &bundle{asset: asset, reward: reward, pool: pool, rewarder: rewarder}
}

func newTestSystem(t *testing.T) (*System, *events.Broadcaster) {
	t.Helper()

	broadcaster := events.NewBroadcaster(64)
	s, err := NewSystem(&Config{
		Self: registrySelf,
		Operators: Operators{
			Management:     mgmt,
			FeeRecipient:   feeRecv,
			Keeper:         keeperAddr,
			EmergencyAdmin: emergency,
		},
		Logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Registry: prometheus.NewRegistry(),
		Events:   broadcaster,
	})
	require.NoError(t, err)
	return s, broadcaster
}

func TestNewSystem(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		s, _ := newTestSystem(t)
		require.NotNil(t, s)
		assert.Empty(t, s.View().Entries)
	})

	t.Run("rejects zero operators", func(t *testing.T) {
		_, err := NewSystem(&Config{
			Self:      registrySelf,
			Operators: Operators{Management: mgmt, FeeRecipient: feeRecv},
			Logger:    slog.New(slog.NewJSONHandler(io.Discard, nil)),
			Registry:  prometheus.NewRegistry(),
		})
		require.Error(t, err)
	})

	t.Run("rejects default slippage above maximum", func(t *testing.T) {
		_, err := NewSystem(&Config{
			Self: registrySelf,
			Operators: Operators{
				Management:   mgmt,
				FeeRecipient: feeRecv,
				Keeper:       keeperAddr,
			},
			DefaultSlippage: adapter.MaxSlippage + 1,
			Logger:          slog.New(slog.NewJSONHandler(io.Discard, nil)),
			Registry:        prometheus.NewRegistry(),
		})
		require.ErrorIs(t, err, adapter.ErrSlippageTooHigh)
	})
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("matching triple registers exactly one entry", func(t *testing.T) {
		s, _ := newTestSystem(t)
		b := newBundle(1, "USDC")

		inst, err := s.Create(ctx, mgmt, b.asset, b.pool, b.rewarder)
		require.NoError(t, err)
		require.NotNil(t, inst)

		view := s.View()
		require.Len(t, view.Entries, 1)
		entry := view.Entries[0]
		assert.Equal(t, b.asset.Address(), entry.Asset)
		assert.Equal(t, inst.Address(), entry.Adapter)
		assert.Equal(t, b.pool.Address(), entry.Pool)
		assert.Equal(t, b.rewarder.Address(), entry.Rewarder)
		assert.True(t, s.IsRegistered(inst.Address()))
	})

	t.Run("pool asset mismatch rejected with no state change", func(t *testing.T) {
		s, _ := newTestSystem(t)
		b := newBundle(1, "USDC")
		other := newBundle(2, "WETH")

		// The pool wraps a different underlying than the asset offered.
		_, err := s.Create(ctx, mgmt, other.asset, b.pool, b.rewarder)
		require.ErrorIs(t, err, ErrAssetMismatch)
		assert.Empty(t, s.View().Entries)
	})

	t.Run("staking token mismatch rejected with no state change", func(t *testing.T) {
		s, _ := newTestSystem(t)
		b := newBundle(1, "USDC")
		other := newBundle(2, "WETH")

		// The rewarder stakes a different pool's receipt token.
		_, err := s.Create(ctx, mgmt, b.asset, b.pool, other.rewarder)
		require.ErrorIs(t, err, ErrStakingTokenMismatch)
		assert.Empty(t, s.View().Entries)
	})

	t.Run("exactly once per asset", func(t *testing.T) {
		s, _ := newTestSystem(t)
		b := newBundle(1, "USDC")

		first, err := s.Create(ctx, mgmt, b.asset, b.pool, b.rewarder)
		require.NoError(t, err)

		// A second attempt for the same asset must fail regardless of the
		// pool/rewarder offered, and leave the original entry untouched.
		pool2 := sim.NewPool(common.Address{0x60}, "apUSDC2", b.asset)
		rewarder2 := sim.NewRewarder(common.Address{0x61}, pool2, b.reward)
		_, err = s.Create(ctx, mgmt, b.asset, pool2, rewarder2)
		require.ErrorIs(t, err, ErrAlreadyRegistered)

		view := s.View()
		require.Len(t, view.Entries, 1)
		assert.Equal(t, first.Address(), view.Entries[0].Adapter)
	})

	t.Run("management only", func(t *testing.T) {
		s, _ := newTestSystem(t)
		b := newBundle(1, "USDC")
		_, err := s.Create(ctx, stranger, b.asset, b.pool, b.rewarder)
		require.ErrorIs(t, err, ErrUnauthorized)
		assert.Empty(t, s.View().Entries)
	})

	t.Run("propagates operators with pending handshake", func(t *testing.T) {
		s, _ := newTestSystem(t)
		b := newBundle(1, "USDC")

		inst, err := s.Create(ctx, mgmt, b.asset, b.pool, b.rewarder)
		require.NoError(t, err)

		ops := inst.Operators()
		assert.Equal(t, registrySelf, ops.Management, "the registry holds management until the operator accepts")
		assert.Equal(t, mgmt, ops.PendingManagement)
		assert.Equal(t, feeRecv, ops.FeeRecipient)
		assert.Equal(t, keeperAddr, ops.Keeper)
		assert.Equal(t, emergency, ops.EmergencyAdmin)

		require.NoError(t, inst.AcceptManagement(mgmt))
		assert.Equal(t, mgmt, inst.Operators().Management)
	})

	t.Run("distinct assets get distinct adapter addresses", func(t *testing.T) {
		s, _ := newTestSystem(t)
		a := newBundle(1, "USDC")
		b := newBundle(2, "WETH")

		instA, err := s.Create(ctx, mgmt, a.asset, a.pool, a.rewarder)
		require.NoError(t, err)
		instB, err := s.Create(ctx, mgmt, b.asset, b.pool, b.rewarder)
		require.NoError(t, err)

		assert.NotEqual(t, instA.Address(), instB.Address())
		assert.True(t, s.IsRegistered(instA.Address()))
		assert.True(t, s.IsRegistered(instB.Address()))
	})

	t.Run("emits a creation event", func(t *testing.T) {
		s, broadcaster := newTestSystem(t)
		b := newBundle(1, "USDC")

		inst, err := s.Create(ctx, mgmt, b.asset, b.pool, b.rewarder)
		require.NoError(t, err)

		e := <-broadcaster.Events()
		assert.Equal(t, events.TypeAdapterCreated, e.Type)
		assert.Equal(t, inst.Address(), e.Adapter)
		data := e.Data.(events.AdapterCreated)
		assert.Equal(t, "apUSDC", data.Symbol)
	})

	t.Run("created adapter is operable end to end", func(t *testing.T) {
		s, _ := newTestSystem(t)
		b := newBundle(1, "USDC")

		inst, err := s.Create(ctx, mgmt, b.asset, b.pool, b.rewarder)
		require.NoError(t, err)

		b.asset.Mint(inst.Address(), big.NewInt(1000))
		require.NoError(t, inst.DeployFunds(ctx, big.NewInt(1000)))

		total, err := inst.HarvestAndReport(ctx)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(1000), total)

		freed, loss, err := inst.FreeFunds(ctx, big.NewInt(1000))
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(1000), freed)
		assert.Zero(t, loss.Sign())
	})
}

func TestIsRegistered(t *testing.T) {
	s, _ := newTestSystem(t)
	assert.False(t, s.IsRegistered(stranger))
	assert.False(t, s.IsRegistered(common.Address{}))
}

func TestUpdateOperators(t *testing.T) {
	ctx := context.Background()
	newMgmt := common.HexToAddress("0x110")
	newFee := common.HexToAddress("0x310")
	newKeeper := common.HexToAddress("0x210")

	t.Run("applies to future instances only", func(t *testing.T) {
		s, _ := newTestSystem(t)
		a := newBundle(1, "USDC")
		b := newBundle(2, "WETH")

		before, err := s.Create(ctx, mgmt, a.asset, a.pool, a.rewarder)
		require.NoError(t, err)

		require.NoError(t, s.UpdateOperators(mgmt, newMgmt, newFee, newKeeper))

		after, err := s.Create(ctx, newMgmt, b.asset, b.pool, b.rewarder)
		require.NoError(t, err)

		assert.Equal(t, keeperAddr, before.Operators().Keeper, "existing instances keep their configuration")
		assert.Equal(t, newKeeper, after.Operators().Keeper)
		assert.Equal(t, newMgmt, after.Operators().PendingManagement)
		assert.Equal(t, newFee, after.Operators().FeeRecipient)
	})

	t.Run("management only", func(t *testing.T) {
		s, _ := newTestSystem(t)
		require.ErrorIs(t, s.UpdateOperators(stranger, newMgmt, newFee, newKeeper), ErrUnauthorized)
		assert.Equal(t, mgmt, s.Operators().Management)
	})

	t.Run("all values must be non-zero", func(t *testing.T) {
		s, _ := newTestSystem(t)
		zero := common.Address{}
		require.ErrorIs(t, s.UpdateOperators(mgmt, zero, newFee, newKeeper), ErrZeroAddress)
		require.ErrorIs(t, s.UpdateOperators(mgmt, newMgmt, zero, newKeeper), ErrZeroAddress)
		require.ErrorIs(t, s.UpdateOperators(mgmt, newMgmt, newFee, zero), ErrZeroAddress)
		assert.Equal(t, mgmt, s.Operators().Management)
	})

	t.Run("old management loses the create right", func(t *testing.T) {
		s, _ := newTestSystem(t)
		require.NoError(t, s.UpdateOperators(mgmt, newMgmt, newFee, newKeeper))

		b := newBundle(1, "USDC")
		_, err := s.Create(ctx, mgmt, b.asset, b.pool, b.rewarder)
		require.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestView(t *testing.T) {
	ctx := context.Background()

	t.Run("entries sorted by asset", func(t *testing.T) {
		s, _ := newTestSystem(t)
		a := newBundle(9, "USDC")
		b := newBundle(1, "WETH")

		_, err := s.Create(ctx, mgmt, a.asset, a.pool, a.rewarder)
		require.NoError(t, err)
		_, err = s.Create(ctx, mgmt, b.asset, b.pool, b.rewarder)
		require.NoError(t, err)

		view := s.View()
		require.Len(t, view.Entries, 2)
		assert.Equal(t, b.asset.Address(), view.Entries[0].Asset)
		assert.Equal(t, a.asset.Address(), view.Entries[1].Asset)
	})

	t.Run("returned view is caller-owned", func(t *testing.T) {
		s, _ := newTestSystem(t)
		b := newBundle(1, "USDC")
		_, err := s.Create(ctx, mgmt, b.asset, b.pool, b.rewarder)
		require.NoError(t, err)

		view := s.View()
		view.Entries[0].Adapter = stranger

		fresh := s.View()
		assert.NotEqual(t, stranger, fresh.Entries[0].Adapter, "mutating a returned view must not leak into the cache")
	})
}

func TestAdapters(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSystem(t)
	assert.Empty(t, s.Adapters())

	b := newBundle(1, "USDC")
	inst, err := s.Create(ctx, mgmt, b.asset, b.pool, b.rewarder)
	require.NoError(t, err)

	all := s.Adapters()
	require.Len(t, all, 1)
	assert.Same(t, inst, all[0])

	got, ok := s.Adapter(inst.Address())
	require.True(t, ok)
	assert.Same(t, inst, got)

	entry, ok := s.Entry(b.asset.Address())
	require.True(t, ok)
	assert.Equal(t, inst.Address(), entry.Adapter)
}
