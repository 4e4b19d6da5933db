package keeper

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yieldstate/vault-adapter-go/adapter"
	"github.com/yieldstate/vault-adapter-go/clients/sim"
	"github.com/yieldstate/vault-adapter-go/registry"
)

var (
	registrySelf = common.HexToAddress("0xfac")
	mgmt         = common.HexToAddress("0x100")
	keeperAddr   = common.HexToAddress("0x200")
	feeRecv      = common.HexToAddress("0x300")
	emergency    = common.HexToAddress("0x400")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// newFundedSystem builds a registry with one adapter holding 1000 idle units.
func newFundedSystem(t *testing.T) (*registry.System, *adapter.Adapter) {
	t.Helper()

	asset := sim.NewToken(common.HexToAddress("0x1"), "USDC")
	reward := sim.NewToken(common.HexToAddress("0x2"), "RWD")
	pool := sim.NewPool(common.HexToAddress("0x3"), "apUSDC", asset)
	rewarder := sim.NewRewarder(common.HexToAddress("0x4"), pool, reward)

	s, err := registry.NewSystem(&registry.Config{
		Self: registrySelf,
		Operators: registry.Operators{
			Management:     mgmt,
			FeeRecipient:   feeRecv,
			Keeper:         keeperAddr,
			EmergencyAdmin: emergency,
		},
		Logger:   testLogger(),
		Registry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	inst, err := s.Create(context.Background(), mgmt, asset, pool, rewarder)
	require.NoError(t, err)
	asset.Mint(inst.Address(), big.NewInt(1000))
	return s, inst
}

func TestKeeper(t *testing.T) {
	t.Run("harvests on tick and publishes reports", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		s, inst := newFundedSystem(t)
		ctx, cancel := context.WithCancel(context.Background())

		k, err := New(ctx, Config{
			Caller:     keeperAddr,
			Interval:   5 * time.Millisecond,
			BufferSize: 8,
			Logger:     testLogger(),
			Registry:   prometheus.NewRegistry(),
		}, s)
		require.NoError(t, err)

		select {
		case report := <-k.Reports():
			assert.Equal(t, inst.Address(), report.Adapter)
			assert.Equal(t, inst.AssetAddress(), report.Asset)
			assert.Equal(t, big.NewInt(1000), report.TotalAssets)
			assert.NotZero(t, report.HarvestedAt)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for a report")
		}

		cancel()
		k.Wait()
	})

	t.Run("stops cleanly on context cancellation", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		s, _ := newFundedSystem(t)
		ctx, cancel := context.WithCancel(context.Background())

		k, err := New(ctx, Config{
			Caller:     keeperAddr,
			Interval:   time.Hour, // never ticks during the test
			BufferSize: 1,
			Logger:     testLogger(),
			Registry:   prometheus.NewRegistry(),
		}, s)
		require.NoError(t, err)

		cancel()
		k.Wait()

		_, open := <-k.Reports()
		assert.False(t, open, "report channel must be closed after shutdown")
	})

	t.Run("unauthorized caller surfaces per-adapter failures without stopping", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		s, inst := newFundedSystem(t)
		ctx, cancel := context.WithCancel(context.Background())

		k, err := New(ctx, Config{
			Caller:     common.HexToAddress("0xbad"),
			Interval:   5 * time.Millisecond,
			BufferSize: 1,
			Logger:     testLogger(),
			Registry:   prometheus.NewRegistry(),
		}, s)
		require.NoError(t, err)

		// Give the loop a few cycles; with an unauthorized caller no report
		// can ever be produced.
		time.Sleep(50 * time.Millisecond)
		select {
		case report, open := <-k.Reports():
			if open {
				t.Fatalf("unexpected report for %s", report.Adapter)
			}
		default:
		}
		assert.False(t, inst.IsShutdown())

		cancel()
		k.Wait()

		err, open := <-k.Err()
		require.True(t, open, "expected a surfaced harvest error")
		assert.ErrorIs(t, err, adapter.ErrUnauthorized)
	})

	t.Run("config validation", func(t *testing.T) {
		ctx := context.Background()
		s, _ := newFundedSystem(t)

		_, err := New(ctx, Config{}, s)
		require.Error(t, err)

		_, err = New(ctx, Config{
			Caller:     keeperAddr,
			Interval:   time.Second,
			BufferSize: 1,
			Logger:     testLogger(),
			Registry:   prometheus.NewRegistry(),
		}, nil)
		require.Error(t, err)
	})
}

func TestFileConfig(t *testing.T) {
	t.Run("loads and resolves yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "keeper.yaml")
		raw := "caller: \"0x0000000000000000000000000000000000000200\"\ninterval: 30s\nbufferSize: 16\n"
		require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

		fileCfg, err := LoadFileConfig(path)
		require.NoError(t, err)

		cfg, err := fileCfg.ToConfig()
		require.NoError(t, err)
		assert.Equal(t, keeperAddr, cfg.Caller)
		assert.Equal(t, 30*time.Second, cfg.Interval)
		assert.Equal(t, uint(16), cfg.BufferSize)
	})

	t.Run("rejects malformed values", func(t *testing.T) {
		bad := FileConfig{Caller: "not-an-address", Interval: "30s"}
		_, err := bad.ToConfig()
		require.Error(t, err)

		bad = FileConfig{Caller: "0x0000000000000000000000000000000000000200", Interval: "soon"}
		_, err = bad.ToConfig()
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFileConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})
}
