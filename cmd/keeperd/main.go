package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yieldstate/vault-adapter-go/clients/sim"
	"github.com/yieldstate/vault-adapter-go/events"
	"github.com/yieldstate/vault-adapter-go/keeper"
	"github.com/yieldstate/vault-adapter-go/registry"
)

const (
	DefaultEventBufferSize = 100

	seedBalance = 1_000_000
	cycleYield  = 1_000
)

// keeperd runs the harvest keeper against an in-memory pool and rewarder.
// It seeds a single asset, registers an adapter for it, deploys the seed
// balance and then reports every harvest cycle until interrupted.
func main() {
	rootLogHandler := slog.NewJSONHandler(os.Stdout, nil)
	close := func() {
		os.Exit(1)
	}

	rootLogger := slog.New(rootLogHandler)
	prometheusRegistry := prometheus.DefaultRegisterer
	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		close()
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		management = common.HexToAddress("0x0000000000000000000000000000000000000100")
		feeRecv    = common.HexToAddress("0x0000000000000000000000000000000000000300")
		registrar  = common.HexToAddress("0x00000000000000000000000000000000000fac70")

		usd      = sim.NewToken(common.HexToAddress("0x0000000000000000000000000000000000000a01"), "USD")
		pool     = sim.NewPool(common.HexToAddress("0x0000000000000000000000000000000000000a02"), "apUSD", usd)
		rewarder = sim.NewRewarder(common.HexToAddress("0x0000000000000000000000000000000000000a03"), pool, usd)
	)

	broadcaster := events.NewBroadcaster(DefaultEventBufferSize)

	system, err := registry.NewSystem(&registry.Config{
		Self: registrar,
		Operators: registry.Operators{
			Management:   management,
			FeeRecipient: feeRecv,
			Keeper:       cfg.Caller,
		},
		Logger:   rootLogger.With("component", "registry"),
		Registry: prometheusRegistry,
		Events:   broadcaster,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize registry", "error", err)
		close()
	}

	inst, err := system.Create(ctx, management, usd, pool, rewarder)
	if err != nil {
		rootLogger.Error("Failed to create adapter", "asset", usd.Address(), "error", err)
		close()
	}

	usd.Mint(inst.Address(), big.NewInt(seedBalance))
	if err := inst.DeployFunds(ctx, big.NewInt(seedBalance)); err != nil {
		rootLogger.Error("Failed to deploy seed balance", "error", err)
		close()
	}

	k, err := keeper.New(ctx, keeper.Config{
		Caller:     cfg.Caller,
		Interval:   cfg.Interval,
		BufferSize: cfg.BufferSize,
		Logger:     rootLogger.With("component", "keeper"),
		Registry:   prometheusRegistry,
	}, system)
	if err != nil {
		rootLogger.Error("Failed to initialize keeper", "error", err)
		close()
	}

	for {
		select {
		case report, ok := <-k.Reports():
			if !ok {
				return
			}
			rootLogger.Info("harvest report",
				"adapter", report.Adapter,
				"asset", report.Asset,
				"total_assets", report.TotalAssets,
			)
			// Simulate pool yield accruing between cycles.
			pool.Accrue(big.NewInt(cycleYield))
		case event := <-broadcaster.Events():
			rootLogger.Info("registry event", "type", event.Type, "adapter", event.Adapter)
		case err, ok := <-k.Err():
			if !ok {
				return
			}
			rootLogger.Error("Harvest error", "error", err)
		case <-ctx.Done():
			k.Wait()
			return
		}
	}
}

func loadConfig() (keeper.Config, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	fileCfg, err := keeper.LoadFileConfig(*configPath)
	if err != nil {
		return keeper.Config{}, err
	}
	return fileCfg.ToConfig()
}
