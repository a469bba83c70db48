package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/utrading/utrading-perp-core/config"
	"github.com/utrading/utrading-perp-core/internal/exchange"
	"github.com/utrading/utrading-perp-core/internal/keeper"
	"github.com/utrading/utrading-perp-core/internal/monitor"
	"github.com/utrading/utrading-perp-core/pkg/logger"
	"github.com/utrading/utrading-perp-core/pkg/sigproc"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "cfg.toml", "config file path")
	flag.Parse()

	if err := config.Init(configFile); err != nil {
		panic(err)
	}
	cfg := config.Get()

	if err := initLogger(cfg); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Close()

	logger.Info().Msg("perp_keeper service starting...")

	monitor.InitMetrics()

	// 私钥只从环境变量读取
	signer, err := exchange.NewSigner(os.Getenv(cfg.Exchange.KeeperKeyEnv), cfg.Exchange.ChainID)
	if err != nil {
		logger.Fatal().Err(err).Str("env", cfg.Exchange.KeeperKeyEnv).Msg("load keeper key failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rpc, err := exchange.Dial(ctx, cfg.Exchange.RPCURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("dial rpc failed")
	}
	defer rpc.Close()

	contracts := make(map[string]keeper.Contract, len(cfg.Markets))
	for _, m := range cfg.Markets {
		if !common.IsHexAddress(m.Address) {
			logger.Warn().Str("market", m.ID).Str("address", m.Address).Msg("invalid contract address, market skipped")
			continue
		}
		contracts[m.ID] = exchange.NewClient(rpc, common.HexToAddress(m.Address), exchange.Options{
			ReadTimeout:    cfg.Exchange.ReadTimeout,
			ReceiptTimeout: cfg.Exchange.ReceiptTimeout,
			ReceiptPoll:    cfg.Exchange.ReceiptPoll,
			Signer:         signer,
		})
	}

	var oracle keeper.Oracle
	if cfg.Keeper.PythEndpoint != "" {
		oracle = keeper.NewPythOracle(cfg.Keeper.PythEndpoint, cfg.Exchange.ReadTimeout)
	}

	keepers := keeper.NewSet(cfg.Keeper, cfg.Markets, contracts, oracle)
	if keepers.Len() == 0 {
		logger.Fatal().Msg("no keeper enabled")
	}
	keepers.Start(ctx)

	healthServer := monitor.NewHealthServer(cfg.Monitor.HealthServerAddr, nil)
	healthServer.AddStatus("keepers", keepers)
	if err = healthServer.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start health server failed")
	}

	logger.Info().
		Str("from", exchange.Hex(signer.From())).
		Int("keepers", keepers.Len()).
		Str("health_addr", cfg.Monitor.HealthServerAddr).
		Msg("perp_keeper service started successfully")

	sigproc.GracefulShutdown(cancel, func(sig os.Signal) {
		logger.Info().Str("signal", sig.String()).Msg("shutting down...")

		keepers.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = healthServer.Stop(shutdownCtx)

		config.Stop()

		logger.Info().Msg("perp_keeper service stopped")
	})

	<-ctx.Done()
}

func initLogger(cfg *config.Config) error {
	return logger.NewBuilder().
		SetService("perp_keeper").
		SetMaxSize(cfg.Logger.MaxSize).
		SetMaxBackups(cfg.Logger.MaxBackups).
		SetMaxAge(cfg.Logger.MaxAge).
		SetLevel(cfg.Logger.Level).
		EnableCompression(cfg.Logger.Compress).
		EnableConsoleOutput(cfg.Logger.Console).
		Build()
}
