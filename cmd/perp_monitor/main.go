package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"

	"github.com/utrading/utrading-perp-core/config"
	"github.com/utrading/utrading-perp-core/internal/address"
	"github.com/utrading/utrading-perp-core/internal/cache"
	"github.com/utrading/utrading-perp-core/internal/dal"
	"github.com/utrading/utrading-perp-core/internal/dao"
	"github.com/utrading/utrading-perp-core/internal/exchange"
	"github.com/utrading/utrading-perp-core/internal/manager"
	"github.com/utrading/utrading-perp-core/internal/monitor"
	"github.com/utrading/utrading-perp-core/internal/nats"
	"github.com/utrading/utrading-perp-core/internal/risk"
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

	logger.Info().Msg("perp_monitor service starting...")

	monitor.InitMetrics()

	// 仓位和查询接口读取索引器落库的数据
	if err := dal.InitDB(cfg.MySQL); err != nil {
		logger.Fatal().Err(err).Msg("init db failed")
	}
	dao.InitDAO(dal.DB())

	var (
		sink      nats.Sink = nats.Noop{}
		publisher monitor.PublisherRef
	)
	if cfg.NATS.Endpoint != "" {
		p, err := nats.NewPublisher(cfg.NATS.Endpoint, cfg.NATS.SubjectPrefix)
		if err != nil {
			logger.Fatal().Err(err).Msg("init nats publisher failed")
		}
		defer p.Close()
		sink, publisher = p, p
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rpc, err := exchange.Dial(ctx, cfg.Exchange.RPCURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("dial rpc failed")
	}
	defer rpc.Close()

	// 所有市场共享的合约读取协程池
	pool, err := ants.NewPool(cfg.Monitor.ReadWorkers, ants.WithNonblocking(false))
	if err != nil {
		logger.Fatal().Err(err).Msg("init read pool failed")
	}
	defer pool.Release()

	calc := risk.NewCalculator(decimal.NewFromFloat(cfg.Monitor.MMR()))
	prices := cache.NewPriceCache()

	mgr := manager.New(cfg.Monitor.RefreshInterval)
	for _, m := range cfg.Markets {
		if !common.IsHexAddress(m.Address) {
			logger.Warn().Str("market", m.ID).Str("address", m.Address).Msg("invalid contract address, market skipped")
			continue
		}
		client := exchange.NewClient(rpc, common.HexToAddress(m.Address), exchange.Options{
			ReadTimeout: cfg.Exchange.ReadTimeout,
		})
		mgr.Add(manager.NewMarketManager(m, client, pool, calc, prices, dao.Position(), sink, manager.Options{
			ReadTimeout: cfg.Exchange.ReadTimeout,
			ScanLimit:   cfg.Monitor.ScanLimit,
			Traders:     cfg.Monitor.Traders,
		}))
	}

	// 持仓交易者自动加入风险快照
	var traderLoader *address.Loader
	if cfg.Monitor.TraderReloadInterval > 0 {
		subs := make([]address.Subscriber, 0, len(mgr.Markets()))
		for _, mm := range mgr.Markets() {
			subs = append(subs, mm)
		}
		traderLoader = address.NewLoader(dao.Position(), subs, cfg.Monitor.TraderReloadInterval, cfg.Monitor.TraderRemoveGrace)
		if err = traderLoader.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("start trader loader failed")
		}
	}
	mgr.Start(ctx)

	healthServer := monitor.NewHealthServer(cfg.Monitor.HealthServerAddr, publisher)
	healthServer.AddStatus("markets", mgr)
	monitor.RegisterQueryRoutes(healthServer.Router(), cfg.Indexer.Resolution, mgr)
	if err = healthServer.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start health server failed")
	}

	logger.Info().
		Str("rpc", cfg.Exchange.RPCURL).
		Dur("refresh_interval", cfg.Monitor.RefreshInterval).
		Str("health_addr", cfg.Monitor.HealthServerAddr).
		Msg("perp_monitor service started successfully")

	sigproc.GracefulShutdown(cancel, func(sig os.Signal) {
		logger.Info().Str("signal", sig.String()).Msg("shutting down...")

		if traderLoader != nil {
			traderLoader.Stop()
		}
		mgr.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = healthServer.Stop(shutdownCtx)

		config.Stop()
		dal.CloseDB()

		logger.Info().Msg("perp_monitor service stopped")
	})

	<-ctx.Done()
}

func initLogger(cfg *config.Config) error {
	return logger.NewBuilder().
		SetService("perp_monitor").
		SetMaxSize(cfg.Logger.MaxSize).
		SetMaxBackups(cfg.Logger.MaxBackups).
		SetMaxAge(cfg.Logger.MaxAge).
		SetLevel(cfg.Logger.Level).
		EnableCompression(cfg.Logger.Compress).
		EnableConsoleOutput(cfg.Logger.Console).
		Build()
}
