package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/utrading/utrading-perp-core/config"
	"github.com/utrading/utrading-perp-core/internal/cleaner"
	"github.com/utrading/utrading-perp-core/internal/dal"
	"github.com/utrading/utrading-perp-core/internal/dao"
	"github.com/utrading/utrading-perp-core/internal/exchange"
	"github.com/utrading/utrading-perp-core/internal/indexer"
	"github.com/utrading/utrading-perp-core/internal/monitor"
	"github.com/utrading/utrading-perp-core/internal/nats"
	"github.com/utrading/utrading-perp-core/pkg/logger"
	"github.com/utrading/utrading-perp-core/pkg/sigproc"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "cfg.toml", "config file path")
	flag.Parse()

	// 加载配置
	if err := config.Init(configFile); err != nil {
		panic(err)
	}
	cfg := config.Get()

	// 初始化日志
	if err := initLogger(cfg); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Close()

	logger.Info().Msg("perp_indexer service starting...")

	monitor.InitMetrics()

	// 初始化数据库
	if err := dal.InitDB(cfg.MySQL); err != nil {
		logger.Fatal().Err(err).Msg("init db failed")
	}
	dal.AutoMigrate(dal.DB())
	dao.InitDAO(dal.DB())

	dataCleaner := cleaner.NewCleaner(cfg.Cleaner)
	dataCleaner.Start()

	// NATS 未配置时只落库不推送
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

	svc, err := indexer.NewService(dal.DB(), rpc, sink, cfg.Indexer, cfg.Markets)
	if err != nil {
		logger.Fatal().Err(err).Msg("init indexer failed")
	}
	if err = svc.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start indexer failed")
	}

	healthServer := monitor.NewHealthServer(cfg.Monitor.HealthServerAddr, publisher)
	healthServer.AddStatus("indexer", svc)
	monitor.RegisterQueryRoutes(healthServer.Router(), cfg.Indexer.Resolution, nil)
	if err = healthServer.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start health server failed")
	}

	logger.Info().
		Str("rpc", cfg.Exchange.RPCURL).
		Int("markets", len(cfg.Markets)).
		Str("health_addr", cfg.Monitor.HealthServerAddr).
		Msg("perp_indexer service started successfully")

	// 优雅关闭
	sigproc.GracefulShutdown(cancel, func(sig os.Signal) {
		logger.Info().Str("signal", sig.String()).Msg("shutting down...")

		dataCleaner.Stop()

		// 停止轮询，处理完已入队事件并落库
		svc.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = healthServer.Stop(shutdownCtx)

		config.Stop()
		dal.CloseDB()

		logger.Info().Msg("perp_indexer service stopped")
	})

	<-ctx.Done()
}

func initLogger(cfg *config.Config) error {
	return logger.NewBuilder().
		SetService("perp_indexer").
		SetMaxSize(cfg.Logger.MaxSize).
		SetMaxBackups(cfg.Logger.MaxBackups).
		SetMaxAge(cfg.Logger.MaxAge).
		SetLevel(cfg.Logger.Level).
		EnableCompression(cfg.Logger.Compress).
		EnableConsoleOutput(cfg.Logger.Console).
		Build()
}
