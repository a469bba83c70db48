package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/utrading/utrading-perp-core/config"
	"github.com/utrading/utrading-perp-core/internal/cache"
	"github.com/utrading/utrading-perp-core/internal/candle"
	"github.com/utrading/utrading-perp-core/internal/dao"
	"github.com/utrading/utrading-perp-core/internal/models"
	"github.com/utrading/utrading-perp-core/internal/nats"
	"github.com/utrading/utrading-perp-core/internal/processor"
	"github.com/utrading/utrading-perp-core/internal/risk"
	"github.com/utrading/utrading-perp-core/pkg/logger"
)

const writerShutdownTimeout = 10 * time.Second

// Service 索引器：Poller -> MessageQueue -> Handler -> BatchWriter
type Service struct {
	markets   []config.Market
	persisted bool

	state   *State
	agg     *candle.Aggregator
	dedup   *cache.DedupCache
	writer  *processor.BatchWriter
	queue   *processor.MessageQueue
	poller  *Poller
	handler *Handler
}

// NewService db 为 nil 时不持久化，只维护内存状态
func NewService(db *gorm.DB, src LogSource, sink nats.Sink, cfg config.Indexer, markets []config.Market) (*Service, error) {
	state := NewState()
	agg, err := candle.NewAggregator(state.Candles(), cfg.Resolution)
	if err != nil {
		return nil, fmt.Errorf("candle resolution %q: %w", cfg.Resolution, err)
	}

	writer := processor.NewBatchWriter(db, &processor.BatchWriterConfig{})
	processor.RegisterIndexerTables(writer)

	dedup := cache.NewDedupCache(cfg.DedupTTL)

	var trades TradeLookup
	if db != nil {
		trades = dao.Trade()
	}
	handler := NewHandler(state, agg, risk.NewCalculator(risk.DefaultMMR), dedup, writer, sink, trades)
	queue := processor.NewMessageQueue(cfg.QueueSize, handler)

	poller := NewPoller(src, queue, PollerConfig{
		Interval:      cfg.PollInterval,
		BlockWindow:   cfg.BlockWindow,
		Confirmations: cfg.Confirmations,
	})

	return &Service{
		markets:   markets,
		persisted: db != nil,
		state:     state,
		agg:       agg,
		dedup:     dedup,
		writer:    writer,
		queue:     queue,
		poller:    poller,
		handler:   handler,
	}, nil
}

// Start 恢复状态和游标后开始轮询。需要先调用 dao.InitDAO
func (s *Service) Start(ctx context.Context) error {
	ids := make([]string, 0, len(s.markets))
	for _, m := range s.markets {
		ids = append(ids, m.ID)
	}

	if s.persisted {
		if err := s.state.Rehydrate(ids, s.agg); err != nil {
			return err
		}
		if err := s.dedup.LoadFromDB(dao.Trade()); err != nil {
			logger.Warn().Err(err).Msg("dedup cache warmup failed")
		}
	}

	for _, m := range s.markets {
		if !common.IsHexAddress(m.Address) {
			return fmt.Errorf("market %s: invalid contract address %q", m.ID, m.Address)
		}

		var cursor *models.IndexerCursor
		if s.persisted {
			c, err := dao.Cursor().Get(m.ID)
			if err != nil {
				return fmt.Errorf("load cursor %s: %w", m.ID, err)
			}
			cursor = c
		}
		s.poller.AddMarket(m.ID, common.HexToAddress(m.Address), m.DeployBlock, cursor)
	}

	s.writer.Start()
	s.queue.Start()
	s.poller.Start(ctx)

	logger.Info().Strs("markets", ids).Str("resolution", s.agg.Resolution()).Msg("indexer started")
	return nil
}

// Stop 先停轮询，再处理完已入队的事件，最后刷新写入器
func (s *Service) Stop() {
	s.poller.Stop()
	s.queue.Stop()
	if err := s.writer.GracefulShutdown(writerShutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("indexer writer shutdown")
	}
	logger.Info().Msg("indexer stopped")
}

// State 供同进程查询使用
func (s *Service) State() *State {
	return s.state
}

// Status 实现 monitor.StatusProvider
func (s *Service) Status() map[string]any {
	return map[string]any{
		"next_block": s.poller.Positions(),
		"queue_size": s.queue.Size(),
		"dedup":      s.dedup.Stats(),
		"state":      s.state.Stats(),
	}
}
