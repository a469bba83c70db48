package cleaner

import (
	"errors"
	"time"

	"github.com/utrading/utrading-perp-core/config"
	"github.com/utrading/utrading-perp-core/internal/dao"
	"github.com/utrading/utrading-perp-core/pkg/logger"
)

// Cleaner 数据清理器，按保留期定时删除历史数据。成交、资金费和清算记录永久保留
type Cleaner struct {
	cfg  config.Cleaner
	now  func() time.Time
	done chan struct{}
}

func NewCleaner(cfg config.Cleaner) *Cleaner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Cleaner{
		cfg:  cfg,
		now:  time.Now,
		done: make(chan struct{}),
	}
}

// Start 启动清理任务
func (c *Cleaner) Start() {
	go func() {
		ticker := time.NewTicker(c.cfg.Interval)
		defer ticker.Stop()

		logger.Info().Dur("interval", c.cfg.Interval).Msg("cleaner started")

		// 启动时立即执行一次
		c.Clean()

		for {
			select {
			case <-ticker.C:
				c.Clean()
			case <-c.done:
				logger.Info().Msg("cleaner stopped")
				return
			}
		}
	}()
}

func (c *Cleaner) Stop() {
	close(c.done)
}

// Clean 执行一次清理，保留期为 0 的表跳过
func (c *Cleaner) Clean() error {
	logger.Debug().Msg("running cleanup task")

	tasks := []struct {
		name   string
		maxAge time.Duration
		del    func(ts int64) (int64, error)
	}{
		{"margin_events", c.cfg.MarginEventMaxAge, dao.Event().DeleteMarginBefore},
		{"closed_orders", c.cfg.ClosedOrderMaxAge, dao.Order().DeleteClosedBefore},
		{"candles", c.cfg.CandleMaxAge, dao.Candle().DeleteBefore},
	}

	var errs error
	for _, task := range tasks {
		if task.maxAge <= 0 {
			continue
		}
		cutoff := c.now().Add(-task.maxAge).Unix()
		deleted, err := task.del(cutoff)
		if err != nil {
			logger.Error().Err(err).Str("table", task.name).Msg("cleanup failed")
			errs = errors.Join(errs, err)
			continue
		}
		if deleted > 0 {
			logger.Info().
				Str("table", task.name).
				Int64("deleted", deleted).
				Time("cutoff", time.Unix(cutoff, 0)).
				Msg("cleaned old rows")
		}
	}
	return errs
}
