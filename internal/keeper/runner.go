// Package keeper 定时向交易所合约提交资金费结算和指数价格
package keeper

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/utrading/utrading-perp-core/pkg/goplus"
	"github.com/utrading/utrading-perp-core/pkg/logger"
)

// Keeper 可启停的定时任务
type Keeper interface {
	Start(ctx context.Context)
	Stop()
	Status() map[string]any
}

// runner 按间隔触发 run。上一轮（通常在等 receipt）未结束时跳过本轮
type runner struct {
	name     string
	market   string
	interval time.Duration
	run      func(ctx context.Context) error

	running atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64

	cancel context.CancelFunc
	loop   sync.WaitGroup
	group  goplus.Group
}

func (r *runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.loop.Add(1)
	go func() {
		defer r.loop.Done()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			r.tick(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	logger.Info().Str("keeper", r.name).Str("market", r.market).Dur("interval", r.interval).Msg("keeper started")
}

func (r *runner) tick(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		r.skipped.Add(1)
		logger.Debug().Str("keeper", r.name).Str("market", r.market).Msg("previous run in flight, tick skipped")
		return
	}

	r.group.Go(func() {
		defer r.running.Store(false)
		r.runs.Add(1)
		if err := r.run(ctx); err != nil && ctx.Err() == nil {
			r.failed.Add(1)
			logger.Error().Err(err).Str("keeper", r.name).Str("market", r.market).Msg("keeper run failed")
		}
	})
}

// Stop 取消进行中的调用并等待退出
func (r *runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.loop.Wait()
	r.group.Wait()
	logger.Info().Str("keeper", r.name).Str("market", r.market).Msg("keeper stopped")
}

func (r *runner) Status() map[string]any {
	return map[string]any{
		"keeper":  r.name,
		"market":  r.market,
		"runs":    r.runs.Load(),
		"skipped": r.skipped.Load(),
		"failed":  r.failed.Load(),
		"running": r.running.Load(),
	}
}
