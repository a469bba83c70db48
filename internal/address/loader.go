// Package address 按仓位表同步各市场需要关注风险的交易者地址
package address

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/utrading/utrading-perp-core/pkg/goplus"
	"github.com/utrading/utrading-perp-core/pkg/logger"
)

// Subscriber 单个市场的关注列表，*manager.MarketManager 满足
type Subscriber interface {
	MarketID() string
	WatchTrader(addr string)
	UnwatchTrader(addr string)
}

// Source 返回市场内持仓非零的交易者，dao.Position() 满足
type Source interface {
	ActiveTraders(marketID string) ([]string, error)
}

// Loader 定时从 Source 加载地址并同步给订阅者。
// 仓位归零的地址在宽限期后才移除，避免平仓又开仓时反复增删
type Loader struct {
	source      Source
	subscribers []Subscriber
	interval    time.Duration
	removeGrace time.Duration
	now         func() time.Time

	mu            sync.Mutex
	lastAddrs     map[string]map[string]bool      // market -> 已关注地址
	pendingRemove map[string]map[string]time.Time // market -> 待移除地址 -> 发现消失的时间

	cancel context.CancelFunc
	done   chan struct{}
}

func NewLoader(source Source, subscribers []Subscriber, interval, removeGrace time.Duration) *Loader {
	return &Loader{
		source:        source,
		subscribers:   subscribers,
		interval:      interval,
		removeGrace:   removeGrace,
		now:           time.Now,
		lastAddrs:     make(map[string]map[string]bool),
		pendingRemove: make(map[string]map[string]time.Time),
	}
}

// Start 先同步一次，之后按 interval 定时同步
func (l *Loader) Start(ctx context.Context) error {
	if err := l.Sync(); err != nil {
		return err
	}

	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	goplus.Go(func() {
		defer close(l.done)
		l.periodicReload(ctx)
	})
	return nil
}

func (l *Loader) periodicReload(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Sync(); err != nil {
				logger.Error().Err(err).Msg("trader reload failed")
			}
		}
	}
}

func (l *Loader) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}

// Sync 同步一次全部市场，单个市场加载失败不影响其它市场
func (l *Loader) Sync() error {
	var errs error
	for _, sub := range l.subscribers {
		if err := l.syncMarket(sub); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

func (l *Loader) syncMarket(sub Subscriber) error {
	market := sub.MarketID()
	list, err := l.source.ActiveTraders(market)
	if err != nil {
		return err
	}
	addrs := make(map[string]bool, len(list))
	for _, a := range list {
		addrs[strings.ToLower(a)] = true
	}

	now := l.now()

	l.mu.Lock()
	last := l.lastAddrs[market]
	pending := l.pendingRemove[market]
	if pending == nil {
		pending = make(map[string]time.Time)
		l.pendingRemove[market] = pending
	}

	var toAdd, toRemove []string
	var recovered int

	// 新增地址
	for addr := range addrs {
		if !last[addr] {
			toAdd = append(toAdd, addr)
		}
		if _, ok := pending[addr]; ok {
			delete(pending, addr)
			recovered++
		}
	}

	// 消失地址进入宽限期
	for addr := range last {
		if !addrs[addr] {
			if _, ok := pending[addr]; !ok {
				pending[addr] = now
			}
		}
	}

	for addr, since := range pending {
		if now.Sub(since) >= l.removeGrace {
			toRemove = append(toRemove, addr)
			delete(pending, addr)
		}
	}
	pendingCount := len(pending)

	// 已关注 = 当前地址 + 宽限期内的地址
	for addr := range pending {
		addrs[addr] = true
	}
	l.lastAddrs[market] = addrs
	l.mu.Unlock()

	for _, addr := range toAdd {
		sub.WatchTrader(addr)
	}
	for _, addr := range toRemove {
		sub.UnwatchTrader(addr)
	}

	if len(toAdd) > 0 || len(toRemove) > 0 || recovered > 0 {
		logger.Info().
			Str("market", market).
			Int("total", len(addrs)).
			Int("added", len(toAdd)).
			Int("removed", len(toRemove)).
			Int("recovered", recovered).
			Int("pending_remove", pendingCount).
			Msg("trader sync completed")
	}
	return nil
}
