package manager

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/utrading/utrading-perp-core/pkg/goplus"
	"github.com/utrading/utrading-perp-core/pkg/logger"
)

// Manager 按固定间隔驱动各市场的刷新
type Manager struct {
	interval time.Duration
	markets  []*MarketManager
	byID     map[string]*MarketManager

	cancel context.CancelFunc
	loops  sync.WaitGroup
	cycles goplus.Group
}

func New(interval time.Duration) *Manager {
	if interval <= 0 {
		interval = 4 * time.Second
	}
	return &Manager{interval: interval, byID: make(map[string]*MarketManager)}
}

// Add 须在 Start 之前调用
func (m *Manager) Add(mm *MarketManager) {
	m.markets = append(m.markets, mm)
	m.byID[strings.ToUpper(mm.MarketID())] = mm
}

func (m *Manager) Market(marketID string) (*MarketManager, bool) {
	mm, ok := m.byID[strings.ToUpper(marketID)]
	return mm, ok
}

// Start 每个市场一个定时器。每次触发在独立协程中刷新，上一轮未结束时本轮被跳过
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	for _, mm := range m.markets {
		m.loops.Add(1)
		go func(mm *MarketManager) {
			defer m.loops.Done()

			ticker := time.NewTicker(m.interval)
			defer ticker.Stop()

			for {
				m.cycles.Go(func() { m.refresh(ctx, mm) })
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}(mm)
	}

	logger.Info().Int("markets", len(m.markets)).Dur("interval", m.interval).Msg("market manager started")
}

func (m *Manager) refresh(ctx context.Context, mm *MarketManager) {
	_, err := mm.Refresh(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, ErrCycleInFlight):
		logger.Warn().Str("market", mm.MarketID()).Int64("skipped", mm.Skipped()).Msg("previous refresh still running, cycle skipped")
	default:
		logger.Error().Err(err).Str("market", mm.MarketID()).Msg("market refresh failed")
	}
}

// Stop 取消进行中的刷新并等待全部退出
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.loops.Wait()
	m.cycles.Wait()
	logger.Info().Msg("market manager stopped")
}

// Snapshot 实现 monitor.SnapshotSource
func (m *Manager) Snapshot(marketID string) (any, bool) {
	mm, ok := m.Market(marketID)
	if !ok {
		return nil, false
	}
	s, ok := mm.Snapshot()
	if !ok {
		return nil, false
	}
	return s, true
}

// Status 实现 monitor.StatusProvider
func (m *Manager) Status() map[string]any {
	out := make(map[string]any, len(m.markets))
	for _, mm := range m.markets {
		out[mm.MarketID()] = mm.Status()
	}
	return out
}

func (m *Manager) Markets() []*MarketManager {
	return m.markets
}
