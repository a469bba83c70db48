package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gocache "github.com/patrickmn/go-cache"

	"github.com/utrading/utrading-perp-core/internal/exchange"
	"github.com/utrading/utrading-perp-core/internal/models"
	"github.com/utrading/utrading-perp-core/internal/monitor"
	"github.com/utrading/utrading-perp-core/internal/processor"
	"github.com/utrading/utrading-perp-core/pkg/logger"
)

// LogSource 日志来源，*ethclient.Client 满足该接口
type LogSource interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Enqueuer 有序队列，队列满时阻塞
type Enqueuer interface {
	Enqueue(ctx context.Context, msg processor.Message) error
}

// PollerConfig 轮询参数
type PollerConfig struct {
	Interval      time.Duration
	BlockWindow   uint64 // 单次 FilterLogs 覆盖的区块数
	Confirmations uint64 // 只读取链头往前 Confirmations 个块之前的日志
}

// marketCursor 单个市场的下一个读取位置
type marketCursor struct {
	id      string
	address common.Address
	next    uint64

	// 上次只提交到 skipBlock 的 skipIndex，重启后跳过该块中已提交的日志
	skip      bool
	skipBlock uint64
	skipIndex uint
}

// Poller 按区块窗口拉取各市场合约日志，排序后送入有序队列
type Poller struct {
	src    LogSource
	queue  Enqueuer
	config PollerConfig

	mu         sync.RWMutex // 保护 marketCursor.next 的跨协程读取
	markets    []*marketCursor
	blockTimes *gocache.Cache

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPoller(src LogSource, queue Enqueuer, config PollerConfig) *Poller {
	if config.Interval <= 0 {
		config.Interval = 2 * time.Second
	}
	if config.BlockWindow == 0 {
		config.BlockWindow = 2000
	}
	return &Poller{
		src:        src,
		queue:      queue,
		config:     config,
		blockTimes: gocache.New(10*time.Minute, 20*time.Minute),
	}
}

// AddMarket 从已提交的游标恢复读取位置，没有游标时从部署区块开始
func (p *Poller) AddMarket(marketID string, address common.Address, deployBlock uint64, cursor *models.IndexerCursor) {
	m := &marketCursor{id: marketID, address: address, next: deployBlock}
	if cursor != nil {
		if cursor.BlockDone {
			m.next = cursor.Block + 1
		} else {
			m.next = cursor.Block
			m.skip = true
			m.skipBlock = cursor.Block
			m.skipIndex = cursor.LogIndex
		}
	}

	logger.Info().
		Str("market", marketID).
		Str("address", exchange.Hex(address)).
		Uint64("from_block", m.next).
		Bool("partial_block", m.skip).
		Msg("indexer market registered")

	p.mu.Lock()
	p.markets = append(p.markets, m)
	p.mu.Unlock()
}

// Start 立即轮询一次，之后按 Interval 轮询
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(p.config.Interval)
		defer ticker.Stop()

		for {
			if err := p.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("indexer poll failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop 停止轮询并等待当前窗口处理结束
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Poll 把每个市场推进到当前安全高度
func (p *Poller) Poll(ctx context.Context) error {
	head, err := p.src.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("block number: %w", err)
	}
	if head < p.config.Confirmations {
		return nil
	}
	safe := head - p.config.Confirmations

	var errs error
	for _, m := range p.markets {
		if err := p.catchUp(ctx, m, safe, head); err != nil {
			errs = errors.Join(errs, fmt.Errorf("market %s: %w", m.id, err))
		}
	}
	return errs
}

func (p *Poller) catchUp(ctx context.Context, m *marketCursor, safe, head uint64) error {
	for m.next <= safe {
		to := m.next + p.config.BlockWindow - 1
		if to > safe {
			to = safe
		}
		if err := p.window(ctx, m, m.next, to, head); err != nil {
			return err
		}
		p.mu.Lock()
		m.next = to + 1
		m.skip = false
		p.mu.Unlock()
	}
	return nil
}

// window 读取 [from, to] 的日志并按 (block, logIndex) 顺序入队，最后入队窗口结束标记
func (p *Poller) window(ctx context.Context, m *marketCursor, from, to, head uint64) error {
	logs, err := p.src.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{m.address},
	})
	if err != nil {
		return fmt.Errorf("filter logs %d-%d: %w", from, to, err)
	}

	events := make([]exchange.Event, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		if m.skip && l.BlockNumber == m.skipBlock && l.Index <= m.skipIndex {
			continue
		}

		payload, err := exchange.DecodeLog(l)
		if err != nil {
			if errors.Is(err, exchange.ErrUnknownEvent) {
				continue
			}
			monitor.IncHandlerError("decode")
			logger.Error().Err(err).
				Str("market", m.id).
				Uint64("block", l.BlockNumber).
				Uint("log_index", l.Index).
				Msg("drop undecodable log")
			continue
		}

		ts, err := p.blockTime(ctx, l.BlockNumber)
		if err != nil {
			return err
		}
		events = append(events, exchange.Event{
			MarketID:  m.id,
			Block:     l.BlockNumber,
			Index:     l.Index,
			TxHash:    l.TxHash,
			Timestamp: ts,
			Payload:   payload,
		})
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Before(events[j]) })

	for _, ev := range events {
		if err := p.queue.Enqueue(ctx, processor.EventMessage{Event: ev}); err != nil {
			return err
		}
	}
	if err := p.queue.Enqueue(ctx, processor.CursorMessage{MarketID: m.id, Block: to, Head: head}); err != nil {
		return err
	}

	if len(events) > 0 {
		logger.Debug().
			Str("market", m.id).
			Uint64("from", from).
			Uint64("to", to).
			Int("events", len(events)).
			Msg("indexer window enqueued")
	}
	return nil
}

// blockTime 区块时间戳，同一块的多条日志只读一次区块头
func (p *Poller) blockTime(ctx context.Context, number uint64) (uint64, error) {
	key := strconv.FormatUint(number, 10)
	if v, ok := p.blockTimes.Get(key); ok {
		return v.(uint64), nil
	}

	header, err := p.src.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, fmt.Errorf("header %d: %w", number, err)
	}
	p.blockTimes.Set(key, header.Time, gocache.DefaultExpiration)
	return header.Time, nil
}

// Positions 各市场下一个待读取的区块
func (p *Poller) Positions() map[string]uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]uint64, len(p.markets))
	for _, m := range p.markets {
		out[m.id] = m.next
	}
	return out
}
