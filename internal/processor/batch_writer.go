package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/utrading/utrading-perp-core/internal/monitor"
	"github.com/utrading/utrading-perp-core/pkg/logger"
)

// BatchItem 批量写入项接口
type BatchItem interface {
	TableName() string
	DedupKey() string // 返回去重键
}

// FlushFunc 在事务 tx 内写入同一张表的一批数据，未配置数据库时 tx 为 nil
type FlushFunc func(tx *gorm.DB, items []BatchItem) error

// BatchWriterConfig 批量写入配置
type BatchWriterConfig struct {
	BatchSize     int           // 批量大小（默认 100）
	FlushInterval time.Duration // 刷新间隔（默认 2s）
	MaxQueueSize  int           // 最大队列大小（默认 10000）
}

type table struct {
	name  string
	flush FlushFunc
}

// BatchWriter 批量写入器
// 同一去重键在一次刷新内只保留最后一次写入。一次刷新的所有表在同一个事务内按注册顺序写入，
// 失败时整体回滚，数据留在缓冲区等待下次刷新。Add 的一组数据不会被拆到两次刷新中
type BatchWriter struct {
	db      *gorm.DB
	config  *BatchWriterConfig
	queue   chan []BatchItem
	tables  []table
	buffers map[string]map[string]BatchItem // table -> dedupKey -> item
	pending int
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewBatchWriter 创建批量写入器，db 为 nil 时不开启事务
func NewBatchWriter(db *gorm.DB, config *BatchWriterConfig) *BatchWriter {
	if config == nil {
		config = &BatchWriterConfig{}
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 2 * time.Second
	}
	if config.MaxQueueSize <= 0 {
		config.MaxQueueSize = 10000
	}

	return &BatchWriter{
		db:      db,
		config:  config,
		queue:   make(chan []BatchItem, config.MaxQueueSize),
		buffers: make(map[string]map[string]BatchItem),
		done:    make(chan struct{}),
	}
}

// Register 注册表的写入函数，须在 Start 之前调用
func (w *BatchWriter) Register(name string, fn FlushFunc) {
	w.tables = append(w.tables, table{name: name, flush: fn})
}

// Start 启动批量写入器
func (w *BatchWriter) Start() {
	w.wg.Add(1)
	go w.loop()
}

func (w *BatchWriter) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case group := <-w.queue:
			w.buffer(group)
			if w.pending >= w.config.BatchSize {
				w.flushAll()
			}
		case <-ticker.C:
			w.flushAll()
		case <-w.done:
			for {
				select {
				case group := <-w.queue:
					w.buffer(group)
				default:
					w.flushAll()
					return
				}
			}
		}
	}
}

func (w *BatchWriter) buffer(group []BatchItem) {
	for _, item := range group {
		buf, ok := w.buffers[item.TableName()]
		if !ok {
			buf = make(map[string]BatchItem)
			w.buffers[item.TableName()] = buf
		}
		if _, exists := buf[item.DedupKey()]; !exists {
			w.pending++
		}
		buf[item.DedupKey()] = item
	}
}

// flushAll 在一个事务内按注册顺序刷新所有表
func (w *BatchWriter) flushAll() {
	if w.pending == 0 {
		return
	}

	start := time.Now()
	err := w.transaction(func(tx *gorm.DB) error {
		for _, t := range w.tables {
			buf := w.buffers[t.name]
			if len(buf) == 0 {
				continue
			}
			items := make([]BatchItem, 0, len(buf))
			for _, item := range buf {
				items = append(items, item)
			}
			if err := t.flush(tx, items); err != nil {
				monitor.IncBatchWriteError(t.name)
				return fmt.Errorf("upsert %s (%d rows): %w", t.name, len(items), err)
			}
		}
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Int("pending", w.pending).Msg("batch flush failed, will retry")
		return
	}

	monitor.ObserveBatchWriteSize(w.pending)
	monitor.ObserveBatchWriteDuration(time.Since(start).Seconds())
	logger.Debug().Int("count", w.pending).Msg("batch flush success")

	registered := make(map[string]struct{}, len(w.tables))
	for _, t := range w.tables {
		registered[t.name] = struct{}{}
	}
	for name, buf := range w.buffers {
		if _, ok := registered[name]; !ok && len(buf) > 0 {
			logger.Warn().Str("table", name).Int("count", len(buf)).Msg("unsupported table for batch upsert, dropped")
		}
	}
	w.buffers = make(map[string]map[string]BatchItem)
	w.pending = 0
}

func (w *BatchWriter) transaction(fn func(tx *gorm.DB) error) error {
	if w.db == nil {
		return fn(nil)
	}
	return w.db.Transaction(fn)
}

// Add 添加一组写入项，同组数据在同一次刷新中提交。队列满时阻塞
func (w *BatchWriter) Add(ctx context.Context, items ...BatchItem) error {
	if len(items) == 0 {
		return nil
	}

	select {
	case <-w.done:
		return ErrWriterStopped
	default:
	}

	select {
	case w.queue <- items:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrWriterStopped
	}
}

// Stop 停止写入器，队列和缓冲区中的数据刷新后返回
func (w *BatchWriter) Stop() {
	w.once.Do(func() { close(w.done) })
	w.wg.Wait()
}

// GracefulShutdown 优雅关闭，带超时控制
func (w *BatchWriter) GracefulShutdown(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		logger.Warn().Dur("timeout", timeout).Msg("batch writer shutdown timeout")
		return ErrShutdownTimeout
	}
}

var (
	// ErrWriterStopped 写入器已停止
	ErrWriterStopped = errors.New("batch writer stopped")
	// ErrShutdownTimeout 关闭超时错误
	ErrShutdownTimeout = errors.New("shutdown timeout")
)
