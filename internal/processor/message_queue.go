package processor

import (
	"context"
	"errors"
	"sync"

	"github.com/utrading/utrading-perp-core/internal/monitor"
	"github.com/utrading/utrading-perp-core/pkg/logger"
)

// ErrQueueStopped 队列已停止
var ErrQueueStopped = errors.New("message queue stopped")

// MessageHandler 消息处理器接口
type MessageHandler interface {
	HandleMessage(msg Message) error
}

// MessageQueue 单消费者有序队列。队列满时生产者阻塞，消息按入队顺序逐条处理
type MessageQueue struct {
	queue    chan Message
	wg       sync.WaitGroup
	handler  MessageHandler
	done     chan struct{}
	stopOnce sync.Once
}

// NewMessageQueue 创建消息队列
func NewMessageQueue(size int, handler MessageHandler) *MessageQueue {
	if size <= 0 {
		size = 10000
	}
	return &MessageQueue{
		queue:   make(chan Message, size),
		handler: handler,
		done:    make(chan struct{}),
	}
}

// Start 启动工作协程
func (q *MessageQueue) Start() {
	q.wg.Add(1)
	go q.worker()
}

func (q *MessageQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case msg := <-q.queue:
			q.handle(msg)
		case <-q.done:
			// 处理停止前已入队的消息
			for {
				select {
				case msg := <-q.queue:
					q.handle(msg)
				default:
					return
				}
			}
		}
	}
}

func (q *MessageQueue) handle(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str("type", msg.Type()).Msg("message handler panic")
		}
	}()

	if err := q.handler.HandleMessage(msg); err != nil {
		logger.Error().Err(err).Str("type", msg.Type()).Msg("handle message failed")
	}
	monitor.SetMessageQueueSize(len(q.queue))
}

// Enqueue 入队，队列满时阻塞直到有空位、ctx 取消或队列停止
func (q *MessageQueue) Enqueue(ctx context.Context, msg Message) error {
	select {
	case <-q.done:
		return ErrQueueStopped
	default:
	}

	select {
	case q.queue <- msg:
		return nil
	default:
	}

	monitor.IncMessageQueueFull()
	logger.Warn().
		Str("type", msg.Type()).
		Int("queue_size", len(q.queue)).
		Msg("message queue full, producer blocked")

	select {
	case q.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueStopped
	}
}

// Stop 停止队列，已入队的消息处理完后返回
func (q *MessageQueue) Stop() {
	q.stopOnce.Do(func() { close(q.done) })
	q.wg.Wait()
}

// Size 返回当前队列大小
func (q *MessageQueue) Size() int {
	return len(q.queue)
}
