package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHandler 记录处理顺序，可选延迟
type mockHandler struct {
	mu    sync.Mutex
	calls []Message
	delay time.Duration
}

func (h *mockHandler) HandleMessage(msg Message) error {
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	h.calls = append(h.calls, msg)
	h.mu.Unlock()

	switch msg.Type() {
	case "error":
		return errors.New("mock error")
	case "panic":
		panic("boom")
	}
	return nil
}

func (h *mockHandler) blocks() []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]uint64, 0, len(h.calls))
	for _, m := range h.calls {
		if c, ok := m.(CursorMessage); ok {
			out = append(out, c.Block)
		}
	}
	return out
}

func (h *mockHandler) CallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

type typedMessage string

func (m typedMessage) Type() string { return string(m) }

func TestMessageQueue_PreservesOrderUnderBackpressure(t *testing.T) {
	handler := &mockHandler{delay: time.Millisecond}
	q := NewMessageQueue(2, handler)
	q.Start()

	for i := uint64(1); i <= 50; i++ {
		require.NoError(t, q.Enqueue(context.Background(), CursorMessage{MarketID: "ETH-USD", Block: i}))
	}
	q.Stop()

	got := handler.blocks()
	require.Len(t, got, 50)
	for i, b := range got {
		assert.Equal(t, uint64(i+1), b)
	}
}

func TestMessageQueue_EnqueueHonoursContext(t *testing.T) {
	handler := &mockHandler{}
	q := NewMessageQueue(1, handler) // 未启动，无人消费
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), typedMessage("a")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, typedMessage("b"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMessageQueue_ErrorsAndPanicsDoNotStopWorker(t *testing.T) {
	handler := &mockHandler{}
	q := NewMessageQueue(10, handler)
	q.Start()

	require.NoError(t, q.Enqueue(context.Background(), typedMessage("error")))
	require.NoError(t, q.Enqueue(context.Background(), typedMessage("panic")))
	require.NoError(t, q.Enqueue(context.Background(), typedMessage("ok")))
	q.Stop()

	assert.Equal(t, 3, handler.CallCount())
	assert.ErrorIs(t, q.Enqueue(context.Background(), typedMessage("late")), ErrQueueStopped)
}

func BenchmarkMessageQueue_Enqueue(b *testing.B) {
	q := NewMessageQueue(10000, &mockHandler{})
	q.Start()
	defer q.Stop()

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Enqueue(ctx, CursorMessage{Block: uint64(i)})
	}
}
