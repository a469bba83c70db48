package address

import (
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	traders map[string][]string
	err     map[string]error
}

func (s *fakeSource) ActiveTraders(marketID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traders[marketID], s.err[marketID]
}

func (s *fakeSource) set(marketID string, traders ...string) {
	s.mu.Lock()
	s.traders[marketID] = traders
	s.mu.Unlock()
}

type fakeSubscriber struct {
	market  string
	watched map[string]bool
}

func newSubscriber(market string) *fakeSubscriber {
	return &fakeSubscriber{market: market, watched: make(map[string]bool)}
}

func (s *fakeSubscriber) MarketID() string          { return s.market }
func (s *fakeSubscriber) WatchTrader(addr string)   { s.watched[addr] = true }
func (s *fakeSubscriber) UnwatchTrader(addr string) { delete(s.watched, addr) }

func (s *fakeSubscriber) list() []string {
	out := make([]string, 0, len(s.watched))
	for a := range s.watched {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func TestLoader_RemoveAfterGrace(t *testing.T) {
	src := &fakeSource{traders: map[string][]string{"ETH-USD": {"0xA", "0xb"}}}
	sub := newSubscriber("ETH-USD")

	now := time.Unix(1_000, 0)
	l := NewLoader(src, []Subscriber{sub}, time.Minute, 10*time.Minute)
	l.now = func() time.Time { return now }

	require.NoError(t, l.Sync())
	assert.Equal(t, []string{"0xa", "0xb"}, sub.list())

	// 0xb 平仓，宽限期内仍然关注
	src.set("ETH-USD", "0xa")
	now = now.Add(5 * time.Minute)
	require.NoError(t, l.Sync())
	assert.Equal(t, []string{"0xa", "0xb"}, sub.list())

	// 宽限期从首次发现消失（t+5m）开始计算
	now = now.Add(5 * time.Minute)
	require.NoError(t, l.Sync())
	assert.Equal(t, []string{"0xa", "0xb"}, sub.list())

	now = now.Add(5 * time.Minute)
	require.NoError(t, l.Sync())
	assert.Equal(t, []string{"0xa"}, sub.list())
}

func TestLoader_RecoversWithinGrace(t *testing.T) {
	src := &fakeSource{traders: map[string][]string{"ETH-USD": {"0xa"}}}
	sub := newSubscriber("ETH-USD")

	now := time.Unix(1_000, 0)
	l := NewLoader(src, []Subscriber{sub}, time.Minute, 10*time.Minute)
	l.now = func() time.Time { return now }

	require.NoError(t, l.Sync())
	src.set("ETH-USD")
	now = now.Add(time.Minute)
	require.NoError(t, l.Sync())

	// 宽限期内重新开仓，计时清零
	src.set("ETH-USD", "0xa")
	now = now.Add(time.Minute)
	require.NoError(t, l.Sync())

	src.set("ETH-USD")
	now = now.Add(9 * time.Minute)
	require.NoError(t, l.Sync())
	assert.Equal(t, []string{"0xa"}, sub.list())
}

func TestLoader_MarketErrorIsolated(t *testing.T) {
	src := &fakeSource{
		traders: map[string][]string{"SOL-USD": {"0xc"}},
		err:     map[string]error{"ETH-USD": errors.New("db down")},
	}
	eth, sol := newSubscriber("ETH-USD"), newSubscriber("SOL-USD")

	l := NewLoader(src, []Subscriber{eth, sol}, time.Minute, time.Minute)
	err := l.Sync()
	require.Error(t, err)
	assert.Empty(t, eth.list())
	assert.Equal(t, []string{"0xc"}, sol.list())
}

func TestLoader_StartStop(t *testing.T) {
	src := &fakeSource{traders: map[string][]string{"ETH-USD": {"0xa"}}}
	sub := newSubscriber("ETH-USD")

	l := NewLoader(src, []Subscriber{sub}, time.Hour, time.Minute)
	require.NoError(t, l.Start(t.Context()))
	assert.Equal(t, []string{"0xa"}, sub.list())
	l.Stop()
}
