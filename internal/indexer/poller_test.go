package indexer

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utrading/utrading-perp-core/internal/exchange"
	"github.com/utrading/utrading-perp-core/internal/models"
	"github.com/utrading/utrading-perp-core/internal/processor"
)

var contract = common.HexToAddress("0x00000000000000000000000000000000000000e1")

type fakeChain struct {
	head    uint64
	logs    []types.Log
	queries []ethereum.FilterQuery
	headers int
}

func (c *fakeChain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.queries = append(c.queries, q)
	var out []types.Log
	for _, l := range c.logs {
		if l.Address != q.Addresses[0] {
			continue
		}
		if l.BlockNumber < q.FromBlock.Uint64() || l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (c *fakeChain) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	c.headers++
	return &types.Header{Number: number, Time: number.Uint64() * 12}, nil
}

func (c *fakeChain) BlockNumber(context.Context) (uint64, error) {
	return c.head, nil
}

type fakeQueue struct {
	msgs []processor.Message
}

func (q *fakeQueue) Enqueue(_ context.Context, msg processor.Message) error {
	q.msgs = append(q.msgs, msg)
	return nil
}

func contractLog(t *testing.T, block uint64, index uint, name string, topics []common.Hash, values ...any) types.Log {
	t.Helper()
	ev := exchange.ABI().Events[name]
	data, err := ev.Inputs.NonIndexed().Pack(values...)
	require.NoError(t, err)
	return types.Log{
		Address:     contract,
		Topics:      append([]common.Hash{ev.ID}, topics...),
		Data:        data,
		BlockNumber: block,
		Index:       index,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block)),
	}
}

func sampleLogs(t *testing.T) []types.Log {
	deposit := contractLog(t, 7, 0, "MarginDeposited",
		[]common.Hash{common.BytesToHash(buyerAddr.Bytes())}, big.NewInt(10))
	order := contractLog(t, 7, 1, "OrderPlaced",
		[]common.Hash{common.BigToHash(big.NewInt(1)), common.BytesToHash(buyerAddr.Bytes())},
		true, big.NewInt(100), big.NewInt(2))
	unknown := types.Log{Address: contract, Topics: []common.Hash{common.HexToHash("0xdead")}, BlockNumber: 16}
	removed := contractLog(t, 17, 0, "OrderRemoved", []common.Hash{common.BigToHash(big.NewInt(1))})
	removed.Removed = true

	// 故意乱序
	return []types.Log{order, deposit, unknown, removed}
}

func eventAt(t *testing.T, msg processor.Message) exchange.Event {
	t.Helper()
	em, ok := msg.(processor.EventMessage)
	require.True(t, ok, "expected event message, got %s", msg.Type())
	return em.Event
}

func TestPollerWindowsAndOrdering(t *testing.T) {
	chain := &fakeChain{head: 25, logs: sampleLogs(t)}
	queue := &fakeQueue{}
	p := NewPoller(chain, queue, PollerConfig{BlockWindow: 10, Confirmations: 2})
	p.AddMarket(market, contract, 5, nil)

	require.NoError(t, p.Poll(context.Background()))

	require.Len(t, chain.queries, 2)
	assert.Equal(t, uint64(5), chain.queries[0].FromBlock.Uint64())
	assert.Equal(t, uint64(14), chain.queries[0].ToBlock.Uint64())
	assert.Equal(t, uint64(23), chain.queries[1].ToBlock.Uint64())

	require.Len(t, queue.msgs, 4)
	first, second := eventAt(t, queue.msgs[0]), eventAt(t, queue.msgs[1])
	assert.Equal(t, uint(0), first.Index)
	assert.IsType(t, exchange.MarginDeposited{}, first.Payload)
	assert.Equal(t, uint(1), second.Index)
	assert.Equal(t, uint64(84), second.Timestamp)
	assert.Equal(t, 1, chain.headers, "block header read once per block")

	assert.Equal(t, processor.CursorMessage{MarketID: market, Block: 14, Head: 25}, queue.msgs[2])
	assert.Equal(t, processor.CursorMessage{MarketID: market, Block: 23, Head: 25}, queue.msgs[3])
	assert.Equal(t, uint64(24), p.Positions()[market])

	// 没有新块时不再读取
	require.NoError(t, p.Poll(context.Background()))
	assert.Len(t, chain.queries, 2)
}

func TestPollerResumesInsidePartialBlock(t *testing.T) {
	chain := &fakeChain{head: 9, logs: sampleLogs(t)}
	queue := &fakeQueue{}
	p := NewPoller(chain, queue, PollerConfig{BlockWindow: 100})
	p.AddMarket(market, contract, 5, &models.IndexerCursor{MarketID: market, Block: 7, LogIndex: 0})

	require.NoError(t, p.Poll(context.Background()))

	assert.Equal(t, uint64(7), chain.queries[0].FromBlock.Uint64())
	require.Len(t, queue.msgs, 2)
	ev := eventAt(t, queue.msgs[0])
	assert.Equal(t, uint(1), ev.Index)
	assert.IsType(t, exchange.OrderPlaced{}, ev.Payload)
}

func TestPollerResumesAfterCompletedBlock(t *testing.T) {
	chain := &fakeChain{head: 9, logs: sampleLogs(t)}
	queue := &fakeQueue{}
	p := NewPoller(chain, queue, PollerConfig{BlockWindow: 100})
	p.AddMarket(market, contract, 5, &models.IndexerCursor{MarketID: market, Block: 7, BlockDone: true})

	require.NoError(t, p.Poll(context.Background()))

	assert.Equal(t, uint64(8), chain.queries[0].FromBlock.Uint64())
	require.Len(t, queue.msgs, 1)
	assert.IsType(t, processor.CursorMessage{}, queue.msgs[0])
}
