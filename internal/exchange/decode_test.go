package exchange

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildLog(t *testing.T, name string, topics []common.Hash, values ...any) types.Log {
	t.Helper()
	ev := ABI().Events[name]
	data, err := ev.Inputs.NonIndexed().Pack(values...)
	require.NoError(t, err)
	return types.Log{Topics: append([]common.Hash{ev.ID}, topics...), Data: data}
}

func TestDecodeTradeExecuted(t *testing.T) {
	buyer := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	seller := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	l := buildLog(t, "TradeExecuted",
		[]common.Hash{common.BigToHash(big.NewInt(11)), common.BigToHash(big.NewInt(12))},
		big.NewInt(1500), big.NewInt(3), buyer, seller)

	p, err := DecodeLog(l)
	require.NoError(t, err)

	trade, ok := p.(TradeExecuted)
	require.True(t, ok)
	assert.Equal(t, uint64(11), trade.BuyOrderID)
	assert.Equal(t, uint64(12), trade.SellOrderID)
	assert.Equal(t, int64(1500), trade.Price.Int64())
	assert.Equal(t, int64(3), trade.Amount.Int64())
	assert.Equal(t, buyer, trade.Buyer)
	assert.Equal(t, seller, trade.Seller)
}

func TestDecodeIndexedOnlyEvent(t *testing.T) {
	l := buildLog(t, "OrderRemoved", []common.Hash{common.BigToHash(big.NewInt(9))})

	p, err := DecodeLog(l)
	require.NoError(t, err)
	assert.Equal(t, OrderRemoved{ID: 9}, p)
}

func TestDecodeMarginAndFunding(t *testing.T) {
	trader := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	p, err := DecodeLog(buildLog(t, "MarginDeposited",
		[]common.Hash{common.BytesToHash(trader.Bytes())}, big.NewInt(10)))
	require.NoError(t, err)
	assert.Equal(t, trader, p.(MarginDeposited).Trader)

	p, err = DecodeLog(buildLog(t, "FundingSettled", nil, big.NewInt(-25), big.NewInt(1_700_000_000)))
	require.NoError(t, err)
	f := p.(FundingSettled)
	assert.Equal(t, int64(-25), f.Rate.Int64())
	assert.Equal(t, uint64(1_700_000_000), f.Timestamp)
}

func TestDecodeUnknownAndMalformed(t *testing.T) {
	_, err := DecodeLog(types.Log{Topics: []common.Hash{common.HexToHash("0x01")}})
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = DecodeLog(types.Log{})
	assert.ErrorIs(t, err, ErrUnknownEvent)

	// 缺少 indexed topic
	l := buildLog(t, "OrderPlaced", nil, true, big.NewInt(1), big.NewInt(1))
	_, err = DecodeLog(l)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestEventIDAndOrdering(t *testing.T) {
	a := Event{Block: 10, Index: 2, TxHash: common.HexToHash("0xAB")}
	b := Event{Block: 10, Index: 3}
	c := Event{Block: 11, Index: 0}

	assert.True(t, a.Before(b))
	assert.True(t, b.Before(c))
	assert.False(t, c.Before(a))
	assert.Equal(t, "0x00000000000000000000000000000000000000000000000000000000000000ab-2", a.ID())
}

func TestABIEventLookup(t *testing.T) {
	contract := ABI()
	assert.Same(t, contract, ABI())

	ev, err := contract.EventByID(contract.Events["TradeExecuted"].ID)
	require.NoError(t, err)
	assert.Equal(t, "TradeExecuted", ev.Name)
}
