package exchange

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// decodeOrder 解码 orders(id) 的返回数据。所有调用方只通过这里拿到 Order
func decodeOrder(data []byte) (Order, error) {
	values, err := ABI().Unpack("orders", data)
	if err != nil {
		return Order{}, fmt.Errorf("%w: orders: %v", ErrDecode, err)
	}
	if len(values) != 8 {
		return Order{}, fmt.Errorf("%w: orders: want 8 fields, got %d", ErrDecode, len(values))
	}

	var (
		o   Order
		ok  bool
		ids [3]*big.Int
	)
	if ids[0], ok = values[0].(*big.Int); !ok {
		return Order{}, fieldErr("id", values[0])
	}
	if o.Trader, ok = values[1].(common.Address); !ok {
		return Order{}, fieldErr("trader", values[1])
	}
	if o.IsBuy, ok = values[2].(bool); !ok {
		return Order{}, fieldErr("isBuy", values[2])
	}
	if o.Price, ok = values[3].(*big.Int); !ok {
		return Order{}, fieldErr("price", values[3])
	}
	if o.Amount, ok = values[4].(*big.Int); !ok {
		return Order{}, fieldErr("amount", values[4])
	}
	if o.InitialAmount, ok = values[5].(*big.Int); !ok {
		return Order{}, fieldErr("initialAmount", values[5])
	}
	if ids[1], ok = values[6].(*big.Int); !ok {
		return Order{}, fieldErr("timestamp", values[6])
	}
	if ids[2], ok = values[7].(*big.Int); !ok {
		return Order{}, fieldErr("next", values[7])
	}

	for i, name := range []string{"id", "timestamp", "next"} {
		if !ids[i].IsUint64() {
			return Order{}, fmt.Errorf("%w: orders.%s overflows uint64: %s", ErrDecode, name, ids[i])
		}
	}
	o.ID, o.Timestamp, o.Next = ids[0].Uint64(), ids[1].Uint64(), ids[2].Uint64()

	return o, nil
}

func fieldErr(name string, v any) error {
	return fmt.Errorf("%w: orders.%s has type %T", ErrDecode, name, v)
}

// DecodeLog 按 topic0 识别事件并解码；indexed 参数取自 topics，其余取自 data
func DecodeLog(l types.Log) (Payload, error) {
	if len(l.Topics) == 0 {
		return nil, ErrUnknownEvent
	}

	ev, err := ABI().EventByID(l.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, l.Topics[0].Hex())
	}

	values, err := ev.Inputs.Unpack(l.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, ev.Name, err)
	}
	d := logDecoder{name: ev.Name, topics: l.Topics[1:], values: values}

	var p Payload
	switch ev.Name {
	case "MarginDeposited":
		p = MarginDeposited{Trader: d.topicAddress(0), Amount: d.integer(0)}
	case "MarginWithdrawn":
		p = MarginWithdrawn{Trader: d.topicAddress(0), Amount: d.integer(0)}
	case "OrderPlaced":
		p = OrderPlaced{
			ID:     d.topicUint64(0),
			Trader: d.topicAddress(1),
			IsBuy:  d.flag(0),
			Price:  d.integer(1),
			Amount: d.integer(2),
		}
	case "OrderRemoved":
		p = OrderRemoved{ID: d.topicUint64(0)}
	case "TradeExecuted":
		p = TradeExecuted{
			BuyOrderID:  d.topicUint64(0),
			SellOrderID: d.topicUint64(1),
			Price:       d.integer(0),
			Amount:      d.integer(1),
			Buyer:       d.address(2),
			Seller:      d.address(3),
		}
	case "FundingSettled":
		ts := d.integer(1)
		p = FundingSettled{Rate: d.integer(0), Timestamp: ts.Uint64()}
	case "Liquidated":
		p = Liquidated{
			Trader:     d.topicAddress(0),
			Liquidator: d.topicAddress(1),
			Amount:     d.integer(0),
			Price:      d.integer(1),
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Name)
	}

	if d.err != nil {
		return nil, d.err
	}
	return p, nil
}

// logDecoder 记录第一个解码错误，避免每个字段都写一遍错误判断
type logDecoder struct {
	name   string
	topics []common.Hash
	values []any
	err    error
}

func (d *logDecoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s: %s", ErrDecode, d.name, fmt.Sprintf(format, args...))
	}
}

func (d *logDecoder) topic(i int) common.Hash {
	if i >= len(d.topics) {
		d.fail("missing topic %d", i+1)
		return common.Hash{}
	}
	return d.topics[i]
}

func (d *logDecoder) topicAddress(i int) common.Address {
	return common.BytesToAddress(d.topic(i).Bytes())
}

func (d *logDecoder) topicUint64(i int) uint64 {
	v := new(big.Int).SetBytes(d.topic(i).Bytes())
	if !v.IsUint64() {
		d.fail("topic %d overflows uint64", i+1)
		return 0
	}
	return v.Uint64()
}

func (d *logDecoder) value(i int) any {
	if i >= len(d.values) {
		d.fail("missing value %d", i)
		return nil
	}
	return d.values[i]
}

func (d *logDecoder) integer(i int) *big.Int {
	v, ok := d.value(i).(*big.Int)
	if !ok {
		d.fail("value %d is not an integer", i)
		return new(big.Int)
	}
	return v
}

func (d *logDecoder) address(i int) common.Address {
	v, ok := d.value(i).(common.Address)
	if !ok {
		d.fail("value %d is not an address", i)
	}
	return v
}

func (d *logDecoder) flag(i int) bool {
	v, ok := d.value(i).(bool)
	if !ok {
		d.fail("value %d is not a bool", i)
	}
	return v
}
