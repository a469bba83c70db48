package processor

import "github.com/utrading/utrading-perp-core/internal/exchange"

// Message 消息接口
type Message interface {
	Type() string
}

// EventMessage 一条已解码的链上事件
type EventMessage struct {
	Event exchange.Event
}

func (m EventMessage) Type() string {
	if m.Event.Payload == nil {
		return "unknown"
	}
	return m.Event.Payload.EventName()
}

// CursorMessage 某市场到 Block 为止的事件均已入队，Head 为读取时的链头
type CursorMessage struct {
	MarketID string
	Block    uint64
	Head     uint64
}

func (m CursorMessage) Type() string { return "cursor" }
