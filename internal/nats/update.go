package nats

import (
	"encoding/json"
	"strings"
	"time"
)

// DefaultPrefix 默认主题前缀
const DefaultPrefix = "perp"

// Kind 更新类型，决定主题最后一段
type Kind string

const (
	KindTrade    Kind = "trade"
	KindCandle   Kind = "candle"
	KindPosition Kind = "position"
	KindBook     Kind = "book"
	KindFunding  Kind = "funding"
)

// Subject <prefix>.<market>.<kind>
func Subject(prefix, marketID string, kind Kind) string {
	return strings.Join([]string{prefix, marketID, string(kind)}, ".")
}

// Update 发布到 NATS 的消息体
type Update struct {
	Market    string `json:"market"`
	Kind      Kind   `json:"kind"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

func NewUpdate(marketID string, kind Kind, payload any) *Update {
	return &Update{
		Market:    marketID,
		Kind:      kind,
		Timestamp: time.Now().UnixMilli(),
		Data:      payload,
	}
}

func (u *Update) Marshal() ([]byte, error) {
	return json.Marshal(u)
}

// Sink 更新的发布端，Publisher 和 Noop 都实现了它
type Sink interface {
	PublishUpdate(marketID string, kind Kind, payload any) error
}

// Noop 未配置 NATS 时使用
type Noop struct{}

func (Noop) PublishUpdate(string, Kind, any) error { return nil }

var (
	_ Sink = (*Publisher)(nil)
	_ Sink = Noop{}
)
