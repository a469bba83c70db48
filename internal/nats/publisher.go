package nats

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/utrading/utrading-perp-core/internal/monitor"
	"github.com/utrading/utrading-perp-core/pkg/logger"
)

// Publisher NATS 发布器
type Publisher struct {
	*nats.Conn
	prefix string
	mu     sync.RWMutex
	closed bool
}

// NewPublisher 创建 NATS 发布器，prefix 为空时使用 "perp"
func NewPublisher(url, prefix string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("perp-core"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			monitor.SetNATSConnected(false)
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			monitor.SetNATSConnected(true)
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}

	if prefix == "" {
		prefix = DefaultPrefix
	}
	monitor.SetNATSConnected(true)

	return &Publisher{Conn: conn, prefix: prefix}, nil
}

// PublishUpdate 以 JSON 发布一条市场更新，消息头带唯一 Nats-Msg-Id 供 JetStream 去重
func (p *Publisher) PublishUpdate(marketID string, kind Kind, payload any) error {
	data, err := NewUpdate(marketID, kind, payload).Marshal()
	if err != nil {
		monitor.IncNATSPublishError(string(kind))
		return err
	}

	msg := nats.NewMsg(Subject(p.prefix, marketID, kind))
	msg.Header.Set(nats.MsgIdHdr, uuid.NewString())
	msg.Data = data

	if err = p.PublishMsg(msg); err != nil {
		monitor.IncNATSPublishError(string(kind))
		return err
	}
	monitor.IncNATSPublished(string(kind))
	return nil
}

// IsConnected 检查发布器是否已连接
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed && p.Conn != nil && p.Conn.IsConnected()
}

// Close 排空后关闭连接
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	monitor.SetNATSConnected(false)

	if p.Conn != nil {
		return p.Conn.Drain()
	}
	return nil
}
