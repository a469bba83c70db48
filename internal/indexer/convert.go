package indexer

import (
	"strings"

	"github.com/utrading/utrading-perp-core/internal/candle"
	"github.com/utrading/utrading-perp-core/internal/exchange"
	"github.com/utrading/utrading-perp-core/internal/models"
	"github.com/utrading/utrading-perp-core/internal/risk"
)

func txHash(ev exchange.Event) string {
	return strings.ToLower(ev.TxHash.Hex())
}

func candleModel(c candle.Candle) *models.Candle {
	return &models.Candle{
		MarketID:    c.MarketID,
		CandleID:    c.ID,
		Resolution:  c.Resolution,
		BucketStart: c.BucketStart,
		Open:        models.NewBigInt(c.Open),
		High:        models.NewBigInt(c.High),
		Low:         models.NewBigInt(c.Low),
		Close:       models.NewBigInt(c.Close),
		Volume:      models.NewBigInt(c.Volume),
		Trades:      c.Trades,
	}
}

func candleFromModel(m *models.Candle) candle.Candle {
	return candle.Candle{
		MarketID:    m.MarketID,
		ID:          m.CandleID,
		Resolution:  m.Resolution,
		BucketStart: m.BucketStart,
		Open:        m.Open.Big(),
		High:        m.High.Big(),
		Low:         m.Low.Big(),
		Close:       m.Close.Big(),
		Volume:      m.Volume.Big(),
		Trades:      m.Trades,
	}
}

func positionModel(marketID string, p risk.Position, ts int64) *models.Position {
	return &models.Position{
		MarketID:    marketID,
		Trader:      p.Trader,
		Size:        models.NewBigInt(p.Size),
		EntryPrice:  models.NewBigInt(p.EntryPrice),
		RealizedPnl: models.NewBigInt(p.RealizedPnl),
		Timestamp:   ts,
	}
}

func positionFromModel(m *models.Position) risk.Position {
	return risk.Position{
		Trader:      m.Trader,
		Size:        m.Size.Big(),
		EntryPrice:  m.EntryPrice.Big(),
		RealizedPnl: m.RealizedPnl.Big(),
	}
}
