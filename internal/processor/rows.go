package processor

import (
	"strconv"

	"gorm.io/gorm"

	"github.com/utrading/utrading-perp-core/internal/dao"
	"github.com/utrading/utrading-perp-core/internal/models"
)

// Row 单行写入项
type Row[T any] struct {
	Table string
	Key   string
	Value T
}

func (r Row[T]) TableName() string { return r.Table }
func (r Row[T]) DedupKey() string  { return r.Key }

func rowsOf[T any](items []BatchItem) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if r, ok := item.(Row[T]); ok {
			out = append(out, r.Value)
		}
	}
	return out
}

func flushWith[T any](fn func(tx *gorm.DB, rows []T) error) FlushFunc {
	return func(tx *gorm.DB, items []BatchItem) error {
		rows := rowsOf[T](items)
		if len(rows) == 0 {
			return nil
		}
		return fn(tx, rows)
	}
}

func TradeRow(t *models.Trade) BatchItem {
	return Row[*models.Trade]{Table: t.TableName(), Key: t.MarketID + ":" + t.EventID, Value: t}
}

func OrderRow(o *models.Order) BatchItem {
	return Row[*models.Order]{Table: o.TableName(), Key: o.MarketID + ":" + uitoa(o.OrderID), Value: o}
}

func PositionRow(p *models.Position) BatchItem {
	return Row[*models.Position]{Table: p.TableName(), Key: p.MarketID + ":" + p.Trader, Value: p}
}

func CandleRow(c *models.Candle) BatchItem {
	return Row[*models.Candle]{Table: c.TableName(), Key: c.MarketID + ":" + c.CandleID, Value: c}
}

func LatestCandleRow(l *models.LatestCandle) BatchItem {
	return Row[*models.LatestCandle]{Table: l.TableName(), Key: l.MarketID, Value: l}
}

func MarginEventRow(e *models.MarginEvent) BatchItem {
	return Row[*models.MarginEvent]{Table: e.TableName(), Key: e.MarketID + ":" + e.EventID, Value: e}
}

func FundingEventRow(e *models.FundingEvent) BatchItem {
	return Row[*models.FundingEvent]{Table: e.TableName(), Key: e.MarketID + ":" + e.EventID, Value: e}
}

func LiquidationRow(e *models.Liquidation) BatchItem {
	return Row[*models.Liquidation]{Table: e.TableName(), Key: e.MarketID + ":" + e.EventID, Value: e}
}

func CursorRow(c *models.IndexerCursor) BatchItem {
	return Row[*models.IndexerCursor]{Table: c.TableName(), Key: c.MarketID, Value: c}
}

// RegisterIndexerTables 注册索引器写入的全部表，游标最后写入
func RegisterIndexerTables(w *BatchWriter) {
	w.Register(models.Order{}.TableName(), flushWith(func(tx *gorm.DB, rows []*models.Order) error {
		return dao.Order().With(tx).BatchUpsert(rows)
	}))
	w.Register(models.Trade{}.TableName(), flushWith(func(tx *gorm.DB, rows []*models.Trade) error {
		return dao.Trade().With(tx).BatchUpsert(rows)
	}))
	w.Register(models.Position{}.TableName(), flushWith(func(tx *gorm.DB, rows []*models.Position) error {
		return dao.Position().With(tx).BatchUpsert(rows)
	}))
	w.Register(models.Candle{}.TableName(), flushWith(func(tx *gorm.DB, rows []*models.Candle) error {
		return dao.Candle().With(tx).BatchUpsert(rows)
	}))
	w.Register(models.LatestCandle{}.TableName(), flushWith(func(tx *gorm.DB, rows []*models.LatestCandle) error {
		return dao.Candle().With(tx).BatchUpsertLatest(rows)
	}))
	w.Register(models.MarginEvent{}.TableName(), flushWith(func(tx *gorm.DB, rows []*models.MarginEvent) error {
		return dao.Event().With(tx).BatchUpsertMargin(rows)
	}))
	w.Register(models.FundingEvent{}.TableName(), flushWith(func(tx *gorm.DB, rows []*models.FundingEvent) error {
		return dao.Event().With(tx).BatchUpsertFunding(rows)
	}))
	w.Register(models.Liquidation{}.TableName(), flushWith(func(tx *gorm.DB, rows []*models.Liquidation) error {
		return dao.Event().With(tx).BatchUpsertLiquidation(rows)
	}))
	w.Register(models.IndexerCursor{}.TableName(), flushWith(func(tx *gorm.DB, rows []*models.IndexerCursor) error {
		return dao.Cursor().With(tx).BatchUpsert(rows)
	}))
}

func uitoa(v uint64) string {
	return strconv.FormatUint(v, 10)
}
