package dao

import (
	"gorm.io/gorm"

	"github.com/utrading/utrading-perp-core/internal/models"
)

// EventDAO 保证金、资金费、强平三类只追加事件
type EventDAO struct {
	db *gorm.DB
}

var _event = &EventDAO{}

func (d *EventDAO) With(tx *gorm.DB) *EventDAO {
	if tx == nil {
		return d
	}
	return &EventDAO{db: tx}
}

func Event() *EventDAO {
	return _event
}

var eventKeys = []string{"market_id", "event_id"}

func (d *EventDAO) BatchUpsertMargin(events []*models.MarginEvent) error {
	if len(events) == 0 {
		return nil
	}
	return upsert(d.db, events, eventKeys, []string{"amount", "event_type", "timestamp"})
}

func (d *EventDAO) BatchUpsertFunding(events []*models.FundingEvent) error {
	if len(events) == 0 {
		return nil
	}
	return upsert(d.db, events, eventKeys, []string{"rate", "timestamp"})
}

func (d *EventDAO) BatchUpsertLiquidation(events []*models.Liquidation) error {
	if len(events) == 0 {
		return nil
	}
	return upsert(d.db, events, eventKeys, []string{"amount", "price", "timestamp"})
}

// MarginByTrader 交易者的充值/提现记录，最新在前
func (d *EventDAO) MarginByTrader(marketID, trader string, limit int) ([]*models.MarginEvent, error) {
	var events []*models.MarginEvent
	err := d.db.Where("market_id = ? AND trader = ?", marketID, trader).
		Order("timestamp DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// RecentFunding 市场最近的资金费结算
func (d *EventDAO) RecentFunding(marketID string, limit int) ([]*models.FundingEvent, error) {
	var events []*models.FundingEvent
	err := d.db.Where("market_id = ?", marketID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// RecentLiquidations 市场最近的强平
func (d *EventDAO) RecentLiquidations(marketID string, limit int) ([]*models.Liquidation, error) {
	var events []*models.Liquidation
	err := d.db.Where("market_id = ?", marketID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// DeleteMarginBefore 删除早于 ts 的保证金事件
func (d *EventDAO) DeleteMarginBefore(ts int64) (int64, error) {
	res := d.db.Where("timestamp < ?", ts).Delete(&models.MarginEvent{})
	return res.RowsAffected, res.Error
}
