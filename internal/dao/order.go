package dao

import (
	"gorm.io/gorm"

	"github.com/utrading/utrading-perp-core/internal/models"
)

type OrderDAO struct {
	db *gorm.DB
}

var _order = &OrderDAO{}

func (d *OrderDAO) With(tx *gorm.DB) *OrderDAO {
	if tx == nil {
		return d
	}
	return &OrderDAO{db: tx}
}

func Order() *OrderDAO {
	return _order
}

func (d *OrderDAO) BatchUpsert(orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	return upsert(d.db, orders, []string{"market_id", "order_id"},
		[]string{"trader", "is_buy", "price", "amount", "initial_amount", "status", "timestamp", "tx_hash"})
}

// Open 市场内未关闭的订单（启动恢复用）
func (d *OrderDAO) Open(marketID string) ([]*models.Order, error) {
	var orders []*models.Order
	err := primary(d.db).
		Where("market_id = ? AND status IN ?", marketID, []string{models.OrderOpen, models.OrderPartial}).
		Order("order_id").
		Find(&orders).Error
	return orders, err
}

// OpenByTrader 交易者剩余数量大于 0 的订单
func (d *OrderDAO) OpenByTrader(marketID, trader string) ([]*models.Order, error) {
	var orders []*models.Order
	err := d.db.
		Where("market_id = ? AND trader = ? AND amount <> ?", marketID, trader, "0").
		Order("timestamp DESC").
		Find(&orders).Error
	return orders, err
}

// DeleteClosedBefore 删除时间早于 ts 的已成交/已撤销订单
func (d *OrderDAO) DeleteClosedBefore(ts int64) (int64, error) {
	res := d.db.
		Where("status IN ? AND timestamp < ?", []string{models.OrderFilled, models.OrderCancelled}, ts).
		Delete(&models.Order{})
	return res.RowsAffected, res.Error
}
