package dao

import (
	"gorm.io/gorm"

	"github.com/utrading/utrading-perp-core/internal/models"
)

type PositionDAO struct {
	db *gorm.DB
}

var _position = &PositionDAO{}

func (d *PositionDAO) With(tx *gorm.DB) *PositionDAO {
	if tx == nil {
		return d
	}
	return &PositionDAO{db: tx}
}

// Position 获取 PositionDAO 单例
func Position() *PositionDAO {
	return _position
}

func (d *PositionDAO) BatchUpsert(positions []*models.Position) error {
	if len(positions) == 0 {
		return nil
	}
	return upsert(d.db, positions, []string{"market_id", "trader"},
		[]string{"size", "entry_price", "realized_pnl", "timestamp"})
}

// Get 不存在时返回 nil, nil
func (d *PositionDAO) Get(marketID, trader string) (*models.Position, error) {
	var positions []*models.Position
	err := d.db.Where("market_id = ? AND trader = ?", marketID, trader).
		Limit(1).
		Find(&positions).Error
	if err != nil || len(positions) == 0 {
		return nil, err
	}
	return positions[0], nil
}

// ByTrader 交易者在所有市场的仓位
func (d *PositionDAO) ByTrader(trader string) ([]*models.Position, error) {
	var positions []*models.Position
	err := d.db.Where("trader = ?", trader).Order("market_id").Find(&positions).Error
	return positions, err
}

// ListByMarket 启动恢复用
func (d *PositionDAO) ListByMarket(marketID string) ([]*models.Position, error) {
	var positions []*models.Position
	err := primary(d.db).Where("market_id = ?", marketID).Find(&positions).Error
	return positions, err
}

// ActiveTraders 市场内持有非零仓位的交易者
func (d *PositionDAO) ActiveTraders(marketID string) ([]string, error) {
	var traders []string
	err := d.db.Model(&models.Position{}).
		Where("market_id = ? AND size <> ?", marketID, "0").
		Order("trader").
		Pluck("trader", &traders).Error
	return traders, err
}
