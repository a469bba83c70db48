package dao

import (
	"gorm.io/gorm"

	"github.com/utrading/utrading-perp-core/internal/models"
)

const (
	// CandlesLimit K 线查询默认条数
	CandlesLimit = 100
)

type CandleDAO struct {
	db *gorm.DB
}

var _candle = &CandleDAO{}

func (d *CandleDAO) With(tx *gorm.DB) *CandleDAO {
	if tx == nil {
		return d
	}
	return &CandleDAO{db: tx}
}

func Candle() *CandleDAO {
	return _candle
}

func (d *CandleDAO) BatchUpsert(candles []*models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	return upsert(d.db, candles, []string{"market_id", "candle_id"},
		[]string{"open", "high", "low", "close", "volume", "trades"})
}

func (d *CandleDAO) BatchUpsertLatest(latest []*models.LatestCandle) error {
	if len(latest) == 0 {
		return nil
	}
	return upsert(d.db, latest, []string{"market_id"}, []string{"price", "timestamp"})
}

// Latest 市场最近的 K 线，最新在前
func (d *CandleDAO) Latest(marketID, resolution string, limit int) ([]*models.Candle, error) {
	if limit <= 0 {
		limit = CandlesLimit
	}
	var candles []*models.Candle
	err := d.db.Where("market_id = ? AND resolution = ?", marketID, resolution).
		Order("bucket_start DESC").
		Limit(limit).
		Find(&candles).Error
	return candles, err
}

// Get 不存在时返回 nil, nil
func (d *CandleDAO) Get(marketID, candleID string) (*models.Candle, error) {
	var candles []*models.Candle
	err := primary(d.db).Where("market_id = ? AND candle_id = ?", marketID, candleID).
		Limit(1).
		Find(&candles).Error
	if err != nil || len(candles) == 0 {
		return nil, err
	}
	return candles[0], nil
}

// LatestCloses 全部市场的 LatestClose 游标
func (d *CandleDAO) LatestCloses() ([]*models.LatestCandle, error) {
	var latest []*models.LatestCandle
	err := primary(d.db).Find(&latest).Error
	return latest, err
}

// DeleteBefore 删除时间桶早于 ts 的 K 线
func (d *CandleDAO) DeleteBefore(ts int64) (int64, error) {
	res := d.db.Where("bucket_start < ?", ts).Delete(&models.Candle{})
	return res.RowsAffected, res.Error
}
