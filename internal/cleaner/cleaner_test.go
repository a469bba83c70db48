package cleaner

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/utrading/utrading-perp-core/config"
	"github.com/utrading/utrading-perp-core/internal/dao"
	"github.com/utrading/utrading-perp-core/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	dao.InitDAO(db)
	return db
}

func bi(v int64) models.BigInt {
	return models.NewBigInt(big.NewInt(v))
}

func TestCleaner_Clean(t *testing.T) {
	db := setupTestDB(t)

	now := time.Unix(1_000_000, 0)
	day := int64(24 * 3600)
	old, fresh := now.Unix()-10*day, now.Unix()-day

	require.NoError(t, dao.Event().BatchUpsertMargin([]*models.MarginEvent{
		{MarketID: "ETH-USD", EventID: "m1", Trader: "0xb1", Amount: bi(1), EventType: models.MarginDeposit, Timestamp: old},
		{MarketID: "ETH-USD", EventID: "m2", Trader: "0xb1", Amount: bi(1), EventType: models.MarginDeposit, Timestamp: fresh},
	}))
	require.NoError(t, dao.Order().BatchUpsert([]*models.Order{
		{MarketID: "ETH-USD", OrderID: 1, Trader: "0xb1", Price: bi(1), Amount: bi(0), InitialAmount: bi(1), Status: models.OrderFilled, Timestamp: old},
		{MarketID: "ETH-USD", OrderID: 2, Trader: "0xb1", Price: bi(1), Amount: bi(1), InitialAmount: bi(1), Status: models.OrderOpen, Timestamp: old},
		{MarketID: "ETH-USD", OrderID: 3, Trader: "0xb1", Price: bi(1), Amount: bi(1), InitialAmount: bi(1), Status: models.OrderCancelled, Timestamp: fresh},
	}))
	require.NoError(t, dao.Candle().BatchUpsert([]*models.Candle{
		{MarketID: "ETH-USD", CandleID: "1m-1", Resolution: "1m", BucketStart: old, Open: bi(1), High: bi(1), Low: bi(1), Close: bi(1), Volume: bi(1)},
	}))

	c := NewCleaner(config.Cleaner{
		MarginEventMaxAge: 7 * 24 * time.Hour,
		ClosedOrderMaxAge: 7 * 24 * time.Hour,
	})
	c.now = func() time.Time { return now }
	require.NoError(t, c.Clean())

	var margins, orders, candles int64
	require.NoError(t, db.Model(&models.MarginEvent{}).Count(&margins).Error)
	require.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	require.NoError(t, db.Model(&models.Candle{}).Count(&candles).Error)

	assert.EqualValues(t, 1, margins)
	// 未关闭的订单不论多旧都保留
	assert.EqualValues(t, 2, orders)
	// 保留期为 0 表示不清理
	assert.EqualValues(t, 1, candles)
}
