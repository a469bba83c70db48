package models

// Candle OHLCV K 线，id 为 resolution-bucketStart
type Candle struct {
	MarketID    string `gorm:"column:market_id;type:varchar(16);primaryKey" json:"market_id"`
	CandleID    string `gorm:"column:candle_id;type:varchar(32);primaryKey" json:"id"`
	Resolution  string `gorm:"column:resolution;type:varchar(8);not null" json:"resolution"`
	BucketStart int64  `gorm:"column:bucket_start;not null;index:idx_candle_bucket" json:"timestamp"`
	Open        BigInt `gorm:"column:open;type:varchar(80);not null" json:"open"`
	High        BigInt `gorm:"column:high;type:varchar(80);not null" json:"high"`
	Low         BigInt `gorm:"column:low;type:varchar(80);not null" json:"low"`
	Close       BigInt `gorm:"column:close;type:varchar(80);not null" json:"close"`
	Volume      BigInt `gorm:"column:volume;type:varchar(80);not null" json:"volume"`
	Trades      int    `gorm:"column:trades;not null;default:0" json:"trades"`
}

func (Candle) TableName() string {
	return "perp_candles"
}

// LatestCandle 每个市场最近一次成交价，作为下一根 K 线的开盘价
type LatestCandle struct {
	MarketID  string `gorm:"column:market_id;type:varchar(16);primaryKey" json:"market_id"`
	Price     BigInt `gorm:"column:price;type:varchar(80);not null" json:"price"`
	Timestamp int64  `gorm:"column:timestamp;not null" json:"timestamp"`
}

func (LatestCandle) TableName() string {
	return "perp_latest_candles"
}
