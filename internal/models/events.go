package models

// 保证金事件类型
const (
	MarginDeposit  = "DEPOSIT"
	MarginWithdraw = "WITHDRAW"
)

// MarginEvent 充值/提现记录
type MarginEvent struct {
	MarketID  string `gorm:"column:market_id;type:varchar(16);primaryKey" json:"market_id"`
	EventID   string `gorm:"column:event_id;type:varchar(80);primaryKey" json:"id"`
	Trader    string `gorm:"column:trader;type:varchar(42);not null;index:idx_margin_trader" json:"trader"`
	Amount    BigInt `gorm:"column:amount;type:varchar(80);not null" json:"amount"`
	EventType string `gorm:"column:event_type;type:varchar(16);not null" json:"event_type"`
	Timestamp int64  `gorm:"column:timestamp;not null;index:idx_margin_ts" json:"timestamp"`
	TxHash    string `gorm:"column:tx_hash;type:varchar(66);not null" json:"tx_hash"`
}

func (MarginEvent) TableName() string {
	return "perp_margin_events"
}

// FundingEvent 资金费结算记录，Rate 有符号
type FundingEvent struct {
	MarketID  string `gorm:"column:market_id;type:varchar(16);primaryKey" json:"market_id"`
	EventID   string `gorm:"column:event_id;type:varchar(80);primaryKey" json:"id"`
	Rate      BigInt `gorm:"column:rate;type:varchar(80);not null" json:"rate"`
	Timestamp int64  `gorm:"column:timestamp;not null;index:idx_funding_ts" json:"timestamp"`
	TxHash    string `gorm:"column:tx_hash;type:varchar(66);not null" json:"tx_hash"`
}

func (FundingEvent) TableName() string {
	return "perp_funding_events"
}

// Liquidation 强平记录
type Liquidation struct {
	MarketID   string `gorm:"column:market_id;type:varchar(16);primaryKey" json:"market_id"`
	EventID    string `gorm:"column:event_id;type:varchar(80);primaryKey" json:"id"`
	Trader     string `gorm:"column:trader;type:varchar(42);not null;index:idx_liq_trader" json:"trader"`
	Liquidator string `gorm:"column:liquidator;type:varchar(42);not null" json:"liquidator"`
	Amount     BigInt `gorm:"column:amount;type:varchar(80);not null" json:"amount"`
	Price      BigInt `gorm:"column:price;type:varchar(80);not null" json:"price"`
	Timestamp  int64  `gorm:"column:timestamp;not null" json:"timestamp"`
	TxHash     string `gorm:"column:tx_hash;type:varchar(66);not null" json:"tx_hash"`
}

func (Liquidation) TableName() string {
	return "perp_liquidations"
}
