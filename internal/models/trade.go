package models

// Trade 成交记录，id 为 txHash-logIndex
type Trade struct {
	MarketID    string `gorm:"column:market_id;type:varchar(16);primaryKey" json:"market_id"`
	EventID     string `gorm:"column:event_id;type:varchar(80);primaryKey" json:"id"`
	BuyOrderID  uint64 `gorm:"column:buy_order_id;not null" json:"buy_order_id"`
	SellOrderID uint64 `gorm:"column:sell_order_id;not null" json:"sell_order_id"`
	Buyer       string `gorm:"column:buyer;type:varchar(42);not null;index:idx_trade_buyer" json:"buyer"`
	Seller      string `gorm:"column:seller;type:varchar(42);not null;index:idx_trade_seller" json:"seller"`
	Price       BigInt `gorm:"column:price;type:varchar(80);not null" json:"price"`
	Amount      BigInt `gorm:"column:amount;type:varchar(80);not null" json:"amount"`
	Timestamp   int64  `gorm:"column:timestamp;not null;index:idx_trade_ts" json:"timestamp"`
	BlockNumber uint64 `gorm:"column:block_number;not null;index:idx_trade_chain,priority:1" json:"block_number"`
	LogIndex    uint   `gorm:"column:log_index;not null;default:0;index:idx_trade_chain,priority:2" json:"log_index"`
	TxHash      string `gorm:"column:tx_hash;type:varchar(66);not null" json:"tx_hash"`
}

func (Trade) TableName() string {
	return "perp_trades"
}
