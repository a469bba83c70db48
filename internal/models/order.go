package models

// 订单状态
const (
	OrderOpen      = "OPEN"
	OrderPartial   = "PARTIAL"
	OrderFilled    = "FILLED"
	OrderCancelled = "CANCELLED"
)

// Order 订单最新状态，Amount 为剩余数量
type Order struct {
	MarketID      string `gorm:"column:market_id;type:varchar(16);primaryKey" json:"market_id"`
	OrderID       uint64 `gorm:"column:order_id;primaryKey;autoIncrement:false" json:"id"`
	Trader        string `gorm:"column:trader;type:varchar(42);not null;index:idx_order_trader" json:"trader"`
	IsBuy         bool   `gorm:"column:is_buy;not null" json:"is_buy"`
	Price         BigInt `gorm:"column:price;type:varchar(80);not null" json:"price"`
	Amount        BigInt `gorm:"column:amount;type:varchar(80);not null" json:"amount"`
	InitialAmount BigInt `gorm:"column:initial_amount;type:varchar(80);not null" json:"initial_amount"`
	Status        string `gorm:"column:status;type:varchar(16);not null;index:idx_order_status" json:"status"`
	Timestamp     int64  `gorm:"column:timestamp;not null" json:"timestamp"`
	TxHash        string `gorm:"column:tx_hash;type:varchar(66)" json:"tx_hash"`
}

func (Order) TableName() string {
	return "perp_orders"
}

// Closed 已成交或已撤销
func (o *Order) Closed() bool {
	return o.Status == OrderFilled || o.Status == OrderCancelled
}
