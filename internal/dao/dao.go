package dao

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"
)

// InitDAO 初始化所有 DAO（应用启动时调用）
func InitDAO(db *gorm.DB) {
	_trade.db = db
	_order.db = db
	_position.db = db
	_candle.db = db
	_event.db = db
	_cursor.db = db
}

// upsert 按主键冲突更新指定列
func upsert(db *gorm.DB, rows any, keys []string, updates []string) error {
	cols := make([]clause.Column, 0, len(keys))
	for _, k := range keys {
		cols = append(cols, clause.Column{Name: k})
	}
	return db.Clauses(clause.OnConflict{
		Columns:   cols,
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(rows).Error
}

// primary 启动恢复等需要读到刚写入数据的查询走主库
func primary(db *gorm.DB) *gorm.DB {
	return db.Clauses(dbresolver.Write)
}
