package dao

import (
	"gorm.io/gorm"

	"github.com/utrading/utrading-perp-core/internal/models"
)

type CursorDAO struct {
	db *gorm.DB
}

var _cursor = &CursorDAO{}

func Cursor() *CursorDAO {
	return _cursor
}

// With 在事务 tx 内执行
func (d *CursorDAO) With(tx *gorm.DB) *CursorDAO {
	if tx == nil {
		return d
	}
	return &CursorDAO{db: tx}
}

// Get 未记录时返回 nil, nil
func (d *CursorDAO) Get(marketID string) (*models.IndexerCursor, error) {
	var cursors []*models.IndexerCursor
	err := primary(d.db).Where("market_id = ?", marketID).Limit(1).Find(&cursors).Error
	if err != nil || len(cursors) == 0 {
		return nil, err
	}
	return cursors[0], nil
}

func (d *CursorDAO) BatchUpsert(cursors []*models.IndexerCursor) error {
	if len(cursors) == 0 {
		return nil
	}
	return upsert(d.db, cursors, []string{"market_id"}, []string{"block", "log_index", "block_done", "updated_at"})
}
