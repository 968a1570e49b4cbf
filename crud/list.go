package crud

import (
	"context"

	"github.com/hatlonely/crudx/pool"
	"gorm.io/gorm"
)

type lister[E any] struct {
	pool  pool.Pool
	model *Model
}

// NewLister 不需要主键
func NewLister[E any](p pool.Pool, model *Model) (Lister[E], error) {
	return &lister[E]{pool: p, model: model}, nil
}

func (l *lister[E]) List(ctx context.Context) ([]E, error) {
	return call(ctx, l.pool, func(db *gorm.DB) ([]E, error) {
		list := make([]E, 0)
		if err := db.Table(l.model.Table).Find(&list).Error; err != nil {
			return nil, err
		}
		if list == nil {
			list = make([]E, 0)
		}
		return list, nil
	})
}
