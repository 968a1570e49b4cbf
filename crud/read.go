package crud

import (
	"context"

	"github.com/hatlonely/crudx/pool"
	"gorm.io/gorm"
)

type reader[E any, K comparable] struct {
	pool  pool.Pool
	model *Model
}

// NewReader 需要主键
func NewReader[E any, K comparable](p pool.Pool, model *Model) (Reader[E, K], error) {
	if err := model.requirePrimaryKey("read"); err != nil {
		return nil, err
	}
	return &reader[E, K]{pool: p, model: model}, nil
}

func (r *reader[E, K]) Read(ctx context.Context, pk K) (E, error) {
	return call(ctx, r.pool, func(db *gorm.DB) (E, error) {
		return take[E](db, r.model, pk)
	})
}

// take SELECT ... WHERE pk = ? LIMIT 1
func take[E any](db *gorm.DB, m *Model, pk any) (E, error) {
	var e E
	err := db.Table(m.Table).Where(m.pkEq(pk)).Take(&e).Error
	return e, err
}
