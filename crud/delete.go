package crud

import (
	"context"
	"reflect"

	"github.com/hatlonely/crudx/pool"
	"gorm.io/gorm"
)

type deleter[K comparable] struct {
	pool  pool.Pool
	model *Model
}

// NewDeleter 需要主键
func NewDeleter[K comparable](p pool.Pool, model *Model) (Deleter[K], error) {
	if err := model.requirePrimaryKey("delete"); err != nil {
		return nil, err
	}
	return &deleter[K]{pool: p, model: model}, nil
}

func (d *deleter[K]) Delete(ctx context.Context, pk K) (int64, error) {
	return call(ctx, d.pool, func(db *gorm.DB) (int64, error) {
		res := db.Table(d.model.Table).Where(d.model.pkEq(pk)).Delete(reflect.New(d.model.Entity).Interface())
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected == 0 {
			return 0, ErrNotFound
		}
		return res.RowsAffected, nil
	})
}
