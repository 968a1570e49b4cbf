package crud

import (
	"context"
	"reflect"

	"github.com/hatlonely/crudx/pool"
	"gorm.io/gorm"
)

type updater[E, U any, K comparable] struct {
	pool  pool.Pool
	model *Model
}

// NewUpdater 需要主键
func NewUpdater[E, U any, K comparable](p pool.Pool, model *Model) (Updater[U, K], error) {
	if err := model.requirePrimaryKey("update"); err != nil {
		return nil, err
	}
	return &updater[E, U, K]{pool: p, model: model}, nil
}

// Update 影响行数为 0 时在同一连接上检查记录是否存在，区分不存在与没有可更新字段
// changeset 中的主键字段不会被写入
func (u *updater[E, U, K]) Update(ctx context.Context, pk K, changeset U) (int64, error) {
	return call(ctx, u.pool, func(db *gorm.DB) (int64, error) {
		res := u.scope(db).Omit(u.model.PrimaryKey.Column).Where(u.model.pkEq(pk)).Updates(changeset)
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected > 0 {
			return res.RowsAffected, nil
		}

		var n int64
		if err := u.scope(db).Where(u.model.pkEq(pk)).Count(&n).Error; err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, ErrNotFound
		}
		return 0, nil
	})
}

func (u *updater[E, U, K]) UpdateAll(ctx context.Context, changeset U) (int64, error) {
	return call(ctx, u.pool, func(db *gorm.DB) (int64, error) {
		res := u.scope(db.Session(&gorm.Session{AllowGlobalUpdate: true})).Omit(u.model.PrimaryKey.Column).Updates(changeset)
		return res.RowsAffected, res.Error
	})
}

func (u *updater[E, U, K]) scope(db *gorm.DB) *gorm.DB {
	return db.Model(reflect.New(u.model.Entity).Interface()).Table(u.model.Table)
}
