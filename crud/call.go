package crud

import (
	"context"

	"github.com/hatlonely/crudx/pool"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// call 取连接、执行、归类错误、归还连接；取连接失败时不执行 fn
func call[T any](ctx context.Context, p pool.Pool, fn func(db *gorm.DB) (T, error)) (T, error) {
	var zero T
	conn, err := p.Get(ctx)
	if err != nil {
		return zero, NewPoolError(err)
	}
	defer conn.Release()

	v, err := fn(conn.DB())
	if err != nil {
		return zero, MapError(err)
	}
	return v, nil
}

func (m *Model) pkEq(pk any) clause.Expression {
	return clause.Eq{Column: clause.Column{Name: m.PrimaryKey.Column}, Value: pk}
}
