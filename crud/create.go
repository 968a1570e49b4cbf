package crud

import (
	"context"
	"fmt"
	"reflect"

	"github.com/hatlonely/crudx/pool"
	"github.com/hatlonely/crudx/uid"
	"github.com/hatlonely/crudx/uid/intgen"
	"github.com/hatlonely/crudx/uid/strgen"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

type creator[E, I any] struct {
	pool   pool.Pool
	model  *Model
	insert *schema.Schema
	// 插入载荷中的主键字段，没有时为 nil
	insertPK *schema.Field
	nextKey  func() any
}

// NewCreator 不需要主键；配置了 KeyGenerator 时要求插入载荷包含类型匹配的主键字段
func NewCreator[E, I any](p pool.Pool, model *Model) (Creator[E, I], error) {
	if model == nil {
		return nil, errors.New("model is nil")
	}
	c := &creator[E, I]{pool: p, model: model}

	insert, err := structType[I]()
	if err != nil {
		return nil, errors.WithMessage(err, "insert type")
	}
	s, err := parseSchema(insert)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %v failed", insert)
	}
	c.insert = s
	if model.PrimaryKey != nil {
		c.insertPK = s.LookUpField(model.PrimaryKey.FieldName)
		if c.insertPK == nil {
			c.insertPK = s.LookUpField(model.PrimaryKey.Column)
		}
	}

	if model.keyGenerator != nil {
		if c.nextKey, err = c.newKeyFunc(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *creator[E, I]) newKeyFunc() (func() any, error) {
	if c.insertPK == nil {
		return nil, errors.Wrapf(ErrKeyGenerator, "%v has no primary key field", c.insert.ModelType)
	}
	gen, err := uid.NewGeneratorWithOptions(c.model.keyGenerator)
	if err != nil {
		return nil, errors.WithMessage(err, "create key generator failed")
	}

	ft := c.insertPK.IndirectFieldType
	switch g := gen.(type) {
	case intgen.IntGenerator:
		if isInteger(ft) {
			return func() any { return reflect.ValueOf(g.Generate()).Convert(ft).Interface() }, nil
		}
	case strgen.StrGenerator:
		if ft.Kind() == reflect.String {
			return func() any { return reflect.ValueOf(g.Generate()).Convert(ft).Interface() }, nil
		}
	}
	return nil, errors.Wrapf(ErrKeyGenerator, "%T for field %s %v", gen, c.insertPK.Name, ft)
}

// Create 单条 INSERT，返回插入后的实体
func (c *creator[E, I]) Create(ctx context.Context, payload I) (E, error) {
	return call(ctx, c.pool, func(db *gorm.DB) (E, error) {
		var zero E
		if err := c.fillKey(ctx, &payload); err != nil {
			return zero, err
		}
		if err := db.Table(c.model.Table).Create(&payload).Error; err != nil {
			return zero, err
		}
		return c.entity(ctx, db, &payload)
	})
}

// CreateMany 一条多行 INSERT，需要回读时再加一条 IN 查询，payloads 为空时不访问数据库
func (c *creator[E, I]) CreateMany(ctx context.Context, payloads []I) ([]E, error) {
	if len(payloads) == 0 {
		return make([]E, 0), nil
	}
	return call(ctx, c.pool, func(db *gorm.DB) ([]E, error) {
		rows := append([]I(nil), payloads...)
		for i := range rows {
			if err := c.fillKey(ctx, &rows[i]); err != nil {
				return nil, err
			}
		}
		if err := db.Table(c.model.Table).Create(&rows).Error; err != nil {
			return nil, err
		}
		return c.entities(ctx, db, rows)
	})
}

func (c *creator[E, I]) fillKey(ctx context.Context, payload *I) error {
	if c.nextKey == nil {
		return nil
	}
	rv := reflect.ValueOf(payload).Elem()
	if _, zero := c.insertPK.ValueOf(ctx, rv); !zero {
		return nil
	}
	return c.insertPK.Set(ctx, rv, c.nextKey())
}

// entity 由插入载荷得到实体：同类型直接返回，有主键时按主键回读，否则按列名复制
func (c *creator[E, I]) entity(ctx context.Context, db *gorm.DB, payload *I) (E, error) {
	if e, ok := any(*payload).(E); ok {
		return e, nil
	}
	if pk, ok := c.payloadKey(ctx, payload); ok {
		return take[E](db, c.model, pk)
	}
	return c.copyColumns(ctx, payload)
}

// entities 与 entity 规则相同，需要回读的行合并为一条 WHERE pk IN (...) 查询
func (c *creator[E, I]) entities(ctx context.Context, db *gorm.DB, rows []I) ([]E, error) {
	out := make([]E, len(rows))
	var (
		pks     []any
		pending []int
	)
	for i := range rows {
		if e, ok := any(rows[i]).(E); ok {
			out[i] = e
			continue
		}
		if pk, ok := c.payloadKey(ctx, &rows[i]); ok {
			pks = append(pks, pk)
			pending = append(pending, i)
			continue
		}
		e, err := c.copyColumns(ctx, &rows[i])
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	if len(pks) == 0 {
		return out, nil
	}

	var found []E
	in := clause.IN{Column: clause.Column{Name: c.model.PrimaryKey.Column}, Values: pks}
	if err := db.Table(c.model.Table).Where(in).Find(&found).Error; err != nil {
		return nil, err
	}
	entityPK := c.model.schema.LookUpField(c.model.PrimaryKey.FieldName)
	byKey := make(map[string]E, len(found))
	for _, e := range found {
		v, _ := entityPK.ValueOf(ctx, reflect.ValueOf(&e).Elem())
		byKey[keyString(v)] = e
	}
	for j, i := range pending {
		e, ok := byKey[keyString(pks[j])]
		if !ok {
			return nil, errors.Wrapf(gorm.ErrRecordNotFound, "created row %v", pks[j])
		}
		out[i] = e
	}
	return out, nil
}

func (c *creator[E, I]) payloadKey(ctx context.Context, payload *I) (any, bool) {
	if c.insertPK == nil {
		return nil, false
	}
	pk, zero := c.insertPK.ValueOf(ctx, reflect.ValueOf(payload).Elem())
	return pk, !zero
}

func (c *creator[E, I]) copyColumns(ctx context.Context, payload *I) (E, error) {
	var e E
	rv := reflect.ValueOf(payload).Elem()
	ev := reflect.ValueOf(&e).Elem()
	for _, f := range c.insert.Fields {
		if f.DBName == "" {
			continue
		}
		target := c.model.schema.LookUpField(f.DBName)
		if target == nil || !f.FieldType.AssignableTo(target.FieldType) {
			continue
		}
		v, _ := f.ValueOf(ctx, rv)
		if err := target.Set(ctx, ev, v); err != nil {
			return e, errors.Wrapf(err, "copy column %s", f.DBName)
		}
	}
	return e, nil
}

// keyString 插入载荷与实体的主键类型可能不同，按字面值比较
func keyString(v any) string {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return ""
	}
	return fmt.Sprint(rv.Interface())
}
