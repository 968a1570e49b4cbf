package crud

import (
	"reflect"
	"strings"
	"sync"

	"github.com/hatlonely/crudx/ref"
	"github.com/pkg/errors"
	"gorm.io/gorm/schema"
)

const tagName = "crud"

type Options struct {
	// 实体未实现 TableName() 时使用的表名
	Table string `cfg:"table"`
	// 主键字段，Go 字段名或列名，为空时按 crud:"pk" tag、gorm primaryKey、ID 字段依次查找
	PrimaryKey string `cfg:"primaryKey"`
	// 主键生成器，Create 时为零值主键赋值
	KeyGenerator *ref.TypeOptions `cfg:"keyGenerator"`
}

// PrimaryKey 主键字段描述
type PrimaryKey struct {
	FieldName string
	Column    string
	Type      reflect.Type
}

// Model 实体的表、主键和类型信息，构造后只读
type Model struct {
	Table      string
	PrimaryKey *PrimaryKey
	Entity     reflect.Type
	Insert     reflect.Type
	Update     reflect.Type
	Key        reflect.Type

	schema       *schema.Schema
	keyGenerator *ref.TypeOptions
}

var (
	schemaCache  = &sync.Map{}
	namingPolicy = schema.NamingStrategy{}
)

func parseSchema(rt reflect.Type) (*schema.Schema, error) {
	return schema.Parse(reflect.New(rt).Interface(), schemaCache, namingPolicy)
}

func structType[T any]() (reflect.Type, error) {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	if rt.Kind() != reflect.Struct {
		return nil, errors.Wrapf(ErrNotStruct, "%v", rt)
	}
	return rt, nil
}

// NewModel 解析实体 E 的表名与主键，I、U 为插入与更新载荷类型，K 为主键类型
func NewModel[E, I, U any, K comparable](options *Options) (*Model, error) {
	if options == nil {
		options = &Options{}
	}

	entity, err := structType[E]()
	if err != nil {
		return nil, err
	}
	insert, err := structType[I]()
	if err != nil {
		return nil, errors.WithMessage(err, "insert type")
	}
	update, err := structType[U]()
	if err != nil {
		return nil, errors.WithMessage(err, "update type")
	}

	s, err := parseSchema(entity)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %v failed", entity)
	}

	m := &Model{
		Entity:       entity,
		Insert:       insert,
		Update:       update,
		Key:          reflect.TypeOf((*K)(nil)).Elem(),
		schema:       s,
		keyGenerator: options.KeyGenerator,
	}

	if m.Table, err = resolveTable[E](entity, options); err != nil {
		return nil, err
	}
	if m.PrimaryKey, err = resolvePrimaryKey(entity, s, options); err != nil {
		return nil, err
	}
	if m.PrimaryKey != nil && !keyCompatible(m.Key, m.PrimaryKey.Type) {
		return nil, errors.Wrapf(ErrPrimaryKeyType, "key %v, field %s %v", m.Key, m.PrimaryKey.FieldName, m.PrimaryKey.Type)
	}
	return m, nil
}

// resolveTable TableName() 优先于 Options.Table，再次是 `_ struct{} crud:"table=xxx"`
func resolveTable[E any](entity reflect.Type, options *Options) (string, error) {
	var e E
	if t, ok := any(e).(schema.Tabler); ok && t.TableName() != "" {
		return t.TableName(), nil
	}
	if t, ok := any(&e).(schema.Tabler); ok && t.TableName() != "" {
		return t.TableName(), nil
	}
	if options.Table != "" {
		return options.Table, nil
	}
	for i := 0; i < entity.NumField(); i++ {
		if table, ok := parseTag(entity.Field(i).Tag)["table"]; ok && table != "" {
			return table, nil
		}
	}
	return "", errors.Wrapf(ErrMissingTable, "%v", entity)
}

func resolvePrimaryKey(entity reflect.Type, s *schema.Schema, options *Options) (*PrimaryKey, error) {
	var field *schema.Field
	for _, f := range s.Fields {
		if _, ok := parseTag(f.Tag)["pk"]; !ok {
			continue
		}
		if field != nil {
			return nil, errors.Wrapf(ErrMultiplePrimaryKeys, "%v: %s, %s", entity, field.Name, f.Name)
		}
		field = f
	}

	if field == nil && options.PrimaryKey != "" {
		if field = s.LookUpField(options.PrimaryKey); field == nil {
			return nil, errors.Wrapf(ErrMissingPrimaryKey, "%v has no field [%s]", entity, options.PrimaryKey)
		}
	}
	if field == nil {
		field = s.PrioritizedPrimaryField
	}
	if field == nil || field.DBName == "" {
		return nil, nil
	}

	return &PrimaryKey{FieldName: field.Name, Column: field.DBName, Type: field.IndirectFieldType}, nil
}

// parseTag 解析 `crud:"pk"`、`crud:"table=users"` 形式的 tag
func parseTag(tag reflect.StructTag) map[string]string {
	settings := map[string]string{}
	for _, part := range strings.Split(tag.Get(tagName), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		settings[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return settings
}

func keyCompatible(key reflect.Type, field reflect.Type) bool {
	if key.Kind() == reflect.Interface {
		return true
	}
	if key.AssignableTo(field) {
		return true
	}
	switch {
	case isInteger(key) && isInteger(field):
		return true
	case key.Kind() == reflect.String && field.Kind() == reflect.String:
		return true
	}
	return false
}

func isInteger(rt reflect.Type) bool {
	switch rt.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// requirePrimaryKey Read、Update、Delete 构造时调用
func (m *Model) requirePrimaryKey(operation string) error {
	if m.PrimaryKey == nil {
		return errors.Wrapf(ErrMissingPrimaryKey, "%s %v", operation, m.Entity)
	}
	return nil
}
