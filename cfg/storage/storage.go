package storage

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hatlonely/crudx/cfg/def"
	"github.com/pkg/errors"
)

// Storage 解码后的配置数据，由 map/slice/标量组成
type Storage struct {
	data any
}

func NewStorage(data any) *Storage {
	return &Storage{data: data}
}

func (s *Storage) Data() any {
	return s.data
}

// Sub 获取子配置，key 支持 "a.b[0].c"，不存在时返回空 Storage
func (s *Storage) Sub(key string) *Storage {
	if key == "" {
		return s
	}
	current := s.data
	for _, k := range splitKey(key) {
		if current = lookup(current, k); current == nil {
			break
		}
	}
	return NewStorage(current)
}

// ConvertTo 先按 def tag 填充默认值，再将配置转换为 object，object 必须是指针
// 配置中显式给出的零值（如 false）不会被默认值替换
// 结构体字段名依次取 cfg/json/yaml tag，再取字段名，大小写不敏感
// 接口字段若对应 map/slice，赋值为 *Storage，由 ref 按构造函数参数类型再转换
func (s *Storage) ConvertTo(object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.Errorf("object must be a non-nil pointer, got %T", object)
	}
	if err := def.SetDefaults(object); err != nil {
		return errors.WithMessage(err, "set defaults failed")
	}
	return convert(s.data, rv.Elem(), "")
}

func splitKey(key string) []string {
	var keys []string
	var sb strings.Builder
	flush := func() {
		if sb.Len() > 0 {
			keys = append(keys, sb.String())
			sb.Reset()
		}
	}
	for _, c := range key {
		switch c {
		case '.', '[', ']':
			flush()
		default:
			sb.WriteRune(c)
		}
	}
	flush()
	return keys
}

func lookup(data any, key string) any {
	switch v := data.(type) {
	case map[string]any:
		return v[key]
	case map[any]any:
		return v[key]
	case *Storage:
		return lookup(v.data, key)
	}
	rv := reflect.ValueOf(data)
	if rv.Kind() == reflect.Slice {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= rv.Len() {
			return nil
		}
		return rv.Index(idx).Interface()
	}
	return nil
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
	storageType  = reflect.TypeOf((*Storage)(nil))
)

func convert(src any, dst reflect.Value, path string) error {
	if st, ok := src.(*Storage); ok {
		src = st.data
	}
	if src == nil {
		return nil
	}

	switch dst.Kind() {
	case reflect.Ptr:
		if dst.Type() == storageType {
			dst.Set(reflect.ValueOf(NewStorage(src)))
			return nil
		}
		if dst.IsNil() {
			elem := reflect.New(dst.Type().Elem())
			if err := def.SetDefaults(elem.Interface()); err != nil {
				return errors.WithMessage(err, path)
			}
			dst.Set(elem)
		}
		return convert(src, dst.Elem(), path)
	case reflect.Interface:
		switch src.(type) {
		case map[string]any, map[any]any, []any, []map[string]any:
			if storageType.Implements(dst.Type()) {
				dst.Set(reflect.ValueOf(NewStorage(src)))
				return nil
			}
		}
		sv := reflect.ValueOf(src)
		if sv.Type().AssignableTo(dst.Type()) {
			dst.Set(sv)
			return nil
		}
		return errors.Errorf("%s: cannot assign %T to %v", path, src, dst.Type())
	}

	switch dst.Type() {
	case durationType:
		return convertDuration(src, dst, path)
	case timeType:
		return convertTime(src, dst, path)
	}

	sv := reflect.ValueOf(src)
	switch dst.Kind() {
	case reflect.Struct:
		return convertStruct(src, dst, path)
	case reflect.Map:
		return convertMap(src, dst, path)
	case reflect.Slice:
		return convertSlice(src, dst, path)
	case reflect.String:
		if sv.Kind() == reflect.String {
			dst.SetString(sv.String())
		} else {
			dst.SetString(strings.TrimSpace(toString(src)))
		}
		return nil
	case reflect.Bool:
		if str, ok := src.(string); ok {
			b, err := strconv.ParseBool(str)
			if err != nil {
				return errors.Wrapf(err, "%s: parse bool", path)
			}
			dst.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if str, ok := src.(string); ok {
			f, err := strconv.ParseFloat(str, 64)
			if err != nil {
				return errors.Wrapf(err, "%s: parse number", path)
			}
			sv = reflect.ValueOf(f)
		}
	}

	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}
	if sv.Type().ConvertibleTo(dst.Type()) && sv.Kind() != reflect.String {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return errors.Errorf("%s: cannot convert %T to %v", path, src, dst.Type())
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

func convertDuration(src any, dst reflect.Value, path string) error {
	switch v := src.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "%s: parse duration", path)
		}
		dst.SetInt(int64(d))
	case int:
		dst.SetInt(int64(v))
	case int64:
		dst.SetInt(v)
	case float64:
		// 浮点数按秒处理
		dst.SetInt(int64(v * float64(time.Second)))
	default:
		return errors.Errorf("%s: cannot convert %T to time.Duration", path, src)
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func convertTime(src any, dst reflect.Value, path string) error {
	switch v := src.(type) {
	case time.Time:
		dst.Set(reflect.ValueOf(v))
		return nil
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				dst.Set(reflect.ValueOf(t))
				return nil
			}
		}
		return errors.Errorf("%s: invalid time [%s]", path, v)
	case int:
		dst.Set(reflect.ValueOf(time.Unix(int64(v), 0)))
		return nil
	case int64:
		dst.Set(reflect.ValueOf(time.Unix(v, 0)))
		return nil
	}
	return errors.Errorf("%s: cannot convert %T to time.Time", path, src)
}

func fieldKey(field reflect.StructField) (string, bool) {
	for _, tag := range []string{"cfg", "json", "yaml"} {
		name := strings.Split(field.Tag.Get(tag), ",")[0]
		if name == "-" {
			return "", false
		}
		if name != "" {
			return name, true
		}
	}
	return field.Name, true
}

func entries(src any) (map[string]any, bool) {
	switch m := src.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[toString(k)] = v
		}
		return out, true
	}
	return nil, false
}

func convertStruct(src any, dst reflect.Value, path string) error {
	m, ok := entries(src)
	if !ok {
		return errors.Errorf("%s: cannot convert %T to %v", path, src, dst.Type())
	}

	rt := dst.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name, ok := fieldKey(field)
		if !ok {
			continue
		}
		value, found := m[name]
		if !found {
			for k, v := range m {
				if strings.EqualFold(k, name) {
					value, found = v, true
					break
				}
			}
		}
		if !found {
			continue
		}
		if err := convert(value, dst.Field(i), path+"."+name); err != nil {
			return err
		}
	}
	return nil
}

func convertMap(src any, dst reflect.Value, path string) error {
	m, ok := entries(src)
	if !ok {
		return errors.Errorf("%s: cannot convert %T to %v", path, src, dst.Type())
	}
	if dst.Type().Key().Kind() != reflect.String {
		return errors.Errorf("%s: map key must be string, got %v", path, dst.Type().Key())
	}
	if dst.IsNil() {
		dst.Set(reflect.MakeMapWithSize(dst.Type(), len(m)))
	}
	for k, v := range m {
		elem := reflect.New(dst.Type().Elem()).Elem()
		if err := def.SetDefaults(elem.Addr().Interface()); err != nil {
			return errors.WithMessage(err, path+"."+k)
		}
		if err := convert(v, elem, path+"."+k); err != nil {
			return err
		}
		dst.SetMapIndex(reflect.ValueOf(k).Convert(dst.Type().Key()), elem)
	}
	return nil
}

func convertSlice(src any, dst reflect.Value, path string) error {
	sv := reflect.ValueOf(src)
	if sv.Kind() != reflect.Slice {
		return errors.Errorf("%s: cannot convert %T to %v", path, src, dst.Type())
	}
	out := reflect.MakeSlice(dst.Type(), sv.Len(), sv.Len())
	for i := 0; i < sv.Len(); i++ {
		if err := def.SetDefaults(out.Index(i).Addr().Interface()); err != nil {
			return errors.WithMessagef(err, "%s[%d]", path, i)
		}
		if err := convert(sv.Index(i).Interface(), out.Index(i), path+"["+strconv.Itoa(i)+"]"); err != nil {
			return err
		}
	}
	dst.Set(out)
	return nil
}
