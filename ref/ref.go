package ref

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

// Convertable 可以转换为任意结构的配置数据，cfg.Config 与 storage.Storage 实现了该接口
// 作为 options 传给 New 时会被转换为构造函数的参数类型
type Convertable interface {
	ConvertTo(object any) error
}

// TypeOptions 按名称描述一个待创建的对象
type TypeOptions struct {
	Namespace string `cfg:"namespace"`
	Type      string `cfg:"type" validate:"required"`
	Options   any    `cfg:"options"`
}

type entry struct {
	fn   any
	ctor *constructor
}

var registry sync.Map

func key(namespace string, typ string) string {
	return namespace + ":" + typ
}

// Register 注册构造函数，同一个函数重复注册是允许的
func Register(namespace string, typ string, fn any) error {
	ctor, err := newConstructor(fn)
	if err != nil {
		return errors.WithMessagef(err, "register %s", key(namespace, typ))
	}

	actual, loaded := registry.LoadOrStore(key(namespace, typ), &entry{fn: fn, ctor: ctor})
	if loaded && reflect.ValueOf(actual.(*entry).fn).Pointer() != reflect.ValueOf(fn).Pointer() {
		return errors.Errorf("constructor for %s already registered with different function", key(namespace, typ))
	}
	return nil
}

func MustRegister(namespace string, typ string, fn any) {
	if err := Register(namespace, typ, fn); err != nil {
		panic(err)
	}
}

// RegisterT 以 T 的包路径和类型名注册
func RegisterT[T any](fn any) error {
	namespace, typ, err := typeName[T]()
	if err != nil {
		return err
	}
	return Register(namespace, typ, fn)
}

func MustRegisterT[T any](fn any) {
	if err := RegisterT[T](fn); err != nil {
		panic(err)
	}
}

// Registered 判断构造函数是否已注册
func Registered(namespace string, typ string) bool {
	_, ok := registry.Load(key(namespace, typ))
	return ok
}

func New(namespace string, typ string, options any) (any, error) {
	v, ok := registry.Load(key(namespace, typ))
	if !ok {
		return nil, errors.Errorf("constructor not found for %s", key(namespace, typ))
	}
	obj, err := v.(*entry).ctor.call(options)
	if err != nil {
		return nil, errors.WithMessagef(err, "new %s failed", key(namespace, typ))
	}
	return obj, nil
}

// NewT 以 T 的包路径和类型名查找构造函数
func NewT[T any](options any) (T, error) {
	var zero T
	namespace, typ, err := typeName[T]()
	if err != nil {
		return zero, err
	}
	return As[T](New(namespace, typ, options))
}

// NewWithTypeOptions 按 TypeOptions 创建对象，并断言为接口 T
func NewWithTypeOptions[T any](options *TypeOptions) (T, error) {
	var zero T
	if options == nil {
		return zero, errors.New("type options is nil")
	}
	return As[T](New(options.Namespace, options.Type, options.Options))
}

// As 断言 New 的返回值为 T
func As[T any](obj any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if obj == nil {
		return zero, errors.New("constructor returned nil")
	}
	t, ok := obj.(T)
	if !ok {
		return zero, errors.Errorf("object of type %T is not a %v", obj, reflect.TypeOf((*T)(nil)).Elem())
	}
	return t, nil
}

func typeName[T any]() (string, string, error) {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt.PkgPath() == "" || rt.Name() == "" {
		return "", "", errors.Errorf("cannot determine package path or type name for %v", rt)
	}
	return rt.PkgPath(), rt.Name(), nil
}
