package ref

import (
	"reflect"

	"github.com/pkg/errors"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// constructor 包装一个注册的构造函数，形如:
//
//	func() T
//	func() (T, error)
//	func(*Options) T
//	func(*Options) (T, error)
type constructor struct {
	fn           reflect.Value
	hasOptions   bool
	returnsError bool
}

func newConstructor(fn any) (*constructor, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return nil, errors.Errorf("constructor must be a function, got %T", fn)
	}

	ft := fv.Type()
	if ft.NumIn() > 1 {
		return nil, errors.Errorf("constructor must accept at most 1 parameter, got %d", ft.NumIn())
	}
	if ft.NumOut() != 1 && ft.NumOut() != 2 {
		return nil, errors.Errorf("constructor must return 1 or 2 values, got %d", ft.NumOut())
	}
	if ft.NumOut() == 2 && !ft.Out(1).Implements(errorType) {
		return nil, errors.New("second return value of constructor must be error")
	}

	return &constructor{
		fn:           fv,
		hasOptions:   ft.NumIn() == 1,
		returnsError: ft.NumOut() == 2,
	}, nil
}

func (c *constructor) call(options any) (any, error) {
	var args []reflect.Value
	if c.hasOptions {
		arg, err := c.prepare(options)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	out := c.fn.Call(args)
	if c.returnsError && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	return out[0].Interface(), nil
}

// prepare 把 options 转成构造函数的参数类型
// nil 传入零值，Convertable 通过 ConvertTo 转换，其余要求类型可赋值
func (c *constructor) prepare(options any) (reflect.Value, error) {
	paramType := c.fn.Type().In(0)

	if options == nil {
		return reflect.Zero(paramType), nil
	}

	if conv, ok := options.(Convertable); ok {
		target := paramType
		if target.Kind() == reflect.Ptr {
			target = target.Elem()
		}
		ptr := reflect.New(target)
		if err := conv.ConvertTo(ptr.Interface()); err != nil {
			return reflect.Value{}, errors.Wrapf(err, "convert options to %v failed", paramType)
		}
		if paramType.Kind() == reflect.Ptr {
			return ptr, nil
		}
		return ptr.Elem(), nil
	}

	ov := reflect.ValueOf(options)
	if ov.Type().AssignableTo(paramType) {
		return ov, nil
	}
	if ov.Kind() == reflect.Ptr && !ov.IsNil() && ov.Elem().Type().AssignableTo(paramType) {
		return ov.Elem(), nil
	}
	if paramType.Kind() == reflect.Ptr && ov.Type().AssignableTo(paramType.Elem()) {
		ptr := reflect.New(paramType.Elem())
		ptr.Elem().Set(ov)
		return ptr, nil
	}
	return reflect.Value{}, errors.Errorf("options type %T is not assignable to %v", options, paramType)
}
