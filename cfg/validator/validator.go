package validator

import (
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validate = validator.New()
	timeType = reflect.TypeOf(time.Time{})
)

// ValidateStruct 按 validate tag 校验结构体，非结构体直接通过
func ValidateStruct(object any) error {
	rv := reflect.ValueOf(object)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct || rv.Type() == timeType {
		return nil
	}
	return validate.Struct(rv.Interface())
}
