package strgen

import "github.com/hatlonely/crudx/ref"

func init() {
	ref.MustRegisterT[UUIDGenerator](NewUUIDGeneratorWithOptions)
}

// StrGenerator 生成字符串 ID
type StrGenerator interface {
	Generate() string
}

func NewStrGeneratorWithOptions(options *ref.TypeOptions) (StrGenerator, error) {
	return ref.NewWithTypeOptions[StrGenerator](options)
}
