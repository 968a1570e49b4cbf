package intgen

import (
	"github.com/hatlonely/crudx/ref"
)

func init() {
	ref.MustRegisterT[SnowflakeGenerator](NewSnowflakeGeneratorWithOptions)
	ref.MustRegisterT[RedisGenerator](NewRedisGeneratorWithOptions)
}

// IntGenerator 生成 64 位整数 ID
type IntGenerator interface {
	Generate() int64
}

func NewIntGeneratorWithOptions(options *ref.TypeOptions) (IntGenerator, error) {
	return ref.NewWithTypeOptions[IntGenerator](options)
}
