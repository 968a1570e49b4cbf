package cache

import (
	"context"

	"github.com/hatlonely/crudx/ref"
	"github.com/pkg/errors"
)

func init() {
	ref.MustRegisterT[FreeCache](NewFreeCacheWithOptions)
	ref.MustRegisterT[RedisCache](NewRedisCacheWithOptions)
}

var ErrMiss = errors.New("cache miss")

// Cache 字节缓存，Get 未命中返回 ErrMiss
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Del 键不存在时也返回成功
	Del(ctx context.Context, keys ...string) error
	// Clear 删除该缓存写入的所有键
	Clear(ctx context.Context) error
	Close() error
}

func NewCacheWithOptions(options *ref.TypeOptions) (Cache, error) {
	return ref.NewWithTypeOptions[Cache](options)
}
