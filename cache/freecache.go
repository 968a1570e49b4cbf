package cache

import (
	"context"
	"time"

	"github.com/coocood/freecache"
	"github.com/hatlonely/crudx/cfg/def"
	"github.com/hatlonely/crudx/cfg/validator"
	"github.com/pkg/errors"
)

type FreeCacheOptions struct {
	// 字节数，freecache 最小 512KB
	Size int           `cfg:"size" def:"10485760" validate:"gte=524288"`
	TTL  time.Duration `cfg:"ttl" def:"5m"`
}

// FreeCache 进程内缓存
type FreeCache struct {
	cache *freecache.Cache
	ttl   int
}

func NewFreeCacheWithOptions(options *FreeCacheOptions) (*FreeCache, error) {
	o := FreeCacheOptions{}
	if options != nil {
		o = *options
	}
	if err := def.SetDefaults(&o); err != nil {
		return nil, err
	}
	if err := validator.ValidateStruct(&o); err != nil {
		return nil, errors.Wrap(err, "invalid freecache options")
	}
	return &FreeCache{cache: freecache.NewCache(o.Size), ttl: int(o.TTL.Seconds())}, nil
}

func (c *FreeCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.cache.Get([]byte(key))
	if errors.Is(err, freecache.ErrNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, errors.Wrapf(err, "freecache get [%s]", key)
	}
	return value, nil
}

func (c *FreeCache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.cache.Set([]byte(key), value, c.ttl); err != nil {
		return errors.Wrapf(err, "freecache set [%s]", key)
	}
	return nil
}

func (c *FreeCache) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		c.cache.Del([]byte(key))
	}
	return nil
}

func (c *FreeCache) Clear(ctx context.Context) error {
	c.cache.Clear()
	return nil
}

func (c *FreeCache) Close() error {
	c.cache.Clear()
	return nil
}

func (c *FreeCache) EntryCount() int64 {
	return c.cache.EntryCount()
}
