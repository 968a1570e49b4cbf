package cache

import (
	"context"
	"time"

	"github.com/hatlonely/crudx/cfg/def"
	"github.com/hatlonely/crudx/cfg/validator"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisCacheOptions struct {
	// host:port
	Endpoint string `cfg:"endpoint" validate:"required"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	DB       int    `cfg:"db"`

	// 所有键都带该前缀，Clear 只删除带前缀的键
	Prefix string        `cfg:"prefix" def:"crudx:"`
	TTL    time.Duration `cfg:"ttl" def:"5m"`

	DialTimeout  time.Duration `cfg:"dialTimeout" def:"5s"`
	ReadTimeout  time.Duration `cfg:"readTimeout" def:"3s"`
	WriteTimeout time.Duration `cfg:"writeTimeout" def:"3s"`
	PoolSize     int           `cfg:"poolSize" def:"10"`
	// 单次 SCAN 返回的键数
	ScanCount int64 `cfg:"scanCount" def:"100" validate:"gt=0"`
}

// RedisCache 多进程共享的缓存
type RedisCache struct {
	client    *redis.Client
	prefix    string
	ttl       time.Duration
	scanCount int64
}

func NewRedisCacheWithOptions(options *RedisCacheOptions) (*RedisCache, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	o := *options
	if err := def.SetDefaults(&o); err != nil {
		return nil, err
	}
	if err := validator.ValidateStruct(&o); err != nil {
		return nil, errors.Wrap(err, "invalid redis cache options")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         o.Endpoint,
		Username:     o.Username,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
		PoolSize:     o.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), o.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis [%s] failed", o.Endpoint)
	}

	return &RedisCache{client: client, prefix: o.Prefix, ttl: o.TTL, scanCount: o.ScanCount}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, errors.Wrapf(err, "redis get [%s]", key)
	}
	return value, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		return errors.Wrapf(err, "redis set [%s]", key)
	}
	return nil
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixed = append(prefixed, c.prefix+key)
	}
	if err := c.client.Del(ctx, prefixed...).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

// Clear 完整 SCAN 收集带前缀的键后再分批删除，扫描中删除会导致游标跳过键
func (c *RedisCache) Clear(ctx context.Context) error {
	var keys []string
	iter := c.client.Scan(ctx, 0, c.prefix+"*", c.scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, "redis scan")
	}

	for start := 0; start < len(keys); start += int(c.scanCount) {
		end := min(start+int(c.scanCount), len(keys))
		if err := c.client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return errors.Wrap(err, "redis del")
		}
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
