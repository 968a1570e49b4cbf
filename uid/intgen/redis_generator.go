package intgen

import (
	"context"
	"strconv"
	"time"

	"github.com/hatlonely/crudx/cfg/def"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	Addr     string        `cfg:"addr" def:"localhost:6379"`
	Password string        `cfg:"password"`
	DB       int           `cfg:"db"`
	KeyName  string        `cfg:"keyName" def:"uid:sequence"`
	Timeout  time.Duration `cfg:"timeout" def:"3s"`
}

// RedisGenerator 毫秒时间戳左移 12 位加 redis INCR 得到的序列号，多进程共享序列
type RedisGenerator struct {
	client  *redis.Client
	keyName string
	timeout time.Duration
}

func NewRedisGeneratorWithOptions(options *RedisOptions) (*RedisGenerator, error) {
	if options == nil {
		options = &RedisOptions{}
	}
	o := *options
	if err := def.SetDefaults(&o); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{Addr: o.Addr, Password: o.Password, DB: o.DB})
	ctx, cancel := context.WithTimeout(context.Background(), o.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis [%s] failed", o.Addr)
	}

	return &RedisGenerator{client: client, keyName: o.KeyName, timeout: o.Timeout}, nil
}

// Generate redis 不可用时退化为纯时间戳
func (g *RedisGenerator) Generate() int64 {
	id, err := g.GenerateContext(context.Background())
	if err != nil {
		return time.Now().UnixMilli() << sequenceBits
	}
	return id
}

func (g *RedisGenerator) GenerateContext(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	for {
		ts := time.Now().UnixMilli()
		key := g.keyName + ":" + strconv.FormatInt(ts, 10)

		pipe := g.client.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, 2*time.Second)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, errors.Wrap(err, "redis incr failed")
		}

		seq := incr.Val() - 1
		if seq <= maxSequence {
			return ts<<sequenceBits | seq, nil
		}
		// 本毫秒序列号用尽
		select {
		case <-ctx.Done():
			return 0, errors.Wrap(ctx.Err(), "wait next millisecond")
		case <-time.After(time.Millisecond):
		}
	}
}

func (g *RedisGenerator) Close() error {
	return g.client.Close()
}
