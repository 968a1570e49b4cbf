package crud

import (
	"context"
	"fmt"
	"reflect"

	"github.com/hatlonely/crudx/cache"
	"github.com/hatlonely/crudx/cfg/def"
	"github.com/hatlonely/crudx/cfg/validator"
	"github.com/hatlonely/crudx/log"
	"github.com/hatlonely/crudx/ref"
	"github.com/pkg/errors"
)

type CacheOptions struct {
	Cache *ref.TypeOptions `cfg:"cache"`
	// msgpack, json
	Serializer string `cfg:"serializer" def:"msgpack" validate:"oneof=msgpack json"`
	// 为空时使用实体类型名
	KeyPrefix string           `cfg:"keyPrefix"`
	Logger    *ref.TypeOptions `cfg:"logger"`
}

// CachedRepository 按主键缓存 Read 结果，Update、Delete 后失效，UpdateAll 后清空
// 缓存错误只记录日志，不影响返回值
type CachedRepository[E, I, U any, K comparable] struct {
	Crud[E, I, U, K]

	cache      cache.Cache
	serializer cache.Serializer[E]
	prefix     string
	logger     log.Logger
}

var _ Crud[struct{}, struct{}, struct{}, int64] = (*CachedRepository[struct{}, struct{}, struct{}, int64])(nil)

func NewCachedRepository[E, I, U any, K comparable](inner Crud[E, I, U, K], options *CacheOptions) (*CachedRepository[E, I, U, K], error) {
	if inner == nil {
		return nil, errors.New("inner repository is nil")
	}
	if options == nil || options.Cache == nil {
		return nil, errors.New("cache options is nil")
	}
	o := *options
	if err := def.SetDefaults(&o); err != nil {
		return nil, err
	}
	if err := validator.ValidateStruct(&o); err != nil {
		return nil, errors.Wrap(err, "invalid cache options")
	}

	serializer, err := cache.NewSerializer[E](o.Serializer)
	if err != nil {
		return nil, err
	}
	logger, err := log.NewLoggerWithOptions(o.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "create logger failed")
	}
	c, err := cache.NewCacheWithOptions(o.Cache)
	if err != nil {
		return nil, errors.WithMessage(err, "create cache failed")
	}

	prefix := o.KeyPrefix
	if prefix == "" {
		prefix = reflect.TypeOf((*E)(nil)).Elem().Name() + ":"
	}

	return &CachedRepository[E, I, U, K]{
		Crud:       inner,
		cache:      c,
		serializer: serializer,
		prefix:     prefix,
		logger:     logger.With("component", "cachedRepository"),
	}, nil
}

func (r *CachedRepository[E, I, U, K]) key(pk K) string {
	return r.prefix + fmt.Sprint(pk)
}

// Read NotFound 不缓存
func (r *CachedRepository[E, I, U, K]) Read(ctx context.Context, pk K) (E, error) {
	key := r.key(pk)
	data, err := r.cache.Get(ctx, key)
	switch {
	case err == nil:
		e, err := r.serializer.Deserialize(data)
		if err == nil {
			return e, nil
		}
		r.logger.WarnContext(ctx, "deserialize cached entity failed", "key", key, "error", err.Error())
	case !errors.Is(err, cache.ErrMiss):
		r.logger.WarnContext(ctx, "cache get failed", "key", key, "error", err.Error())
	}

	e, err := r.Crud.Read(ctx, pk)
	if err != nil {
		return e, err
	}

	if data, err := r.serializer.Serialize(e); err != nil {
		r.logger.WarnContext(ctx, "serialize entity failed", "key", key, "error", err.Error())
	} else if err := r.cache.Set(ctx, key, data); err != nil {
		r.logger.WarnContext(ctx, "cache set failed", "key", key, "error", err.Error())
	}
	return e, nil
}

func (r *CachedRepository[E, I, U, K]) Update(ctx context.Context, pk K, changeset U) (int64, error) {
	n, err := r.Crud.Update(ctx, pk, changeset)
	r.invalidate(ctx, pk)
	return n, err
}

func (r *CachedRepository[E, I, U, K]) UpdateAll(ctx context.Context, changeset U) (int64, error) {
	n, err := r.Crud.UpdateAll(ctx, changeset)
	if cerr := r.cache.Clear(ctx); cerr != nil {
		r.logger.WarnContext(ctx, "cache clear failed", "error", cerr.Error())
	}
	return n, err
}

func (r *CachedRepository[E, I, U, K]) Delete(ctx context.Context, pk K) (int64, error) {
	n, err := r.Crud.Delete(ctx, pk)
	r.invalidate(ctx, pk)
	return n, err
}

func (r *CachedRepository[E, I, U, K]) invalidate(ctx context.Context, pk K) {
	key := r.key(pk)
	if err := r.cache.Del(ctx, key); err != nil {
		r.logger.WarnContext(ctx, "cache del failed", "key", key, "error", err.Error())
	}
}

func (r *CachedRepository[E, I, U, K]) Close() error {
	return r.cache.Close()
}
