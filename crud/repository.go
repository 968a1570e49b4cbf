package crud

import (
	"github.com/hatlonely/crudx/pool"
	"github.com/pkg/errors"
)

// Repository 组合五个操作，E 实体，I 插入载荷，U 更新载荷，K 主键
type Repository[E, I, U any, K comparable] struct {
	Creator[E, I]
	Reader[E, K]
	Updater[U, K]
	Deleter[K]
	Lister[E]

	model *Model
}

var _ Crud[struct{}, struct{}, struct{}, int64] = (*Repository[struct{}, struct{}, struct{}, int64])(nil)

func NewRepository[E, I, U any, K comparable](p pool.Pool, options *Options) (*Repository[E, I, U, K], error) {
	model, err := NewModel[E, I, U, K](options)
	if err != nil {
		return nil, err
	}
	return NewRepositoryWithModel[E, I, U, K](p, model)
}

// NewSimpleRepository 插入与更新载荷都使用实体类型
func NewSimpleRepository[E any, K comparable](p pool.Pool, options *Options) (*Repository[E, E, E, K], error) {
	return NewRepository[E, E, E, K](p, options)
}

// NewRepositoryWithModel 依次构造 Create、Read、Update、Delete、List，任一失败即返回
func NewRepositoryWithModel[E, I, U any, K comparable](p pool.Pool, model *Model) (*Repository[E, I, U, K], error) {
	if p == nil {
		return nil, errors.New("pool is nil")
	}
	if model == nil {
		return nil, errors.New("model is nil")
	}

	r := &Repository[E, I, U, K]{model: model}
	var err error
	if r.Creator, err = NewCreator[E, I](p, model); err != nil {
		return nil, errors.WithMessage(err, "create")
	}
	if r.Reader, err = NewReader[E, K](p, model); err != nil {
		return nil, errors.WithMessage(err, "read")
	}
	if r.Updater, err = NewUpdater[E, U, K](p, model); err != nil {
		return nil, errors.WithMessage(err, "update")
	}
	if r.Deleter, err = NewDeleter[K](p, model); err != nil {
		return nil, errors.WithMessage(err, "delete")
	}
	if r.Lister, err = NewLister[E](p, model); err != nil {
		return nil, errors.WithMessage(err, "list")
	}
	return r, nil
}

func (r *Repository[E, I, U, K]) Model() *Model {
	return r.model
}
