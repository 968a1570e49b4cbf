package crud

import "context"

// Creator 插入记录，E 实体类型，I 插入载荷类型
type Creator[E, I any] interface {
	Create(ctx context.Context, payload I) (E, error)
	CreateMany(ctx context.Context, payloads []I) ([]E, error)
}

// Reader 按主键读取，K 主键类型
type Reader[E any, K comparable] interface {
	// Read 记录不存在时返回 KindNotFound
	Read(ctx context.Context, pk K) (E, error)
}

// Updater 更新记录，U 更新载荷类型
type Updater[U any, K comparable] interface {
	// Update 按主键更新 changeset 中的非零字段，返回影响行数，记录不存在时返回 KindNotFound
	Update(ctx context.Context, pk K, changeset U) (int64, error)
	// UpdateAll 不带条件更新整张表
	UpdateAll(ctx context.Context, changeset U) (int64, error)
}

// Deleter 按主键删除
type Deleter[K comparable] interface {
	// Delete 返回删除行数，记录不存在时返回 KindNotFound
	Delete(ctx context.Context, pk K) (int64, error)
}

// Lister 列出全部记录
type Lister[E any] interface {
	// List 返回全部记录，不保证顺序，空表返回长度为 0 的切片
	List(ctx context.Context) ([]E, error)
}

// Crud 组合五种操作，所有方法返回的非 nil 错误都是 *CrudError
type Crud[E, I, U any, K comparable] interface {
	Creator[E, I]
	Reader[E, K]
	Updater[U, K]
	Deleter[K]
	Lister[E]
}
