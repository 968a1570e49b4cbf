package crud

import (
	"database/sql"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// 构造阶段的配置错误
var (
	ErrNotStruct           = errors.New("entity must be a struct")
	ErrMissingTable        = errors.New("table name is not configured")
	ErrMissingPrimaryKey   = errors.New("primary key is not available")
	ErrMultiplePrimaryKeys = errors.New("more than one field is marked as primary key")
	ErrPrimaryKeyType      = errors.New("key type does not match primary key field")
	ErrKeyGenerator        = errors.New("key generator does not match primary key field")
)

type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindNotFound
	KindPool
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPool:
		return "pool_error"
	}
	return "other"
}

// CrudError 所有 CRUD 操作返回的错误类型
type CrudError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

var (
	ErrNotFound = &CrudError{Kind: KindNotFound}
	ErrPool     = &CrudError{Kind: KindPool}
)

func (e *CrudError) Error() string {
	switch e.Kind {
	case KindNotFound:
		return "resource not found"
	case KindPool:
		return "database pool error: " + e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *CrudError) Unwrap() error {
	return e.Err
}

// Is 与 ErrNotFound、ErrPool 按 Kind 比较
func (e *CrudError) Is(target error) bool {
	t, ok := target.(*CrudError)
	if !ok || t.Err != nil || t.Message != "" {
		return false
	}
	return t.Kind == e.Kind
}

// MapError 把执行错误归类为 CrudError，nil 返回 nil，已经是 CrudError 的原样返回
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var ce *CrudError
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, sql.ErrNoRows) {
		return &CrudError{Kind: KindNotFound, Err: err}
	}
	return &CrudError{Kind: KindOther, Err: err}
}

// NewPoolError 获取连接失败，Message 总是非空
func NewPoolError(err error) *CrudError {
	var ce *CrudError
	if errors.As(err, &ce) && ce.Kind == KindPool {
		return ce
	}
	msg := "connection unavailable"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &CrudError{Kind: KindPool, Message: msg, Err: err}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsPoolError(err error) bool {
	return errors.Is(err, ErrPool)
}

// IsDuplicateKey 判断是否违反唯一约束，这类错误的 Kind 仍为 KindOther
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysqldriver.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
