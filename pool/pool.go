package pool

import (
	"context"
	"database/sql"
	"sync"

	"github.com/hatlonely/crudx/ref"
	"gorm.io/gorm"
)

func init() {
	ref.MustRegisterT[GormPool](NewGormPoolWithOptions)
}

// Pool 数据库连接池，每次 Get 独占一个连接，使用完毕后必须 Release
type Pool interface {
	Get(ctx context.Context) (*Conn, error)
	Close() error
}

func NewPoolWithOptions(options *ref.TypeOptions) (Pool, error) {
	return ref.NewWithTypeOptions[Pool](options)
}

// Conn 从 Pool 中取出的单个连接
type Conn struct {
	db   *gorm.DB
	conn *sql.Conn
	once sync.Once
	err  error
}

// DB 绑定在该连接和 Get 时的 context 上的 gorm 会话
func (c *Conn) DB() *gorm.DB {
	return c.db
}

// Release 归还连接，重复调用无副作用
func (c *Conn) Release() error {
	c.once.Do(func() {
		c.err = c.conn.Close()
	})
	return c.err
}
