package pool

import (
	"context"
	"database/sql"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/hatlonely/crudx/cfg/def"
	"github.com/hatlonely/crudx/cfg/validator"
	"github.com/hatlonely/crudx/log"
	"github.com/hatlonely/crudx/ref"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var ErrPoolClosed = errors.New("pool is closed")

type GormPoolOptions struct {
	// sqlite, mysql
	Driver string `cfg:"driver" def:"sqlite" validate:"oneof=sqlite mysql"`
	// 设置后忽略 Host/Port/Database 等字段，sqlite 下为文件路径
	DSN      string `cfg:"dsn"`
	Host     string `cfg:"host" def:"localhost"`
	Port     int    `cfg:"port" def:"3306"`
	Database string `cfg:"database"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	Charset  string `cfg:"charset" def:"utf8mb4"`

	MaxConns        int           `cfg:"maxConns" def:"10" validate:"gte=1"`
	MaxIdle         int           `cfg:"maxIdle" def:"5"`
	ConnMaxLifetime time.Duration `cfg:"connMaxLifetime" def:"1h"`
	// 调用方 context 没有 deadline 时，等待空闲连接的最长时间
	AcquireTimeout time.Duration `cfg:"acquireTimeout" def:"30s"`

	// gorm 日志级别：silent, error, warn, info
	LogLevel      string           `cfg:"logLevel" def:"silent" validate:"oneof=silent error warn info"`
	SlowThreshold time.Duration    `cfg:"slowThreshold" def:"200ms"`
	Logger        *ref.TypeOptions `cfg:"logger"`
}

type GormPool struct {
	db             *gorm.DB
	sqlDB          *sql.DB
	acquireTimeout time.Duration
	logger         log.Logger
	closed         atomic.Bool
}

func NewGormPoolWithOptions(options *GormPoolOptions) (*GormPool, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	o := *options
	if err := def.SetDefaults(&o); err != nil {
		return nil, err
	}
	if err := validator.ValidateStruct(&o); err != nil {
		return nil, errors.Wrap(err, "invalid pool options")
	}

	logger, err := log.NewLoggerWithOptions(o.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "create logger failed")
	}
	logger = logger.With("component", "pool", "driver", o.Driver)

	dialector, err := newDialector(&o)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 newGormLogger(logger, o.LogLevel, o.SlowThreshold),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s failed", o.Driver)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB failed")
	}
	sqlDB.SetMaxOpenConns(o.MaxConns)
	sqlDB.SetMaxIdleConns(o.MaxIdle)
	sqlDB.SetConnMaxLifetime(o.ConnMaxLifetime)

	logger.Info("pool opened", "maxConns", o.MaxConns, "maxIdle", o.MaxIdle)

	return &GormPool{db: db, sqlDB: sqlDB, acquireTimeout: o.AcquireTimeout, logger: logger}, nil
}

// NewGormPoolWithDB 包装已有的 gorm.DB，连接数等设置由调用方负责
func NewGormPoolWithDB(db *gorm.DB) (*GormPool, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB failed")
	}
	return &GormPool{
		db:             db.Session(&gorm.Session{SkipDefaultTransaction: true, NewDB: true}),
		sqlDB:          sqlDB,
		acquireTimeout: 30 * time.Second,
		logger:         log.Default().With("component", "pool"),
	}, nil
}

func newDialector(o *GormPoolOptions) (gorm.Dialector, error) {
	switch o.Driver {
	case "sqlite":
		dsn := o.DSN
		if dsn == "" {
			dsn = o.Database
		}
		if dsn == "" {
			return nil, errors.New("sqlite requires dsn or database")
		}
		return sqlite.Open(dsn), nil
	case "mysql":
		dsn := o.DSN
		if dsn == "" {
			c := mysqldriver.NewConfig()
			c.User = o.Username
			c.Passwd = o.Password
			c.Net = "tcp"
			c.Addr = net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
			c.DBName = o.Database
			c.ParseTime = true
			c.Loc = time.Local
			// 影响行数按匹配行计算，与 sqlite 一致
			c.ClientFoundRows = true
			c.Params = map[string]string{"charset": o.Charset}
			dsn = c.FormatDSN()
		}
		return mysql.Open(dsn), nil
	}
	return nil, errors.Errorf("unsupported driver [%s]", o.Driver)
}

// Get 独占一个连接，取不到连接时返回错误，不重试
func (p *GormPool) Get(ctx context.Context) (*Conn, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	acquireCtx := ctx
	if _, ok := ctx.Deadline(); !ok && p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	conn, err := p.sqlDB.Conn(acquireCtx)
	if err != nil {
		return nil, errors.Wrap(err, "acquire connection failed")
	}

	tx := p.db.Session(&gorm.Session{Context: ctx, NewDB: true})
	tx.Statement.ConnPool = conn
	return &Conn{db: tx, conn: conn}, nil
}

func (p *GormPool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.logger.Info("pool closed")
	return p.sqlDB.Close()
}

func (p *GormPool) Stats() sql.DBStats {
	return p.sqlDB.Stats()
}

// Migrate 按模型建表或补齐字段
func (p *GormPool) Migrate(ctx context.Context, models ...any) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	if err := p.db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return errors.Wrap(err, "auto migrate failed")
	}
	return nil
}

// DB 底层 gorm.DB，不经过 Get 的连接独占
func (p *GormPool) DB() *gorm.DB {
	return p.db
}
