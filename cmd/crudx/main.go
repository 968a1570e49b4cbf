package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hatlonely/crudx/cfg"
	"github.com/hatlonely/crudx/crud"
	"github.com/hatlonely/crudx/log"
	"github.com/hatlonely/crudx/pool"
	"github.com/hatlonely/crudx/ref"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skillian/argparse"
)

type User struct {
	Email string `crud:"pk" gorm:"uniqueIndex;size:255"`
	Name  string
}

type InsertUser struct {
	Email string
	Name  string
}

type UserPatch struct {
	Name string
}

type MetricsOptions struct {
	// 为空时不启动 /metrics
	Addr string `cfg:"addr"`
}

type Options struct {
	Logger     *ref.TypeOptions       `cfg:"logger"`
	Pool       *ref.TypeOptions       `cfg:"pool" validate:"required"`
	Repository crud.Options           `cfg:"repository"`
	Observable crud.ObservableOptions `cfg:"observable"`
	// cache.cache 为空时不缓存
	Cache   crud.CacheOptions `cfg:"cache"`
	Metrics MetricsOptions    `cfg:"metrics"`
	// 配置文件变化时重建日志器
	Watch bool `cfg:"watch"`
}

type Args struct {
	ConfigFile string
}

func main() {
	var args Args
	parser := argparse.MustNewArgumentParser(
		argparse.Description("Run the user repository demo against the configured database"),
	)
	parser.MustAddArgument(
		argparse.OptionStrings("-c", "--config"),
		argparse.Action("store"),
		argparse.Default("cmd/crudx/config.yaml"),
		argparse.Help("configuration file, json, yaml, toml or ini"),
	).MustBind(&args.ConfigFile)
	parser.MustParseArgs()

	if err := run(args); err != nil {
		log.Default().Error("crudx exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(args Args) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, err := cfg.NewConfig(args.ConfigFile)
	if err != nil {
		return errors.WithMessage(err, "load config failed")
	}
	defer config.Close()

	var options Options
	if err := config.ConvertTo(&options); err != nil {
		return errors.WithMessage(err, "parse config failed")
	}

	logger, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		return errors.WithMessage(err, "create logger failed")
	}
	log.SetDefault(logger)
	config.SetLogger(logger)

	if options.Watch {
		config.Sub("logger").OnChange(func(c *cfg.Config) error {
			var lo ref.TypeOptions
			if err := c.ConvertTo(&lo); err != nil {
				return err
			}
			l, err := log.NewLoggerWithOptions(&lo)
			if err != nil {
				return err
			}
			log.SetDefault(l)
			l.Info("logger reloaded")
			return nil
		})
		if err := config.Watch(); err != nil {
			return errors.WithMessage(err, "watch config failed")
		}
	}

	p, err := pool.NewPoolWithOptions(options.Pool)
	if err != nil {
		return errors.WithMessage(err, "create pool failed")
	}
	defer p.Close()

	if gp, ok := p.(*pool.GormPool); ok {
		if err := gp.DB().WithContext(ctx).Table(options.Repository.Table).AutoMigrate(&User{}); err != nil {
			return errors.Wrap(err, "migrate failed")
		}
	}

	repo, err := crud.NewRepository[User, InsertUser, UserPatch, string](p, &options.Repository)
	if err != nil {
		return errors.WithMessage(err, "create repository failed")
	}
	var inner crud.Crud[User, InsertUser, UserPatch, string] = repo
	if options.Cache.Cache != nil {
		cached, err := crud.NewCachedRepository[User, InsertUser, UserPatch, string](repo, &options.Cache)
		if err != nil {
			return errors.WithMessage(err, "create cached repository failed")
		}
		defer cached.Close()
		inner = cached
	}

	users, err := crud.NewObservableRepository[User, InsertUser, UserPatch, string](inner, &options.Observable)
	if err != nil {
		return errors.WithMessage(err, "create observable repository failed")
	}

	if err := scenario(ctx, users, logger); err != nil {
		return err
	}

	if options.Metrics.Addr == "" {
		return nil
	}
	return serveMetrics(ctx, options.Metrics.Addr, logger)
}

// scenario 创建、读取、删除后再次读取应返回 NotFound
func scenario(ctx context.Context, users crud.Crud[User, InsertUser, UserPatch, string], logger log.Logger) error {
	email := "demo@crudx.io"

	u, err := users.Create(ctx, InsertUser{Email: email, Name: "demo"})
	if err != nil {
		return errors.WithMessage(err, "create user failed")
	}
	logger.Info("user created", "email", u.Email)

	if _, err := users.Update(ctx, email, UserPatch{Name: "renamed"}); err != nil {
		return errors.WithMessage(err, "update user failed")
	}

	u, err = users.Read(ctx, email)
	if err != nil {
		return errors.WithMessage(err, "read user failed")
	}
	logger.Info("user read", "email", u.Email, "name", u.Name)

	list, err := users.List(ctx)
	if err != nil {
		return errors.WithMessage(err, "list users failed")
	}
	logger.Info("users listed", "count", len(list))

	if _, err := users.Delete(ctx, email); err != nil {
		return errors.WithMessage(err, "delete user failed")
	}

	_, err = users.Read(ctx, email)
	if !crud.IsNotFound(err) {
		return errors.Errorf("read after delete returned %v, want not found", err)
	}
	logger.Info("user deleted", "email", email)
	return nil
}

func serveMetrics(ctx context.Context, addr string, logger log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server started", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "metrics server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("metrics server stopping")
	return srv.Shutdown(shutdownCtx)
}
