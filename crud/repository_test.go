package crud

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hatlonely/crudx/pool"
	"github.com/hatlonely/crudx/ref"
	"github.com/hatlonely/crudx/uid/intgen"
	"github.com/hatlonely/crudx/uid/strgen"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

type User struct {
	Email string `crud:"pk" gorm:"uniqueIndex"`
	Name  string
}

type InsertUser struct {
	Email string
	Name  string
}

type UserPatch struct {
	Name string
}

type Article struct {
	ID    int64
	Title string
	Views int
}

func (Article) TableName() string { return "articles" }

type NewArticle struct {
	Title string
	Views int
}

type Event struct {
	ID   int64 `gorm:"primaryKey;autoIncrement:false"`
	Name string
}

func (Event) TableName() string { return "events" }

type Token struct {
	Key   string `crud:"pk" gorm:"primaryKey"`
	Owner string
}

func (Token) TableName() string { return "tokens" }

func newTestPool(t *testing.T, maxConns int) *pool.GormPool {
	p, err := pool.NewGormPoolWithOptions(&pool.GormPoolOptions{
		Driver:         "sqlite",
		DSN:            filepath.Join(t.TempDir(), "crud.db"),
		MaxConns:       maxConns,
		AcquireTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.DB().Table("user").AutoMigrate(&User{}); err != nil {
		t.Fatal(err)
	}
	if err := p.Migrate(context.Background(), &Article{}, &Event{}, &Token{}); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRepositoryUser(t *testing.T) {
	Convey("Repository[User, InsertUser, UserPatch, string]", t, func() {
		p := newTestPool(t, 4)
		defer p.Close()
		ctx := context.Background()

		repo, err := NewRepository[User, InsertUser, UserPatch, string](p, &Options{Table: "user"})
		So(err, ShouldBeNil)
		So(repo.Model().Table, ShouldEqual, "user")
		So(repo.Model().PrimaryKey.Column, ShouldEqual, "email")

		Convey("创建、读取、删除后读取不到", func() {
			u, err := repo.Create(ctx, InsertUser{Email: "a@x.io"})
			So(err, ShouldBeNil)
			So(u, ShouldResemble, User{Email: "a@x.io"})

			u, err = repo.Read(ctx, "a@x.io")
			So(err, ShouldBeNil)
			So(u.Email, ShouldEqual, "a@x.io")

			n, err := repo.Delete(ctx, "a@x.io")
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			_, err = repo.Read(ctx, "a@x.io")
			So(IsNotFound(err), ShouldBeTrue)
		})

		Convey("读取和删除不存在的记录", func() {
			_, err := repo.Read(ctx, "nobody@x.io")
			So(IsNotFound(err), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "resource not found")

			n, err := repo.Delete(ctx, "nobody@x.io")
			So(IsNotFound(err), ShouldBeTrue)
			So(n, ShouldEqual, 0)

			var ce *CrudError
			So(errors.As(err, &ce), ShouldBeTrue)
			So(ce.Kind, ShouldEqual, KindNotFound)
		})

		Convey("按主键更新", func() {
			_, err := repo.Create(ctx, InsertUser{Email: "b@x.io", Name: "b"})
			So(err, ShouldBeNil)

			n, err := repo.Update(ctx, "b@x.io", UserPatch{Name: "bob"})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			u, err := repo.Read(ctx, "b@x.io")
			So(err, ShouldBeNil)
			So(u.Name, ShouldEqual, "bob")

			Convey("changeset 为空时不报错", func() {
				n, err := repo.Update(ctx, "b@x.io", UserPatch{})
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})

			Convey("记录不存在", func() {
				n, err := repo.Update(ctx, "nobody@x.io", UserPatch{Name: "x"})
				So(IsNotFound(err), ShouldBeTrue)
				So(n, ShouldEqual, 0)

				n, err = repo.Update(ctx, "nobody@x.io", UserPatch{})
				So(IsNotFound(err), ShouldBeTrue)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("更新全部记录", func() {
			users, err := repo.CreateMany(ctx, []InsertUser{{Email: "c1@x.io"}, {Email: "c2@x.io"}})
			So(err, ShouldBeNil)
			So(len(users), ShouldEqual, 2)

			n, err := repo.UpdateAll(ctx, UserPatch{Name: "same"})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)

			list, err := repo.List(ctx)
			So(err, ShouldBeNil)
			for _, u := range list {
				So(u.Name, ShouldEqual, "same")
			}
		})

		Convey("列出全部记录", func() {
			list, err := repo.List(ctx)
			So(err, ShouldBeNil)
			So(list, ShouldNotBeNil)
			So(len(list), ShouldEqual, 0)

			for i := 0; i < 5; i++ {
				_, err := repo.Create(ctx, InsertUser{Email: fmt.Sprintf("u%d@x.io", i)})
				So(err, ShouldBeNil)
			}
			list, err = repo.List(ctx)
			So(err, ShouldBeNil)
			So(len(list), ShouldEqual, 5)
		})

		Convey("批量创建", func() {
			users, err := repo.CreateMany(ctx, nil)
			So(err, ShouldBeNil)
			So(users, ShouldNotBeNil)
			So(len(users), ShouldEqual, 0)

			users, err = repo.CreateMany(ctx, []InsertUser{{Email: "m1@x.io", Name: "m1"}, {Email: "m2@x.io", Name: "m2"}})
			So(err, ShouldBeNil)
			So(users, ShouldResemble, []User{{Email: "m1@x.io", Name: "m1"}, {Email: "m2@x.io", Name: "m2"}})
		})

		Convey("主键冲突归类为 Other", func() {
			_, err := repo.Create(ctx, InsertUser{Email: "dup@x.io"})
			So(err, ShouldBeNil)
			_, err = repo.Create(ctx, InsertUser{Email: "dup@x.io"})
			So(err, ShouldNotBeNil)
			So(IsDuplicateKey(err), ShouldBeTrue)
			So(IsNotFound(err), ShouldBeFalse)
			So(IsPoolError(err), ShouldBeFalse)
		})

		Convey("并发读取", func() {
			_, err := repo.Create(ctx, InsertUser{Email: "p@x.io"})
			So(err, ShouldBeNil)

			var wg sync.WaitGroup
			errs := make([]error, 16)
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = repo.Read(context.Background(), "p@x.io")
				}(i)
			}
			wg.Wait()
			for _, err := range errs {
				So(err, ShouldBeNil)
			}
			So(p.Stats().InUse, ShouldEqual, 0)
		})
	})
}

func TestSimpleRepository(t *testing.T) {
	Convey("NewSimpleRepository", t, func() {
		p := newTestPool(t, 2)
		defer p.Close()
		ctx := context.Background()

		repo, err := NewSimpleRepository[Article, int64](p, nil)
		So(err, ShouldBeNil)

		Convey("创建后读取得到相同的实体", func() {
			a, err := repo.Create(ctx, Article{Title: "hello", Views: 3})
			So(err, ShouldBeNil)
			So(a.ID, ShouldBeGreaterThan, 0)

			b, err := repo.Read(ctx, a.ID)
			So(err, ShouldBeNil)
			So(b, ShouldResemble, a)
		})

		Convey("按实体类型更新只写非零字段", func() {
			a, err := repo.Create(ctx, Article{Title: "t", Views: 1})
			So(err, ShouldBeNil)

			n, err := repo.Update(ctx, a.ID, Article{Views: 9})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			b, err := repo.Read(ctx, a.ID)
			So(err, ShouldBeNil)
			So(b, ShouldResemble, Article{ID: a.ID, Title: "t", Views: 9})
		})

		Convey("changeset 中的主键不会被写入", func() {
			a, err := repo.Create(ctx, Article{Title: "t", Views: 1})
			So(err, ShouldBeNil)

			n, err := repo.Update(ctx, a.ID, Article{ID: a.ID + 100, Title: "moved"})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			b, err := repo.Read(ctx, a.ID)
			So(err, ShouldBeNil)
			So(b, ShouldResemble, Article{ID: a.ID, Title: "moved", Views: 1})
			_, err = repo.Read(ctx, a.ID+100)
			So(IsNotFound(err), ShouldBeTrue)

			n, err = repo.Update(ctx, a.ID, Article{ID: a.ID + 100})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)

			_, err = repo.Create(ctx, Article{Title: "other"})
			So(err, ShouldBeNil)
			n, err = repo.UpdateAll(ctx, Article{ID: 999, Views: 5})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)
			b, err = repo.Read(ctx, a.ID)
			So(err, ShouldBeNil)
			So(b.Views, ShouldEqual, 5)
		})

		Convey("插入载荷不含主键时按列复制", func() {
			creator, err := NewCreator[Article, NewArticle](p, repo.Model())
			So(err, ShouldBeNil)

			a, err := creator.Create(ctx, NewArticle{Title: "copied", Views: 7})
			So(err, ShouldBeNil)
			So(a.Title, ShouldEqual, "copied")
			So(a.Views, ShouldEqual, 7)

			list, err := repo.List(ctx)
			So(err, ShouldBeNil)
			So(len(list), ShouldEqual, 1)
		})
	})
}

func TestRepositoryConstruction(t *testing.T) {
	Convey("Repository 构造", t, func() {
		p := newTestPool(t, 1)
		defer p.Close()

		Convey("缺少表名时不创建", func() {
			repo, err := NewSimpleRepository[noTable, int64](p, nil)
			So(repo, ShouldBeNil)
			So(errors.Is(err, ErrMissingTable), ShouldBeTrue)
		})

		Convey("没有主键时整体失败", func() {
			repo, err := NewSimpleRepository[noKey, string](p, nil)
			So(repo, ShouldBeNil)
			So(errors.Is(err, ErrMissingPrimaryKey), ShouldBeTrue)

			Convey("Create 和 List 不需要主键", func() {
				m, err := NewModel[noKey, noKey, noKey, string](nil)
				So(err, ShouldBeNil)
				_, err = NewCreator[noKey, noKey](p, m)
				So(err, ShouldBeNil)
				_, err = NewLister[noKey](p, m)
				So(err, ShouldBeNil)

				_, err = NewReader[noKey, string](p, m)
				So(errors.Is(err, ErrMissingPrimaryKey), ShouldBeTrue)
				_, err = NewUpdater[noKey, noKey, string](p, m)
				So(errors.Is(err, ErrMissingPrimaryKey), ShouldBeTrue)
				_, err = NewDeleter[string](p, m)
				So(errors.Is(err, ErrMissingPrimaryKey), ShouldBeTrue)
			})
		})

		Convey("主键类型不匹配", func() {
			_, err := NewSimpleRepository[User, int64](p, &Options{Table: "user"})
			So(errors.Is(err, ErrPrimaryKeyType), ShouldBeTrue)
		})

		Convey("pool 或 model 为空", func() {
			_, err := NewSimpleRepository[Article, int64](nil, nil)
			So(err, ShouldNotBeNil)
			_, err = NewRepositoryWithModel[Article, Article, Article, int64](p, nil)
			So(err, ShouldNotBeNil)
		})
	})
}

type failingPool struct {
	err error
}

func (p failingPool) Get(ctx context.Context) (*pool.Conn, error) {
	return nil, p.err
}

func (p failingPool) Close() error {
	return nil
}

func TestPoolFailure(t *testing.T) {
	Convey("取不到连接时每个操作都返回 Pool 错误", t, func() {
		ctx := context.Background()

		check := func(repo Crud[User, InsertUser, UserPatch, string]) {
			_, err := repo.Create(ctx, InsertUser{Email: "a@x.io"})
			So(IsPoolError(err), ShouldBeTrue)
			_, err = repo.CreateMany(ctx, []InsertUser{{Email: "a@x.io"}})
			So(IsPoolError(err), ShouldBeTrue)
			_, err = repo.Read(ctx, "a@x.io")
			So(IsPoolError(err), ShouldBeTrue)
			_, err = repo.Update(ctx, "a@x.io", UserPatch{Name: "a"})
			So(IsPoolError(err), ShouldBeTrue)
			_, err = repo.UpdateAll(ctx, UserPatch{Name: "a"})
			So(IsPoolError(err), ShouldBeTrue)
			_, err = repo.Delete(ctx, "a@x.io")
			So(IsPoolError(err), ShouldBeTrue)
			list, err := repo.List(ctx)
			So(IsPoolError(err), ShouldBeTrue)
			So(list, ShouldBeNil)

			var ce *CrudError
			So(errors.As(err, &ce), ShouldBeTrue)
			So(ce.Message, ShouldNotBeEmpty)
		}

		Convey("Get 返回错误", func() {
			repo, err := NewRepository[User, InsertUser, UserPatch, string](failingPool{err: errors.New("too many connections")}, &Options{Table: "user"})
			So(err, ShouldBeNil)
			check(repo)

			_, err = repo.Read(ctx, "a@x.io")
			So(err.Error(), ShouldEqual, "database pool error: too many connections")
		})

		Convey("Get 返回空错误信息", func() {
			repo, err := NewRepository[User, InsertUser, UserPatch, string](failingPool{err: errors.New("")}, &Options{Table: "user"})
			So(err, ShouldBeNil)
			_, err = repo.Read(ctx, "a@x.io")
			So(err.Error(), ShouldEqual, "database pool error: connection unavailable")
		})

		Convey("pool 已关闭", func() {
			p := newTestPool(t, 1)
			repo, err := NewRepository[User, InsertUser, UserPatch, string](p, &Options{Table: "user"})
			So(err, ShouldBeNil)
			So(p.Close(), ShouldBeNil)
			check(repo)

			_, err = repo.Read(ctx, "a@x.io")
			So(errors.Is(err, pool.ErrPoolClosed), ShouldBeTrue)
		})

		Convey("连接耗尽", func() {
			p := newTestPool(t, 1)
			defer p.Close()
			repo, err := NewRepository[User, InsertUser, UserPatch, string](p, &Options{Table: "user"})
			So(err, ShouldBeNil)

			conn, err := p.Get(ctx)
			So(err, ShouldBeNil)
			defer conn.Release()

			_, err = repo.Read(ctx, "a@x.io")
			So(IsPoolError(err), ShouldBeTrue)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})
	})
}

func TestKeyGenerator(t *testing.T) {
	Convey("KeyGenerator 为零值主键赋值", t, func() {
		p := newTestPool(t, 2)
		defer p.Close()
		ctx := context.Background()

		Convey("snowflake 整数主键", func() {
			machineID := int64(7)
			repo, err := NewSimpleRepository[Event, int64](p, &Options{KeyGenerator: &ref.TypeOptions{
				Namespace: "github.com/hatlonely/crudx/uid/intgen",
				Type:      "SnowflakeGenerator",
				Options:   &intgen.SnowflakeOptions{MachineID: &machineID},
			}})
			So(err, ShouldBeNil)

			events, err := repo.CreateMany(ctx, []Event{{Name: "a"}, {Name: "b"}, {ID: 42, Name: "c"}})
			So(err, ShouldBeNil)
			So(len(events), ShouldEqual, 3)
			So(events[0].ID, ShouldBeGreaterThan, 0)
			So(events[1].ID, ShouldBeGreaterThan, events[0].ID)
			So(events[2].ID, ShouldEqual, 42)

			e, err := repo.Read(ctx, events[1].ID)
			So(err, ShouldBeNil)
			So(e.Name, ShouldEqual, "b")
		})

		Convey("uuid 字符串主键", func() {
			repo, err := NewSimpleRepository[Token, string](p, &Options{KeyGenerator: &ref.TypeOptions{
				Namespace: "github.com/hatlonely/crudx/uid/strgen",
				Type:      "UUIDGenerator",
				Options:   &strgen.UUIDOptions{Version: "v4", WithHyphens: true},
			}})
			So(err, ShouldBeNil)

			tok, err := repo.Create(ctx, Token{Owner: "alice"})
			So(err, ShouldBeNil)
			So(len(tok.Key), ShouldEqual, 36)

			got, err := repo.Read(ctx, tok.Key)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, tok)
		})
	})
}
