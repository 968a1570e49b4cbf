package crud

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/hatlonely/crudx/pool"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMapError(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"gorm 记录不存在", gorm.ErrRecordNotFound, KindNotFound},
		{"sql 记录不存在", sql.ErrNoRows, KindNotFound},
		{"包装过的记录不存在", errors.Wrap(gorm.ErrRecordNotFound, "take"), KindNotFound},
		{"普通错误", boom, KindOther},
		{"主键冲突", &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}, KindOther},
		{"已归类的错误", NewPoolError(boom), KindPool},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapError(tt.err)
			var ce *CrudError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.kind, ce.Kind)
			assert.Equal(t, err, MapError(err))
		})
	}

	assert.NoError(t, MapError(nil))
	assert.ErrorIs(t, MapError(boom), boom)
	assert.Equal(t, "boom", MapError(boom).Error())
}

func TestCrudError(t *testing.T) {
	Convey("CrudError", t, func() {
		So(ErrNotFound.Error(), ShouldEqual, "resource not found")
		So(NewPoolError(errors.New("timeout")).Error(), ShouldEqual, "database pool error: timeout")
		So(NewPoolError(nil).Message, ShouldEqual, "connection unavailable")

		Convey("按 Kind 比较", func() {
			notFound := MapError(gorm.ErrRecordNotFound)
			So(errors.Is(notFound, ErrNotFound), ShouldBeTrue)
			So(errors.Is(notFound, ErrPool), ShouldBeFalse)
			So(errors.Is(notFound, gorm.ErrRecordNotFound), ShouldBeTrue)

			wrapped := errors.WithMessage(NewPoolError(errors.New("x")), "read")
			So(IsPoolError(wrapped), ShouldBeTrue)
			So(IsNotFound(wrapped), ShouldBeFalse)
		})

		Convey("NewPoolError 不重复包装", func() {
			pe := NewPoolError(errors.New("x"))
			So(NewPoolError(pe), ShouldEqual, pe)
		})

		Convey("Kind 名称", func() {
			So(KindNotFound.String(), ShouldEqual, "not_found")
			So(KindPool.String(), ShouldEqual, "pool_error")
			So(KindOther.String(), ShouldEqual, "other")
		})
	})
}

func TestIsDuplicateKey(t *testing.T) {
	assert.True(t, IsDuplicateKey(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKey(MapError(&mysqldriver.MySQLError{Number: 1062})))
	assert.False(t, IsDuplicateKey(&mysqldriver.MySQLError{Number: 1045}))
	assert.True(t, IsDuplicateKey(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}))
	assert.False(t, IsDuplicateKey(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}))
	assert.False(t, IsDuplicateKey(errors.New("duplicate")))
	assert.False(t, IsDuplicateKey(nil))
}

func newMockPool(t *testing.T) (pool.Pool, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: db, SkipInitializeWithVersion: true}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)

	p, err := pool.NewGormPoolWithDB(gdb)
	require.NoError(t, err)
	return p, mock
}

func newMockRepository(t *testing.T) (*Repository[User, User, UserPatch, string], sqlmock.Sqlmock) {
	p, mock := newMockPool(t)
	repo, err := NewRepository[User, User, UserPatch, string](p, &Options{Table: "user"})
	require.NoError(t, err)
	return repo, mock
}

func TestMySQLErrors(t *testing.T) {
	Convey("mysql 方言下的错误归类", t, func() {
		repo, mock := newMockRepository(t)
		ctx := context.Background()

		Convey("主键冲突", func() {
			mock.ExpectExec("INSERT INTO `user`").WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry 'a@x.io'"})

			_, err := repo.Create(ctx, User{Email: "a@x.io"})
			So(IsDuplicateKey(err), ShouldBeTrue)
			So(errors.Is(err, ErrNotFound), ShouldBeFalse)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("查询没有结果", func() {
			mock.ExpectQuery("SELECT \\* FROM `user` WHERE `email` = \\?").
				WillReturnRows(sqlmock.NewRows([]string{"email", "name"}))

			_, err := repo.Read(ctx, "a@x.io")
			So(IsNotFound(err), ShouldBeTrue)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("查询出错", func() {
			mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))

			_, err := repo.Read(ctx, "a@x.io")
			var ce *CrudError
			So(errors.As(err, &ce), ShouldBeTrue)
			So(ce.Kind, ShouldEqual, KindOther)
			So(err.Error(), ShouldContainSubstring, "connection reset")
		})

		Convey("删除", func() {
			mock.ExpectExec("DELETE FROM `user` WHERE `email` = \\?").
				WithArgs("a@x.io").
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectExec("DELETE FROM `user`").WillReturnResult(sqlmock.NewResult(0, 0))

			n, err := repo.Delete(ctx, "a@x.io")
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			_, err = repo.Delete(ctx, "a@x.io")
			So(IsNotFound(err), ShouldBeTrue)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("更新", func() {
			mock.ExpectExec("UPDATE `user` SET `name`=\\? WHERE `email` = \\?").
				WithArgs("bob", "a@x.io").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("SELECT count\\(\\*\\) FROM `user` WHERE `email` = \\?").
				WithArgs("a@x.io").
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

			_, err := repo.Update(ctx, "a@x.io", UserPatch{Name: "bob"})
			So(IsNotFound(err), ShouldBeTrue)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})
	})
}

func TestCreateManyReadBack(t *testing.T) {
	Convey("插入载荷与实体类型不同时批量回读只发一条查询", t, func() {
		p, mock := newMockPool(t)
		ctx := context.Background()

		model, err := NewModel[User, InsertUser, UserPatch, string](&Options{Table: "user"})
		So(err, ShouldBeNil)
		creator, err := NewCreator[User, InsertUser](p, model)
		So(err, ShouldBeNil)

		mock.ExpectExec("INSERT INTO `user`").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectQuery("SELECT \\* FROM `user` WHERE `email` IN \\(\\?,\\?\\)").
			WithArgs("a@x.io", "b@x.io").
			WillReturnRows(sqlmock.NewRows([]string{"email", "name"}).
				AddRow("b@x.io", "b").
				AddRow("a@x.io", "a"))

		users, err := creator.CreateMany(ctx, []InsertUser{{Email: "a@x.io", Name: "a"}, {Email: "b@x.io", Name: "b"}})
		So(err, ShouldBeNil)
		So(users, ShouldResemble, []User{{Email: "a@x.io", Name: "a"}, {Email: "b@x.io", Name: "b"}})
		So(mock.ExpectationsWereMet(), ShouldBeNil)
	})
}
