package catalog

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/exec-trace/pkg/config"
	apperrors "github.com/exec-trace/pkg/errors"
)

func TestDialector(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.CatalogConfig
		want    string
		wantErr bool
	}{
		{name: "sqlite", cfg: config.CatalogConfig{Type: "sqlite", Path: "catalog.db"}, want: "sqlite"},
		{name: "mysql", cfg: config.CatalogConfig{Type: "mysql", Host: "db", Port: 3306}, want: "mysql"},
		{name: "postgres", cfg: config.CatalogConfig{Type: "postgres", Host: "db", Port: 5432}, want: "postgres"},
		{name: "unsupported", cfg: config.CatalogConfig{Type: "oracle"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Dialector(&tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperrors.CodeConfigError, apperrors.GetErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

func TestOpen_SQLiteFile(t *testing.T) {
	cfg := &config.CatalogConfig{
		Enabled:  true,
		Type:     "sqlite",
		Path:     filepath.Join(t.TempDir(), "catalog.db"),
		MaxConns: 2,
	}

	c, err := Open(cfg)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Register(ctx, &Entry{Name: "persisted", Dir: "/t/p"}))
	e, err := c.Get(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, "/t/p", e.Dir)
}

func newMockCatalog(t *testing.T) (*GormCatalog, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return NewGormCatalog(db), mock
}

func TestGormCatalog_MySQL(t *testing.T) {
	ctx := context.Background()

	t.Run("Get_Success", func(t *testing.T) {
		c, mock := newMockCatalog(t)
		rows := sqlmock.NewRows([]string{"id", "name", "dir", "events", "threads", "persisted"}).
			AddRow(int64(1), "run-7", "/traces/run-7", int64(512), 2, true)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `trace_catalog` WHERE name = ?")).
			WillReturnRows(rows)

		e, err := c.Get(ctx, "run-7")
		require.NoError(t, err)
		assert.Equal(t, "/traces/run-7", e.Dir)
		assert.Equal(t, int64(512), e.Events)
		assert.Equal(t, 2, e.Threads)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Get_NotFound", func(t *testing.T) {
		c, mock := newMockCatalog(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `trace_catalog`")).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

		_, err := c.Get(ctx, "absent")
		assert.True(t, apperrors.IsNotFound(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Register_Upsert", func(t *testing.T) {
		c, mock := newMockCatalog(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `trace_catalog`") + ".*ON DUPLICATE KEY UPDATE").
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := c.Register(ctx, &Entry{Name: "run-8", Dir: "/traces/run-8"})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Delete_Success", func(t *testing.T) {
		c, mock := newMockCatalog(t)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `trace_catalog` WHERE name = ?")).
			WithArgs("run-7").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, c.Delete(ctx, "run-7"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Delete_DatabaseError", func(t *testing.T) {
		c, mock := newMockCatalog(t)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `trace_catalog`")).
			WillReturnError(assert.AnError)

		err := c.Delete(ctx, "run-7")
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeCatalogError, apperrors.GetErrorCode(err))
	})
}
