package databasemodule

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mantonx/coursevault/internal/config"
	"github.com/mantonx/coursevault/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseFullConfig{
		Type:         "sqlite",
		DatabasePath: filepath.Join(t.TempDir(), "tx.db"),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestWithTransactionCommits(t *testing.T) {
	db := setupTestDB(t)
	tm := NewTransactionManager(db)

	err := tm.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&database.Course{Name: "Go", Path: "/go"}).Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&database.Course{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	tm := NewTransactionManager(db)
	boom := errors.New("boom")

	err := tm.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Create(&database.Course{Name: "Go", Path: "/go"}).Error; err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&database.Course{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestWithTransactionReportsCommitFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB, PreferSimpleProtocol: true}), &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("disk full"))

	tm := NewTransactionManager(db)
	err = tm.WithTransaction(context.Background(), func(tx *gorm.DB) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionContextSingleUse(t *testing.T) {
	db := setupTestDB(t)
	tm := NewTransactionManager(db)

	txCtx, err := tm.BeginTransaction(context.Background())
	require.NoError(t, err)
	assert.True(t, txCtx.IsActive())
	require.NoError(t, txCtx.Rollback())
	assert.False(t, txCtx.IsActive())
	assert.Error(t, txCtx.Commit())

	assert.Contains(t, tm.GetStats(), "connection_stats")
}
