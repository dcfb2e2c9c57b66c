package databasemodule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mantonx/coursevault/internal/logger"
	"gorm.io/gorm"
)

// TransactionManager runs units of work against the catalog database
type TransactionManager struct {
	db *gorm.DB
}

// TransactionContext wraps a transaction for safe handling
type TransactionContext struct {
	tx      *gorm.DB
	ctx     context.Context
	started time.Time
	id      string
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(db *gorm.DB) *TransactionManager {
	return &TransactionManager{db: db}
}

// DB returns the underlying connection
func (tm *TransactionManager) DB() *gorm.DB {
	return tm.db
}

// BeginTransaction starts a new database transaction bound to ctx
func (tm *TransactionManager) BeginTransaction(ctx context.Context) (*TransactionContext, error) {
	tx := tm.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	txCtx := &TransactionContext{
		tx:      tx,
		ctx:     ctx,
		started: time.Now(),
		id:      "tx_" + uuid.NewString()[:8],
	}

	logger.Debug("Started transaction", "tx", txCtx.id)
	return txCtx, nil
}

// Commit commits the transaction. The context is spent afterwards even when
// the commit fails, since the driver has already closed the transaction.
func (tc *TransactionContext) Commit() error {
	if tc.tx == nil {
		return fmt.Errorf("transaction %s is no longer active", tc.id)
	}

	err := tc.tx.Commit().Error
	tc.tx = nil
	if err != nil {
		logger.Error("Failed to commit transaction", "tx", tc.id, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("Committed transaction", "tx", tc.id, "duration", time.Since(tc.started))
	return nil
}

// Rollback rolls back the transaction
func (tc *TransactionContext) Rollback() error {
	if tc.tx == nil {
		return fmt.Errorf("transaction %s is no longer active", tc.id)
	}

	err := tc.tx.Rollback().Error
	tc.tx = nil
	if err != nil {
		logger.Error("Failed to rollback transaction", "tx", tc.id, "error", err)
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	logger.Debug("Rolled back transaction", "tx", tc.id, "duration", time.Since(tc.started))
	return nil
}

// DB returns the transaction database instance
func (tc *TransactionContext) DB() *gorm.DB {
	return tc.tx
}

// ID returns the transaction ID
func (tc *TransactionContext) ID() string {
	return tc.id
}

// IsActive checks if the transaction is still active
func (tc *TransactionContext) IsActive() bool {
	return tc.tx != nil
}

// WithTransaction executes fn within a transaction. fn's error or a panic
// rolls everything back; otherwise the work is committed as one unit.
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(*gorm.DB) error) error {
	txCtx, err := tm.BeginTransaction(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if txCtx.IsActive() {
			txCtx.Rollback()
		}
	}()

	if err := fn(txCtx.DB()); err != nil {
		if rollbackErr := txCtx.Rollback(); rollbackErr != nil {
			logger.Error("Failed to rollback transaction after error", "tx", txCtx.ID(), "error", rollbackErr)
		}
		return err
	}

	return txCtx.Commit()
}

// GetStats returns connection pool statistics
func (tm *TransactionManager) GetStats() map[string]interface{} {
	stats := make(map[string]interface{})

	if sqlDB, err := tm.db.DB(); err == nil {
		dbStats := sqlDB.Stats()
		stats["connection_stats"] = map[string]interface{}{
			"open_connections": dbStats.OpenConnections,
			"in_use":           dbStats.InUse,
			"idle":             dbStats.Idle,
			"wait_count":       dbStats.WaitCount,
		}
	}

	return stats
}
