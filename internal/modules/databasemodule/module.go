package databasemodule

import (
	"context"
	"fmt"
	"time"

	"github.com/mantonx/coursevault/internal/database"
	"github.com/mantonx/coursevault/internal/logger"
	"github.com/mantonx/coursevault/internal/modules/modulemanager"
	"gorm.io/gorm"
)

const (
	// ModuleID is the unique identifier for the database module
	ModuleID = "system.database"

	// ModuleName is the display name for the database module
	ModuleName = "Database"
)

// Module owns the catalog schema and the transaction manager
type Module struct {
	db *gorm.DB
	tm *TransactionManager
}

// NewModule creates the database module over an open connection
func NewModule(db *gorm.DB) *Module {
	return &Module{db: db}
}

func (m *Module) ID() string   { return ModuleID }
func (m *Module) Name() string { return ModuleName }
func (m *Module) Core() bool   { return true }

// Migrate creates or updates the course, lesson and note tables
func (m *Module) Migrate(db *gorm.DB) error {
	logger.Info("Migrating catalog schema")
	return database.Migrate(db)
}

// Init creates the transaction manager
func (m *Module) Init() error {
	if m.db == nil {
		m.db = database.GetDB()
	}
	if m.db == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	m.tm = NewTransactionManager(m.db)
	return nil
}

// TransactionManager returns the manager created by Init
func (m *Module) TransactionManager() *TransactionManager {
	return m.tm
}

// HealthCheck pings the database
func (m *Module) HealthCheck(ctx context.Context) modulemanager.HealthStatus {
	status := modulemanager.HealthStatus{LastChecked: time.Now()}

	sqlDB, err := m.db.DB()
	if err == nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(pingCtx)
	}
	if err != nil {
		status.Status = modulemanager.HealthStateUnhealthy
		status.Message = err.Error()
		return status
	}

	status.Status = modulemanager.HealthStateHealthy
	if m.tm != nil {
		status.Details = m.tm.GetStats()
	}
	return status
}
