// Package catalogmodule manages courses, their lessons and lesson notes.
package catalogmodule

import (
	"fmt"

	"github.com/mantonx/coursevault/internal/config"
	"github.com/mantonx/coursevault/internal/database"
	"github.com/mantonx/coursevault/internal/events"
	"github.com/mantonx/coursevault/internal/logger"
	"github.com/mantonx/coursevault/internal/modules/databasemodule"
	"github.com/mantonx/coursevault/internal/modules/scannermodule"
	"gorm.io/gorm"
)

const (
	// ModuleID is the unique identifier for the catalog module
	ModuleID = "system.catalog"

	// ModuleName is the display name for the catalog module
	ModuleName = "Course Catalog"
)

// Module exposes the catalog service over HTTP
type Module struct {
	db       *gorm.DB
	eventBus events.EventBus
	storage  config.StorageConfig
	scans    ScanRequester

	service *Service
	handler *Handler
}

// NewModule creates the catalog module. scans may be nil, in which case
// new courses wait for an explicit rescan.
func NewModule(db *gorm.DB, eventBus events.EventBus, storage config.StorageConfig, scans ScanRequester) *Module {
	return &Module{
		db:       db,
		eventBus: eventBus,
		storage:  storage,
		scans:    scans,
	}
}

func (m *Module) ID() string   { return ModuleID }
func (m *Module) Name() string { return ModuleName }
func (m *Module) Core() bool   { return true }

// Dependencies orders the catalog after the scanner it schedules work on
func (m *Module) Dependencies() []string {
	return []string{databasemodule.ModuleID, scannermodule.ModuleID}
}

// Migrate is a no-op; the database module owns the schema
func (m *Module) Migrate(db *gorm.DB) error {
	return nil
}

// Init builds the service and handlers
func (m *Module) Init() error {
	if m.db == nil {
		m.db = database.GetDB()
	}
	if m.db == nil {
		return fmt.Errorf("catalog module requires a database connection")
	}
	if m.eventBus == nil {
		m.eventBus = events.GetGlobalEventBus()
	}

	m.service = NewService(m.db, m.storage,
		WithScanRequester(m.scans),
		WithEventBus(m.eventBus),
		WithLogger(logger.Named("catalog")),
	)
	m.handler = NewHandler(m.service)

	logger.Info("Catalog module initialized", "upload_dir", m.storage.UploadDir, "export_dir", m.service.exportDir)
	return nil
}

// Service returns the catalog service built by Init
func (m *Module) Service() *Service {
	return m.service
}
