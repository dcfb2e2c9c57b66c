package database

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mantonx/coursevault/internal/config"
	"github.com/mantonx/coursevault/internal/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	DB   *gorm.DB
	dbMu sync.RWMutex
)

// Initialize opens the configured database, migrates the schema and stores
// the handle for GetDB.
func Initialize(cfg config.DatabaseFullConfig) error {
	db, err := Open(cfg)
	if err != nil {
		return err
	}

	if err := Migrate(db); err != nil {
		return err
	}

	dbMu.Lock()
	DB = db
	dbMu.Unlock()

	logger.Info("Database initialized", "type", cfg.Type, "url", config.DatabaseURL(redacted(cfg)))
	return nil
}

// Open connects to sqlite or postgres according to cfg.Type
func Open(cfg config.DatabaseFullConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}
	if cfg.LogQueries {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	var (
		db  *gorm.DB
		err error
	)

	switch cfg.Type {
	case "postgres":
		db, err = gorm.Open(postgres.Open(config.PostgresDSN(cfg)), gormCfg)
	case "sqlite", "":
		db, err = openSQLite(cfg.DatabasePath, gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Type, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return db, nil
}

// openSQLite opens the database file in WAL mode so listing endpoints can
// read while a scan transaction holds the write lock.
func openSQLite(path string, gormCfg *gorm.Config) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := path + "?_busy_timeout=30000&_journal_mode=WAL&_foreign_keys=1&_txlock=immediate"
	return gorm.Open(sqlite.Open(dsn), gormCfg)
}

// Migrate creates or updates the catalog tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	dbMu.RLock()
	defer dbMu.RUnlock()
	return DB
}

// Close releases the global connection pool
func Close() error {
	dbMu.Lock()
	defer dbMu.Unlock()
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	DB = nil
	return sqlDB.Close()
}

func redacted(cfg config.DatabaseFullConfig) config.DatabaseFullConfig {
	if cfg.Password != "" {
		cfg.Password = "xxxxx"
	}
	return cfg
}
