package main

import (
	"fmt"
	"os"

	"github.com/mantonx/coursevault/internal/config"
	"github.com/mantonx/coursevault/internal/database"
	"github.com/mantonx/coursevault/internal/logger"
	"gorm.io/gorm"
)

// loadConfig loads the config file, falling back to ./coursevault.yaml when
// no path was given
func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		if _, err := os.Stat("coursevault.yaml"); err == nil {
			path = "coursevault.yaml"
		}
	}
	if err := config.Load(path); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := config.Get()
	if err := logger.Configure(cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}
	return cfg, nil
}

// openDatabase connects and migrates the configured database
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	if err := database.Initialize(cfg.Database); err != nil {
		return nil, err
	}
	return database.GetDB(), nil
}
