package config

import (
	"fmt"
	"net/url"
)

// GetDatabaseURL returns a URL describing the configured database
func GetDatabaseURL() string {
	return DatabaseURL(Get().Database)
}

// DatabaseURL renders cfg as a URL. An explicit URL wins.
func DatabaseURL(cfg DatabaseFullConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}

	switch cfg.Type {
	case "postgres":
		return buildPostgresURL(cfg)
	default:
		return "sqlite://" + cfg.DatabasePath
	}
}

// PostgresDSN returns the keyword/value DSN used by the postgres driver
func PostgresDSN(cfg DatabaseFullConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port)
}

// buildPostgresURL builds a PostgreSQL connection URL from config
func buildPostgresURL(cfg DatabaseFullConfig) string {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.Database == "" {
		cfg.Database = "coursevault"
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   cfg.Host,
		Path:   "/" + cfg.Database,
	}
	if cfg.Port != 5432 {
		u.Host = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}
	if cfg.Username != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.Username, cfg.Password)
		} else {
			u.User = url.User(cfg.Username)
		}
	}

	return u.String()
}
