package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/coursevault/internal/config"
)

var (
	root   hclog.Logger
	rootMu sync.RWMutex
)

func init() {
	root = hclog.New(&hclog.LoggerOptions{
		Name:   "coursevault",
		Level:  levelFromEnv(),
		Output: os.Stdout,
	})
}

func levelFromEnv() hclog.Level {
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		return hclog.LevelFromString(lvl)
	}
	return hclog.Info
}

// Configure rebuilds the root logger from the logging configuration
func Configure(cfg config.LoggingConfig) error {
	var out io.Writer = os.Stdout
	switch cfg.Output {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
	case "file":
		if cfg.FilePath == "" {
			return fmt.Errorf("logging.file_path is required when output is file")
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
	default:
		return fmt.Errorf("unsupported log output: %s", cfg.Output)
	}

	level := hclog.LevelFromString(cfg.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	color := hclog.ColorOff
	if cfg.EnableColors && cfg.Format != "json" {
		color = hclog.AutoColor
	}

	SetLogger(hclog.New(&hclog.LoggerOptions{
		Name:       "coursevault",
		Level:      level,
		Output:     out,
		JSONFormat: cfg.Format == "json",
		Color:      color,
	}))
	return nil
}

// SetLogger replaces the root logger
func SetLogger(l hclog.Logger) {
	rootMu.Lock()
	defer rootMu.Unlock()
	root = l
}

// Get returns the root logger
func Get() hclog.Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root
}

// Named returns a sub-logger for a component
func Named(name string) hclog.Logger {
	return Get().Named(name)
}

// Info logs informational messages.
// Accepts either printf-style args or alternating key/value pairs.
func Info(msg string, args ...interface{}) {
	m, kv := split(msg, args)
	Get().Info(m, kv...)
}

// Warn logs warning messages
func Warn(msg string, args ...interface{}) {
	m, kv := split(msg, args)
	Get().Warn(m, kv...)
}

// Error logs error messages
func Error(msg string, args ...interface{}) {
	m, kv := split(msg, args)
	Get().Error(m, kv...)
}

// Debug logs debug messages
func Debug(msg string, args ...interface{}) {
	m, kv := split(msg, args)
	Get().Debug(m, kv...)
}

// split decides between the two call shapes used across the codebase:
// printf verbs in msg consume args, otherwise args are key/value pairs.
func split(msg string, args []interface{}) (string, []interface{}) {
	if len(args) == 0 {
		return msg, nil
	}
	if strings.Contains(msg, "%") {
		return fmt.Sprintf(msg, args...), nil
	}
	return msg, args
}
