package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server" json:"server"`

	// Database configuration
	Database DatabaseFullConfig `yaml:"database" json:"database"`

	// Scanner configuration
	Scanner ScannerConfig `yaml:"scanner" json:"scanner"`

	// Upload and export storage
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host           string        `yaml:"host" json:"host" env:"COURSEVAULT_HOST"`
	Port           int           `yaml:"port" json:"port" env:"COURSEVAULT_PORT"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout" env:"COURSEVAULT_READ_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout" env:"COURSEVAULT_WRITE_TIMEOUT"`
	MaxHeaderBytes int           `yaml:"max_header_bytes" json:"max_header_bytes" env:"COURSEVAULT_MAX_HEADER_BYTES"`
	EnableCORS     bool          `yaml:"enable_cors" json:"enable_cors" env:"COURSEVAULT_ENABLE_CORS"`
	TrustedProxies []string      `yaml:"trusted_proxies" json:"trusted_proxies" env:"COURSEVAULT_TRUSTED_PROXIES"`
}

// DatabaseFullConfig holds the connection settings for either backend
type DatabaseFullConfig struct {
	Type            string        `yaml:"type" json:"type" env:"DATABASE_TYPE"`
	URL             string        `yaml:"url" json:"url" env:"DATABASE_URL"`
	Host            string        `yaml:"host" json:"host" env:"POSTGRES_HOST"`
	Port            int           `yaml:"port" json:"port" env:"POSTGRES_PORT"`
	Username        string        `yaml:"username" json:"username" env:"POSTGRES_USER"`
	Password        string        `yaml:"password" json:"-" env:"POSTGRES_PASSWORD"`
	Database        string        `yaml:"database" json:"database" env:"POSTGRES_DB"`
	DataDir         string        `yaml:"data_dir" json:"data_dir" env:"COURSEVAULT_DATA_DIR"`
	DatabasePath    string        `yaml:"database_path" json:"database_path" env:"COURSEVAULT_DATABASE_PATH"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`
	LogQueries      bool          `yaml:"log_queries" json:"log_queries" env:"DB_LOG_QUERIES"`
}

// ScannerConfig holds scanner configuration
type ScannerConfig struct {
	SupportedExtensions []string      `yaml:"supported_extensions" json:"supported_extensions" env:"COURSEVAULT_SUPPORTED_EXTENSIONS"`
	DocumentExtensions  []string      `yaml:"document_extensions" json:"document_extensions" env:"COURSEVAULT_DOCUMENT_EXTENSIONS"`
	SubtitleExtensions  []string      `yaml:"subtitle_extensions" json:"subtitle_extensions" env:"COURSEVAULT_SUBTITLE_EXTENSIONS"`
	WorkerCount         int           `yaml:"worker_count" json:"worker_count" env:"COURSEVAULT_WORKER_COUNT"`
	QueueSize           int           `yaml:"queue_size" json:"queue_size" env:"COURSEVAULT_SCAN_QUEUE_SIZE"`
	WatchEnabled        bool          `yaml:"watch_enabled" json:"watch_enabled" env:"COURSEVAULT_WATCH"`
	DebounceInterval    time.Duration `yaml:"debounce_interval" json:"debounce_interval" env:"COURSEVAULT_WATCH_DEBOUNCE"`
	FFProbePath         string        `yaml:"ffprobe_path" json:"ffprobe_path" env:"COURSEVAULT_FFPROBE_PATH"`
	ProbeTimeout        time.Duration `yaml:"probe_timeout" json:"probe_timeout" env:"COURSEVAULT_PROBE_TIMEOUT"`
	ProbeCacheSize      int           `yaml:"probe_cache_size" json:"probe_cache_size" env:"COURSEVAULT_PROBE_CACHE_SIZE"`
}

// StorageConfig holds locations for uploaded covers and exported note backups
type StorageConfig struct {
	UploadDir    string `yaml:"upload_dir" json:"upload_dir" env:"COURSEVAULT_UPLOAD_DIR"`
	ExportDir    string `yaml:"export_dir" json:"export_dir" env:"COURSEVAULT_EXPORT_DIR"`
	CoverFormat  string `yaml:"cover_format" json:"cover_format" env:"COURSEVAULT_COVER_FORMAT"`
	CoverQuality int    `yaml:"cover_quality" json:"cover_quality" env:"COURSEVAULT_COVER_QUALITY"`
	MaxCoverSize int64  `yaml:"max_cover_size" json:"max_cover_size" env:"COURSEVAULT_MAX_COVER_SIZE"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" json:"level" env:"COURSEVAULT_LOG_LEVEL"`
	Format       string `yaml:"format" json:"format" env:"COURSEVAULT_LOG_FORMAT"`
	Output       string `yaml:"output" json:"output" env:"COURSEVAULT_LOG_OUTPUT"`
	FilePath     string `yaml:"file_path" json:"file_path" env:"COURSEVAULT_LOG_FILE"`
	EnableColors bool   `yaml:"enable_colors" json:"enable_colors" env:"COURSEVAULT_LOG_COLORS"`
}

// ConfigManager manages application configuration with hot-reload support
type ConfigManager struct {
	config     *Config
	configPath string
	watchers   []ConfigWatcher
	mu         sync.RWMutex
}

// ConfigWatcher is called when configuration changes
type ConfigWatcher func(oldConfig, newConfig *Config)

var (
	globalConfigManager *ConfigManager
	configOnce          sync.Once
)

// GetConfigManager returns the global configuration manager instance
func GetConfigManager() *ConfigManager {
	configOnce.Do(func() {
		globalConfigManager = NewConfigManager()
	})
	return globalConfigManager
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() *ConfigManager {
	cfg := DefaultConfig()
	applyDerivedConfig(cfg)
	return &ConfigManager{
		config:   cfg,
		watchers: make([]ConfigWatcher, 0),
	}
}

// DefaultConfig returns the default application configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxHeaderBytes: 1 << 20, // 1MB
			EnableCORS:     true,
			TrustedProxies: []string{},
		},
		Database: DatabaseFullConfig{
			Type:            "sqlite",
			Host:            "localhost",
			Port:            5432,
			Username:        "coursevault",
			Database:        "coursevault",
			DataDir:         "./coursevault-data",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 2 * time.Hour,
		},
		Scanner: ScannerConfig{
			SupportedExtensions: []string{".mp4", ".avi", ".mov", ".wmv", ".flv", ".mkv", ".webm", ".pdf", ".ts", ".txt", ".html"},
			DocumentExtensions:  []string{".pdf", ".txt", ".html"},
			SubtitleExtensions:  []string{".srt", ".vtt"},
			WorkerCount:         0, // Use CPU count
			QueueSize:           64,
			WatchEnabled:        false,
			DebounceInterval:    2 * time.Second,
			FFProbePath:         "ffprobe",
			ProbeTimeout:        15 * time.Second,
			ProbeCacheSize:      4096,
		},
		Storage: StorageConfig{
			CoverFormat:  "webp",
			CoverQuality: 85,
			MaxCoverSize: 10 << 20, // 10MB
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "text",
			Output:       "stdout",
			EnableColors: true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func (cm *ConfigManager) LoadConfig(configPath string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	oldConfig := *cm.config
	cm.configPath = configPath

	newConfig := DefaultConfig()

	if configPath != "" && fileExists(configPath) {
		if err := loadFromFile(configPath, newConfig); err != nil {
			return fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(newConfig).Elem()); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := validateConfig(newConfig); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	applyDerivedConfig(newConfig)

	cm.config = newConfig

	for _, watcher := range cm.watchers {
		go watcher(&oldConfig, newConfig)
	}

	return nil
}

// GetConfig returns the current configuration (thread-safe)
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	// Return a copy to prevent external modifications
	configCopy := *cm.config
	return &configCopy
}

// ConfigPath returns the file the configuration was last loaded from
func (cm *ConfigManager) ConfigPath() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.configPath
}

// AddWatcher adds a configuration change watcher
func (cm *ConfigManager) AddWatcher(watcher ConfigWatcher) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.watchers = append(cm.watchers, watcher)
}

// SaveConfig saves the current configuration to file
func (cm *ConfigManager) SaveConfig() error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.configPath == "" {
		return fmt.Errorf("no config path set")
	}

	return saveToFile(cm.configPath, cm.config)
}

func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".json":
		return json.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
}

func saveToFile(path string, config *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	var data []byte
	var err error

	switch ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
	case ".json":
		data, err = json.MarshalIndent(config, "", "  ")
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// loadStructFromEnv overrides fields whose env tag names a set variable.
func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue, ok := os.LookupEnv(envTag)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s from %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		} else {
			intVal, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(intVal)
		}
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolVal)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %v", field.Type())
		}
		values := strings.Split(value, ",")
		for i, v := range values {
			values[i] = strings.TrimSpace(v)
		}
		field.Set(reflect.ValueOf(values))
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}

	return nil
}

func validateConfig(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Type != "sqlite" && config.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s", config.Database.Type)
	}

	if config.Scanner.WorkerCount < 0 {
		return fmt.Errorf("invalid worker count: %d", config.Scanner.WorkerCount)
	}

	if len(config.Scanner.SupportedExtensions) == 0 {
		return fmt.Errorf("scanner.supported_extensions must not be empty")
	}

	switch config.Storage.CoverFormat {
	case "webp", "original":
	default:
		return fmt.Errorf("unsupported cover format: %s", config.Storage.CoverFormat)
	}

	return nil
}

func applyDerivedConfig(config *Config) {
	if config.Database.DatabasePath == "" && config.Database.Type == "sqlite" {
		config.Database.DatabasePath = filepath.Join(config.Database.DataDir, "coursevault.db")
	}

	if config.Storage.UploadDir == "" {
		config.Storage.UploadDir = filepath.Join(config.Database.DataDir, "uploads")
	}

	if config.Storage.ExportDir == "" {
		config.Storage.ExportDir = filepath.Join(config.Storage.UploadDir, "notas-exportadas")
	}

	config.Scanner.SupportedExtensions = normalizeExtensions(config.Scanner.SupportedExtensions)
	config.Scanner.DocumentExtensions = normalizeExtensions(config.Scanner.DocumentExtensions)
	config.Scanner.SubtitleExtensions = normalizeExtensions(config.Scanner.SubtitleExtensions)

	if config.Scanner.WorkerCount == 0 {
		config.Scanner.WorkerCount = min(max(1, runtime.NumCPU()), 4)
	}

	if config.Scanner.QueueSize <= 0 {
		config.Scanner.QueueSize = config.Scanner.WorkerCount * 2
	}
}

// normalizeExtensions lowercases extensions and ensures a leading dot.
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Global convenience functions

// Get returns the current global configuration
func Get() *Config {
	return GetConfigManager().GetConfig()
}

// Load loads configuration from the specified path
func Load(configPath string) error {
	return GetConfigManager().LoadConfig(configPath)
}

// AddWatcher adds a global configuration watcher
func AddWatcher(watcher ConfigWatcher) {
	GetConfigManager().AddWatcher(watcher)
}

// Save saves the current configuration
func Save() error {
	return GetConfigManager().SaveConfig()
}
