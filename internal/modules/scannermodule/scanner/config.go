package scanner

import (
	"strings"
	"time"

	"github.com/mantonx/coursevault/internal/config"
)

// ScanConfig holds the file-type policy and tuning used by a scan pass
type ScanConfig struct {
	// Extensions yielded as lessons (lowercase, with leading dot)
	SupportedExtensions []string

	// Subset of SupportedExtensions stored as document lessons. Documents
	// are never searched for subtitles.
	DocumentExtensions []string

	// Sidecar subtitle extensions, searched in this order
	SubtitleExtensions []string

	// ffprobe binary and per-file timeout
	FFProbePath  string
	ProbeTimeout time.Duration

	// Number of probe results kept in memory
	ProbeCacheSize int

	// Quiet period before the file monitor triggers a rescan
	DebounceInterval time.Duration
}

// DefaultScanConfig returns the default scanning configuration
func DefaultScanConfig() *ScanConfig {
	return FromConfig(config.DefaultConfig().Scanner)
}

// FromConfig builds a ScanConfig from the application scanner settings
func FromConfig(cfg config.ScannerConfig) *ScanConfig {
	return &ScanConfig{
		SupportedExtensions: lowerAll(cfg.SupportedExtensions),
		DocumentExtensions:  lowerAll(cfg.DocumentExtensions),
		SubtitleExtensions:  lowerAll(cfg.SubtitleExtensions),
		FFProbePath:         cfg.FFProbePath,
		ProbeTimeout:        cfg.ProbeTimeout,
		ProbeCacheSize:      cfg.ProbeCacheSize,
		DebounceInterval:    cfg.DebounceInterval,
	}
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		set[strings.ToLower(ext)] = struct{}{}
	}
	return set
}
