package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DurationProbe reports the playback length of a media file as whole
// seconds. Failures yield "" and never abort a scan.
type DurationProbe interface {
	Probe(ctx context.Context, filePath string) string
}

// execCommandContext is swapped out in tests
var execCommandContext = exec.CommandContext

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// FFProbe runs the ffprobe binary to read the container duration
type FFProbe struct {
	path    string
	timeout time.Duration
	logger  hclog.Logger
}

// NewFFProbe creates a probe using the ffprobe binary at path
func NewFFProbe(path string, timeout time.Duration, logger hclog.Logger) *FFProbe {
	if path == "" {
		path = "ffprobe"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &FFProbe{path: path, timeout: timeout, logger: logger}
}

func (p *FFProbe) Probe(ctx context.Context, filePath string) string {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cmd := execCommandContext(ctx, p.path,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		filePath,
	)
	output, err := cmd.Output()
	if err != nil {
		p.logger.Debug("ffprobe failed", "path", filePath, "error", err)
		return ""
	}

	seconds, err := parseProbeDuration(output)
	if err != nil {
		p.logger.Debug("Unusable ffprobe output", "path", filePath, "error", err)
		return ""
	}
	return strconv.Itoa(seconds)
}

func parseProbeDuration(output []byte) (int, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if probe.Format.Duration == "" {
		return 0, fmt.Errorf("no duration in ffprobe output")
	}
	duration, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil || math.IsNaN(duration) || duration < 0 {
		return 0, fmt.Errorf("invalid duration %q", probe.Format.Duration)
	}
	return int(math.Round(duration)), nil
}

// CachedProbe memoizes another probe by path, size and modification time,
// so an unchanged file is only probed once per process.
type CachedProbe struct {
	next  DurationProbe
	cache *lru.Cache[string, string]
}

// NewCachedProbe wraps next with an LRU of the given size
func NewCachedProbe(next DurationProbe, size int) (*CachedProbe, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create probe cache: %w", err)
	}
	return &CachedProbe{next: next, cache: cache}, nil
}

func (c *CachedProbe) Probe(ctx context.Context, filePath string) string {
	info, err := os.Stat(filePath)
	if err != nil {
		return c.next.Probe(ctx, filePath)
	}

	key := fmt.Sprintf("%s|%d|%d", filePath, info.Size(), info.ModTime().UnixNano())
	if duration, ok := c.cache.Get(key); ok {
		return duration
	}

	duration := c.next.Probe(ctx, filePath)
	// Failures are retried next time
	if duration != "" {
		c.cache.Add(key, duration)
	}
	return duration
}

// Len returns the number of cached results
func (c *CachedProbe) Len() int {
	return c.cache.Len()
}
