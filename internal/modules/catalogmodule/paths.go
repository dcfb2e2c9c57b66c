package catalogmodule

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ParseExtraPaths accepts a JSON array or one path per line
func ParseExtraPaths(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var paths []string
	if err := json.Unmarshal([]byte(raw), &paths); err != nil {
		paths = strings.Split(raw, "\n")
	}

	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeDir returns the absolute form of path if it is a directory
func normalizeDir(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	return abs, nil
}

// normalizeDirs validates every path and reports all the invalid ones
func normalizeDirs(paths []string) ([]string, error) {
	var (
		out     []string
		invalid []string
	)
	for _, p := range paths {
		abs, err := normalizeDir(p)
		if err != nil {
			invalid = append(invalid, p)
			continue
		}
		out = append(out, abs)
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, strings.Join(invalid, ", "))
	}
	return out, nil
}
