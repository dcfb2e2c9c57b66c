package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SubtitleMatcher finds sidecar subtitle files next to a media file
type SubtitleMatcher struct {
	extensions []string
}

// NewSubtitleMatcher creates a matcher searching extensions in order
func NewSubtitleMatcher(extensions []string) *SubtitleMatcher {
	return &SubtitleMatcher{extensions: lowerAll(extensions)}
}

// FindSubtitles returns subtitle paths for mediaPath. For each extension,
// the exact "<stem><ext>" file comes first, followed by "<stem>.<variant><ext>"
// files in name order. An empty result is not an error.
func (m *SubtitleMatcher) FindSubtitles(mediaPath string) []string {
	dir := filepath.Dir(mediaPath)
	base := stem(filepath.Base(mediaPath))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var found []string
	seen := make(map[string]struct{})
	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		found = append(found, path)
	}

	for _, ext := range m.extensions {
		exact := filepath.Join(dir, base+ext)
		if isRegularFile(exact) {
			add(exact)
		}

		prefix := base + "."
		for _, name := range names {
			if len(name) < len(prefix)+len(ext) {
				continue
			}
			if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
				continue
			}
			add(filepath.Join(dir, name))
		}
	}

	return found
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
