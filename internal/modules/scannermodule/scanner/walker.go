package scanner

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
)

// WalkEntry is one supported file found under a root
type WalkEntry struct {
	// Absolute path of the file
	Path string
	// Directory names between the root and the file, joined with "/"
	HierarchyLabel string
	// Base name of the file
	Name string
	// True when the extension is in the document set
	IsDocument bool
}

// DirectoryWalker enumerates supported files under a set of roots in a
// stable order: within each directory, subdirectories come first, then
// files, each group sorted by name without extension.
type DirectoryWalker struct {
	supported map[string]struct{}
	documents map[string]struct{}
	logger    hclog.Logger
}

// NewDirectoryWalker builds a walker for the extension policy in cfg
func NewDirectoryWalker(cfg *ScanConfig, logger hclog.Logger) *DirectoryWalker {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &DirectoryWalker{
		supported: extensionSet(cfg.SupportedExtensions),
		documents: extensionSet(cfg.DocumentExtensions),
		logger:    logger,
	}
}

// Supports reports whether a file name has a lesson extension
func (w *DirectoryWalker) Supports(name string) bool {
	_, ok := w.supported[strings.ToLower(filepath.Ext(name))]
	return ok
}

// IsDocument reports whether a file name has a document extension
func (w *DirectoryWalker) IsDocument(name string) bool {
	_, ok := w.documents[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Count returns how many files Walk would yield for roots. Roots are
// counted concurrently.
func (w *DirectoryWalker) Count(roots []string) int {
	counts := make([]int, len(roots))
	var g errgroup.Group
	for i, root := range roots {
		i, root := i, root
		g.Go(func() error {
			return w.walkRoot(root, func(WalkEntry) error {
				counts[i]++
				return nil
			})
		})
	}
	// visit never fails, so neither does Wait
	_ = g.Wait()

	total := 0
	for _, c := range counts {
		total += c
	}
	return total
}

// Walk calls visit for every supported file under roots, root by root. A
// visit error stops the walk and is returned.
func (w *DirectoryWalker) Walk(roots []string, visit func(WalkEntry) error) error {
	for _, root := range roots {
		if err := w.walkRoot(root, visit); err != nil {
			return err
		}
	}
	return nil
}

func (w *DirectoryWalker) walkRoot(root string, visit func(WalkEntry) error) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		w.logger.Warn("Skipping root", "root", root, "error", err)
		return nil
	}
	visited := make(map[string]struct{})
	return w.walkDir(abs, "", visited, visit)
}

type dirItem struct {
	name  string
	path  string
	isDir bool
}

func (w *DirectoryWalker) walkDir(dir, label string, visited map[string]struct{}, visit func(WalkEntry) error) error {
	// Symlinked directories may point back up the tree
	if real, err := filepath.EvalSymlinks(dir); err == nil {
		if _, seen := visited[real]; seen {
			return nil
		}
		visited[real] = struct{}{}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			w.logger.Debug("Skipping unreadable directory", "path", dir)
		} else {
			w.logger.Warn("Skipping directory", "path", dir, "error", err)
		}
		return nil
	}

	items := make([]dirItem, 0, len(entries))
	for _, entry := range entries {
		item := dirItem{name: entry.Name(), path: filepath.Join(dir, entry.Name())}
		switch {
		case entry.IsDir():
			item.isDir = true
		case entry.Type()&fs.ModeSymlink != 0:
			info, err := os.Stat(item.path)
			if err != nil {
				continue
			}
			if info.IsDir() {
				item.isDir = true
			} else if !info.Mode().IsRegular() {
				continue
			}
		case !entry.Type().IsRegular():
			continue
		}
		items = append(items, item)
	}

	sortDirItems(items)

	for _, item := range items {
		if item.isDir {
			child := item.name
			if label != "" {
				child = label + "/" + item.name
			}
			if err := w.walkDir(item.path, child, visited, visit); err != nil {
				return err
			}
			continue
		}

		if !w.Supports(item.name) {
			continue
		}

		if err := visit(WalkEntry{
			Path:           item.path,
			HierarchyLabel: label,
			Name:           item.name,
			IsDocument:     w.IsDocument(item.name),
		}); err != nil {
			return err
		}
	}

	return nil
}

// sortDirItems orders directories before files, then by name without
// extension, then by full name so that equal stems stay deterministic.
func sortDirItems(items []dirItem) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.isDir != b.isDir {
			return a.isDir
		}
		sa, sb := stem(a.name), stem(b.name)
		if sa != sb {
			return sa < sb
		}
		return a.name < b.name
	})
}

// stem returns a file name without its final extension
func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
