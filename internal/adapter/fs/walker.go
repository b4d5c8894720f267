package fs

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher applies include/exclude glob patterns to relative paths.
type Matcher struct {
	includes []string
	excludes []string
}

func NewMatcher(includes, excludes []string) *Matcher {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	return &Matcher{
		includes: includes,
		excludes: excludes,
	}
}

// Match reports whether a relative path is included and not excluded.
func (m *Matcher) Match(path string) bool {
	return m.shouldInclude(path) && !m.shouldExclude(path)
}

func (m *Matcher) shouldInclude(path string) bool {
	for _, pattern := range m.includes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func (m *Matcher) shouldExclude(path string) bool {
	for _, pattern := range m.excludes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// Walker collects local files that a caller wants to upload into a session.
type Walker struct {
	matcher *Matcher
}

func NewWalker(matcher *Matcher) *Walker {
	return &Walker{matcher: matcher}
}

type FileInfo struct {
	Path    string
	Name    string
	ModTime int64
	Size    int64
}

// Walk returns matching regular files directly under root. Session storage
// is flat, so sub-directories are not descended into.
func (w *Walker) Walk(root string) ([]FileInfo, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var files []FileInfo
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if !w.matcher.Match(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		files = append(files, FileInfo{
			Path:    filepath.Join(root, entry.Name()),
			Name:    entry.Name(),
			ModTime: info.ModTime().Unix(),
			Size:    info.Size(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
	return files, nil
}

func ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
