package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"docsearch/internal/domain"
	"docsearch/internal/port"
)

// indexArea holds persisted index state; it is never listed as a document.
const indexArea = ".index"

const tempMarker = ".tmp-"

// Provider opens one FileSystem per session below a shared data directory.
type Provider struct {
	root string
}

func NewProvider(root string) *Provider {
	return &Provider{root: root}
}

// Reserved reports names a session directory keeps for its own bookkeeping.
func (p *Provider) Reserved(name string) bool {
	return reserved(name)
}

// Open returns the storage area for sessionID, creating its directory when
// createMissing is set.
func (p *Provider) Open(sessionID string, createMissing bool) (port.DocumentStore, error) {
	if err := domain.ValidateName(sessionID); err != nil {
		return nil, err
	}
	dir := filepath.Join(p.root, sessionID)
	if createMissing {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create %s: %v", domain.ErrStorageUnavailable, dir, err)
		}
	}
	return &FileSystem{dir: dir}, nil
}

// FileSystem is a flat directory of documents for one session. Every
// regular file in it is a document, whatever its name.
type FileSystem struct {
	dir string
}

func (f *FileSystem) Dir() string {
	return f.dir
}

func (f *FileSystem) IndexDir() string {
	return filepath.Join(f.dir, indexArea)
}

func (f *FileSystem) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", domain.ErrStorageUnavailable, f.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || isTempFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (f *FileSystem) Read(ctx context.Context, name string) ([]byte, error) {
	if err := domain.ValidateName(name); err != nil {
		return nil, err
	}
	return f.readPath(ctx, filepath.Join(f.dir, name))
}

func (f *FileSystem) Write(ctx context.Context, name string, content []byte, overwrite bool) error {
	if err := domain.ValidateName(name); err != nil {
		return err
	}
	if reserved(name) {
		return fmt.Errorf("%w: %q is reserved", domain.ErrInvalidName, name)
	}
	return f.writePath(ctx, f.dir, name, content, overwrite)
}

func (f *FileSystem) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := domain.ValidateName(name); err != nil {
		return err
	}
	path := filepath.Join(f.dir, name)
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, name)
		}
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, name)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("%w: delete %s: %v", domain.ErrStorageUnavailable, name, err)
	}
	return nil
}

func (f *FileSystem) ReadRecord(ctx context.Context, area, name string) ([]byte, error) {
	if err := validateRecord(area, name); err != nil {
		return nil, err
	}
	return f.readPath(ctx, filepath.Join(f.dir, area, name))
}

// WriteRecord always overwrites and creates the sub-area on demand.
func (f *FileSystem) WriteRecord(ctx context.Context, area, name string, content []byte) error {
	if err := validateRecord(area, name); err != nil {
		return err
	}
	dir := filepath.Join(f.dir, area)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", domain.ErrStorageUnavailable, dir, err)
	}
	return f.writePath(ctx, dir, name, content, true)
}

func reserved(name string) bool {
	return name == indexArea || isTempFile(name)
}

func isTempFile(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, tempMarker)
}

func validateRecord(area, name string) error {
	if err := domain.ValidateName(area); err != nil {
		return err
	}
	return domain.ValidateName(name)
}

func (f *FileSystem) readPath(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrStorageUnavailable, path, err)
	}
	return data, nil
}

// writePath replaces files through a rename so readers never see a torn write.
func (f *FileSystem) writePath(ctx context.Context, dir, name string, content []byte, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrStorageUnavailable, dir, err)
	}
	path := filepath.Join(dir, name)

	if !overwrite {
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, name)
			}
			return fmt.Errorf("%w: write %s: %v", domain.ErrStorageUnavailable, name, err)
		}
		_, werr := file.Write(content)
		cerr := file.Close()
		if werr != nil || cerr != nil {
			os.Remove(path)
			return fmt.Errorf("%w: write %s: %v", domain.ErrStorageUnavailable, name, errors.Join(werr, cerr))
		}
		return nil
	}

	tmp, err := os.CreateTemp(dir, "."+name+tempMarker+"*")
	if err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrStorageUnavailable, name, err)
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(content)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", domain.ErrStorageUnavailable, name, errors.Join(werr, cerr))
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", domain.ErrStorageUnavailable, name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", domain.ErrStorageUnavailable, name, err)
	}
	return nil
}
