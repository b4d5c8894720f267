package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"docsearch/internal/domain"
	"docsearch/internal/pkg/logger"
	"docsearch/internal/port"
)

const syncModule = "sync"

// ContentSource returns the content of a document the caller wants stored.
type ContentSource func(ctx context.Context, name string) ([]byte, error)

// MapSource serves content from an in-memory batch.
func MapSource(files map[string][]byte) ContentSource {
	return func(_ context.Context, name string) ([]byte, error) {
		content, ok := files[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, name)
		}
		return content, nil
	}
}

// SyncResult lists what a sync applied.
type SyncResult struct {
	Added   []string
	Removed []string
}

// SyncError reports a sync that stopped part way. Applied holds the names
// fully processed before the failure; Failed is the name being processed.
type SyncError struct {
	SessionID string
	Applied   []string
	Failed    string
	Err       error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s: %s failed after %d applied: %v", e.SessionID, e.Failed, len(e.Applied), e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Diff returns the names in desired but not in current, and the names in
// current but not in desired, both sorted.
func Diff(desired, current []string) (toAdd, toRemove []string) {
	want := make(map[string]struct{}, len(desired))
	for _, name := range desired {
		want[name] = struct{}{}
	}
	have := make(map[string]struct{}, len(current))
	for _, name := range current {
		have[name] = struct{}{}
	}

	for name := range want {
		if _, ok := have[name]; !ok {
			toAdd = append(toAdd, name)
		}
	}
	for name := range have {
		if _, ok := want[name]; !ok {
			toRemove = append(toRemove, name)
		}
	}
	sort.Strings(toAdd)
	sort.Strings(toRemove)
	return toAdd, toRemove
}

// SyncEngine keeps the document store and every cached handle of a session
// in step.
type SyncEngine struct {
	storage  port.StorageProvider
	cache    *SessionCache
	logger   logger.ILogger
	now      func() time.Time
	reserved map[string]struct{}
}

// NewSyncEngine returns an engine that refuses document names in reserved
// on top of the names the storage keeps for itself.
func NewSyncEngine(storage port.StorageProvider, cache *SessionCache, log logger.ILogger, reserved ...string) *SyncEngine {
	e := &SyncEngine{
		storage:  storage,
		cache:    cache,
		logger:   log,
		now:      time.Now,
		reserved: make(map[string]struct{}, len(reserved)),
	}
	for _, name := range reserved {
		e.reserved[name] = struct{}{}
	}
	return e
}

// ValidateName accepts names that are safe as documents and do not clash
// with a record area of the session.
func (e *SyncEngine) ValidateName(name string) error {
	if err := domain.ValidateName(name); err != nil {
		return err
	}
	if _, ok := e.reserved[name]; ok || e.storage.Reserved(name) {
		return fmt.Errorf("%w: %q is reserved", domain.ErrInvalidName, name)
	}
	return nil
}

// Sync makes the session's stored set match desired. New names are read from
// source, written to the store and inserted into each cached handle. With
// prune set, stored names missing from desired are removed from each handle
// and then from the store. Names present on both sides are left alone.
func (e *SyncEngine) Sync(ctx context.Context, sessionID string, desired []string, source ContentSource, prune bool) (SyncResult, error) {
	var result SyncResult
	for _, name := range desired {
		if err := e.ValidateName(name); err != nil {
			return result, err
		}
	}

	unlock := e.cache.lockSession(sessionID)
	defer unlock()

	st, err := e.storage.Open(sessionID, true)
	if err != nil {
		return result, err
	}
	current, err := st.List(ctx)
	if err != nil {
		return result, err
	}

	toAdd, toRemove := Diff(desired, current)
	if !prune {
		toRemove = nil
	}
	handles := e.cache.Handles(sessionID)

	applied := make([]string, 0, len(toAdd)+len(toRemove))
	fail := func(name string, err error) error {
		e.logger.Error(syncModule, "sync stopped", map[string]interface{}{
			"session_id": sessionID,
			"document":   name,
			"applied":    len(applied),
			"error":      err,
		})
		return &SyncError{SessionID: sessionID, Applied: applied, Failed: name, Err: err}
	}

	for _, name := range toAdd {
		if err := ctx.Err(); err != nil {
			return result, fail(name, err)
		}
		content, err := source(ctx, name)
		if err != nil {
			return result, fail(name, err)
		}
		if err := st.Write(ctx, name, content, true); err != nil {
			return result, fail(name, err)
		}
		doc := domain.StoredDocument{Name: name, Content: content}
		for _, s := range handles {
			if err := s.Handle.InsertDocument(ctx, doc); err != nil {
				return result, fail(name, err)
			}
			s.Touch(e.now())
		}
		applied = append(applied, name)
		result.Added = append(result.Added, name)
	}

	for _, name := range toRemove {
		if err := ctx.Err(); err != nil {
			return result, fail(name, err)
		}
		if err := e.remove(ctx, st, handles, name); err != nil {
			return result, fail(name, err)
		}
		applied = append(applied, name)
		result.Removed = append(result.Removed, name)
	}

	if len(applied) > 0 {
		e.logger.Info(syncModule, "session synced", map[string]interface{}{
			"session_id": sessionID,
			"added":      len(result.Added),
			"removed":    len(result.Removed),
			"handles":    len(handles),
		})
	}
	return result, nil
}

// Remove deletes one document from every cached handle of the session and
// then from the store.
func (e *SyncEngine) Remove(ctx context.Context, sessionID, name string) error {
	if err := e.ValidateName(name); err != nil {
		return err
	}
	unlock := e.cache.lockSession(sessionID)
	defer unlock()

	st, err := e.storage.Open(sessionID, false)
	if err != nil {
		return err
	}
	names, err := st.List(ctx)
	if err != nil {
		return err
	}
	if i := sort.SearchStrings(names, name); i == len(names) || names[i] != name {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, name)
	}
	return e.remove(ctx, st, e.cache.Handles(sessionID), name)
}

func (e *SyncEngine) remove(ctx context.Context, st port.DocumentStore, handles []*IndexSession, name string) error {
	for _, s := range handles {
		if err := s.Handle.RemoveDocument(ctx, name); err != nil {
			return err
		}
		s.Touch(e.now())
	}
	return st.Delete(ctx, name)
}
