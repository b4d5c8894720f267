package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"docsearch/internal/domain"
	"docsearch/internal/pkg/logger"
	"docsearch/internal/port"
)

const sessionModule = "session-cache"

// IndexSession is one cached index handle.
type IndexSession struct {
	SessionID  string
	SearchType domain.SearchType
	Handle     port.IndexHandle

	mu         sync.Mutex
	lastUpdate time.Time
}

func (s *IndexSession) Key() domain.SessionKey {
	return domain.NewSessionKey(s.SessionID, s.SearchType)
}

// Touch records a mutation of the handle.
func (s *IndexSession) Touch(now time.Time) {
	s.mu.Lock()
	s.lastUpdate = now
	s.mu.Unlock()
}

func (s *IndexSession) LastUpdate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdate
}

type cacheEntry struct {
	ready   chan struct{}
	session *IndexSession
	err     error
}

// SessionCache maps session keys to index handles and builds each handle at
// most once. Concurrent callers asking for a key that is being built wait
// for that build; builds of different keys run independently.
//
// Builds hold their session's lock shared and mutations hold it exclusively,
// so a build never reads a document set that a concurrent sync is changing.
type SessionCache struct {
	backend port.IndexBackend
	storage port.StorageProvider
	logger  logger.ILogger
	tracer  trace.Tracer
	now     func() time.Time

	mu      sync.Mutex
	entries map[domain.SessionKey]*cacheEntry
	locks   map[string]*sync.RWMutex
}

func NewSessionCache(backend port.IndexBackend, storage port.StorageProvider, log logger.ILogger) *SessionCache {
	return &SessionCache{
		backend: backend,
		storage: storage,
		logger:  log,
		tracer:  otel.Tracer("docsearch/usecase"),
		now:     time.Now,
		entries: make(map[domain.SessionKey]*cacheEntry),
		locks:   make(map[string]*sync.RWMutex),
	}
}

func (c *SessionCache) sessionLock(sessionID string) *sync.RWMutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[sessionID]
	if !ok {
		l = &sync.RWMutex{}
		c.locks[sessionID] = l
	}
	return l
}

// lockSession blocks builds of sessionID until the returned func is called.
// Builds already running finish first, so Handles sees them.
func (c *SessionCache) lockSession(sessionID string) (unlock func()) {
	l := c.sessionLock(sessionID)
	l.Lock()
	return l.Unlock
}

// GetOrCreate returns the handle for (sessionID, searchType), building it
// from the session's stored documents on first use. A failed build is not
// cached; the next call tries again. The build outlives a cancelled caller
// so other callers waiting on it still get the handle.
func (c *SessionCache) GetOrCreate(ctx context.Context, sessionID string, searchType domain.SearchType) (*IndexSession, error) {
	if !searchType.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedSearchType, searchType)
	}
	if err := domain.ValidateName(sessionID); err != nil {
		return nil, err
	}
	key := domain.NewSessionKey(sessionID, searchType)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return c.wait(ctx, e)
	}
	e := &cacheEntry{ready: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	go c.run(context.WithoutCancel(ctx), key, e)
	return c.wait(ctx, e)
}

func (c *SessionCache) run(ctx context.Context, key domain.SessionKey, e *cacheEntry) {
	l := c.sessionLock(key.SessionID)
	l.RLock()
	defer l.RUnlock()

	e.session, e.err = c.build(ctx, key)
	if e.err != nil {
		c.mu.Lock()
		if c.entries[key] == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}
	close(e.ready)
}

func (c *SessionCache) wait(ctx context.Context, e *cacheEntry) (*IndexSession, error) {
	select {
	case <-e.ready:
		return e.session, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *SessionCache) build(ctx context.Context, key domain.SessionKey) (*IndexSession, error) {
	ctx, span := c.tracer.Start(ctx, "SessionCache.Build", trace.WithAttributes(
		attribute.String("session.id", key.SessionID),
		attribute.String("session.search_type", string(key.SearchType)),
	))
	defer span.End()

	start := c.now()
	docs, err := c.loadDocuments(ctx, key.SessionID)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	handle, err := c.backend.Build(ctx, key.SessionID, key.SearchType, docs)
	if err != nil {
		recordSpanError(span, err)
		c.logger.Error(sessionModule, "index build failed", map[string]interface{}{
			"key":   key.String(),
			"error": err,
		})
		return nil, err
	}

	session := &IndexSession{SessionID: key.SessionID, SearchType: key.SearchType, Handle: handle}
	session.Touch(c.now())

	c.logger.Info(sessionModule, "index handle created", map[string]interface{}{
		"key":       key.String(),
		"documents": len(docs),
		"took_ms":   c.now().Sub(start).Milliseconds(),
	})
	span.SetAttributes(attribute.Int("session.documents", len(docs)))
	return session, nil
}

// loadDocuments reads every stored document of a session, creating the
// storage area if the session is new.
func (c *SessionCache) loadDocuments(ctx context.Context, sessionID string) ([]domain.StoredDocument, error) {
	st, err := c.storage.Open(sessionID, true)
	if err != nil {
		return nil, err
	}
	names, err := st.List(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]domain.StoredDocument, 0, len(names))
	for _, name := range names {
		content, err := st.Read(ctx, name)
		if err != nil {
			return nil, err
		}
		docs = append(docs, domain.StoredDocument{Name: name, Content: content})
	}
	return docs, nil
}

// Lookup returns an existing handle. It never builds one.
func (c *SessionCache) Lookup(ctx context.Context, sessionID string, searchType domain.SearchType) (*IndexSession, error) {
	key := domain.NewSessionKey(sessionID, searchType)

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s not found.", domain.ErrNotFound, key)
	}

	session, err := c.wait(ctx, e)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s not found.", domain.ErrNotFound, key)
	}
	return session, nil
}

// Handles returns the built handles of one session ordered by search type.
// Entries still building are skipped; callers holding lockSession know those
// builds have not read the store yet.
func (c *SessionCache) Handles(sessionID string) []*IndexSession {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*IndexSession
	for key, e := range c.entries {
		if key.SessionID != sessionID {
			continue
		}
		select {
		case <-e.ready:
			if e.err == nil {
				out = append(out, e.session)
			}
		default:
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SearchType < out[j].SearchType
	})
	return out
}

// Len is the number of cached or in-flight keys.
func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close releases every built handle and empties the cache.
func (c *SessionCache) Close() error {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[domain.SessionKey]*cacheEntry)
	c.mu.Unlock()

	var errs []error
	for key, e := range entries {
		<-e.ready
		if e.err != nil || e.session == nil {
			continue
		}
		if err := e.session.Handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
