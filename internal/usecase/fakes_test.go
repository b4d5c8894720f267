package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"docsearch/internal/adapter/fs"
	"docsearch/internal/domain"
	"docsearch/internal/pkg/logger"
	"docsearch/internal/port"
)

var errBoom = errors.New("boom")

// fakeBackend records every build and hands out fakeHandles.
type fakeBackend struct {
	builds  atomic.Int32
	release chan struct{} // when set, Build blocks until it is closed
	block   map[domain.SearchType]bool
	fail    atomic.Bool

	mu      sync.Mutex
	handles map[domain.SessionKey]*fakeHandle
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{handles: make(map[domain.SessionKey]*fakeHandle)}
}

func (b *fakeBackend) Build(ctx context.Context, sessionID string, t domain.SearchType, docs []domain.StoredDocument) (port.IndexHandle, error) {
	b.builds.Add(1)
	if b.release != nil && (b.block == nil || b.block[t]) {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.fail.Load() {
		return nil, errBoom
	}

	h := &fakeHandle{docs: make(map[string]string)}
	for _, d := range docs {
		h.docs[d.Name] = string(d.Content)
	}
	b.mu.Lock()
	b.handles[domain.NewSessionKey(sessionID, t)] = h
	b.mu.Unlock()
	return h, nil
}

func (b *fakeBackend) handle(sessionID string, t domain.SearchType) *fakeHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handles[domain.NewSessionKey(sessionID, t)]
}

type fakeHandle struct {
	mu        sync.Mutex
	docs      map[string]string
	inserts   []string
	removes   []string
	persisted int
	closed    bool
	insertErr error
	queryErr  error
}

func (h *fakeHandle) Query(_ context.Context, text string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.queryErr != nil {
		return "", h.queryErr
	}
	names := make([]string, 0, len(h.docs))
	for name := range h.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return text + " -> " + strings.Join(names, ","), nil
}

func (h *fakeHandle) InsertDocument(_ context.Context, doc domain.StoredDocument) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.insertErr != nil {
		return h.insertErr
	}
	h.inserts = append(h.inserts, doc.Name)
	h.docs[doc.Name] = string(doc.Content)
	return nil
}

func (h *fakeHandle) RemoveDocument(_ context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removes = append(h.removes, name)
	delete(h.docs, name)
	return nil
}

func (h *fakeHandle) Persist(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.persisted++
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *fakeHandle) snapshot() (inserts, removes []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.inserts...), append([]string(nil), h.removes...)
}

type fixture struct {
	root    string
	storage *fs.Provider
	backend *fakeBackend
	service *Service
}

func newFixture(root string) *fixture {
	storage := fs.NewProvider(root)
	backend := newFakeBackend()
	return &fixture{
		root:    root,
		storage: storage,
		backend: backend,
		service: NewService(storage, backend, ServiceOptions{
			HistoryFolder: "history",
			HistoryFile:   "session_history.json",
		}, logger.NewNop()),
	}
}

func batch(names ...string) map[string][]byte {
	files := make(map[string][]byte, len(names))
	for _, name := range names {
		files[name] = []byte("content of " + name)
	}
	return files
}
