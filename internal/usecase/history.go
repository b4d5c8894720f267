package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"docsearch/internal/domain"
	"docsearch/internal/pkg/logger"
	"docsearch/internal/port"
)

const historyModule = "history"

// HistoryManager reads and writes the per-session history record.
type HistoryManager struct {
	storage port.StorageProvider
	folder  string
	file    string
	logger  logger.ILogger

	// locks serialize read-modify-write cycles per session so concurrent
	// SetChat and SetFiles calls do not drop each other's fields.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewHistoryManager(storage port.StorageProvider, folder, file string, log logger.ILogger) *HistoryManager {
	return &HistoryManager{
		storage: storage,
		folder:  folder,
		file:    file,
		logger:  log,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (h *HistoryManager) lock(sessionID string) (unlock func()) {
	h.mu.Lock()
	l, ok := h.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		h.locks[sessionID] = l
	}
	h.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Load returns the session's history record. It never fails: a missing
// record, an unreadable area or a malformed file all yield the default.
func (h *HistoryManager) Load(ctx context.Context, sessionID string) domain.HistoryRecord {
	rec, err := h.load(ctx, sessionID)
	if err == nil {
		return rec
	}

	details := map[string]interface{}{"session_id": sessionID, "error": err.Error()}
	if errors.Is(err, domain.ErrNotFound) {
		h.logger.Debug(historyModule, "no history record, using default", details)
	} else if recoverable(OpLoadHistory, err) {
		h.logger.Warn(historyModule, "history record unusable, using default", details)
	}
	return domain.DefaultHistory()
}

func (h *HistoryManager) load(ctx context.Context, sessionID string) (domain.HistoryRecord, error) {
	st, err := h.storage.Open(sessionID, false)
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	data, err := st.ReadRecord(ctx, h.folder, h.file)
	if err != nil {
		return domain.HistoryRecord{}, err
	}

	var rec domain.HistoryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.HistoryRecord{}, fmt.Errorf("parse history: %w", err)
	}
	return rec, nil
}

// Save overwrites the session's history record, creating the history area
// when needed.
func (h *HistoryManager) Save(ctx context.Context, sessionID string, rec domain.HistoryRecord) error {
	st, err := h.storage.Open(sessionID, true)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return st.WriteRecord(ctx, h.folder, h.file, data)
}

// SetChat replaces the transcript of one search type and leaves the rest of
// the record untouched.
func (h *HistoryManager) SetChat(ctx context.Context, sessionID string, t domain.SearchType, entries []domain.ChatEntry) error {
	defer h.lock(sessionID)()

	rec := h.Load(ctx, sessionID)
	if entries == nil {
		entries = []domain.ChatEntry{}
	}
	rec.Chats[t] = entries
	return h.Save(ctx, sessionID, rec)
}

// SetFiles records the session's current document names.
func (h *HistoryManager) SetFiles(ctx context.Context, sessionID string, files []string) error {
	defer h.lock(sessionID)()

	rec := h.Load(ctx, sessionID)
	rec.Files = append([]string{}, files...)
	return h.Save(ctx, sessionID, rec)
}
