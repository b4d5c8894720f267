package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"docsearch/internal/domain"
	"docsearch/internal/pkg/logger"
	"docsearch/internal/port"
)

const serviceModule = "service"

// Service is the entry point for every session operation.
type Service struct {
	storage port.StorageProvider
	cache   *SessionCache
	sync    *SyncEngine
	history *HistoryManager
	logger  logger.ILogger
	tracer  trace.Tracer
}

type ServiceOptions struct {
	HistoryFolder string
	HistoryFile   string
}

func NewService(storage port.StorageProvider, backend port.IndexBackend, opts ServiceOptions, log logger.ILogger) *Service {
	cache := NewSessionCache(backend, storage, log)
	return &Service{
		storage: storage,
		cache:   cache,
		sync:    NewSyncEngine(storage, cache, log, opts.HistoryFolder),
		history: NewHistoryManager(storage, opts.HistoryFolder, opts.HistoryFile, log),
		logger:  log,
		tracer:  otel.Tracer("docsearch/usecase"),
	}
}

func (s *Service) Sessions() *SessionCache {
	return s.cache
}

func (s *Service) History() *HistoryManager {
	return s.history
}

func (s *Service) start(ctx context.Context, op Operation, sessionID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, string(op), trace.WithAttributes(attribute.String("session.id", sessionID)))
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// ListFiles returns the stored document names of a session. A session
// without a readable storage area has no files.
func (s *Service) ListFiles(ctx context.Context, sessionID string) domain.FilesResponse {
	ctx, span := s.start(ctx, OpListFiles, sessionID)
	defer span.End()

	names, err := s.listFiles(ctx, sessionID)
	if err != nil {
		recordSpanError(span, err)
		s.logger.Warn(serviceModule, "listing files failed, returning none", map[string]interface{}{
			"session_id": sessionID,
			"error":      err,
		})
		names = []string{}
	}
	return domain.FilesResponse{SessionID: sessionID, Files: names}
}

func (s *Service) listFiles(ctx context.Context, sessionID string) ([]string, error) {
	st, err := s.storage.Open(sessionID, false)
	if err != nil {
		return nil, err
	}
	names, err := st.List(ctx)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// UploadFiles adds the batch's new names to the session. Names already
// stored keep their content.
func (s *Service) UploadFiles(ctx context.Context, sessionID string, files map[string][]byte) (domain.FilesResponse, error) {
	return s.syncBatch(ctx, OpUploadFiles, sessionID, files, false)
}

// SyncFiles makes the session hold exactly the batch's names. Names already
// stored keep their content; stored names missing from the batch are removed.
func (s *Service) SyncFiles(ctx context.Context, sessionID string, files map[string][]byte) (domain.FilesResponse, error) {
	return s.syncBatch(ctx, OpSyncFiles, sessionID, files, true)
}

func (s *Service) syncBatch(ctx context.Context, op Operation, sessionID string, files map[string][]byte, prune bool) (domain.FilesResponse, error) {
	ctx, span := s.start(ctx, op, sessionID)
	defer span.End()

	if err := domain.ValidateName(sessionID); err != nil {
		recordSpanError(span, err)
		return domain.FilesResponse{}, err
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	span.SetAttributes(attribute.Int("batch.size", len(names)))

	result, err := s.sync.Sync(ctx, sessionID, names, MapSource(files), prune)
	if err != nil {
		recordSpanError(span, err)
		s.refreshHistoryFiles(ctx, sessionID)
		return domain.FilesResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	span.SetAttributes(
		attribute.Int("sync.added", len(result.Added)),
		attribute.Int("sync.removed", len(result.Removed)),
	)

	s.refreshHistoryFiles(ctx, sessionID)
	return domain.FilesResponse{SessionID: sessionID, Files: names}, nil
}

// DeleteFile removes one document from the session and its cached handles.
func (s *Service) DeleteFile(ctx context.Context, sessionID, name string) (domain.FileResponse, error) {
	ctx, span := s.start(ctx, OpDeleteFile, sessionID)
	defer span.End()

	if err := s.sync.Remove(ctx, sessionID, name); err != nil {
		recordSpanError(span, err)
		return domain.FileResponse{}, fmt.Errorf("%s: %w", OpDeleteFile, err)
	}
	s.refreshHistoryFiles(ctx, sessionID)
	return domain.FileResponse{SessionID: sessionID, File: name}, nil
}

// refreshHistoryFiles mirrors the stored names into the history record.
// The document operation has already succeeded, so a failure is only logged.
func (s *Service) refreshHistoryFiles(ctx context.Context, sessionID string) {
	names, err := s.listFiles(ctx, sessionID)
	if err == nil {
		err = s.history.SetFiles(ctx, sessionID, names)
	}
	if err != nil {
		s.logger.Warn(serviceModule, "history file list not updated", map[string]interface{}{
			"session_id": sessionID,
			"error":      err,
		})
	}
}

// SaveIndices persists every cached handle of the session.
func (s *Service) SaveIndices(ctx context.Context, sessionID string) error {
	ctx, span := s.start(ctx, OpSaveIndices, sessionID)
	defer span.End()

	handles := s.cache.Handles(sessionID)
	if len(handles) == 0 {
		err := fmt.Errorf("%w: %s not found.", domain.ErrNotFound, sessionID)
		recordSpanError(span, err)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, session := range handles {
		g.Go(func() error {
			if err := session.Handle.Persist(gctx); err != nil {
				return fmt.Errorf("persist %s: %w", session.Key(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		recordSpanError(span, err)
		return err
	}

	s.logger.Info(serviceModule, "indices saved", map[string]interface{}{
		"session_id": sessionID,
		"handles":    len(handles),
	})
	return nil
}

// Query runs a prompt against an existing handle. It never builds one.
func (s *Service) Query(ctx context.Context, sessionID, searchType, prompt string) (domain.PromptResponse, error) {
	ctx, span := s.start(ctx, OpQuery, sessionID)
	defer span.End()

	resp, err := s.query(ctx, sessionID, searchType, prompt)
	recordSpanError(span, err)
	return resp, err
}

func (s *Service) query(ctx context.Context, sessionID, searchType, prompt string) (domain.PromptResponse, error) {
	t, err := domain.ParseSearchType(searchType)
	if err != nil {
		return domain.PromptResponse{}, err
	}
	session, err := s.cache.Lookup(ctx, sessionID, t)
	if err != nil {
		return domain.PromptResponse{}, err
	}
	completion, err := session.Handle.Query(ctx, prompt)
	if err != nil {
		if !errors.Is(err, domain.ErrBackendFailure) {
			err = fmt.Errorf("%w: %w", domain.ErrBackendFailure, err)
		}
		return domain.PromptResponse{}, err
	}
	return domain.PromptResponse{Prompt: prompt, Completion: completion}, nil
}

// SaveChat replaces the stored transcript of one search type.
func (s *Service) SaveChat(ctx context.Context, sessionID, searchType string, chat []domain.ChatEntry) error {
	ctx, span := s.start(ctx, OpSaveChat, sessionID)
	defer span.End()

	t, err := domain.ParseSearchType(searchType)
	if err == nil {
		err = domain.ValidateName(sessionID)
	}
	if err == nil {
		err = s.history.SetChat(ctx, sessionID, t, chat)
	}
	recordSpanError(span, err)
	return err
}

// Initialize makes sure the session has a handle for searchType and returns
// it together with the session's history.
func (s *Service) Initialize(ctx context.Context, sessionID, searchType string) (domain.InitializeResponse, error) {
	ctx, span := s.start(ctx, OpInitialize, sessionID)
	defer span.End()

	t, err := domain.ParseSearchType(searchType)
	if err != nil {
		recordSpanError(span, err)
		return domain.InitializeResponse{}, err
	}
	if _, err := s.cache.GetOrCreate(ctx, sessionID, t); err != nil {
		recordSpanError(span, err)
		return domain.InitializeResponse{}, fmt.Errorf("%s: %w", OpInitialize, err)
	}
	return domain.InitializeResponse{
		Session: sessionID,
		History: s.history.Load(ctx, sessionID),
	}, nil
}

// Close releases every cached handle.
func (s *Service) Close() error {
	return s.cache.Close()
}
