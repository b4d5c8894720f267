package port

import (
	"context"

	"docsearch/internal/domain"
)

// IndexBackend builds queryable index handles from a session's documents.
type IndexBackend interface {
	Build(ctx context.Context, sessionID string, searchType domain.SearchType, docs []domain.StoredDocument) (IndexHandle, error)
}

// IndexHandle is an opaque, queryable index over one session's documents.
type IndexHandle interface {
	Query(ctx context.Context, text string) (string, error)

	InsertDocument(ctx context.Context, doc domain.StoredDocument) error

	RemoveDocument(ctx context.Context, name string) error

	Persist(ctx context.Context) error

	Close() error
}
