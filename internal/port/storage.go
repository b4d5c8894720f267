package port

import "context"

// DocumentStore is one session's storage area.
//
// Every method is scoped to the session the store was opened for; nothing
// is visible across sessions.
type DocumentStore interface {
	// List returns the names of the stored documents in lexical order.
	List(ctx context.Context) ([]string, error)

	// Read returns the content of a document or domain.ErrNotFound.
	Read(ctx context.Context, name string) ([]byte, error)

	// Write stores a document. With overwrite=false an existing document
	// fails with domain.ErrAlreadyExists.
	Write(ctx context.Context, name string, content []byte, overwrite bool) error

	// Delete removes a document or fails with domain.ErrNotFound.
	Delete(ctx context.Context, name string) error

	// ReadRecord and WriteRecord access a named document inside a sub-area
	// (for example the history folder) that List never reports.
	ReadRecord(ctx context.Context, area, name string) ([]byte, error)
	WriteRecord(ctx context.Context, area, name string, content []byte) error

	// IndexDir is where index handles persist their state for this session.
	IndexDir() string
}

// StorageProvider opens per-session document stores.
type StorageProvider interface {
	Open(sessionID string, createMissing bool) (DocumentStore, error)

	// Reserved reports names the store uses internally and that can never
	// be document names.
	Reserved(name string) bool
}
