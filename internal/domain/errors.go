package domain

import "errors"

var (
	// ErrNotFound covers unknown session keys, documents and history records.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a write refuses to overwrite.
	ErrAlreadyExists = errors.New("already exists")
	// ErrStorageUnavailable means the session's storage area could not be accessed.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrUnsupportedSearchType is returned for search types other than list and vector.
	ErrUnsupportedSearchType = errors.New("unsupported search type")
	// ErrBackendFailure wraps index build and query errors from the index backend.
	ErrBackendFailure = errors.New("index backend failure")
	// ErrInvalidName rejects session ids and document names that are empty, path-like
	// or reserved by the session directory.
	ErrInvalidName = errors.New("invalid name")
)
