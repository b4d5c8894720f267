package usecase

import (
	"errors"

	"docsearch/internal/domain"
)

// Operation names a service entry point for logging and error policy.
type Operation string

const (
	OpListFiles   Operation = "list_files"
	OpLoadHistory Operation = "history.load"
	OpUploadFiles Operation = "upload_files"
	OpSyncFiles   Operation = "sync_files"
	OpDeleteFile  Operation = "delete_file"
	OpSaveIndices Operation = "save_indices"
	OpQuery       Operation = "query"
	OpSaveChat    Operation = "save_chat"
	OpInitialize  Operation = "initialize"
)

// Policy decides what an operation does with a storage failure.
type Policy int

const (
	// PolicyPropagate returns the error to the caller.
	PolicyPropagate Policy = iota
	// PolicyDefault logs the error and returns the operation's default value.
	PolicyDefault
)

// ReadPolicy lists the read-only operations that degrade to a default.
// Everything else propagates.
var ReadPolicy = map[Operation]Policy{
	OpListFiles:   PolicyDefault,
	OpLoadHistory: PolicyDefault,
}

// recoverable reports whether op may swallow err and return its default.
// Index backend failures always reach the caller.
func recoverable(op Operation, err error) bool {
	if err == nil || errors.Is(err, domain.ErrBackendFailure) {
		return false
	}
	return ReadPolicy[op] == PolicyDefault
}
