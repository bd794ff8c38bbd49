package credstore

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrStorage indicates the backing medium could not be read or written.
	ErrStorage = errors.New("credential_store.storage")
	// ErrUnsupportedScheme indicates that no backend is registered for the store URL scheme.
	ErrUnsupportedScheme = errors.New("credential_store.unsupported_scheme")
)

// Store persists the single credential record.
//
// Merge is all-or-nothing for one call. Writers in different processes are not
// coordinated: two interleaved read-modify-write cycles against a file or keyring
// backend can lose one side's update.
type Store interface {
	// Read returns the stored record, or an empty non-nil record when nothing was written yet.
	Read(ctx context.Context) (Record, error)
	// Merge overwrites the fields present in partial and preserves all other stored fields.
	Merge(ctx context.Context, partial Record) error
}

func storageError(operation string, driver string, cause error) error {
	return fmt.Errorf("credential_store.%s.%s: %w: %w", operation, driver, ErrStorage, cause)
}
