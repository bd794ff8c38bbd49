package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const fileStorePermissions = 0o600

var errEmptyFilePath = errors.New("credential_store.file.empty_path")

// FileStore persists the record as an indented JSON object, compatible with tokens.json.
type FileStore struct {
	mutex sync.Mutex
	path  string
}

// NewFileStore constructs a store backed by the JSON file at path. The file is created on first Merge.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("credential_store.open.file: %w", errEmptyFilePath)
	}
	return &FileStore{path: path}, nil
}

// Driver exposes the backend label.
func (store *FileStore) Driver() string {
	return "file"
}

// Path returns the location of the backing file.
func (store *FileStore) Path() string {
	return store.path
}

// Read loads the record; a missing file reads as empty.
func (store *FileStore) Read(ctx context.Context) (Record, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.readLocked()
}

// Merge rewrites the file with partial applied over the current contents.
func (store *FileStore) Merge(ctx context.Context, partial Record) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	current, readErr := store.readLocked()
	if readErr != nil {
		return readErr
	}
	encoded, encodeErr := json.MarshalIndent(MergeRecords(current, partial), "", "  ")
	if encodeErr != nil {
		return storageError("merge", store.Driver(), encodeErr)
	}
	if writeErr := store.writeAtomically(encoded); writeErr != nil {
		return storageError("merge", store.Driver(), writeErr)
	}
	return nil
}

func (store *FileStore) readLocked() (Record, error) {
	data, readErr := os.ReadFile(store.path)
	if errors.Is(readErr, os.ErrNotExist) {
		return Record{}, nil
	}
	if readErr != nil {
		return nil, storageError("read", store.Driver(), readErr)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return Record{}, nil
	}
	record := Record{}
	if decodeErr := json.Unmarshal(data, &record); decodeErr != nil {
		return nil, storageError("read", store.Driver(), decodeErr)
	}
	return record, nil
}

// writeAtomically replaces the file via a synced temporary sibling so a crash never leaves a half-written record.
func (store *FileStore) writeAtomically(data []byte) error {
	directory := filepath.Dir(store.path)
	if mkdirErr := os.MkdirAll(directory, 0o700); mkdirErr != nil {
		return mkdirErr
	}
	temporary, createErr := os.CreateTemp(directory, filepath.Base(store.path)+".*.tmp")
	if createErr != nil {
		return createErr
	}
	temporaryName := temporary.Name()
	cleanup := func() { _ = os.Remove(temporaryName) }

	if _, writeErr := temporary.Write(data); writeErr != nil {
		_ = temporary.Close()
		cleanup()
		return writeErr
	}
	if syncErr := temporary.Sync(); syncErr != nil {
		_ = temporary.Close()
		cleanup()
		return syncErr
	}
	if closeErr := temporary.Close(); closeErr != nil {
		cleanup()
		return closeErr
	}
	if chmodErr := os.Chmod(temporaryName, fileStorePermissions); chmodErr != nil {
		cleanup()
		return chmodErr
	}
	if renameErr := os.Rename(temporaryName, store.path); renameErr != nil {
		cleanup()
		return renameErr
	}
	return nil
}
