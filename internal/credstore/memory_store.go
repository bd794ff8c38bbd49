package credstore

import (
	"context"
	"sync"
)

// MemoryStore keeps the record in process memory. Used by the scheduled form and tests.
type MemoryStore struct {
	mutex  sync.Mutex
	record Record
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{record: Record{}}
}

// Driver exposes the backend label.
func (store *MemoryStore) Driver() string {
	return "memory"
}

// Read returns a copy of the current record.
func (store *MemoryStore) Read(ctx context.Context) (Record, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.record.Clone(), nil
}

// Merge applies partial over the current record.
func (store *MemoryStore) Merge(ctx context.Context, partial Record) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.record = MergeRecords(store.record, partial)
	return nil
}
