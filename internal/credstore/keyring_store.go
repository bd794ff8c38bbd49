package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the keychain service name used when the URL does not name one.
const DefaultKeyringService = "postbot"

// KeyringStore keeps the record as one JSON secret in the OS keychain.
type KeyringStore struct {
	mutex   sync.Mutex
	service string
	user    string
}

// NewKeyringStore constructs a store under the given keychain service; the record key is the account name.
func NewKeyringStore(service string, recordKey string) *KeyringStore {
	if strings.TrimSpace(service) == "" {
		service = DefaultKeyringService
	}
	if strings.TrimSpace(recordKey) == "" {
		recordKey = DefaultRecordKey
	}
	return &KeyringStore{service: service, user: recordKey}
}

// Driver exposes the backend label.
func (store *KeyringStore) Driver() string {
	return "keyring"
}

// Read decodes the stored secret; a missing secret reads as empty.
func (store *KeyringStore) Read(ctx context.Context) (Record, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.readLocked()
}

// Merge rewrites the secret with partial applied.
func (store *KeyringStore) Merge(ctx context.Context, partial Record) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	current, readErr := store.readLocked()
	if readErr != nil {
		return readErr
	}
	encoded, encodeErr := json.Marshal(MergeRecords(current, partial))
	if encodeErr != nil {
		return storageError("merge", store.Driver(), encodeErr)
	}
	if setErr := keyring.Set(store.service, store.user, string(encoded)); setErr != nil {
		return storageError("merge", store.Driver(), setErr)
	}
	return nil
}

func (store *KeyringStore) readLocked() (Record, error) {
	secret, getErr := keyring.Get(store.service, store.user)
	if errors.Is(getErr, keyring.ErrNotFound) {
		return Record{}, nil
	}
	if getErr != nil {
		return nil, storageError("read", store.Driver(), getErr)
	}
	record := Record{}
	if decodeErr := json.Unmarshal([]byte(secret), &record); decodeErr != nil {
		return nil, storageError("read", store.Driver(), decodeErr)
	}
	return record, nil
}
