package credstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "postbot:credentials:"

// RedisStore keeps the record in a Redis hash; HSET gives field-wise merge in one command.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore parses a redis:// or rediss:// URL and constructs the store. No connection is made until first use.
func NewRedisStore(redisURL string, recordKey string) (*RedisStore, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("credential_store.open.redis: %w", err)
	}
	return NewRedisStoreWithClient(redis.NewClient(options), recordKey), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, recordKey string) *RedisStore {
	if strings.TrimSpace(recordKey) == "" {
		recordKey = DefaultRecordKey
	}
	return &RedisStore{client: client, key: redisKeyPrefix + recordKey}
}

// Driver exposes the backend label.
func (store *RedisStore) Driver() string {
	return "redis"
}

// Read loads all hash fields.
func (store *RedisStore) Read(ctx context.Context) (Record, error) {
	values, err := store.client.HGetAll(ctx, store.key).Result()
	if err != nil {
		return nil, storageError("read", store.Driver(), err)
	}
	record := make(Record, len(values))
	for field, value := range values {
		record[field] = value
	}
	return record, nil
}

// Merge writes the partial fields with a single HSET.
func (store *RedisStore) Merge(ctx context.Context, partial Record) error {
	if len(partial) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(partial))
	for field, value := range partial {
		values[field] = value
	}
	if err := store.client.HSet(ctx, store.key, values).Err(); err != nil {
		return storageError("merge", store.Driver(), err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (store *RedisStore) Close() error {
	return store.client.Close()
}
