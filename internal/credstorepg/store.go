package credstorepg

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tyemirov/postbot/internal/credstore"
)

const driverLabel = "pgx"

// Store persists the credential record in PostgreSQL through pgx.
type Store struct {
	pool      *pgxpool.Pool
	recordKey string
}

// NewStore constructs a store over an existing pool.
func NewStore(pool *pgxpool.Pool, recordKey string) *Store {
	if strings.TrimSpace(recordKey) == "" {
		recordKey = credstore.DefaultRecordKey
	}
	return &Store{pool: pool, recordKey: recordKey}
}

// Open builds the pool for a pgx:// URL, ensures the schema, and returns the store.
func Open(ctx context.Context, storeURL string, recordKey string) (*Store, error) {
	connectionURL, err := PostgresURL(storeURL)
	if err != nil {
		return nil, err
	}
	pool, poolErr := BuildPool(ctx, connectionURL)
	if poolErr != nil {
		return nil, fmt.Errorf("credential_store.open.%s: %w: %w", driverLabel, credstore.ErrStorage, poolErr)
	}
	if schemaErr := EnsureSchema(ctx, pool); schemaErr != nil {
		pool.Close()
		return nil, fmt.Errorf("credential_store.migrate.%s: %w: %w", driverLabel, credstore.ErrStorage, schemaErr)
	}
	return NewStore(pool, recordKey), nil
}

// PostgresURL rewrites a pgx:// URL into the postgres:// form pgx understands.
func PostgresURL(storeURL string) (string, error) {
	parsed, err := url.Parse(storeURL)
	if err != nil {
		return "", fmt.Errorf("credential_store.parse_url: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "pgx", "postgres+pgx":
		parsed.Scheme = "postgres"
		return parsed.String(), nil
	default:
		return "", fmt.Errorf("credential_store.open.%s: %w", strings.ToLower(parsed.Scheme), credstore.ErrUnsupportedScheme)
	}
}

// Driver exposes the backend label.
func (store *Store) Driver() string {
	return driverLabel
}

// Read assembles the record from its field rows.
func (store *Store) Read(ctx context.Context) (credstore.Record, error) {
	rows, err := store.pool.Query(ctx, `
SELECT field_name, field_value
FROM credential_fields
WHERE record_key = $1
`, store.recordKey)
	if err != nil {
		return nil, storageError("read", err)
	}
	defer rows.Close()

	record := credstore.Record{}
	for rows.Next() {
		var fieldName string
		var fieldValue string
		if scanErr := rows.Scan(&fieldName, &fieldValue); scanErr != nil {
			return nil, storageError("read", scanErr)
		}
		record[fieldName] = fieldValue
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, storageError("read", rowsErr)
	}
	return record, nil
}

// Merge upserts every field of partial inside one transaction.
func (store *Store) Merge(ctx context.Context, partial credstore.Record) error {
	if len(partial) == 0 {
		return nil
	}
	fieldNames := make([]string, 0, len(partial))
	for fieldName := range partial {
		fieldNames = append(fieldNames, fieldName)
	}
	sort.Strings(fieldNames)
	nowUnix := time.Now().UTC().Unix()

	err := pgx.BeginFunc(ctx, store.pool, func(tx pgx.Tx) error {
		for _, fieldName := range fieldNames {
			_, execErr := tx.Exec(ctx, `
INSERT INTO credential_fields (record_key, field_name, field_value, updated_at_unix)
VALUES ($1, $2, $3, $4)
ON CONFLICT (record_key, field_name)
DO UPDATE SET field_value = EXCLUDED.field_value, updated_at_unix = EXCLUDED.updated_at_unix
`, store.recordKey, fieldName, partial[fieldName], nowUnix)
			if execErr != nil {
				return execErr
			}
		}
		return nil
	})
	if err != nil {
		return storageError("merge", err)
	}
	return nil
}

// Close releases the pool.
func (store *Store) Close() {
	store.pool.Close()
}

func storageError(operation string, cause error) error {
	return fmt.Errorf("credential_store.%s.%s: %w: %w", operation, driverLabel, credstore.ErrStorage, cause)
}
