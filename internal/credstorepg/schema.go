package credstorepg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the credential table if it does not exist. The layout matches the GORM store.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credential_fields (
    record_key TEXT NOT NULL,
    field_name TEXT NOT NULL,
    field_value TEXT NOT NULL DEFAULT '',
    updated_at_unix BIGINT NOT NULL,
    PRIMARY KEY (record_key, field_name)
);
`)
	return err
}
