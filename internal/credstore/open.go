package credstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Open selects a backend from the store URL scheme:
//
//	""                       in-memory
//	file:///path/tokens.json JSON file
//	sqlite:///path/db        GORM sqlite
//	postgres://...           GORM postgres
//	redis://host:6379/0      Redis hash
//	keyring://service        OS keychain
func Open(ctx context.Context, storeURL string, recordKey string) (Store, error) {
	trimmed := strings.TrimSpace(storeURL)
	if trimmed == "" || strings.EqualFold(trimmed, "memory:") || strings.EqualFold(trimmed, "memory://") {
		return NewMemoryStore(), nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("credential_store.parse_url: %w", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "file":
		return NewFileStore(filePath(parsed))
	case "sqlite", "sqlite3", "postgres", "postgresql":
		return NewDatabaseStore(ctx, trimmed, recordKey)
	case "redis", "rediss":
		return NewRedisStore(trimmed, recordKey)
	case "keyring":
		return NewKeyringStore(parsed.Host, recordKey), nil
	default:
		return nil, fmt.Errorf("credential_store.open.%s: %w", scheme, ErrUnsupportedScheme)
	}
}

func filePath(parsed *url.URL) string {
	switch {
	case parsed.Opaque != "":
		return parsed.Opaque
	case parsed.Host != "":
		return parsed.Host + parsed.Path
	default:
		return parsed.Path
	}
}
