package main

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tyemirov/postbot/internal/credstore"
	"github.com/tyemirov/postbot/internal/credstorepg"
)

type driverNamer interface {
	Driver() string
}

// openCredentialStore resolves the store URL; pgx schemes use the pgx pool backend and
// everything else is handled by credstore.Open. The returned func releases connections.
func openCredentialStore(ctx context.Context, storeURL string) (credstore.Store, func(), error) {
	if isPgxURL(storeURL) {
		store, err := credstorepg.Open(ctx, storeURL, credstore.DefaultRecordKey)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	store, err := credstore.Open(ctx, storeURL, credstore.DefaultRecordKey)
	if err != nil {
		return nil, nil, err
	}
	release := func() {}
	if closer, ok := store.(interface{ Close() error }); ok {
		release = func() { _ = closer.Close() }
	}
	return store, release, nil
}

func isPgxURL(storeURL string) bool {
	parsed, err := url.Parse(strings.TrimSpace(storeURL))
	if err != nil {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "pgx", "postgres+pgx":
		return true
	default:
		return false
	}
}

func storeDriver(store credstore.Store) string {
	if named, ok := store.(driverNamer); ok {
		return named.Driver()
	}
	return "unknown"
}

// newUpstreamClient is shared by the token endpoint, the generator, and the X API.
func newUpstreamClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
