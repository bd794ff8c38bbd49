package authflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/tyemirov/postbot/internal/credstore"
)

const (
	testClientID     = "client-id"
	testClientSecret = "client-secret"
	testRedirectURL  = "http://127.0.0.1:3000/callback"
)

type tokenResponse struct {
	status int
	body   map[string]any
}

// fakeTokenEndpoint records every form posted to it and replies with the queued response.
type fakeTokenEndpoint struct {
	mutex    sync.Mutex
	server   *httptest.Server
	requests []url.Values
	response tokenResponse
}

func newFakeTokenEndpoint(t *testing.T, response tokenResponse) *fakeTokenEndpoint {
	t.Helper()
	endpoint := &fakeTokenEndpoint{response: response}
	endpoint.server = httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		clientID, clientSecret, hasBasic := request.BasicAuth()
		if !hasBasic || clientID != testClientID || clientSecret != testClientSecret {
			t.Errorf("token endpoint expected basic client credentials")
		}
		if err := request.ParseForm(); err != nil {
			t.Errorf("parse token form: %v", err)
		}
		endpoint.mutex.Lock()
		endpoint.requests = append(endpoint.requests, request.PostForm)
		current := endpoint.response
		endpoint.mutex.Unlock()

		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(current.status)
		_ = json.NewEncoder(writer).Encode(current.body)
	}))
	t.Cleanup(endpoint.server.Close)
	return endpoint
}

func (endpoint *fakeTokenEndpoint) respond(response tokenResponse) {
	endpoint.mutex.Lock()
	defer endpoint.mutex.Unlock()
	endpoint.response = response
}

func (endpoint *fakeTokenEndpoint) calls() []url.Values {
	endpoint.mutex.Lock()
	defer endpoint.mutex.Unlock()
	return append([]url.Values(nil), endpoint.requests...)
}

func (endpoint *fakeTokenEndpoint) providerConfig() ProviderConfig {
	return ProviderConfig{
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		AuthURL:      "https://provider.example/i/oauth2/authorize",
		TokenURL:     endpoint.server.URL + "/2/oauth2/token",
		RedirectURL:  testRedirectURL,
	}
}

func issuedTokens(accessToken string, refreshToken string) tokenResponse {
	body := map[string]any{
		"token_type":   "bearer",
		"access_token": accessToken,
		"expires_in":   7200,
		"scope":        "tweet.read tweet.write users.read offline.access",
	}
	if refreshToken != "" {
		body["refresh_token"] = refreshToken
	}
	return tokenResponse{status: http.StatusOK, body: body}
}

func rejectedGrant() tokenResponse {
	return tokenResponse{
		status: http.StatusBadRequest,
		body:   map[string]any{"error": "invalid_request", "error_description": "Value passed for the token was invalid."},
	}
}

var errStoreUnavailable = errors.New("disk unavailable")

// failingStore reports storage errors for reads and/or merges.
type failingStore struct {
	credstore.Store
	failRead  bool
	failMerge bool
}

func (store failingStore) Read(ctx context.Context) (credstore.Record, error) {
	if store.failRead {
		return nil, errors.Join(credstore.ErrStorage, errStoreUnavailable)
	}
	return store.Store.Read(ctx)
}

func (store failingStore) Merge(ctx context.Context, partial credstore.Record) error {
	if store.failMerge {
		return errors.Join(credstore.ErrStorage, errStoreUnavailable)
	}
	return store.Store.Merge(ctx, partial)
}

func readRecord(t *testing.T, store credstore.Store) credstore.Record {
	t.Helper()
	record, err := store.Read(context.Background())
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	return record
}
