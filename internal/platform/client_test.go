package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestCreatePostSubmitsText(t *testing.T) {
	t.Parallel()

	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPost || request.URL.Path != "/2/tweets" {
			t.Errorf("unexpected request %s %s", request.Method, request.URL.Path)
		}
		if err := json.NewDecoder(request.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusCreated)
		_, _ = writer.Write([]byte(`{"data":{"id":"1001","text":"hello"}}`))
	}))
	defer server.Close()

	post, err := NewClient(server.URL, server.Client()).CreatePost(context.Background(), "hello")
	if err != nil {
		t.Fatalf("create post failed: %v", err)
	}
	if received["text"] != "hello" {
		t.Fatalf("expected text hello to be submitted, got %#v", received)
	}
	if post.ID != "1001" || post.Text != "hello" {
		t.Fatalf("unexpected post %#v", post)
	}
}

func TestCreatePostRejectedIsSubmitFailed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusForbidden)
		_, _ = writer.Write([]byte(`{"title":"Forbidden","detail":"You are not allowed to create a Tweet with duplicate content."}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, server.Client()).CreatePost(context.Background(), "dup")
	if !errors.Is(err, ErrSubmitFailed) {
		t.Fatalf("expected ErrSubmitFailed, got %v", err)
	}
}

func TestCreatePostTransportFailureIsSubmitFailed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	_, err := NewClient(baseURL, nil).CreatePost(context.Background(), "hello")
	if !errors.Is(err, ErrSubmitFailed) {
		t.Fatalf("expected ErrSubmitFailed, got %v", err)
	}
}

func TestCreatePostMissingDataIsSubmitFailed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte(`{"errors":[{"message":"something odd"}]}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, server.Client()).CreatePost(context.Background(), "hello")
	if !errors.Is(err, ErrSubmitFailed) {
		t.Fatalf("expected ErrSubmitFailed, got %v", err)
	}
}

func TestResolverSendsBearerToken(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/2/users/me" {
			t.Errorf("unexpected path %s", request.URL.Path)
		}
		if request.Header.Get("Authorization") != "Bearer access-1" {
			writer.WriteHeader(http.StatusUnauthorized)
			_, _ = writer.Write([]byte(`{"title":"Unauthorized"}`))
			return
		}
		_, _ = writer.Write([]byte(`{"data":{"id":"42","name":"Bot","username":"postbot"}}`))
	}))
	defer server.Close()

	identity, err := NewResolver(server.URL, server.Client()).ResolveIdentity(context.Background(), "access-1")
	if err != nil {
		t.Fatalf("resolve identity failed: %v", err)
	}
	if identity.ID != "42" || identity.Username != "postbot" {
		t.Fatalf("unexpected identity %#v", identity)
	}

	_, err = NewResolver(server.URL, server.Client()).ResolveIdentity(context.Background(), "wrong")
	if !errors.Is(err, ErrIdentityLookupFailed) {
		t.Fatalf("expected ErrIdentityLookupFailed, got %v", err)
	}
}

func TestNewBearerClientKeepsBaseTimeout(t *testing.T) {
	t.Parallel()

	base := &http.Client{Timeout: 200 * time.Millisecond}
	authorized := NewBearerClient(base, &oauth2.Token{AccessToken: "access-1"})
	if authorized.Timeout != base.Timeout {
		t.Fatalf("expected timeout %s, got %s", base.Timeout, authorized.Timeout)
	}
	if NewBearerClient(nil, &oauth2.Token{AccessToken: "access-1"}).Transport == nil {
		t.Fatalf("expected bearer transport without a base client")
	}
}

func TestCreatePostStalledServerHonorsTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		select {
		case <-request.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	base := server.Client()
	base.Timeout = 100 * time.Millisecond
	client := NewClient(server.URL, NewBearerClient(base, &oauth2.Token{AccessToken: "access-1"}))

	started := time.Now()
	_, err := client.CreatePost(context.Background(), "hello")
	if !errors.Is(err, ErrSubmitFailed) {
		t.Fatalf("expected ErrSubmitFailed, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("request was not bounded by the client timeout, took %s", elapsed)
	}
}

func TestResolverHonorsTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		select {
		case <-request.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	base := server.Client()
	base.Timeout = 100 * time.Millisecond
	if _, err := NewResolver(server.URL, base).ResolveIdentity(context.Background(), "access-1"); !errors.Is(err, ErrIdentityLookupFailed) {
		t.Fatalf("expected ErrIdentityLookupFailed, got %v", err)
	}
}
