package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the X API host.
const DefaultBaseURL = "https://api.twitter.com"

const maxResponseBytes = 1 << 20

var (
	// ErrSubmitFailed indicates the platform rejected the post or the request could not be delivered.
	ErrSubmitFailed = errors.New("platform.submit_failed")
	// ErrIdentityLookupFailed indicates the authorized user's profile could not be fetched.
	ErrIdentityLookupFailed = errors.New("platform.identity_lookup_failed")
)

// Post is the platform record of a submitted post.
type Post struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Identity is the authorized account.
type Identity struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Client calls the X API v2 with an HTTP client that already carries the bearer token.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client; an empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

type apiProblem struct {
	Title   string `json:"title"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

type apiEnvelope[T any] struct {
	Data   *T           `json:"data"`
	Errors []apiProblem `json:"errors"`
	Title  string       `json:"title"`
	Detail string       `json:"detail"`
}

// CreatePost submits text as a new post.
func (client *Client) CreatePost(ctx context.Context, text string) (Post, error) {
	body, encodeErr := json.Marshal(map[string]string{"text": text})
	if encodeErr != nil {
		return Post{}, fmt.Errorf("platform.create_post: %w: %w", ErrSubmitFailed, encodeErr)
	}
	post, err := doJSON[Post](ctx, client, http.MethodPost, "/2/tweets", body)
	if err != nil {
		return Post{}, fmt.Errorf("platform.create_post: %w: %w", ErrSubmitFailed, err)
	}
	return post, nil
}

// Me returns the identity the access token belongs to.
func (client *Client) Me(ctx context.Context) (Identity, error) {
	identity, err := doJSON[Identity](ctx, client, http.MethodGet, "/2/users/me", nil)
	if err != nil {
		return Identity{}, fmt.Errorf("platform.me: %w: %w", ErrIdentityLookupFailed, err)
	}
	return identity, nil
}

func doJSON[T any](ctx context.Context, client *Client, method string, path string, body []byte) (T, error) {
	var zero T
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	request, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, reader)
	if err != nil {
		return zero, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return zero, err
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return zero, fmt.Errorf("read response: %w", err)
	}

	var envelope apiEnvelope[T]
	decodeErr := json.Unmarshal(payload, &envelope)
	if response.StatusCode >= 300 {
		return zero, fmt.Errorf("status=%d: %s", response.StatusCode, problemText(envelope, decodeErr))
	}
	if decodeErr != nil {
		return zero, fmt.Errorf("decode response: %w", decodeErr)
	}
	if envelope.Data == nil {
		return zero, fmt.Errorf("response missing data: %s", problemText(envelope, nil))
	}
	return *envelope.Data, nil
}

func problemText[T any](envelope apiEnvelope[T], decodeErr error) string {
	if decodeErr != nil {
		return "unreadable error body"
	}
	if envelope.Detail != "" {
		return envelope.Detail
	}
	if envelope.Title != "" {
		return envelope.Title
	}
	for _, problem := range envelope.Errors {
		switch {
		case problem.Detail != "":
			return problem.Detail
		case problem.Message != "":
			return problem.Message
		case problem.Title != "":
			return problem.Title
		}
	}
	return "no detail"
}

// Resolver looks up identities for freshly issued access tokens.
type Resolver struct {
	baseURL    string
	httpClient *http.Client
}

// NewResolver constructs a Resolver; httpClient supplies the transport and timeout.
func NewResolver(baseURL string, httpClient *http.Client) *Resolver {
	return &Resolver{baseURL: baseURL, httpClient: httpClient}
}

// ResolveIdentity calls /2/users/me with the given access token.
func (resolver *Resolver) ResolveIdentity(ctx context.Context, accessToken string) (Identity, error) {
	authorized := NewBearerClient(resolver.httpClient, &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	return NewClient(resolver.baseURL, authorized).Me(ctx)
}

// NewBearerClient returns a client that sends token on every request with the base
// client's transport and timeout.
func NewBearerClient(base *http.Client, token *oauth2.Token) *http.Client {
	authorized := &http.Client{
		Transport: &oauth2.Transport{Source: oauth2.StaticTokenSource(token)},
	}
	if base != nil {
		authorized.Transport = &oauth2.Transport{Base: base.Transport, Source: oauth2.StaticTokenSource(token)}
		authorized.Timeout = base.Timeout
	}
	return authorized
}
