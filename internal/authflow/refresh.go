package authflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/tyemirov/postbot/internal/credstore"
	"github.com/tyemirov/postbot/internal/platform"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// AuthorizedClient carries a freshly minted token and an HTTP client that sends it.
type AuthorizedClient struct {
	Token      *oauth2.Token
	HTTPClient *http.Client
}

// RefreshManager exchanges the stored rotating refresh token for a new pair.
type RefreshManager struct {
	mutex       sync.Mutex
	store       credstore.Store
	oauthConfig *oauth2.Config
	httpClient  *http.Client
	logger      *zap.Logger
	metrics     MetricsRecorder
}

// NewRefreshManager constructs a manager; httpClient is used for the token endpoint and
// as the base transport of returned clients.
func NewRefreshManager(store credstore.Store, oauthConfig *oauth2.Config, httpClient *http.Client, logger *zap.Logger, metrics MetricsRecorder) *RefreshManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshManager{
		store:       store,
		oauthConfig: oauthConfig,
		httpClient:  httpClient,
		logger:      logger,
		metrics:     metricsOrNoop(metrics),
	}
}

// EnsureFreshToken spends the stored refresh token and persists the rotated pair before
// returning. Calls are serialized so one refresh token is never spent twice by this process.
func (manager *RefreshManager) EnsureFreshToken(ctx context.Context) (*AuthorizedClient, error) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	client, err := manager.refresh(ctx)
	if err != nil {
		manager.metrics.Increment(MetricRefreshFailure)
		manager.logger.Warn("token refresh failed", zap.String("code", "authflow.refresh.failed"), zap.Error(err))
		return nil, err
	}
	manager.metrics.Increment(MetricRefreshSuccess)
	manager.logger.Info("token refreshed", zap.String("code", "authflow.refresh.rotated"))
	return client, nil
}

func (manager *RefreshManager) refresh(ctx context.Context) (*AuthorizedClient, error) {
	record, readErr := manager.store.Read(ctx)
	if readErr != nil {
		return nil, fmt.Errorf("authflow.refresh: %w", readErr)
	}
	current, authorized := record.TokenPair()
	if !authorized {
		return nil, fmt.Errorf("authflow.refresh: %w", ErrNotAuthorized)
	}

	upstreamCtx := withHTTPClient(ctx, manager.httpClient)
	token, tokenErr := manager.oauthConfig.TokenSource(upstreamCtx, &oauth2.Token{RefreshToken: current.RefreshToken}).Token()
	if tokenErr != nil {
		return nil, fmt.Errorf("authflow.refresh.exchange: %w: %w", ErrRefreshFailed, tokenErr)
	}
	if token.RefreshToken == "" || token.RefreshToken == current.RefreshToken {
		return nil, fmt.Errorf("authflow.refresh.exchange: %w: %w", ErrRefreshFailed, errors.New("refresh token was not rotated"))
	}

	rotated := credstore.TokenPair{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken}
	if mergeErr := manager.store.Merge(ctx, rotated.Record()); mergeErr != nil {
		// The previous refresh token is already spent upstream.
		manager.logger.Error("rotated token pair not persisted", zap.String("code", "authflow.refresh.persist_failed"), zap.Error(mergeErr))
		return nil, fmt.Errorf("authflow.refresh: %w", mergeErr)
	}

	return &AuthorizedClient{
		Token:      token,
		HTTPClient: platform.NewBearerClient(manager.httpClient, token),
	}, nil
}
