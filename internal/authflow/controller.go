package authflow

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tyemirov/postbot/internal/credstore"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const stateByteLength = 32

var stateRandomSource io.Reader = rand.Reader

// Controller drives the PKCE authorization code flow: IssueLink, then HandleCallback.
type Controller struct {
	store            credstore.Store
	oauthConfig      *oauth2.Config
	httpClient       *http.Client
	logger           *zap.Logger
	metrics          MetricsRecorder
	generateVerifier func() string
	generateState    func() (string, error)
}

// NewController wires the flow to a credential store and an oauth2 client registration.
// httpClient is used for the token endpoint; nil means http.DefaultClient.
func NewController(store credstore.Store, oauthConfig *oauth2.Config, httpClient *http.Client, logger *zap.Logger, metrics MetricsRecorder) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		store:            store,
		oauthConfig:      oauthConfig,
		httpClient:       httpClient,
		logger:           logger,
		metrics:          metricsOrNoop(metrics),
		generateVerifier: oauth2.GenerateVerifier,
		generateState:    generateState,
	}
}

// IssueLink persists a fresh verifier and state and returns the consent URL.
// A second call overwrites the pending session of the first.
func (controller *Controller) IssueLink(ctx context.Context) (string, error) {
	verifier := controller.generateVerifier()
	state, stateErr := controller.generateState()
	if stateErr != nil {
		return "", fmt.Errorf("authflow.issue_link.state: %w", stateErr)
	}
	session := credstore.AuthSession{CodeVerifier: verifier, State: state}
	if mergeErr := controller.store.Merge(ctx, session.Record()); mergeErr != nil {
		return "", fmt.Errorf("authflow.issue_link: %w", mergeErr)
	}
	controller.metrics.Increment(MetricLinkIssued)
	controller.logger.Info("authorization link issued", zap.String("code", "authflow.link.issued"))
	return controller.oauthConfig.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// HandleCallback validates the redirect against the pending session and exchanges the code.
// No exchange is attempted unless the state matches exactly.
func (controller *Controller) HandleCallback(ctx context.Context, state string, code string) (credstore.TokenPair, error) {
	pair, err := controller.handleCallback(ctx, state, code)
	if err != nil {
		controller.metrics.Increment(MetricCallbackFailure)
		controller.logger.Warn("authorization callback rejected", zap.String("code", "authflow.callback.failed"), zap.Error(err))
		return credstore.TokenPair{}, err
	}
	controller.metrics.Increment(MetricCallbackSuccess)
	controller.logger.Info("authorization completed", zap.String("code", "authflow.callback.authorized"))
	return pair, nil
}

func (controller *Controller) handleCallback(ctx context.Context, state string, code string) (credstore.TokenPair, error) {
	if strings.TrimSpace(state) == "" || strings.TrimSpace(code) == "" {
		return credstore.TokenPair{}, fmt.Errorf("authflow.callback: %w", ErrMissingParameter)
	}

	record, readErr := controller.store.Read(ctx)
	if readErr != nil {
		return credstore.TokenPair{}, fmt.Errorf("authflow.callback: %w", readErr)
	}
	session, pending := record.AuthSession()
	if !pending {
		return credstore.TokenPair{}, fmt.Errorf("authflow.callback: %w", ErrNoPendingAuthorization)
	}
	if subtle.ConstantTimeCompare([]byte(state), []byte(session.State)) != 1 {
		return credstore.TokenPair{}, fmt.Errorf("authflow.callback: %w", ErrStateMismatch)
	}

	token, exchangeErr := controller.oauthConfig.Exchange(withHTTPClient(ctx, controller.httpClient), code, oauth2.VerifierOption(session.CodeVerifier))
	if exchangeErr != nil {
		return credstore.TokenPair{}, fmt.Errorf("authflow.callback.exchange: %w: %w", ErrTokenExchangeFailed, exchangeErr)
	}
	if token.RefreshToken == "" {
		return credstore.TokenPair{}, fmt.Errorf("authflow.callback.exchange: %w", ErrNoRefreshTokenIssued)
	}

	pair := credstore.TokenPair{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken}
	if mergeErr := controller.store.Merge(ctx, pair.Record()); mergeErr != nil {
		return credstore.TokenPair{}, fmt.Errorf("authflow.callback: %w", mergeErr)
	}
	return pair, nil
}

func generateState() (string, error) {
	buffer := make([]byte, stateByteLength)
	if _, err := io.ReadFull(stateRandomSource, buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

func withHTTPClient(ctx context.Context, httpClient *http.Client) context.Context {
	if httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, httpClient)
}
