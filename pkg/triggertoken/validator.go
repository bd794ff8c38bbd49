// Package triggertoken authenticates callers of the post trigger.
//
// Two token kinds are accepted: HS256 tokens minted with a shared key (mint-trigger-token)
// and Google-signed OIDC tokens such as those attached by Cloud Scheduler.
package triggertoken

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Defaults applied when Config leaves a field empty.
const (
	DefaultIssuer     = "postbot"
	DefaultAudience   = "postbot-trigger"
	DefaultContextKey = "trigger_caller"
)

// Sentinel errors exposed by the verifiers.
var (
	ErrMissingSigningKey = errors.New("trigger.validator.missing_signing_key")
	ErrMissingToken      = errors.New("trigger.validator.missing_token")
	ErrInvalidToken      = errors.New("trigger.validator.invalid_token")
	ErrInvalidIssuer     = errors.New("trigger.validator.invalid_issuer")
	ErrInvalidAudience   = errors.New("trigger.validator.invalid_audience")
	ErrTokenExpired      = errors.New("trigger.validator.expired")
	ErrCallerNotAllowed  = errors.New("trigger.validator.caller_not_allowed")
	ErrNoAllowedCallers  = errors.New("trigger.validator.no_allowed_callers")
)

// Caller identifies an authenticated trigger.
type Caller struct {
	Subject string
	Source  string
}

// Verifier authenticates a bearer token presented to the trigger.
type Verifier interface {
	Verify(ctx context.Context, token string) (Caller, error)
}

// Config configures the HS256 Validator.
type Config struct {
	SigningKey []byte
	Issuer     string
	Audience   string
	Clock      Clock
}

// Validator mints and validates HS256 trigger tokens.
type Validator struct {
	signingKey []byte
	issuer     string
	audience   string
	clock      Clock
}

// New constructs a Validator after validating the supplied configuration.
func New(configuration Config) (*Validator, error) {
	if len(configuration.SigningKey) == 0 {
		return nil, fmt.Errorf("trigger.validator.new: %w", ErrMissingSigningKey)
	}
	issuer := strings.TrimSpace(configuration.Issuer)
	if issuer == "" {
		issuer = DefaultIssuer
	}
	audience := strings.TrimSpace(configuration.Audience)
	if audience == "" {
		audience = DefaultAudience
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Validator{
		signingKey: configuration.SigningKey,
		issuer:     issuer,
		audience:   audience,
		clock:      clock,
	}, nil
}

// Mint signs a token for subject valid for ttl.
func (validator *Validator) Mint(subject string, ttl time.Duration) (string, time.Time, error) {
	issuedAt := validator.clock.Now()
	expiresAt := issuedAt.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    validator.issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{validator.audience},
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString(validator.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("trigger.validator.mint: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates the provided JWT string and returns its claims.
func (validator *Validator) ValidateToken(tokenString string) (*jwt.RegisteredClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("trigger.validator.validate_token: %w", ErrMissingToken)
	}
	claims := &jwt.RegisteredClaims{}
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, claims, func(parsed *jwt.Token) (interface{}, error) {
		return validator.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time {
		return validator.clock.Now()
	}))
	if parseErr != nil {
		if errors.Is(parseErr, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("trigger.validator.validate_token: %w", ErrTokenExpired)
		}
		return nil, fmt.Errorf("trigger.validator.validate_token: %w", ErrInvalidToken)
	}
	if parsedToken == nil || !parsedToken.Valid {
		return nil, fmt.Errorf("trigger.validator.validate_token: %w", ErrInvalidToken)
	}
	if claims.Issuer != validator.issuer {
		return nil, fmt.Errorf("trigger.validator.validate_token: %w", ErrInvalidIssuer)
	}
	if !containsString(claims.Audience, validator.audience) {
		return nil, fmt.Errorf("trigger.validator.validate_token: %w", ErrInvalidAudience)
	}
	return claims, nil
}

// Verify implements Verifier.
func (validator *Validator) Verify(ctx context.Context, token string) (Caller, error) {
	claims, err := validator.ValidateToken(token)
	if err != nil {
		return Caller{}, err
	}
	return Caller{Subject: claims.Subject, Source: "hs256"}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(request *http.Request) (string, error) {
	if request == nil {
		return "", fmt.Errorf("trigger.bearer_token: %w", ErrMissingToken)
	}
	header := strings.TrimSpace(request.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("trigger.bearer_token: %w", ErrMissingToken)
	}
	return strings.TrimSpace(token), nil
}

// GinMiddleware accepts the request when any verifier accepts its bearer token and
// stores the Caller under DefaultContextKey. Other requests get 401.
func GinMiddleware(verifiers ...Verifier) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		token, tokenErr := BearerToken(contextGin.Request)
		if tokenErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrMissingToken.Error()})
			return
		}
		for _, verifier := range verifiers {
			caller, verifyErr := verifier.Verify(contextGin.Request.Context(), token)
			if verifyErr == nil {
				contextGin.Set(DefaultContextKey, caller)
				contextGin.Next()
				return
			}
		}
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrInvalidToken.Error()})
	}
}

func containsString(values []string, needle string) bool {
	for _, value := range values {
		if value == needle {
			return true
		}
	}
	return false
}
