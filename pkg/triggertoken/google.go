package triggertoken

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"
)

// IDTokenValidator validates Google-signed ID tokens. *idtoken.Validator satisfies it.
type IDTokenValidator interface {
	Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

// GoogleVerifier accepts OIDC tokens minted by Google for service accounts.
type GoogleVerifier struct {
	validator     IDTokenValidator
	audience      string
	allowedEmails map[string]struct{}
}

// NewGoogleVerifier builds a verifier backed by Google's published certificates.
// allowedEmails must name at least one caller.
func NewGoogleVerifier(ctx context.Context, audience string, allowedEmails []string) (*GoogleVerifier, error) {
	if len(normalizeEmails(allowedEmails)) == 0 {
		return nil, fmt.Errorf("trigger.google.new: %w", ErrNoAllowedCallers)
	}
	validator, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("trigger.google.new: %w", err)
	}
	return NewGoogleVerifierWithValidator(validator, audience, allowedEmails), nil
}

// NewGoogleVerifierWithValidator uses the supplied token validator. With an empty
// allow-list every token is rejected.
func NewGoogleVerifierWithValidator(validator IDTokenValidator, audience string, allowedEmails []string) *GoogleVerifier {
	return &GoogleVerifier{validator: validator, audience: audience, allowedEmails: normalizeEmails(allowedEmails)}
}

func normalizeEmails(emails []string) map[string]struct{} {
	normalized := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		if trimmed := strings.ToLower(strings.TrimSpace(email)); trimmed != "" {
			normalized[trimmed] = struct{}{}
		}
	}
	return normalized
}

// Verify implements Verifier.
func (verifier *GoogleVerifier) Verify(ctx context.Context, token string) (Caller, error) {
	if strings.TrimSpace(token) == "" {
		return Caller{}, fmt.Errorf("trigger.google.verify: %w", ErrMissingToken)
	}
	payload, err := verifier.validator.Validate(ctx, token, verifier.audience)
	if err != nil {
		return Caller{}, fmt.Errorf("trigger.google.verify: %w: %w", ErrInvalidToken, err)
	}
	if payload.Issuer != "https://accounts.google.com" && payload.Issuer != "accounts.google.com" {
		return Caller{}, fmt.Errorf("trigger.google.verify: %w", ErrInvalidIssuer)
	}
	email, _ := payload.Claims["email"].(string)
	emailVerified, _ := payload.Claims["email_verified"].(bool)
	if _, allowed := verifier.allowedEmails[strings.ToLower(email)]; !allowed || !emailVerified {
		return Caller{}, fmt.Errorf("trigger.google.verify: %w", ErrCallerNotAllowed)
	}
	return Caller{Subject: email, Source: "google"}, nil
}
