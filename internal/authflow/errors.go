package authflow

import "errors"

var (
	// ErrMissingParameter indicates the callback arrived without state or code.
	ErrMissingParameter = errors.New("authflow.missing_parameter")
	// ErrNoPendingAuthorization indicates a callback with no stored verifier and state.
	ErrNoPendingAuthorization = errors.New("authflow.no_pending_authorization")
	// ErrStateMismatch indicates the callback state differs from the stored one.
	ErrStateMismatch = errors.New("authflow.state_mismatch")
	// ErrAuthorizationDenied indicates the provider redirected back with an error instead of a code.
	ErrAuthorizationDenied = errors.New("authflow.authorization_denied")
	// ErrTokenExchangeFailed wraps upstream failures of the code exchange.
	ErrTokenExchangeFailed = errors.New("authflow.token_exchange_failed")
	// ErrNoRefreshTokenIssued indicates the exchange succeeded without offline access.
	ErrNoRefreshTokenIssued = errors.New("authflow.no_refresh_token_issued")
	// ErrNotAuthorized indicates no refresh token is stored.
	ErrNotAuthorized = errors.New("authflow.not_authorized")
	// ErrRefreshFailed wraps upstream refresh failures and unrotated responses.
	ErrRefreshFailed = errors.New("authflow.refresh_failed")
)
