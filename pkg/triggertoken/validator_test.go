package triggertoken

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/api/idtoken"
)

type fixedClock struct {
	current time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.current
}

func newTestValidator(t *testing.T, now time.Time) *Validator {
	t.Helper()
	validator, err := New(Config{SigningKey: []byte("trigger-secret"), Clock: fixedClock{current: now}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return validator
}

func TestNewRequiresSigningKey(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); !errors.Is(err, ErrMissingSigningKey) {
		t.Fatalf("expected missing signing key error, got %v", err)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	validator, err := New(Config{SigningKey: []byte("secret")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if validator.issuer != DefaultIssuer || validator.audience != DefaultAudience || validator.clock == nil {
		t.Fatalf("expected defaults, got %+v", validator)
	}
}

func TestMintedTokenValidates(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	validator := newTestValidator(t, now)
	token, expiresAt, err := validator.Mint("github-actions", time.Hour)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if !expiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	caller, err := validator.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if caller.Subject != "github-actions" || caller.Source != "hs256" {
		t.Fatalf("unexpected caller %+v", caller)
	}
}

func TestValidateTokenRejections(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	validator := newTestValidator(t, now)
	valid, _, err := validator.Mint("cron", time.Minute)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	otherKey, err := New(Config{SigningKey: []byte("other-secret"), Clock: fixedClock{current: now}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	forged, _, _ := otherKey.Mint("cron", time.Minute)

	otherAudience, err := New(Config{SigningKey: []byte("trigger-secret"), Audience: "someone-else", Clock: fixedClock{current: now}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wrongAudience, _, _ := otherAudience.Mint("cron", time.Minute)

	otherIssuer, err := New(Config{SigningKey: []byte("trigger-secret"), Issuer: "tauth", Clock: fixedClock{current: now}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wrongIssuer, _, _ := otherIssuer.Mint("cron", time.Minute)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Issuer: DefaultIssuer, Audience: jwt.ClaimStrings{DefaultAudience}}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}

	later := newTestValidator(t, now.Add(2*time.Minute))

	testCases := []struct {
		name      string
		validator *Validator
		token     string
		want      error
	}{
		{name: "empty", validator: validator, token: " ", want: ErrMissingToken},
		{name: "garbage", validator: validator, token: "not-a-jwt", want: ErrInvalidToken},
		{name: "wrong key", validator: validator, token: forged, want: ErrInvalidToken},
		{name: "alg none", validator: validator, token: noneToken, want: ErrInvalidToken},
		{name: "wrong audience", validator: validator, token: wrongAudience, want: ErrInvalidAudience},
		{name: "wrong issuer", validator: validator, token: wrongIssuer, want: ErrInvalidIssuer},
		{name: "expired", validator: later, token: valid, want: ErrTokenExpired},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			if _, err := testCase.validator.ValidateToken(testCase.token); !errors.Is(err, testCase.want) {
				t.Fatalf("expected %v, got %v", testCase.want, err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		header string
		want   string
		ok     bool
	}{
		{header: "Bearer abc.def", want: "abc.def", ok: true},
		{header: "bearer   abc.def ", want: "abc.def", ok: true},
		{header: "Basic abc", ok: false},
		{header: "Bearer", ok: false},
		{header: "", ok: false},
	}
	for _, testCase := range testCases {
		request := httptest.NewRequest(http.MethodPost, "/post", nil)
		if testCase.header != "" {
			request.Header.Set("Authorization", testCase.header)
		}
		token, err := BearerToken(request)
		if testCase.ok && (err != nil || token != testCase.want) {
			t.Fatalf("header %q: expected %q, got %q (%v)", testCase.header, testCase.want, token, err)
		}
		if !testCase.ok && !errors.Is(err, ErrMissingToken) {
			t.Fatalf("header %q: expected ErrMissingToken, got %v", testCase.header, err)
		}
	}
}

type stubIDTokenValidator struct {
	payload  *idtoken.Payload
	err      error
	audience string
}

func (validator *stubIDTokenValidator) Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error) {
	validator.audience = audience
	return validator.payload, validator.err
}

func googlePayload(issuer string, email string, verified bool) *idtoken.Payload {
	return &idtoken.Payload{
		Issuer:   issuer,
		Audience: "https://postbot.example/post",
		Subject:  "1122334455",
		Claims: map[string]interface{}{
			"email":          email,
			"email_verified": verified,
		},
	}
}

func TestGoogleVerifier(t *testing.T) {
	t.Parallel()

	scheduler := "scheduler@project.iam.gserviceaccount.com"
	testCases := []struct {
		name    string
		payload *idtoken.Payload
		err     error
		allowed []string
		want    error
		subject string
	}{
		{name: "allowed service account", payload: googlePayload("https://accounts.google.com", scheduler, true), allowed: []string{scheduler}, subject: scheduler},
		{name: "short issuer form", payload: googlePayload("accounts.google.com", scheduler, true), allowed: []string{" Scheduler@project.iam.gserviceaccount.com "}, subject: scheduler},
		{name: "empty allow list rejects", payload: googlePayload("https://accounts.google.com", "other@example.com", true), want: ErrCallerNotAllowed},
		{name: "blank allow list entries reject", payload: googlePayload("https://accounts.google.com", "other@example.com", true), allowed: []string{" ", ""}, want: ErrCallerNotAllowed},
		{name: "not in allow list", payload: googlePayload("https://accounts.google.com", "other@example.com", true), allowed: []string{scheduler}, want: ErrCallerNotAllowed},
		{name: "unverified email", payload: googlePayload("https://accounts.google.com", scheduler, false), allowed: []string{scheduler}, want: ErrCallerNotAllowed},
		{name: "foreign issuer", payload: googlePayload("https://issuer.example", scheduler, true), want: ErrInvalidIssuer},
		{name: "signature rejected", err: errors.New("idtoken: invalid token"), want: ErrInvalidToken},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			stub := &stubIDTokenValidator{payload: testCase.payload, err: testCase.err}
			verifier := NewGoogleVerifierWithValidator(stub, "https://postbot.example/post", testCase.allowed)
			caller, err := verifier.Verify(context.Background(), "google-id-token")
			if testCase.want != nil {
				if !errors.Is(err, testCase.want) {
					t.Fatalf("expected %v, got %v", testCase.want, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if caller.Subject != testCase.subject || caller.Source != "google" {
				t.Fatalf("unexpected caller %+v", caller)
			}
			if stub.audience != "https://postbot.example/post" {
				t.Fatalf("expected audience to be forwarded, got %q", stub.audience)
			}
		})
	}
}

func TestNewGoogleVerifierRequiresAllowedCallers(t *testing.T) {
	t.Parallel()

	for _, allowed := range [][]string{nil, {"", "   "}} {
		if _, err := NewGoogleVerifier(context.Background(), "aud", allowed); !errors.Is(err, ErrNoAllowedCallers) {
			t.Fatalf("expected ErrNoAllowedCallers for %q, got %v", allowed, err)
		}
	}
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Now().UTC()
	validator := newTestValidator(t, now)
	token, _, err := validator.Mint("cron", time.Hour)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	rejecting := NewGoogleVerifierWithValidator(&stubIDTokenValidator{err: errors.New("not google")}, "aud", nil)

	router := gin.New()
	router.POST("/post", GinMiddleware(rejecting, validator), func(contextGin *gin.Context) {
		caller, _ := contextGin.Get(DefaultContextKey)
		contextGin.JSON(http.StatusOK, gin.H{"subject": caller.(Caller).Subject})
	})

	testCases := []struct {
		name   string
		header string
		want   int
	}{
		{name: "accepted by second verifier", header: "Bearer " + token, want: http.StatusOK},
		{name: "missing header", want: http.StatusUnauthorized},
		{name: "rejected by all", header: "Bearer forged", want: http.StatusUnauthorized},
	}
	for _, testCase := range testCases {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodPost, "/post", nil)
		if testCase.header != "" {
			request.Header.Set("Authorization", testCase.header)
		}
		router.ServeHTTP(recorder, request)
		if recorder.Code != testCase.want {
			t.Fatalf("%s: expected %d, got %d", testCase.name, testCase.want, recorder.Code)
		}
	}
}
