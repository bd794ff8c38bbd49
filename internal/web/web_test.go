package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/postbot/internal/credstore"
	webassets "github.com/tyemirov/postbot/web"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func TestServeEmbeddedAssets(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.GET("/", func(contextGin *gin.Context) {
		ServeEmbeddedPage(contextGin, webassets.FS, "index.html")
	})
	router.GET("/status.js", func(contextGin *gin.Context) {
		ServeEmbeddedStaticJS(contextGin, webassets.FS, "status.js")
	})
	router.GET("/missing.js", func(contextGin *gin.Context) {
		ServeEmbeddedStaticJS(contextGin, webassets.FS, "missing.js")
	})

	page := httptest.NewRecorder()
	router.ServeHTTP(page, httptest.NewRequest(http.MethodGet, "/", nil))
	if page.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", page.Code)
	}
	if !strings.HasPrefix(page.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("unexpected content type %q", page.Header().Get("Content-Type"))
	}
	if !strings.Contains(page.Body.String(), `href="/auth"`) || !strings.Contains(page.Body.String(), "/post") {
		t.Fatalf("landing page must link the authorization and post routes")
	}

	script := httptest.NewRecorder()
	router.ServeHTTP(script, httptest.NewRequest(http.MethodGet, "/status.js", nil))
	if script.Code != http.StatusOK || !strings.HasPrefix(script.Header().Get("Content-Type"), "application/javascript") {
		t.Fatalf("unexpected script response %d %q", script.Code, script.Header().Get("Content-Type"))
	}

	missing := httptest.NewRecorder()
	router.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/missing.js", nil))
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing asset, got %d", missing.Code)
	}
}

func TestConfigureCORS(t *testing.T) {
	t.Parallel()

	router := gin.New()
	middleware, err := ConfigureCORS(zaptest.NewLogger(t), []string{"http://localhost:5173"})
	if err != nil {
		t.Fatalf("unexpected error configuring CORS: %v", err)
	}
	router.Use(middleware)
	router.POST("/post", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodOptions, "/post", nil)
	request.Header.Set("Origin", "http://localhost:5173")
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	request.Header.Set("Access-Control-Request-Headers", "Authorization")
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from preflight, got %d", recorder.Code)
	}
	if origin := recorder.Header().Get("Access-Control-Allow-Origin"); origin != "http://localhost:5173" {
		t.Fatalf("unexpected allowed origin header: %q", origin)
	}
}

func TestConfigureCORSRejectsInvalidOrigins(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		origins []string
		want    error
	}{
		{name: "nil", origins: nil, want: errEmptyAllowedOrigins},
		{name: "blank", origins: []string{"  "}, want: errEmptyAllowedOrigins},
		{name: "wildcard", origins: []string{"*"}, want: errWildcardOrigin},
		{name: "path", origins: []string{"https://example.com/app"}, want: errInvalidOrigin},
		{name: "scheme", origins: []string{"ftp://example.com"}, want: errInvalidOrigin},
	}
	for _, testCase := range testCases {
		if _, err := ConfigureCORS(zap.NewNop(), testCase.origins); !errors.Is(err, testCase.want) {
			t.Fatalf("%s: expected %v, got %v", testCase.name, testCase.want, err)
		}
	}
}

type brokenStore struct{}

func (brokenStore) Read(context.Context) (credstore.Record, error) {
	return nil, credstore.ErrStorage
}

func (brokenStore) Merge(context.Context, credstore.Record) error {
	return credstore.ErrStorage
}

type fixedSnapshot map[string]int64

func (snapshot fixedSnapshot) Snapshot() map[string]int64 {
	return snapshot
}

func TestStatusRoutes(t *testing.T) {
	t.Parallel()

	store := credstore.NewMemoryStore()
	router := gin.New()
	MountStatusRoutes(router, store, fixedSnapshot{"post.publish.success": 3}, zaptest.NewLogger(t))

	readStatus := func() map[string]bool {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/status", nil))
		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", recorder.Code)
		}
		var payload map[string]bool
		if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		return payload
	}

	if status := readStatus(); status["authorized"] || status["pending_authorization"] {
		t.Fatalf("empty store must report nothing, got %v", status)
	}
	if err := store.Merge(context.Background(), credstore.AuthSession{CodeVerifier: "v1", State: "s1"}.Record()); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if status := readStatus(); !status["pending_authorization"] || status["authorized"] {
		t.Fatalf("expected pending authorization, got %v", status)
	}
	if err := store.Merge(context.Background(), credstore.TokenPair{AccessToken: "a1", RefreshToken: "r1"}.Record()); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if status := readStatus(); !status["authorized"] {
		t.Fatalf("expected authorized, got %v", status)
	}

	metrics := httptest.NewRecorder()
	router.ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	if metrics.Code != http.StatusOK || !strings.Contains(metrics.Body.String(), `"post.publish.success":3`) {
		t.Fatalf("unexpected metrics response %d %s", metrics.Code, metrics.Body.String())
	}

	health := httptest.NewRecorder()
	router.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if health.Code != http.StatusOK || health.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", health.Code, health.Body.String())
	}
}

func TestStatusRouteStoreFailure(t *testing.T) {
	t.Parallel()

	router := gin.New()
	MountStatusRoutes(router, brokenStore{}, nil, zaptest.NewLogger(t))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", recorder.Code)
	}
}
