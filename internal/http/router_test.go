package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-service-shell/internal/apperr"
	"github.com/tbourn/go-service-shell/internal/config"
	"github.com/tbourn/go-service-shell/internal/domain"
	"github.com/tbourn/go-service-shell/internal/http/response"
	"github.com/tbourn/go-service-shell/internal/repo"
)

const testSecret = "router-test-secret"

// --- helpers ---

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "router.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func baseConfig() config.Config {
	cfg := config.Config{
		AppName:     "shell",
		APIVersion:  "1.0.0",
		Environment: config.EnvLocal,
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   100,
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
		JWT:         config.JWTConfig{Algorithm: "HS256", Secret: testSecret, VerifySignature: true},
	}
	cfg.Database.Driver = "sqlite"
	return cfg
}

func newTestRouter(t *testing.T, cfg config.Config) (*gin.Engine, *gorm.DB) {
	t.Helper()
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.Nop()

	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	r := gin.New()
	if err := RegisterRoutes(r, db, cfg); err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}
	return r, db
}

func token(t *testing.T, secret string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"name":               "Jane Doe",
		"preferred_username": "jane@example.com",
		"exp":                time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

type call struct {
	method, path, body, token string
	header                    map[string]string
}

func (c call) do(t *testing.T, r http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func envelope(t *testing.T, w *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var env response.Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("body is not an envelope: %q", w.Body.String())
	}
	return env
}

func onlyCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	env := envelope(t, w)
	if w.Code != status || env.Success || len(env.Errors) != 1 || env.Errors[0].Code != code {
		t.Fatalf("want %d %s, got %d %s", status, code, w.Code, w.Body.String())
	}
}

func dataMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	env := envelope(t, w)
	if !env.Success {
		t.Fatalf("expected success, got %d %s", w.Code, w.Body.String())
	}
	m, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("data is %T", env.Data)
	}
	return m
}

// --- root routes ---

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newTestRouter(t, baseConfig())

	w := call{method: http.MethodGet, path: "/health"}.do(t, r)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("security headers missing, X-Content-Type-Options=%q", got)
	}

	w = call{method: http.MethodGet, path: "/metrics"}.do(t, r)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("GET /metrics bad: code=%d", w.Code)
	}

	onlyCode(t, call{method: http.MethodGet, path: "/nope"}.do(t, r), http.StatusNotFound, apperr.CodeRouteNotFound)
	onlyCode(t, call{method: http.MethodPost, path: "/health"}.do(t, r), http.StatusMethodNotAllowed, apperr.CodeMethodNotAllowed)
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := baseConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _ := newTestRouter(t, cfg)

	w := call{method: http.MethodGet, path: "/health", header: map[string]string{"Origin": "http://example.com"}}.do(t, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	w = call{method: http.MethodGet, path: "/health", header: map[string]string{"Origin": "http://evil.test"}}.do(t, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unlisted origin must not be echoed, got %q", got)
	}
}

func TestRegisterRoutes_SwaggerToggle(t *testing.T) {
	r, _ := newTestRouter(t, baseConfig())
	if w := (call{method: http.MethodGet, path: "/swagger/doc.json"}).do(t, r); w.Code != http.StatusNotFound {
		t.Fatalf("swagger disabled: expected 404, got %d", w.Code)
	}

	cfg := baseConfig()
	cfg.SwaggerEnabled = true
	r, _ = newTestRouter(t, cfg)
	w := call{method: http.MethodGet, path: "/swagger/doc.json"}.do(t, r)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/projects") {
		t.Fatalf("swagger enabled: code=%d body=%.80q", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_Gzip(t *testing.T) {
	cfg := baseConfig()
	cfg.GzipEnabled = true
	r, _ := newTestRouter(t, cfg)

	w := call{method: http.MethodGet, path: "/health", header: map[string]string{"Accept-Encoding": "gzip"}}.do(t, r)
	if got := w.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("expected gzip encoding, got %q", got)
	}
}

// --- API pipeline ---

func TestAPI_RequiresBearerToken(t *testing.T) {
	r, _ := newTestRouter(t, baseConfig())

	w := call{method: http.MethodGet, path: "/api/v1/healthcheck/"}.do(t, r)
	onlyCode(t, w, http.StatusOK, apperr.CodeUnauthorized)
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID on pipeline responses")
	}

	w = call{method: http.MethodGet, path: "/api/v1/healthcheck/", token: token(t, "other-secret")}.do(t, r)
	onlyCode(t, w, http.StatusOK, apperr.CodeDecodeError)
}

func TestAPI_HealthAndErrorChecks(t *testing.T) {
	r, _ := newTestRouter(t, baseConfig())
	tok := token(t, testSecret)

	w := call{method: http.MethodGet, path: "/api/v1/healthcheck/", token: tok}.do(t, r)
	if env := envelope(t, w); !env.Success || env.Data != "Health check is OK!" {
		t.Fatalf("healthcheck = %s", w.Body.String())
	}
	if d := dataMap(t, call{method: http.MethodGet, path: "/api/v1/healthcheck/details", token: tok}.do(t, r)); d["database"] != "sqlite" {
		t.Fatalf("details = %v", d)
	}

	onlyCode(t, call{method: http.MethodGet, path: "/api/v1/errorcheck/conflict", token: tok}.do(t, r), http.StatusOK, apperr.CodeConflict)
	onlyCode(t, call{method: http.MethodGet, path: "/api/v1/errorcheck/system", token: tok}.do(t, r), http.StatusInternalServerError, apperr.CodeSystemError)
	onlyCode(t, call{method: http.MethodGet, path: "/api/v1/errorcheck/db", token: tok}.do(t, r), http.StatusInternalServerError, apperr.CodeDBOperational)
}

func TestAPI_ProjectLifecycle(t *testing.T) {
	r, db := newTestRouter(t, baseConfig())
	tok := token(t, testSecret)

	// create
	w := call{method: http.MethodPost, path: "/api/v1/projects", token: tok, body: `{"name":"Launch","description":"Q3"}`}.do(t, r)
	p := dataMap(t, w)
	id, _ := p["id"].(string)
	if id == "" || p["created_by"] != "jane@example.com" || p["owner"] != "jane@example.com" {
		t.Fatalf("created = %v", p)
	}
	stamp, _ := p["updated_at"].(string)
	if _, err := time.Parse(response.TimeLayout, stamp); err != nil {
		t.Fatalf("updated_at %q not in response layout", stamp)
	}

	// tasks
	dataMap(t, call{method: http.MethodPost, path: "/api/v1/projects/" + id + "/tasks", token: tok, body: `{"title":"Draft"}`}.do(t, r))
	w = call{method: http.MethodGet, path: "/api/v1/projects/" + id + "?join=tasks", token: tok}.do(t, r)
	if tasks, _ := dataMap(t, w)["tasks"].([]any); len(tasks) != 1 {
		t.Fatalf("joined tasks = %s", w.Body.String())
	}
	onlyCode(t, call{method: http.MethodGet, path: "/api/v1/projects/" + id + "?join=owner", token: tok}.do(t, r), http.StatusOK, apperr.CodeInvalidJoin)

	// update with a fresh token, then with the stale one
	body := `{"name":"Launch v2","updated_at":"` + stamp + `"}`
	w = call{method: http.MethodPut, path: "/api/v1/projects/" + id, token: tok, body: body}.do(t, r)
	if got := dataMap(t, w); got["name"] != "Launch v2" || got["updated_at"] == stamp {
		t.Fatalf("updated = %v", got)
	}
	w = call{method: http.MethodPut, path: "/api/v1/projects/" + id, token: tok, body: `{"name":"Lost","updated_at":"` + stamp + `"}`}.do(t, r)
	onlyCode(t, w, http.StatusOK, apperr.CodeConflict)

	var stored domain.Project
	if err := db.First(&stored, "id = ?", id).Error; err != nil || stored.Name != "Launch v2" {
		t.Fatalf("stored = %+v, %v", stored, err)
	}

	// list
	w = call{method: http.MethodGet, path: "/api/v1/projects?limit=500", token: tok}.do(t, r)
	if page := dataMap(t, w); page["total"] != float64(1) || page["limit"] != float64(100) {
		t.Fatalf("page = %v", page)
	}

	// delete
	dataMap(t, call{method: http.MethodDelete, path: "/api/v1/projects/" + id, token: tok}.do(t, r))
	onlyCode(t, call{method: http.MethodGet, path: "/api/v1/projects/" + id, token: tok}.do(t, r), http.StatusOK, apperr.CodeResourceNotFound)
	var n int64
	if err := db.Model(&domain.Task{}).Count(&n).Error; err != nil || n != 0 {
		t.Fatalf("tasks left = %d (%v)", n, err)
	}
}

func TestAPI_ValidationFailureWritesNothing(t *testing.T) {
	r, db := newTestRouter(t, baseConfig())
	tok := token(t, testSecret)

	w := call{method: http.MethodPost, path: "/api/v1/projects", token: tok, body: `{"name":"x"}`}.do(t, r)
	onlyCode(t, w, http.StatusOK, "MIN_LEN_ERROR")

	var n int64
	if err := db.Model(&domain.Project{}).Count(&n).Error; err != nil || n != 0 {
		t.Fatalf("projects = %d (%v)", n, err)
	}
}

func TestAPI_RateLimited(t *testing.T) {
	cfg := baseConfig()
	cfg.RateRPS, cfg.RateBurst = 0.001, 1
	r, _ := newTestRouter(t, cfg)
	tok := token(t, testSecret)

	if w := (call{method: http.MethodGet, path: "/api/v1/healthcheck/", token: tok}).do(t, r); !envelope(t, w).Success {
		t.Fatalf("first request should pass: %s", w.Body.String())
	}
	w := call{method: http.MethodGet, path: "/api/v1/healthcheck/", token: tok}.do(t, r)
	onlyCode(t, w, http.StatusTooManyRequests, apperr.CodeRateLimited)
}

func TestNew_UsesConfiguredMode(t *testing.T) {
	prev := gin.Mode()
	t.Cleanup(func() { gin.SetMode(prev) })

	cfg := baseConfig()
	cfg.GinMode = gin.TestMode
	r, err := New(cfg, newTestDB(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if gin.Mode() != gin.TestMode {
		t.Fatalf("mode = %s", gin.Mode())
	}
	if w := (call{method: http.MethodGet, path: "/health"}).do(t, r); w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
}

// --- helpers of this package ---

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}
