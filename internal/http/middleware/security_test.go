package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-service-shell/internal/config"
)

func secured(opt SecurityOptions, pre ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(pre...)
	r.Use(SecurityHeaders(opt))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func serveHeaders(r *gin.Engine, req *http.Request) http.Header {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := serveHeaders(secured(SecurityOptions{}), httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"X-Content-Type-Options":        "nosniff",
		"X-Frame-Options":               "DENY",
		"Referrer-Policy":               "no-referrer",
		"Access-Control-Expose-Headers": "X-Request-ID",
	}
	for k, v := range want {
		if got := h.Get(k); got != v {
			t.Errorf("%s = %q; want %q", k, got, v)
		}
	}
	for _, k := range []string{"Permissions-Policy", "X-Permitted-Cross-Domain-Policies", "Cache-Control", "Pragma", "Expires", "Strict-Transport-Security"} {
		if got := h.Get(k); got != "" {
			t.Errorf("unexpected %s = %q", k, got)
		}
	}
}

func TestSecurityHeaders_PolicyAndNoStore(t *testing.T) {
	h := serveHeaders(secured(SecurityOptions{NoStore: true, EnablePolicy: true}), httptest.NewRequest(http.MethodGet, "/", nil))

	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("policy headers missing: %v", h)
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("cache headers missing: %v", h)
	}
}

func TestSecurityHeaders_ExposeMerging(t *testing.T) {
	cases := []struct {
		name, existing, want string
	}{
		{"appends", "Foo", "Foo, X-Request-ID"},
		{"keeps existing entry", "x-request-id, Foo", "x-request-id, Foo"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pre := func(c *gin.Context) {
				c.Header("Access-Control-Expose-Headers", tc.existing)
				c.Next()
			}
			h := serveHeaders(secured(SecurityOptions{}, pre), httptest.NewRequest(http.MethodGet, "/", nil))
			if got := h.Get("Access-Control-Expose-Headers"); got != tc.want {
				t.Fatalf("expose = %q; want %q", got, tc.want)
			}
		})
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	plain := httptest.NewRequest(http.MethodGet, "/", nil)

	tlsReq := httptest.NewRequest(http.MethodGet, "/", nil)
	tlsReq.TLS = &tls.ConnectionState{}

	proxied := httptest.NewRequest(http.MethodGet, "/", nil)
	proxied.Header.Set("X-Forwarded-Proto", "HTTPS")

	cases := []struct {
		name string
		opt  SecurityOptions
		req  *http.Request
		want string
	}{
		{"disabled", SecurityOptions{}, tlsReq, ""},
		{"plain http", SecurityOptions{EnableHSTS: true}, plain, ""},
		{"tls default max-age", SecurityOptions{EnableHSTS: true}, tlsReq, "max-age=15552000; includeSubDomains; preload"},
		{"forwarded proto", SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour}, proxied, "max-age=3600; includeSubDomains; preload"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := serveHeaders(secured(tc.opt), tc.req)
			if got := h.Get("Strict-Transport-Security"); got != tc.want {
				t.Fatalf("HSTS = %q; want %q", got, tc.want)
			}
		})
	}
}

func TestSecurityOptionsFrom(t *testing.T) {
	opt := SecurityOptionsFrom(config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Minute})
	want := SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Minute, NoStore: true, EnablePolicy: true}
	if opt != want {
		t.Fatalf("opts = %+v; want %+v", opt, want)
	}
}
