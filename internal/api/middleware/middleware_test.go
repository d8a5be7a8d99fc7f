package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aya-cs/bdaprojet2/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.Any("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})
	return r
}

func do(r *gin.Engine, method string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/ping", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

// ═══════════════════════════════════════════════════════════
// CORS
// ═══════════════════════════════════════════════════════════

func corsConfig() config.CORSConfig {
	return config.CORSConfig{
		AllowOrigins:  []string{"https://planner.example.edu/"},
		AllowMethods:  []string{"GET", "POST"},
		AllowHeaders:  []string{"Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        2 * time.Hour,
	}
}

func TestCORS_Preflight(t *testing.T) {
	r := newEngine(CORS(corsConfig()))

	w := do(r, http.MethodOptions, map[string]string{"Origin": "https://planner.example.edu"})

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	want := map[string]string{
		"Access-Control-Allow-Origin":  "https://planner.example.edu",
		"Access-Control-Allow-Methods": "GET, POST",
		"Access-Control-Allow-Headers": "Content-Type, Authorization",
		"Access-Control-Max-Age":       "7200",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestCORS_SimpleRequest(t *testing.T) {
	r := newEngine(CORS(corsConfig()))

	w := do(r, http.MethodGet, map[string]string{"Origin": "https://planner.example.edu"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Expose-Headers"); got != "Content-Disposition" {
		t.Errorf("Expose-Headers = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "" {
		t.Errorf("非预检请求不应返回 Allow-Methods: %q", got)
	}
}

func TestCORS_UnknownOrigin(t *testing.T) {
	r := newEngine(CORS(corsConfig()))

	w := do(r, http.MethodOptions, map[string]string{"Origin": "https://evil.example.com"})

	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

// ═══════════════════════════════════════════════════════════
// SecurityHeaders / RequestID
// ═══════════════════════════════════════════════════════════

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name     string
		hsts     bool
		wantHSTS bool
	}{
		{"HTTP 部署", false, false},
		{"HTTPS 部署", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(newEngine(SecurityHeaders(tt.hsts)), http.MethodGet, nil)

			if got := w.Header().Get("Content-Security-Policy"); got != "default-src 'none'; frame-ancestors 'none'" {
				t.Errorf("CSP = %q", got)
			}
			if got := w.Header().Get("Cache-Control"); got != "no-store" {
				t.Errorf("Cache-Control = %q", got)
			}
			if got := w.Header().Get("Strict-Transport-Security") != ""; got != tt.wantHSTS {
				t.Errorf("HSTS present = %v, want %v", got, tt.wantHSTS)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	upstream := "3f1c2b9e-8d4a-4c1e-9b7f-0a6d5e4c3b2a"
	tests := []struct {
		name     string
		header   string
		wantKeep bool
	}{
		{"沿用上游 UUID", upstream, true},
		{"缺失", "", false},
		{"非 UUID", "req-123", false},
		{"注入换行", "a\nb", false},
		{"带花括号的 UUID", "{" + upstream + "}", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["X-Request-ID"] = tt.header
			}
			w := do(newEngine(RequestID()), http.MethodGet, headers)

			rid := w.Header().Get("X-Request-ID")
			if tt.wantKeep && rid != tt.header {
				t.Errorf("rid = %q, want %q", rid, tt.header)
			}
			if !tt.wantKeep {
				if rid == tt.header {
					t.Errorf("不合法的 ID 被沿用: %q", rid)
				}
				if _, err := uuid.Parse(rid); err != nil {
					t.Errorf("生成的 ID 不是 UUID: %q", rid)
				}
			}
			if w.Body.String() != rid {
				t.Errorf("上下文中的 ID = %q, 响应头 = %q", w.Body.String(), rid)
			}
		})
	}
}

// ═══════════════════════════════════════════════════════════
// RoleAuth
// ═══════════════════════════════════════════════════════════

func TestRoleAuth(t *testing.T) {
	tests := []struct {
		name       string
		role       string
		wantStatus int
	}{
		{"允许的角色", "planner", http.StatusOK},
		{"其他角色", "viewer", http.StatusForbidden},
		{"未认证", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inject := func(c *gin.Context) {
				if tt.role != "" {
					c.Set("role", tt.role)
				}
				c.Next()
			}
			w := do(newEngine(inject, RoleAuth("admin", "planner")), http.MethodGet, nil)

			if w.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

// ═══════════════════════════════════════════════════════════
// BodyLimit
// ═══════════════════════════════════════════════════════════

func TestBodyLimit(t *testing.T) {
	tests := []struct {
		name       string
		limit      int64
		body       string
		wantStatus int
	}{
		{"未超限", 16, `{"a":1}`, http.StatusOK},
		{"超限", 4, `{"a":1}`, http.StatusRequestEntityTooLarge},
		{"不限制", 0, strings.Repeat("x", 1024), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(BodyLimit(tt.limit))
			r.POST("/echo", func(c *gin.Context) {
				b, err := io.ReadAll(c.Request.Body)
				if err != nil {
					c.Status(http.StatusBadRequest)
					return
				}
				c.String(http.StatusOK, string(b))
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(tt.body)))

			if w.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}
