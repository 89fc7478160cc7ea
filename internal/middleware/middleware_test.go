package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ArowuTest/pollstake-backend/internal/metrics"
	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func protectedRouter(t *testing.T, roles ...models.Role) (*gin.Engine, *jwt.TokenService) {
	t.Helper()
	tokens, err := jwt.NewTokenService("middleware-secret", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	chain := []gin.HandlerFunc{JWTAuthMiddleware(tokens)}
	if len(roles) > 0 {
		chain = append(chain, RequireRole(roles...))
	}
	chain = append(chain, func(c *gin.Context) {
		p, _ := CurrentPrincipal(c)
		c.JSON(http.StatusOK, p)
	})
	r.GET("/me", chain...)
	return r, tokens
}

func get(r http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuthMiddleware(t *testing.T) {
	r, tokens := protectedRouter(t)

	tok, err := tokens.Issue("u1", "u1@example.com", "user")
	require.NoError(t, err)
	w := get(r, "/me", map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"userId":"u1"`)
	assert.Contains(t, w.Body.String(), `"role":"user"`)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic " + tok},
		{"garbage token", "Bearer abc.def.ghi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, "/me", map[string]string{"Authorization": tt.header})
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
		})
	}

	unknownRole, err := tokens.Issue("u1", "", "superuser")
	require.NoError(t, err)
	w = get(r, "/me", map[string]string{"Authorization": "Bearer " + unknownRole})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other, err := jwt.NewTokenService("another-secret", time.Hour)
	require.NoError(t, err)
	foreign, err := other.Issue("u1", "", "admin")
	require.NoError(t, err)
	w = get(r, "/me", map[string]string{"Authorization": "Bearer " + foreign})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	r, tokens := protectedRouter(t, models.RoleSubAdmin, models.RoleAdmin)

	for role, want := range map[string]int{
		"user":      http.StatusForbidden,
		"sub_admin": http.StatusOK,
		"admin":     http.StatusOK,
	} {
		tok, err := tokens.Issue("someone", "", role)
		require.NoError(t, err)
		w := get(r, "/me", map[string]string{"Authorization": "Bearer " + tok})
		assert.Equal(t, want, w.Code, role)
	}
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://app.example.com"}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := get(r, "/ping", map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = get(r, "/ping", map[string]string{"Origin": "https://evil.example.com"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("RequestID")) })

	w := get(r, "/ping", map[string]string{RequestIDHeader: "req-42"})
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-42", w.Body.String())

	w = get(r, "/ping", nil)
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	r := gin.New()
	r.Use(MetricsMiddleware(m))
	r.GET("/polls/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	get(r, "/polls/a", nil)
	get(r, "/polls/b", nil)
	get(r, "/nowhere", nil)

	expected := `
# HELP pollstake_http_requests_total HTTP requests segmented by route, method and status.
# TYPE pollstake_http_requests_total counter
pollstake_http_requests_total{method="GET",route="/polls/:id",status="200"} 2
pollstake_http_requests_total{method="GET",route="unmatched",status="404"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "pollstake_http_requests_total"))
}
