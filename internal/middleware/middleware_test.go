package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/authbox/internal/config"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/middleware"
)

func TestRateLimiterAllow(t *testing.T) {
	limiter := middleware.NewRateLimiter(5)
	require.True(t, limiter.Allow("10.0.0.1"))
	require.False(t, limiter.Allow("10.0.0.1"))
	require.True(t, limiter.Allow("10.0.0.2"))

	require.Nil(t, middleware.NewRateLimiter(0))
}

func TestRateLimiterHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.NewRateLimiter(5).Handler())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Contains(t, w.Body.String(), "Too many requests")
}

func TestOrgCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Config{
		BaseDomain:         "auth.test",
		CORSAllowedOrigins: []string{"https://portal.example.com"},
		CORSAllowedMethods: []string{"GET", "POST"},
		CORSAllowedHeaders: []string{"Authorization"},
	}
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("organization", domain.Organization{ID: "org-1", DomainPrefix: "acme", Enabled: true})
	}, middleware.OrgCORS(cfg))
	r.GET("/oauth/user", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		origin  string
		allowed bool
	}{
		{"https://acme.auth.test", true},
		{"https://portal.example.com", true},
		{"https://other.auth.test", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/oauth/user", nil)
		req.Header.Set("Origin", tc.origin)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if tc.allowed {
			require.Equal(t, tc.origin, w.Header().Get("Access-Control-Allow-Origin"), tc.origin)
		} else {
			require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"), tc.origin)
		}
	}

	req := httptest.NewRequest(http.MethodOptions, "/oauth/user", nil)
	req.Header.Set("Origin", "https://acme.auth.test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
}
