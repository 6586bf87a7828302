package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/auth"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/config"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/handlers"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/middleware"
)

// The handlers behind the guarded routes are never reached in these tests.
func testRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h := Handlers{
		Auth:      &handlers.AuthHandler{},
		Fees:      &handlers.FeeHandler{},
		Roles:     &handlers.RoleHandler{},
		Transfers: &handlers.TransferHandler{},
		Custody:   &handlers.CustodyHandler{},
		Admin:     &handlers.AdminHandler{},
		Stream:    handlers.NewStreamHandler(nil, logger),
		Health:    handlers.HealthHandler("test", config.ModeSimulated),
	}
	authMW := middleware.NewAuthMiddleware(logger, auth.NewTokenIssuer("secret", time.Hour))
	return SetupRouter(cfg, h, authMW, logger)
}

func testConfig() *config.Config {
	return &config.Config{
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	}
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPublicRoutes(t *testing.T) {
	r := testRouter(t, testConfig())

	tests := []struct {
		path string
		want int
	}{
		{"/ping", http.StatusOK},
		{"/health", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, serve(r, httptest.NewRequest(http.MethodGet, tt.path, nil)).Code)
		})
	}
}

func TestGuardedRoutes(t *testing.T) {
	r := testRouter(t, testConfig())

	// httptest requests come from 192.0.2.1
	w := serve(r, httptest.NewRequest(http.MethodPut, "/api/admin/fees/3", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "IP_NOT_ALLOWED")

	local := httptest.NewRequest(http.MethodPut, "/api/admin/fees/3", nil)
	local.RemoteAddr = "127.0.0.1:5555"
	assert.Equal(t, http.StatusUnauthorized, serve(r, local).Code)

	assert.Equal(t, http.StatusUnauthorized, serve(r, httptest.NewRequest(http.MethodPost, "/api/transfers", nil)).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, httptest.NewRequest(http.MethodGet, "/ws/settlements", nil)).Code)
}

func TestAdminAllowList(t *testing.T) {
	cfg := testConfig()
	cfg.Admin.AllowedIPs = []string{"192.0.2.0/24"}
	r := testRouter(t, cfg)

	w := serve(r, httptest.NewRequest(http.MethodPut, "/api/admin/fees/3", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCORS(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"https://app.example"}, AllowCredentials: true}
	r := testRouter(t, cfg)

	preflight := httptest.NewRequest(http.MethodOptions, "/api/fees", nil)
	preflight.Header.Set("Origin", "https://app.example")
	w := serve(r, preflight)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	other := httptest.NewRequest(http.MethodGet, "/ping", nil)
	other.Header.Set("Origin", "https://evil.example")
	w = serve(r, other)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSOriginsFromEnv(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example, ,https://b.example")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, corsOrigins(config.CORSConfig{AllowedOrigins: []string{"https://c.example"}}))

	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	assert.Equal(t, []string{"*"}, corsOrigins(config.CORSConfig{}))
}
