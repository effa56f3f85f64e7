package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/scrum-callbot/internal/config"
	"github.com/jmehdipour/scrum-callbot/internal/http/middleware"
)

func newEcho(t *testing.T, limit int, keys []config.APIKeyConfig) *echo.Echo {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	fixed := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	e := echo.New()
	g := e.Group("/v1",
		middleware.APIKeyMiddleware(keys),
		middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Redis:          rdb,
			DefaultRPS:     limit,
			Window:         time.Second,
			RetryAfterHint: true,
			Now:            func() time.Time { return fixed },
		}),
	)
	g.GET("/whoami", func(c echo.Context) error {
		name, _ := middleware.ClientFromCtx(c)
		return c.String(http.StatusOK, name)
	})
	return e
}

func do(e *echo.Echo, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/whoami", nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAPIKey(t *testing.T) {
	e := newEcho(t, 0, []config.APIKeyConfig{{Name: "ops", Key: "k-ops"}, {Name: "chat", Key: "k-chat"}})

	assert.Equal(t, http.StatusUnauthorized, do(e, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, "k-nope").Code)

	rec := do(e, "k-chat")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chat", rec.Body.String())
}

func TestRateLimitPerClient(t *testing.T) {
	e := newEcho(t, 2, []config.APIKeyConfig{{Name: "a", Key: "ka"}, {Name: "b", Key: "kb", RPS: 1}})

	assert.Equal(t, http.StatusOK, do(e, "ka").Code)
	assert.Equal(t, http.StatusOK, do(e, "ka").Code)
	rec := do(e, "ka")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do(e, "kb").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(e, "kb").Code)
}
