package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/compozy/nutrilens/engine/core"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildRouterForTest(t *testing.T, cfg Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	m, err := Middleware(cfg)
	require.NoError(t, err)
	r.Use(m)
	r.GET("/t", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func doReq(r *gin.Engine, path, ip string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	req.RemoteAddr = ip + ":4000"
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware(t *testing.T) {
	t.Run("Should block the second request from the same client", func(t *testing.T) {
		r := buildRouterForTest(t, Config{Rate: "1-M"})
		require.Equal(t, http.StatusOK, doReq(r, "/t", "1.2.3.4").Code)
		res := doReq(r, "/t", "1.2.3.4")
		require.Equal(t, http.StatusTooManyRequests, res.Code)
		var doc core.ProblemDocument
		require.NoError(t, json.Unmarshal(res.Body.Bytes(), &doc))
		assert.Equal(t, codeRateLimited, doc.Code)
	})

	t.Run("Should count clients separately", func(t *testing.T) {
		r := buildRouterForTest(t, Config{Rate: "1-M"})
		require.Equal(t, http.StatusOK, doReq(r, "/t", "1.2.3.4").Code)
		assert.Equal(t, http.StatusOK, doReq(r, "/t", "5.6.7.8").Code)
	})

	t.Run("Should set rate limit headers", func(t *testing.T) {
		r := buildRouterForTest(t, Config{Rate: "2-M"})
		res := doReq(r, "/t", "9.9.9.9")
		assert.Equal(t, "2", res.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", res.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("Should skip excluded paths", func(t *testing.T) {
		r := buildRouterForTest(t, Config{Rate: "1-M", ExcludedPaths: []string{"/healthz"}})
		for range 3 {
			assert.Equal(t, http.StatusOK, doReq(r, "/healthz", "1.1.1.1").Code)
		}
	})

	t.Run("Should reject malformed rates", func(t *testing.T) {
		_, err := Middleware(Config{Rate: "fast"})
		require.Error(t, err)
	})
}
