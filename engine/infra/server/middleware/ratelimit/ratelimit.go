package ratelimit

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/compozy/nutrilens/engine/infra/server/router"
	"github.com/compozy/nutrilens/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

const (
	defaultPrefix    = "nutrilens:ratelimit"
	codeRateLimited  = "RATE_LIMITED"
	rateLimitMessage = "Too many requests. Please retry later."
)

// Config configures the per-client limiter.
type Config struct {
	// Rate uses the "<limit>-<period>" format, e.g. "60-M".
	Rate          string
	Prefix        string
	ExcludedPaths []string
}

// Middleware builds a gin handler limiting requests per client IP with an
// in-memory store. Excluded paths are never counted.
func Middleware(cfg Config) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", cfg.Rate, err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	store := memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: prefix})
	limited := mgin.NewMiddleware(
		limiter.New(store, rate),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			router.RespondProblemWithCode(c, http.StatusTooManyRequests, codeRateLimited, rateLimitMessage)
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			logger.FromContext(c.Request.Context()).Error("Rate limiter store failed", "error", err)
			c.Next()
		}),
	)
	excluded := make(map[string]struct{}, len(cfg.ExcludedPaths))
	for _, p := range cfg.ExcludedPaths {
		excluded[strings.TrimRight(p, "/")] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, skip := excluded[strings.TrimRight(c.Request.URL.Path, "/")]; skip {
			c.Next()
			return
		}
		limited(c)
	}, nil
}
