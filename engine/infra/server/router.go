package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/compozy/nutrilens/engine/infra/monitoring"
	"github.com/compozy/nutrilens/engine/infra/server/middleware/ratelimit"
	"github.com/compozy/nutrilens/engine/infra/server/middleware/requestid"
	nutritionrouter "github.com/compozy/nutrilens/engine/nutrition/router"
	"github.com/compozy/nutrilens/pkg/logger"
	"github.com/compozy/nutrilens/pkg/version"
	"github.com/gin-gonic/gin"
)

const (
	apiBase      = "/api/v0"
	healthPath   = "/healthz"
	hostAny      = "0.0.0.0"
	hostLoopback = "127.0.0.1"
)

func buildRouter(ctx context.Context, deps *Dependencies) (*gin.Engine, error) {
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("server requires the analysis pipeline")
	}
	cfg := deps.Config
	log := logger.FromContext(ctx)
	if deps.Monitoring == nil {
		deps.Monitoring = monitoring.NewMonitoringServiceWithFallback(ctx, monitoring.DefaultConfig())
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(baseLogger(log))
	r.Use(requestid.Middleware())
	r.Use(LoggerMiddleware())
	if deps.Monitoring.IsInitialized() {
		r.Use(deps.Monitoring.GinMiddleware(ctx))
	}
	if cfg.Server.RateLimit != "" {
		limiter, err := ratelimit.Middleware(ratelimit.Config{
			Rate:          cfg.Server.RateLimit,
			ExcludedPaths: []string{healthPath, deps.Monitoring.Path()},
		})
		if err != nil {
			return nil, err
		}
		r.Use(limiter)
		log.Info("Rate limiter initialized", "driver", "memory", "rate", cfg.Server.RateLimit)
	}
	r.GET(healthPath, healthHandler(deps))
	if deps.Monitoring.IsInitialized() {
		r.GET(deps.Monitoring.Path(), gin.WrapH(deps.Monitoring.ExporterHandler()))
	}
	nutritionrouter.Register(r.Group(apiBase), deps.Pipeline, cfg.Server.MaxUploadBytes)
	return r, nil
}

// healthHandler reports liveness and the number of indexed chunks.
func healthHandler(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		chunks, err := deps.Index.Count(c.Request.Context())
		if err != nil {
			logger.FromContext(c.Request.Context()).Warn("Health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "version": version.GetVersion()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": version.GetVersion(),
			"chunks":  chunks,
		})
	}
}

func friendlyHost(h string) string {
	if h == hostAny || h == "::" || h == "" {
		return hostLoopback
	}
	return h
}

func startupBanner(host string, port int, metricsPath string) string {
	httpURL := fmt.Sprintf("http://%s:%d", friendlyHost(host), port)
	lines := []string{
		fmt.Sprintf("NutriLens %s", version.GetVersion()),
		fmt.Sprintf("  Analyze       > %s%s/analyze", httpURL, apiBase),
		fmt.Sprintf("  Analyze image > %s%s/analyze/image", httpURL, apiBase),
		fmt.Sprintf("  Health        > %s%s", httpURL, healthPath),
	}
	if metricsPath != "" {
		lines = append(lines, fmt.Sprintf("  Metrics       > %s%s", httpURL, metricsPath))
	}
	return "\n" + strings.Join(lines, "\n")
}
