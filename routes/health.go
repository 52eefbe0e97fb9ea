package routes

import (
	"context"
	"net/http"
	"time"

	"congress-digest/utils"

	"github.com/gin-gonic/gin"
)

// HealthCheck pings one dependency.
type HealthCheck struct {
	Name string
	// Required dependencies turn the service unhealthy when they fail.
	Required bool
	Ping     func(ctx context.Context) error
}

// SetupHealthRoutes registers /health and, when metrics is not nil, /metrics.
func SetupHealthRoutes(router *gin.Engine, metrics http.Handler, checks ...HealthCheck) {
	router.GET("/health", handleHealth(checks))
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
}

func handleHealth(checks []HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := utils.PingContext(c.Request.Context())
		defer cancel()

		status := "healthy"
		code := http.StatusOK
		deps := gin.H{}
		for _, check := range checks {
			if err := check.Ping(ctx); err != nil {
				deps[check.Name] = err.Error()
				if check.Required {
					status, code = "unhealthy", http.StatusServiceUnavailable
				} else if status == "healthy" {
					status = "degraded"
				}
				continue
			}
			deps[check.Name] = "ok"
		}

		c.JSON(code, gin.H{
			"status":       status,
			"timestamp":    time.Now().UTC(),
			"dependencies": deps,
		})
	}
}
