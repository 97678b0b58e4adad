package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openacad/sis-api/internal/service"
)

// Metrics records a duration histogram and request counter per route.
// The route template (not the raw URL) labels the series, so /students/:id
// stays one series regardless of the concrete ID.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	if metricsSvc == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metricsSvc.ObserveRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
