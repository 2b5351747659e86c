// Package middleware provides the Gin middleware for the admin API: request ids,
// metrics, security headers, session authentication, permission guards, rate limiting
// and action auditing. Everything here is registered in internal/api/router.go.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stagehand/adminauth/internal/telemetry"
)

// noRoute labels requests that did not match a registered route.
const noRoute = "<no-route>"

// MetricsMiddleware records http_requests_total and http_request_duration_seconds for
// every request. The path label is the matched route template from c.FullPath(), so
// /api/v1/admin/audit-logs/:id is one series regardless of the id.
//
// Register it after gin.Recovery() and RequestIDMiddleware so the status written by
// recovery is the one observed.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = noRoute
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
