package middleware

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// SecurityHeadersConfig selects the protective response headers the admin API emits.
type SecurityHeadersConfig struct {
	// EnableHSTS emits Strict-Transport-Security; only meaningful behind TLS.
	EnableHSTS            bool
	HSTSMaxAge            int // seconds
	HSTSIncludeSubdomains bool
	HSTSPreload           bool
	// FrameOptionsValue is DENY or SAMEORIGIN; empty omits the header.
	FrameOptionsValue     string
	ContentSecurityPolicy string
	ReferrerPolicy        string
	PermissionsPolicy     string
	// NoStore marks every response uncacheable. Login and verify responses carry
	// session tokens and permission sets.
	NoStore bool
}

// AdminAPISecurityHeadersConfig returns the headers for the JSON admin API. HSTS is
// only sent when the server itself terminates TLS.
func AdminAPISecurityHeadersConfig(tlsEnabled bool) SecurityHeadersConfig {
	return SecurityHeadersConfig{
		EnableHSTS:            tlsEnabled,
		HSTSMaxAge:            31536000,
		HSTSIncludeSubdomains: true,
		FrameOptionsValue:     "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
		PermissionsPolicy:     "geolocation=(), microphone=(), camera=()",
		NoStore:               true,
	}
}

// SecurityHeadersMiddleware adds the configured headers to every response.
func SecurityHeadersMiddleware(config SecurityHeadersConfig) gin.HandlerFunc {
	hsts := ""
	if config.EnableHSTS {
		parts := []string{"max-age=" + strconv.Itoa(config.HSTSMaxAge)}
		if config.HSTSIncludeSubdomains {
			parts = append(parts, "includeSubDomains")
		}
		if config.HSTSPreload {
			parts = append(parts, "preload")
		}
		hsts = strings.Join(parts, "; ")
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		if hsts != "" {
			h.Set("Strict-Transport-Security", hsts)
		}
		if config.FrameOptionsValue != "" {
			h.Set("X-Frame-Options", config.FrameOptionsValue)
		}
		if config.ContentSecurityPolicy != "" {
			h.Set("Content-Security-Policy", config.ContentSecurityPolicy)
		}
		if config.ReferrerPolicy != "" {
			h.Set("Referrer-Policy", config.ReferrerPolicy)
		}
		if config.PermissionsPolicy != "" {
			h.Set("Permissions-Policy", config.PermissionsPolicy)
		}
		if config.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
		}

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Permitted-Cross-Domain-Policies", "none")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")

		c.Next()
	}
}
