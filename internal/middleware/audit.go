package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stagehand/adminauth/internal/auth"
	"github.com/stagehand/adminauth/internal/db/models"
)

// AuditAction records one admin.action entry for every state-changing request that
// reached the handler with an admin session. Reads are not recorded. resourceType
// names the target; the :id route parameter, when present, becomes the resource id.
//
// It must run after RequireAdminSession. Recording never blocks the response path.
// A nil recorder disables recording.
func AuditAction(recorder auth.AuditRecorder, resourceType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if recorder == nil {
			return
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}
		admin := CurrentAdmin(c)
		if admin == nil {
			return
		}

		status := c.Writer.Status()
		info := auth.RequestInfoFrom(c.Request.Context())
		adminID := admin.ID
		entry := &models.AdminAuditLog{
			ActionType: models.AuditAction,
			AdminID:    &adminID,
			Success:    status < http.StatusBadRequest,
			Details: map[string]interface{}{
				"method": c.Request.Method,
				"route":  c.FullPath(),
				"status": status,
			},
		}
		if resourceType != "" {
			entry.ResourceType = &resourceType
		}
		if id := c.Param("id"); id != "" {
			entry.ResourceID = &id
		}
		if info.SessionID != "" {
			entry.SessionID = &info.SessionID
		}
		if info.IP != "" {
			entry.IPAddress = &info.IP
		}
		if info.UserAgent != "" {
			entry.UserAgent = &info.UserAgent
		}
		if info.RequestID != "" {
			entry.Details["request_id"] = info.RequestID
		}
		if !entry.Success {
			msg := http.StatusText(status)
			entry.ErrorMessage = &msg
		}

		recorder.Record(entry)
	}
}
