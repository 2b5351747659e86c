package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/stagehand/adminauth/internal/auth"
	"github.com/stagehand/adminauth/internal/db/models"
)

// PermissionChecker decides resource/action access. *auth.PermissionEvaluator
// satisfies it and audits each denial.
type PermissionChecker interface {
	HasPermission(ctx context.Context, admin *models.Admin, resource models.Resource, action models.Action) bool
}

// RequirePermission allows the request only when the admin stored by
// RequireAdminSession holds action on resource. It must run after RequireAdminSession;
// without a session it answers 401.
//
// Permissions are evaluated per request from the admin row loaded during session
// verification, so a role change applies on the next request.
func RequirePermission(checker PermissionChecker, resource models.Resource, action models.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin := CurrentAdmin(c)
		if admin == nil {
			AbortWithAuthError(c, auth.ErrSessionMissing)
			return
		}
		if !checker.HasPermission(c.Request.Context(), admin, resource, action) {
			AbortWithAuthError(c, auth.ErrPermissionDenied)
			return
		}
		c.Next()
	}
}
