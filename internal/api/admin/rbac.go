// rbac.go implements the permission check and role listing endpoints.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stagehand/adminauth/internal/auth"
	"github.com/stagehand/adminauth/internal/db/models"
	"github.com/stagehand/adminauth/internal/db/repositories"
	"github.com/stagehand/adminauth/internal/middleware"
)

// RBACHandlers handles role and permission endpoints
type RBACHandlers struct {
	roleRepo    *repositories.RoleRepository
	permissions *auth.PermissionEvaluator
}

// NewRBACHandlers creates a new RBACHandlers instance
func NewRBACHandlers(roleRepo *repositories.RoleRepository, permissions *auth.PermissionEvaluator) *RBACHandlers {
	return &RBACHandlers{roleRepo: roleRepo, permissions: permissions}
}

// PermissionCheckRequest is the body of POST /permissions/check. AdminID names another
// admin to evaluate; empty means the caller.
type PermissionCheckRequest struct {
	Resource string `json:"resource" binding:"required"`
	Action   string `json:"action" binding:"required"`
	AdminID  string `json:"adminId"`
}

// @Summary      Check permission
// @Description  Reports whether the calling admin, or the admin named by adminId, may perform action on resource.
// @Description  A negative answer about the caller is not audited. Checking another admin requires admins:view and is evaluated in the store; denials are audited.
// @Tags         RBAC
// @Security     AdminSession
// @Accept       json
// @Produce      json
// @Param        body  body  PermissionCheckRequest  true  "Resource and action"
// @Success      200  {object}  map[string]interface{}  "success, allowed"
// @Failure      400  {object}  map[string]interface{}  "Invalid request body"
// @Failure      401  {object}  map[string]interface{}  "Invalid or expired session"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/permissions/check [post]
func (h *RBACHandlers) CheckPermission(c *gin.Context) {
	var req PermissionCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "resource and action are required",
		})
		return
	}

	admin := middleware.CurrentAdmin(c)
	if admin == nil {
		middleware.AbortWithAuthError(c, auth.ErrSessionMissing)
		return
	}

	resource, action := models.Resource(req.Resource), models.Action(req.Action)
	if req.AdminID == "" || req.AdminID == admin.ID {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"allowed": auth.Allows(admin, resource, action),
		})
		return
	}

	ctx := c.Request.Context()
	if !h.permissions.HasPermission(ctx, admin, models.ResourceAdmins, models.ActionView) {
		middleware.AbortWithAuthError(c, auth.ErrPermissionDenied)
		return
	}
	allowed, err := h.permissions.CheckByID(ctx, req.AdminID, resource, action)
	if err != nil {
		middleware.AbortWithAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "allowed": allowed})
}

// @Summary      List roles
// @Description  Lists the admin roles and their default permissions. Requires admins:view.
// @Tags         RBAC
// @Security     AdminSession
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "success, roles"
// @Failure      401  {object}  map[string]interface{}  "Invalid or expired session"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/roles [get]
func (h *RBACHandlers) ListRoles(c *gin.Context) {
	roles, err := h.roleRepo.ListRoles(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to list roles",
		})
		return
	}
	if roles == nil {
		roles = []*models.AdminRole{}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "roles": roles})
}
