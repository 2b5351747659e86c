// audit_logs.go implements read access to the admin audit trail.
package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stagehand/adminauth/internal/db/models"
	"github.com/stagehand/adminauth/internal/db/repositories"
)

const (
	defaultAuditPerPage = 50
	maxAuditPerPage     = 200
)

// AuditLogHandlers handles audit log endpoints
type AuditLogHandlers struct {
	auditRepo *repositories.AuditRepository
}

// NewAuditLogHandlers creates a new AuditLogHandlers instance
func NewAuditLogHandlers(auditRepo *repositories.AuditRepository) *AuditLogHandlers {
	return &AuditLogHandlers{auditRepo: auditRepo}
}

// @Summary      List audit logs
// @Description  Returns audit entries newest first. Requires audit_logs:view.
// @Tags         Audit
// @Security     AdminSession
// @Produce      json
// @Param        admin_id       query  string  false  "Filter by admin ID"
// @Param        action_type    query  string  false  "Filter by action type, e.g. admin.login.failure"
// @Param        resource_type  query  string  false  "Filter by resource type"
// @Param        success        query  bool    false  "Filter by outcome"
// @Param        start_date     query  string  false  "RFC3339 lower bound"
// @Param        end_date       query  string  false  "RFC3339 upper bound"
// @Param        page           query  int     false  "Page number (default 1)"
// @Param        per_page       query  int     false  "Items per page, max 200 (default 50)"
// @Success      200  {object}  map[string]interface{}  "success, logs, pagination"
// @Failure      400  {object}  map[string]interface{}  "Invalid filter"
// @Failure      401  {object}  map[string]interface{}  "Invalid or expired session"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/audit-logs [get]
// ListAuditLogs lists audit entries with filters and pagination
// GET /api/v1/admin/audit-logs?page=1&per_page=50
func (h *AuditLogHandlers) ListAuditLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultAuditPerPage)))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > maxAuditPerPage {
		perPage = defaultAuditPerPage
	}

	filters, msg := parseAuditFilters(c)
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msg})
		return
	}

	logs, total, err := h.auditRepo.ListAuditLogs(c.Request.Context(), filters, perPage, (page-1)*perPage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to list audit logs",
		})
		return
	}
	if logs == nil {
		logs = []*models.AdminAuditLog{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"logs":    logs,
		"pagination": gin.H{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}

// @Summary      Get audit log
// @Tags         Audit
// @Security     AdminSession
// @Produce      json
// @Param        id  path  string  true  "Audit log ID"
// @Success      200  {object}  map[string]interface{}  "success, log"
// @Failure      404  {object}  map[string]interface{}  "Audit log not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/audit-logs/{id} [get]
func (h *AuditLogHandlers) GetAuditLog(c *gin.Context) {
	log, err := h.auditRepo.GetAuditLog(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to retrieve audit log",
		})
		return
	}
	if log == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "Audit log not found",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "log": log})
}

// parseAuditFilters reads the optional filters. A non-empty message means the query
// was malformed.
func parseAuditFilters(c *gin.Context) (repositories.AuditFilters, string) {
	var f repositories.AuditFilters

	if v := c.Query("admin_id"); v != "" {
		f.AdminID = &v
	}
	if v := c.Query("action_type"); v != "" {
		f.ActionType = &v
	}
	if v := c.Query("resource_type"); v != "" {
		f.ResourceType = &v
	}
	if v := c.Query("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, "success must be true or false"
		}
		f.Success = &b
	}
	if v := c.Query("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, "start_date must be RFC3339"
		}
		f.StartDate = &t
	}
	if v := c.Query("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, "end_date must be RFC3339"
		}
		f.EndDate = &t
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return f, "end_date is before start_date"
	}

	return f, ""
}
