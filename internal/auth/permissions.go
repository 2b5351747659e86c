package auth

import (
	"context"

	"github.com/stagehand/adminauth/internal/db/models"
	"github.com/stagehand/adminauth/internal/telemetry"
)

// Allows reports whether admin may perform action on resource.
//
// A custom override entry for the resource is authoritative, including an empty one.
// Without an override the role default applies. A resource neither defines is denied.
func Allows(admin *models.Admin, resource models.Resource, action models.Action) bool {
	if admin == nil {
		return false
	}
	if set, ok := admin.CustomPermissions.Actions(resource); ok {
		return set.Contains(action)
	}
	if admin.Role == nil {
		return false
	}
	set, ok := admin.Role.DefaultPermissions.Actions(resource)
	return ok && set.Contains(action)
}

// EffectivePermissions returns the role defaults overlaid with the admin's overrides.
func EffectivePermissions(admin *models.Admin) models.Permissions {
	var base models.Permissions
	if admin.Role != nil {
		base = admin.Role.DefaultPermissions
	}
	return base.Merge(admin.CustomPermissions)
}

// PermissionEvaluator answers permission checks and audits every denial.
type PermissionEvaluator struct {
	admins AdminStore
	audit  AuditRecorder
}

// NewPermissionEvaluator creates an evaluator. audit may be nil.
func NewPermissionEvaluator(admins AdminStore, audit AuditRecorder) *PermissionEvaluator {
	if audit == nil {
		audit = nopRecorder{}
	}
	return &PermissionEvaluator{admins: admins, audit: audit}
}

// HasPermission applies Allows and records one permission-denied audit entry when the
// answer is no. Request metadata is taken from ctx.
func (e *PermissionEvaluator) HasPermission(ctx context.Context, admin *models.Admin, resource models.Resource, action models.Action) bool {
	if Allows(admin, resource, action) {
		return true
	}
	adminID := ""
	if admin != nil {
		adminID = admin.ID
	}
	e.recordDenial(ctx, adminID, resource, action)
	return false
}

// CheckByID evaluates the permission in the store for callers holding only an admin id.
// Inactive and unknown admins are denied.
func (e *PermissionEvaluator) CheckByID(ctx context.Context, adminID string, resource models.Resource, action models.Action) (bool, error) {
	allowed, err := e.admins.CheckPermission(ctx, adminID, resource, action)
	if err != nil {
		return false, internalError("check permission", err)
	}
	if !allowed {
		e.recordDenial(ctx, adminID, resource, action)
	}
	return allowed, nil
}

func (e *PermissionEvaluator) recordDenial(ctx context.Context, adminID string, resource models.Resource, action models.Action) {
	telemetry.AdminPermissionDenialsTotal.WithLabelValues(string(resource)).Inc()

	entry := newAuditEntry(models.AuditPermissionDenied, adminID, RequestInfoFrom(ctx), false)
	rt := string(resource)
	entry.ResourceType = &rt
	entry.Details["action"] = string(action)
	msg := string(KindPermissionDenied)
	entry.ErrorMessage = &msg
	e.audit.Record(entry)
}
