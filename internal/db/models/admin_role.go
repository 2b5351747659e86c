// Package models - admin_role.go defines AdminRole, a named set of default permissions,
// along with the system roles seeded by the initial migration.
package models

import "time"

// AdminRole represents a role with default permissions
type AdminRole struct {
	ID                 string      `db:"id" json:"id"`
	Name               string      `db:"name" json:"name"`
	DisplayName        string      `db:"display_name" json:"display_name"`
	Description        *string     `db:"description" json:"description,omitempty"`
	DefaultPermissions Permissions `db:"-" json:"default_permissions"`
	IsSystem           bool        `db:"is_system" json:"is_system"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at" json:"updated_at"`
}

// PredefinedAdminRoles returns the system roles. The migration seeds the same data.
func PredefinedAdminRoles() []AdminRole {
	superDesc := "Full access to every admin resource"
	moderatorDesc := "Reviews applications, campaigns and feedback"
	supportDesc := "Read-only access to applications and users for support requests"
	viewerDesc := "Read-only access to dashboards"

	return []AdminRole{
		{
			Name:        "super_admin",
			DisplayName: "Super Admin",
			Description: &superDesc,
			DefaultPermissions: Permissions{
				ResourceApplications: {ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionApprove, ActionReject, ActionExport},
				ResourceAdmins:       {ActionView, ActionCreate, ActionUpdate, ActionDelete},
				ResourceAuditLogs:    {ActionView, ActionExport},
				ResourceCampaigns:    {ActionView, ActionCreate, ActionUpdate, ActionDelete},
				ResourceReleases:     {ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionApprove},
				ResourceFeedback:     {ActionView, ActionUpdate, ActionDelete},
				ResourceUsers:        {ActionView, ActionUpdate, ActionDelete, ActionExport},
				ResourceChat:         {ActionView, ActionCreate},
			},
			IsSystem: true,
		},
		{
			Name:        "moderator",
			DisplayName: "Moderator",
			Description: &moderatorDesc,
			DefaultPermissions: Permissions{
				ResourceApplications: {ActionView, ActionApprove, ActionReject},
				ResourceCampaigns:    {ActionView, ActionUpdate},
				ResourceFeedback:     {ActionView, ActionUpdate},
				ResourceChat:         {ActionView, ActionCreate},
			},
			IsSystem: true,
		},
		{
			Name:        "support",
			DisplayName: "Support",
			Description: &supportDesc,
			DefaultPermissions: Permissions{
				ResourceApplications: {ActionView},
				ResourceUsers:        {ActionView},
				ResourceChat:         {ActionView, ActionCreate},
			},
			IsSystem: true,
		},
		{
			Name:        "viewer",
			DisplayName: "Viewer",
			Description: &viewerDesc,
			DefaultPermissions: Permissions{
				ResourceApplications: {ActionView},
				ResourceCampaigns:    {ActionView},
				ResourceReleases:     {ActionView},
			},
			IsSystem: true,
		},
	}
}
