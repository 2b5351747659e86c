package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stagehand/adminauth/internal/auth/authtest"
	"github.com/stagehand/adminauth/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllows(t *testing.T) {
	role := &models.AdminRole{
		Name: "moderator",
		DefaultPermissions: models.Permissions{
			models.ResourceApplications: {models.ActionView, models.ActionApprove},
			models.ResourceCampaigns:    {models.ActionView},
		},
	}

	tests := []struct {
		name     string
		custom   models.Permissions
		role     *models.AdminRole
		resource models.Resource
		action   models.Action
		want     bool
	}{
		{"role default grants", nil, role, models.ResourceApplications, models.ActionApprove, true},
		{"role default lacks action", nil, role, models.ResourceCampaigns, models.ActionDelete, false},
		{"resource nowhere defined", nil, role, models.ResourceUsers, models.ActionView, false},
		{"override grants beyond role", models.Permissions{models.ResourceUsers: {models.ActionView}}, role, models.ResourceUsers, models.ActionView, true},
		{"override narrows role", models.Permissions{models.ResourceApplications: {models.ActionView}}, role, models.ResourceApplications, models.ActionApprove, false},
		{"empty override denies all", models.Permissions{models.ResourceApplications: {}}, role, models.ResourceApplications, models.ActionView, false},
		{"override for other resource falls back", models.Permissions{models.ResourceUsers: {}}, role, models.ResourceCampaigns, models.ActionView, true},
		{"no role loaded", nil, nil, models.ResourceApplications, models.ActionView, false},
		{"no wildcard matching", models.Permissions{"*": {"*"}}, nil, models.ResourceApplications, models.ActionView, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admin := &models.Admin{ID: "a1", IsActive: true, Role: tt.role, CustomPermissions: tt.custom}
			assert.Equal(t, tt.want, Allows(admin, tt.resource, tt.action))
		})
	}

	assert.False(t, Allows(nil, models.ResourceApplications, models.ActionView))
}

func TestHasPermission_SupportCannotApprove(t *testing.T) {
	sink := &authtest.AuditSink{}
	e := NewPermissionEvaluator(authtest.NewStore(), sink)
	admin := &models.Admin{ID: "admin-support", IsActive: true, Role: supportRole()}

	ctx := WithRequestInfo(context.Background(), RequestInfo{IP: "192.0.2.4", UserAgent: "ua", SessionID: "sess-9", RequestID: "req-1"})

	allowed := e.HasPermission(ctx, admin, models.ResourceApplications, models.ActionApprove)
	assert.False(t, allowed)

	require.Len(t, sink.Entries(), 1)
	entry := sink.Entries()[0]
	assert.Equal(t, models.AuditPermissionDenied, entry.ActionType)
	assert.Equal(t, "admin-support", *entry.AdminID)
	assert.Equal(t, "applications", *entry.ResourceType)
	assert.Equal(t, "approve", entry.Details["action"])
	assert.Equal(t, "req-1", entry.Details["request_id"])
	assert.Equal(t, "sess-9", *entry.SessionID)
	assert.Equal(t, "192.0.2.4", *entry.IPAddress)
	assert.False(t, entry.Success)
}

func TestHasPermission_AllowedIsNotAudited(t *testing.T) {
	sink := &authtest.AuditSink{}
	e := NewPermissionEvaluator(authtest.NewStore(), sink)
	admin := &models.Admin{ID: "admin-support", IsActive: true, Role: supportRole()}

	assert.True(t, e.HasPermission(context.Background(), admin, models.ResourceApplications, models.ActionView))
	assert.Empty(t, sink.Entries())
}

func TestCheckByID(t *testing.T) {
	store := authtest.NewStore()
	sink := &authtest.AuditSink{}
	e := NewPermissionEvaluator(store, sink)
	id := store.AddAdmin(testAdmin(t))
	ctx := context.Background()

	ok, err := e.CheckByID(ctx, id, models.ResourceApplications, models.ActionView)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.CheckByID(ctx, id, models.ResourceApplications, models.ActionApprove)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, sink.Count(models.AuditPermissionDenied))

	ok, err = e.CheckByID(ctx, "missing", models.ResourceApplications, models.ActionView)
	require.NoError(t, err)
	assert.False(t, ok)

	store.FailOn("CheckPermission", errors.New("syntax error"))
	_, err = e.CheckByID(ctx, id, models.ResourceApplications, models.ActionView)
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestEffectivePermissions(t *testing.T) {
	admin := &models.Admin{
		Role: supportRole(),
		CustomPermissions: models.Permissions{
			models.ResourceApplications: {},
			models.ResourceFeedback:     {models.ActionView},
		},
	}
	got := EffectivePermissions(admin)

	set, ok := got.Actions(models.ResourceApplications)
	assert.True(t, ok)
	assert.Empty(t, set)
	assert.True(t, got[models.ResourceFeedback].Contains(models.ActionView))

	noRole := EffectivePermissions(&models.Admin{})
	assert.Empty(t, noRole)
}
