package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socsync/pkg/models"
)

func TestHasPermissionMatchesTable(t *testing.T) {
	table := DefaultTable()
	for _, def := range DefaultRoles() {
		granted := make(map[Permission]bool)
		for _, p := range def.Permissions {
			granted[p] = true
		}
		user := &models.User{ID: "u", Role: def.Role}
		for _, p := range All {
			first := table.HasPermission(user, p)
			second := table.HasPermission(user, p)
			assert.Equal(t, first, second, "non-deterministic result for %s/%s", def.Role, p)
			assert.Equal(t, granted[p], first, "role %s permission %s", def.Role, p)
		}
	}
}

func TestFailClosed(t *testing.T) {
	table := DefaultTable()
	ghost := &models.User{ID: "x", Role: models.Role("ROOT")}

	for _, p := range All {
		assert.False(t, table.HasPermission(nil, p))
		assert.False(t, table.HasPermission(ghost, p))
	}
	assert.False(t, table.HasAllPermissions(nil))
	assert.False(t, table.HasAllPermissions(ghost))
	assert.False(t, table.HasAnyPermission(nil, All...))
	assert.False(t, table.HasRoleHierarchy(nil, models.RoleViewer))
	assert.False(t, table.HasRoleHierarchy(ghost, models.RoleViewer))

	var empty *Table
	assert.False(t, empty.HasPermission(&models.User{Role: models.RoleAdmin}, ViewAlerts))

	d := table.CheckPermissions(nil, DeleteMessage)
	assert.False(t, d.Allowed)
	assert.Equal(t, "not authenticated", d.Reason)
}

func TestAuditorCannotDelete(t *testing.T) {
	table := DefaultTable()
	auditor := &models.User{ID: "a1", Name: "audrey", Role: models.RoleAuditor}

	d := table.CheckPermissions(auditor, DeleteMessage)
	require.False(t, d.Allowed)
	assert.Equal(t, []Permission{DeleteMessage}, d.Missing)
	assert.Contains(t, d.Reason, "DELETE_MESSAGE")

	assert.False(t, table.CheckAction(auditor, models.ActionDelete).Allowed)
	assert.True(t, table.CheckPermissions(auditor, ViewAlerts, ViewAuditLog).Allowed)
}

func TestAllAndAny(t *testing.T) {
	table := DefaultTable()
	analyst := &models.User{ID: "an", Role: models.RoleAnalyst}

	assert.True(t, table.HasAllPermissions(analyst, ViewAlerts, AcknowledgeAlert))
	assert.False(t, table.HasAllPermissions(analyst, ViewAlerts, ReleaseMessage))
	assert.True(t, table.HasAnyPermission(analyst, ReleaseMessage, EscalateAlert))
	assert.False(t, table.HasAnyPermission(analyst, ReleaseMessage, DeleteMessage))
	assert.True(t, table.HasAllPermissions(analyst))
}

func TestRoleHierarchyIsTotalOrder(t *testing.T) {
	table := DefaultTable()
	roles := table.Roles()
	require.Len(t, roles, 5)

	for i, have := range roles {
		for j, need := range roles {
			got := table.HasRoleHierarchy(&models.User{Role: have}, need)
			assert.Equal(t, i >= j, got, "%s >= %s", have, need)
		}
	}
}

func TestActionsNeedExplicitPermission(t *testing.T) {
	table := DefaultTable()
	senior := &models.User{Role: models.RoleSeniorAnalyst}

	assert.True(t, table.CheckAction(senior, models.ActionRelease).Allowed)
	assert.True(t, table.CheckAction(senior, models.ActionQuarantine).Allowed)
	assert.False(t, table.CheckAction(senior, models.ActionDelete).Allowed)
	assert.False(t, table.CheckAction(&models.User{Role: models.RoleAdmin}, models.Action("nuke")).Allowed)

	for _, action := range models.Actions {
		assert.True(t, table.CheckAction(&models.User{Role: models.RoleAdmin}, action).Allowed, string(action))
	}
}

func TestQuarantineStatusIsGatedWhateverTheAction(t *testing.T) {
	table := DefaultTable()
	analyst := &models.User{Role: models.RoleAnalyst}
	senior := &models.User{Role: models.RoleSeniorAnalyst}

	cases := []struct {
		name     string
		from, to models.AlertStatus
		missing  []Permission
	}{
		{"into quarantine", models.StatusNew, models.StatusQuarantined, []Permission{QuarantineMessage}},
		{"out of quarantine", models.StatusQuarantined, models.StatusResolved, []Permission{ReleaseMessage}},
		{"unrelated", models.StatusNew, models.StatusInvestigating, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.missing, RequiredForTransition(tc.from, tc.to))

			d := table.CheckTransition(analyst, models.ActionUpdateStatus, tc.from, tc.to)
			assert.Equal(t, tc.missing == nil, d.Allowed)
			assert.Equal(t, tc.missing, d.Missing)

			assert.True(t, table.CheckTransition(senior, models.ActionUpdateStatus, tc.from, tc.to).Allowed)
		})
	}

	d := table.CheckTransition(senior, models.ActionRelease, models.StatusQuarantined, models.StatusResolved)
	assert.True(t, d.Allowed)
	assert.False(t, table.CheckTransition(analyst, models.ActionResolve, models.StatusQuarantined, models.StatusResolved).Allowed)
}

func TestNewTableRejectsBadDefinitions(t *testing.T) {
	_, err := NewTable([]RoleDefinition{{Role: ""}})
	assert.Error(t, err)

	_, err = NewTable([]RoleDefinition{{Role: "A"}, {Role: "A"}})
	assert.Error(t, err)
}

func TestTableIsImmutableFromOutside(t *testing.T) {
	defs := []RoleDefinition{{Role: "R", Permissions: []Permission{ViewAlerts}}}
	table, err := NewTable(defs)
	require.NoError(t, err)

	defs[0].Permissions[0] = ManageUsers
	perms := table.PermissionsFor("R")
	perms[0] = DeleteMessage

	assert.True(t, table.RoleHas("R", ViewAlerts))
	assert.False(t, table.RoleHas("R", ManageUsers))
	assert.False(t, table.RoleHas("R", DeleteMessage))
}
