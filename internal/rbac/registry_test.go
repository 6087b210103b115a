package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryInvariants(t *testing.T) {
	reg := DefaultRegistry()
	require.NoError(t, reg.Validate())

	roles := reg.List()
	require.Len(t, roles, 8)
	for _, role := range roles {
		assert.NotEmpty(t, role.Permissions, "role %s permissions", role.Name)
		assert.NotEmpty(t, role.Pages, "role %s pages", role.Name)
		assert.True(t, role.HasPage(role.LandingPage), "role %s landing page", role.Name)
	}

	admin, ok := reg.Get("Admin")
	require.True(t, ok)
	assert.Contains(t, admin.Permissions, PermissionAll)
}

func TestRegistryGetUnknownIsNotFound(t *testing.T) {
	reg := DefaultRegistry()

	_, ok := reg.Get("Janitor")
	assert.False(t, ok)
	_, ok = reg.Get("")
	assert.False(t, ok)
	_, ok = reg.Get("doctor")
	assert.False(t, ok, "lookup is on canonical names only")
}

func TestRegistryReturnsCopies(t *testing.T) {
	reg := DefaultRegistry()

	nurse, ok := reg.Get("Nurse")
	require.True(t, ok)
	nurse.Pages[0] = PageAdmin
	nurse.Permissions = append(nurse.Permissions, PermissionAll)

	again, _ := reg.Get("Nurse")
	assert.False(t, again.HasPage(PageAdmin))
	assert.NotContains(t, again.Permissions, PermissionAll)
}

func TestParseRoleName(t *testing.T) {
	cases := map[string]RoleName{
		"admin":      RoleAdmin,
		" DOCTOR ":   RoleDoctor,
		"Reception":  RoleReception,
		"staff":      RoleStaff,
		"laboratory": "",
		"":           "",
	}
	for in, want := range cases {
		got, ok := ParseRoleName(in)
		assert.Equal(t, want != "", ok, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}
}

func TestNewRegistryRejectsBrokenTables(t *testing.T) {
	_, err := NewRegistry(Role{Name: RoleNurse, Permissions: []string{PermPatientsRead}, Pages: []string{PagePatients}})
	assert.ErrorContains(t, err, "admin role missing")

	_, err = NewRegistry(
		Role{Name: RoleAdmin, Permissions: []string{PermPatientsRead}, Pages: []string{PageAdmin}},
	)
	assert.ErrorContains(t, err, "all permission")

	_, err = NewRegistry(
		Role{Name: RoleAdmin, Permissions: []string{PermissionAll}, Pages: []string{PageAdmin}},
		Role{Name: RoleStaff, Permissions: nil, Pages: nil},
	)
	assert.ErrorContains(t, err, "no permissions")
	assert.ErrorContains(t, err, "no pages")

	_, err = NewRegistry(
		Role{Name: RoleAdmin, Permissions: []string{PermissionAll}, Pages: []string{"secret.html"}},
	)
	assert.ErrorContains(t, err, "unknown page")
}
