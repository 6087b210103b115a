package view

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carepoint/carepoint/internal/identity"
	"github.com/carepoint/carepoint/internal/rbac"
)

func principal(t *testing.T, reg *rbac.Registry, name rbac.RoleName) *identity.Principal {
	t.Helper()
	role, ok := reg.Get(string(name))
	require.True(t, ok)
	return &identity.Principal{Email: "x@h.com", DisplayName: "X", Role: role.Name, RoleLabel: role.Label, Permissions: role.Permissions, Pages: role.Pages}
}

type action struct {
	Permission string
	Label      string
}

type pageData struct {
	Title   string
	Summary string
	Actions []action
}

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine(rbac.NewEngine(rbac.DefaultRegistry(), nil))
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestPageActionsFollowPermissions(t *testing.T) {
	reg := rbac.DefaultRegistry()
	engine, err := NewEngine(rbac.NewEngine(reg, nil))
	require.NoError(t, err)
	data := pageData{Title: "Patients", Actions: []action{
		{Permission: rbac.PermPatientsRead, Label: "View chart"},
		{Permission: rbac.PermPatientsDelete, Label: "Delete record"},
	}}

	rec := httptest.NewRecorder()
	require.NoError(t, engine.Render(rec, "pages/page.html", TemplateData{Principal: principal(t, reg, rbac.RoleNurse), Data: data}))
	assert.Contains(t, rec.Body.String(), "View chart")
	assert.NotContains(t, rec.Body.String(), "Delete record")

	rec = httptest.NewRecorder()
	require.NoError(t, engine.Render(rec, "pages/page.html", TemplateData{Principal: principal(t, reg, rbac.RoleAdmin), Data: data}))
	assert.Contains(t, rec.Body.String(), "Delete record")
}

func TestCanWithoutPrincipalOrEngine(t *testing.T) {
	can := funcs(nil)["can"].(func(*identity.Principal, string) bool)
	assert.False(t, can(principal(t, rbac.DefaultRegistry(), rbac.RoleAdmin), rbac.PermPatientsRead))

	can = funcs(rbac.NewEngine(rbac.DefaultRegistry(), nil))["can"].(func(*identity.Principal, string) bool)
	assert.False(t, can(nil, rbac.PermPatientsRead))
}

func TestLabelKeepsAcronyms(t *testing.T) {
	cases := map[string]string{
		"  emergency ward ": "Emergency Ward",
		"ICU":               "ICU",
		"ER":                "ER",
		"OB/GYN":            "OB/GYN",
		"Ward 3":            "Ward 3",
		"":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, label(in), in)
	}
}

func TestFormatDate(t *testing.T) {
	format := funcs(nil)["formatDate"].(func(time.Time) string)
	assert.Equal(t, "", format(time.Time{}))
	assert.Equal(t, "05 Mar 2024 14:07", format(time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)))
}
