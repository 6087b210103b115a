package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSubject struct {
	id    string
	role  RoleName
	perms []string
	pages []string
}

func (s *testSubject) SubjectID() string {
	if s == nil {
		return ""
	}
	return s.id
}

func (s *testSubject) RoleName() string {
	if s == nil {
		return ""
	}
	return string(s.role)
}

func (s *testSubject) GrantedPermissions() []string {
	if s == nil {
		return nil
	}
	return s.perms
}

func (s *testSubject) GrantedPages() []string {
	if s == nil {
		return nil
	}
	return s.pages
}

func subjectFor(t *testing.T, reg *Registry, name RoleName) *testSubject {
	t.Helper()
	role, ok := reg.Get(string(name))
	require.True(t, ok)
	return &testSubject{id: string(name) + "@h.com", role: role.Name, perms: role.Permissions, pages: role.Pages}
}

type countingRecorder struct {
	allowed, denied map[string]int
}

func (c *countingRecorder) RecordDecision(kind string, allowed bool) {
	if allowed {
		c.allowed[kind]++
		return
	}
	c.denied[kind]++
}

func TestAdminHasEveryPermission(t *testing.T) {
	reg := DefaultRegistry()
	engine := NewEngine(reg, nil)
	admin := subjectFor(t, reg, RoleAdmin)

	for _, perm := range []string{PermPatientsDelete, PermRolesManage, "system.reset", "anything.at_all", PermissionAll} {
		assert.True(t, engine.HasPermission(admin, perm), perm)
	}
	assert.NoError(t, engine.Authorize(admin, PermRolesManage))
}

func TestNonAdminRequiresExactPermission(t *testing.T) {
	reg := DefaultRegistry()
	engine := NewEngine(reg, nil)

	for _, role := range reg.List() {
		if role.Name == RoleAdmin {
			continue
		}
		subject := subjectFor(t, reg, role.Name)
		for _, perm := range role.Permissions {
			assert.True(t, engine.HasPermission(subject, perm), "%s %s", role.Name, perm)
		}
		assert.False(t, engine.HasPermission(subject, PermRolesManage), role.Name)
		assert.False(t, engine.HasPermission(subject, PermissionAll), role.Name)
	}
}

func TestNoWildcardOrPrefixMatching(t *testing.T) {
	engine := NewEngine(DefaultRegistry(), nil)
	lab := subjectFor(t, engine.Registry(), RoleLab)

	assert.True(t, engine.HasPermission(lab, "labResults.create"))
	assert.False(t, engine.HasPermission(lab, "labResults.*"))
	assert.False(t, engine.HasPermission(lab, "labResults"))
	assert.False(t, engine.HasPermission(lab, "labResults.creat"))
	assert.False(t, engine.HasPermission(lab, "LABRESULTS.CREATE"))
	assert.False(t, engine.HasPermission(lab, ""))

	wildcard := &testSubject{role: RoleLab, perms: []string{"labResults.*"}, pages: []string{PageLab}}
	assert.False(t, engine.HasPermission(wildcard, "labResults.create"))
}

func TestCanPerform(t *testing.T) {
	engine := NewEngine(DefaultRegistry(), nil)
	reception := subjectFor(t, engine.Registry(), RoleReception)

	assert.True(t, engine.CanPerform(reception, "billing", "create"))
	assert.False(t, engine.CanPerform(reception, "billing", "delete"))
}

func TestNilSubjectFailsClosed(t *testing.T) {
	engine := NewEngine(DefaultRegistry(), nil)
	var nobody *testSubject

	for _, page := range []string{PageDashboard, PageAdmin, PagePatients} {
		assert.False(t, engine.CanAccessPage(nil, page))
		assert.False(t, engine.CanAccessPage(nobody, page))
	}
	assert.Empty(t, engine.AccessiblePages(nil))
	assert.NotNil(t, engine.AccessiblePages(nil))
	assert.Empty(t, engine.AccessiblePages(nobody))
	assert.False(t, engine.HasPermission(nil, PermPatientsRead))
	assert.True(t, errors.Is(engine.Authorize(nil, PermPatientsRead), ErrForbidden))
}

func TestUnknownRoleFailsClosed(t *testing.T) {
	engine := NewEngine(DefaultRegistry(), nil)
	ghost := &testSubject{role: "Janitor", perms: []string{PermissionAll}, pages: []string{PageAdmin, PageDashboard}}

	assert.False(t, engine.HasPermission(ghost, PermPatientsRead))
	assert.False(t, engine.CanAccessPage(ghost, PageAdmin))
	assert.Empty(t, engine.AccessiblePages(ghost))
}

func TestNurseScenarioPages(t *testing.T) {
	engine := NewEngine(DefaultRegistry(), nil)
	nurse := subjectFor(t, engine.Registry(), RoleNurse)

	assert.True(t, engine.CanAccessPage(nurse, PagePatients))
	assert.False(t, engine.CanAccessPage(nurse, PageAdmin))
	assert.Equal(t, []string{PageDashboard, PagePatients, PageTriage, PageLab, PagePharmacy}, engine.AccessiblePages(nurse))

	menu := engine.Menu(nurse)
	require.Len(t, menu, 5)
	assert.Equal(t, "Dashboard", menu[0].Title)
	assert.Equal(t, "/pages/patients.html", menu[1].Path)
}

func TestDecisionsAreRecorded(t *testing.T) {
	rec := &countingRecorder{allowed: map[string]int{}, denied: map[string]int{}}
	engine := NewEngine(DefaultRegistry(), rec)
	staff := subjectFor(t, engine.Registry(), RoleStaff)

	engine.HasPermission(staff, PermPatientsRead)
	engine.HasPermission(staff, PermPatientsDelete)
	engine.CanAccessPage(staff, PageAdmin)

	assert.Equal(t, 1, rec.allowed[DecisionPermission])
	assert.Equal(t, 1, rec.denied[DecisionPermission])
	assert.Equal(t, 1, rec.denied[DecisionPage])
}

type subjectKey struct{}

func TestMiddlewareRequireAllAndAny(t *testing.T) {
	engine := NewEngine(DefaultRegistry(), nil)
	mw := Middleware{
		Engine: engine,
		Subject: func(ctx context.Context) Subject {
			s, _ := ctx.Value(subjectKey{}).(*testSubject)
			if s == nil {
				return nil
			}
			return s
		},
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	doctor := subjectFor(t, engine.Registry(), RoleDoctor)

	serve := func(h http.Handler, s *testSubject) int {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if s != nil {
			req = req.WithContext(context.WithValue(req.Context(), subjectKey{}, s))
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	all := mw.RequireAll(PermPatientsRead, PermPrescriptionsCreate)(ok)
	assert.Equal(t, http.StatusNoContent, serve(all, doctor))
	assert.Equal(t, http.StatusForbidden, serve(all, nil))

	strict := mw.RequireAll(PermPatientsRead, PermBillingCreate)(ok)
	assert.Equal(t, http.StatusForbidden, serve(strict, doctor))

	anyOf := mw.RequireAny(PermBillingCreate, " medicines.read ")(ok)
	assert.Equal(t, http.StatusNoContent, serve(anyOf, doctor))

	empty := mw.RequireAny()(ok)
	assert.Equal(t, http.StatusForbidden, serve(empty, doctor))
}
