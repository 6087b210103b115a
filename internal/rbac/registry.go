package rbac

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// RoleName identifies one of the deploy-time roles.
type RoleName string

// Known roles.
const (
	RoleAdmin     RoleName = "Admin"
	RoleDoctor    RoleName = "Doctor"
	RoleNurse     RoleName = "Nurse"
	RolePharmacy  RoleName = "Pharmacy"
	RoleLab       RoleName = "Lab"
	RoleReception RoleName = "Reception"
	RoleTriage    RoleName = "Triage"
	RoleStaff     RoleName = "Staff"
)

// Role bundles the permissions and pages granted to a RoleName.
type Role struct {
	Name        RoleName
	Label       string
	Permissions []string
	Pages       []string
	LandingPage string
}

// HasPage reports whether the role lists the page.
func (r Role) HasPage(page string) bool {
	return slices.Contains(r.Pages, page)
}

func (r Role) clone() Role {
	r.Permissions = slices.Clone(r.Permissions)
	r.Pages = slices.Clone(r.Pages)
	return r
}

// Registry is the read-only role table. Changing it is a deployment action.
type Registry struct {
	roles  []Role
	byName map[RoleName]int
}

// NewRegistry validates the supplied roles and builds a Registry.
func NewRegistry(roles ...Role) (*Registry, error) {
	reg := &Registry{byName: make(map[RoleName]int, len(roles))}
	for _, role := range roles {
		if _, dup := reg.byName[role.Name]; dup {
			return nil, fmt.Errorf("rbac: duplicate role %q", role.Name)
		}
		reg.byName[role.Name] = len(reg.roles)
		reg.roles = append(reg.roles, role.clone())
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// DefaultRegistry returns the hospital role table.
func DefaultRegistry() *Registry {
	reg, err := NewRegistry(defaultRoles()...)
	if err != nil {
		panic(err)
	}
	return reg
}

// Get looks up a role by its canonical name. A miss is a normal outcome.
func (r *Registry) Get(name string) (Role, bool) {
	if r == nil {
		return Role{}, false
	}
	idx, ok := r.byName[RoleName(name)]
	if !ok {
		return Role{}, false
	}
	return r.roles[idx].clone(), true
}

// List returns every role in declaration order.
func (r *Registry) List() []Role {
	if r == nil {
		return nil
	}
	out := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role.clone())
	}
	return out
}

// Names returns the canonical role names in declaration order.
func (r *Registry) Names() []RoleName {
	if r == nil {
		return nil
	}
	out := make([]RoleName, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role.Name)
	}
	return out
}

// Validate checks the registry invariants.
func (r *Registry) Validate() error {
	if r == nil || len(r.roles) == 0 {
		return errors.New("rbac: registry is empty")
	}
	var errs []error
	for _, role := range r.roles {
		if strings.TrimSpace(string(role.Name)) == "" {
			errs = append(errs, errors.New("rbac: role without name"))
			continue
		}
		if len(role.Permissions) == 0 {
			errs = append(errs, fmt.Errorf("rbac: role %s has no permissions", role.Name))
		}
		if len(role.Pages) == 0 {
			errs = append(errs, fmt.Errorf("rbac: role %s has no pages", role.Name))
		}
		for _, page := range role.Pages {
			if !IsKnownPage(page) {
				errs = append(errs, fmt.Errorf("rbac: role %s lists unknown page %q", role.Name, page))
			}
		}
		if role.LandingPage != "" && !role.HasPage(role.LandingPage) {
			errs = append(errs, fmt.Errorf("rbac: role %s lands on %q outside its pages", role.Name, role.LandingPage))
		}
	}
	if idx, ok := r.byName[RoleAdmin]; !ok {
		errs = append(errs, errors.New("rbac: admin role missing"))
	} else if !slices.Contains(r.roles[idx].Permissions, PermissionAll) {
		errs = append(errs, errors.New("rbac: admin role must carry the all permission"))
	}
	return errors.Join(errs...)
}

// ParseRoleName maps case-insensitive input onto a canonical RoleName.
func ParseRoleName(raw string) (RoleName, bool) {
	raw = strings.TrimSpace(raw)
	for _, name := range []RoleName{RoleAdmin, RoleDoctor, RoleNurse, RolePharmacy, RoleLab, RoleReception, RoleTriage, RoleStaff} {
		if strings.EqualFold(string(name), raw) {
			return name, true
		}
	}
	return "", false
}

func defaultRoles() []Role {
	allPages := make([]string, 0, len(navigation))
	for _, item := range navigation {
		allPages = append(allPages, item.Page)
	}
	return []Role{
		{
			Name:        RoleAdmin,
			Label:       "Administrator",
			Permissions: []string{PermissionAll},
			Pages:       allPages,
			LandingPage: PageAdmin,
		},
		{
			Name:  RoleDoctor,
			Label: "Doctor",
			Permissions: []string{
				PermPatientsRead, PermPatientsUpdate,
				PermAppointmentsRead, PermAppointmentsUpdate,
				PermTriageRead, PermTriageUpdate,
				PermConsultationsCreate, PermConsultationsRead, PermConsultationsUpdate,
				PermLabRequestsCreate, PermLabRequestsRead,
				PermLabResultsRead,
				PermPrescriptionsCreate, PermPrescriptionsRead,
				PermMedicinesRead,
			},
			Pages:       []string{PageDoctors, PageDashboard, PagePatients, PageLab, PagePharmacy},
			LandingPage: PageDoctors,
		},
		{
			Name:  RoleNurse,
			Label: "Nurse",
			Permissions: []string{
				PermPatientsCreate, PermPatientsRead, PermPatientsUpdate,
				PermAppointmentsRead,
				PermTriageCreate, PermTriageRead, PermTriageUpdate,
				PermConsultationsRead,
				PermLabRequestsRead,
				PermLabResultsRead,
				PermPrescriptionsRead,
				PermMedicinesRead,
			},
			Pages:       []string{PagePatients, PageDashboard, PageTriage, PageLab, PagePharmacy},
			LandingPage: PagePatients,
		},
		{
			Name:  RolePharmacy,
			Label: "Pharmacy",
			Permissions: []string{
				PermPrescriptionsRead, PermPrescriptionsUpdate,
				PermMedicinesCreate, PermMedicinesRead, PermMedicinesUpdate,
				PermPatientsRead,
			},
			Pages:       []string{PagePharmacy, PageDashboard, PagePatients},
			LandingPage: PagePharmacy,
		},
		{
			Name:  RoleLab,
			Label: "Laboratory",
			Permissions: []string{
				PermLabRequestsRead, PermLabRequestsUpdate,
				PermLabResultsCreate, PermLabResultsRead, PermLabResultsUpdate,
				PermPatientsRead,
			},
			Pages:       []string{PageLab, PageDashboard, PagePatients},
			LandingPage: PageLab,
		},
		{
			Name:  RoleReception,
			Label: "Reception",
			Permissions: []string{
				PermAppointmentsCreate, PermAppointmentsRead, PermAppointmentsUpdate, PermAppointmentsDelete,
				PermPatientsCreate, PermPatientsRead, PermPatientsUpdate,
				PermBillingCreate, PermBillingRead, PermBillingUpdate,
				PermDoctorsRead,
			},
			Pages:       []string{PageAppointments, PageDashboard, PagePatients, PageBilling},
			LandingPage: PageAppointments,
		},
		{
			Name:  RoleTriage,
			Label: "Triage",
			Permissions: []string{
				PermTriageCreate, PermTriageRead, PermTriageUpdate,
				PermPatientsCreate, PermPatientsRead,
				PermAppointmentsRead,
			},
			Pages:       []string{PageTriage, PageDashboard, PagePatients, PageAppointments},
			LandingPage: PageTriage,
		},
		{
			Name:        RoleStaff,
			Label:       "Staff",
			Permissions: []string{PermPatientsRead, PermAppointmentsRead, PermTriageRead},
			Pages:       []string{PageDashboard, PagePatients, PageTriage},
			LandingPage: PageDashboard,
		},
	}
}
