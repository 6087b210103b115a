package assignments

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"

	"github.com/carepoint/carepoint/internal/rbac"
)

// Notifier is told about committed assignment changes.
type Notifier interface {
	AssignmentChanged(ctx context.Context, change AssignmentChange) error
}

// Service applies role administration rules on top of a Store.
type Service struct {
	store    Store
	engine   *rbac.Engine
	notifier Notifier
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs a Service. notifier and logger may be nil.
func NewService(store Store, engine *rbac.Engine, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		engine:   engine,
		notifier: notifier,
		logger:   logger,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type keyInput struct {
	IdentityKey string `validate:"required,email,max=254"`
	Department  string `validate:"max=120"`
}

// NormalizeKey lower-cases and trims an identity key.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// AssignRole creates or overwrites the assignment for key and leaves it
// active. Repeating the same call is a no-op.
func (s *Service) AssignRole(ctx context.Context, actor rbac.Subject, key, roleName, department string) (RoleAssignment, error) {
	return s.AssignRoleWithStatus(ctx, actor, key, roleName, department, StatusActive)
}

// AssignRoleWithStatus is AssignRole with an explicit status. The
// assignment and its history row are written in a single upsert.
func (s *Service) AssignRoleWithStatus(ctx context.Context, actor rbac.Subject, key, roleName, department string, status Status) (RoleAssignment, error) {
	if err := s.authorize(actor); err != nil {
		return RoleAssignment{}, err
	}
	key, department, err := s.checkInput(key, department)
	if err != nil {
		return RoleAssignment{}, err
	}
	role, err := s.resolveRole(roleName)
	if err != nil {
		return RoleAssignment{}, err
	}
	if status == "" {
		status = StatusActive
	}
	if !status.Valid() {
		return RoleAssignment{}, fmt.Errorf("%w: status %q", ErrInvalidInput, status)
	}

	existing, err := s.store.GetAssignment(ctx, key)
	found := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return RoleAssignment{}, err
	}
	if found && existing.Role == role && existing.Department == department && existing.Status == status {
		return existing, nil
	}

	now := s.now()
	next := RoleAssignment{
		IdentityKey: key,
		Role:        role,
		Department:  department,
		Status:      status,
		AssignedBy:  actor.SubjectID(),
		AssignedAt:  now,
		UpdatedBy:   actor.SubjectID(),
		UpdatedAt:   now,
	}
	if found {
		next.AssignedBy = existing.AssignedBy
		next.AssignedAt = existing.AssignedAt
		if err := s.keepAnAdmin(ctx, existing, next); err != nil {
			return RoleAssignment{}, err
		}
	}
	change := s.change(actor, key, ActionAssign, existing, next)
	if err := s.store.UpsertAssignment(ctx, next, &change); err != nil {
		return RoleAssignment{}, err
	}
	s.notify(ctx, change)
	return next, nil
}

// ChangeRole replaces the role of an existing assignment.
func (s *Service) ChangeRole(ctx context.Context, actor rbac.Subject, key, roleName string) (RoleAssignment, error) {
	if err := s.authorize(actor); err != nil {
		return RoleAssignment{}, err
	}
	key, _, err := s.checkInput(key, "")
	if err != nil {
		return RoleAssignment{}, err
	}
	role, err := s.resolveRole(roleName)
	if err != nil {
		return RoleAssignment{}, err
	}
	existing, err := s.store.GetAssignment(ctx, key)
	if err != nil {
		return RoleAssignment{}, err
	}
	if existing.Role == role {
		return existing, nil
	}

	next := existing
	next.Role = role
	next.UpdatedBy = actor.SubjectID()
	next.UpdatedAt = s.now()
	if err := s.keepAnAdmin(ctx, existing, next); err != nil {
		return RoleAssignment{}, err
	}
	change := s.change(actor, key, ActionChangeRole, existing, next)
	if err := s.store.UpsertAssignment(ctx, next, &change); err != nil {
		return RoleAssignment{}, err
	}
	s.notify(ctx, change)
	return next, nil
}

// SetStatus activates or deactivates an assignment. Inactive assignments
// do not resolve to a principal.
func (s *Service) SetStatus(ctx context.Context, actor rbac.Subject, key string, status Status) (RoleAssignment, error) {
	if err := s.authorize(actor); err != nil {
		return RoleAssignment{}, err
	}
	key, _, err := s.checkInput(key, "")
	if err != nil {
		return RoleAssignment{}, err
	}
	if !status.Valid() {
		return RoleAssignment{}, fmt.Errorf("%w: status %q", ErrInvalidInput, status)
	}
	existing, err := s.store.GetAssignment(ctx, key)
	if err != nil {
		return RoleAssignment{}, err
	}
	if existing.Status == status {
		return existing, nil
	}

	next := existing
	next.Status = status
	next.UpdatedBy = actor.SubjectID()
	next.UpdatedAt = s.now()
	if err := s.keepAnAdmin(ctx, existing, next); err != nil {
		return RoleAssignment{}, err
	}
	change := s.change(actor, key, ActionSetStatus, existing, next)
	if err := s.store.UpsertAssignment(ctx, next, &change); err != nil {
		return RoleAssignment{}, err
	}
	s.notify(ctx, change)
	return next, nil
}

// RevokeAccess removes the binding for key. Sessions already holding a
// principal for key keep it until they re-resolve.
func (s *Service) RevokeAccess(ctx context.Context, actor rbac.Subject, key string) error {
	if err := s.authorize(actor); err != nil {
		return err
	}
	key, _, err := s.checkInput(key, "")
	if err != nil {
		return err
	}
	existing, err := s.store.GetAssignment(ctx, key)
	if err != nil {
		return err
	}
	if err := s.keepAnAdmin(ctx, existing, RoleAssignment{}); err != nil {
		return err
	}
	change := s.change(actor, key, ActionRevoke, existing, RoleAssignment{})
	if err := s.store.DeleteAssignment(ctx, key, change); err != nil {
		return err
	}
	s.notify(ctx, change)
	return nil
}

// Get returns the assignment for key.
func (s *Service) Get(ctx context.Context, key string) (RoleAssignment, error) {
	return s.store.GetAssignment(ctx, NormalizeKey(key))
}

// ListAssignments returns assignments newest first, then by key.
func (s *Service) ListAssignments(ctx context.Context, filter Filter) ([]RoleAssignment, error) {
	all, err := s.store.ListAssignments(ctx)
	if err != nil {
		return nil, err
	}
	fold := cases.Fold()
	query := fold.String(strings.TrimSpace(filter.Query))
	out := make([]RoleAssignment, 0, len(all))
	for _, a := range all {
		if filter.Role != "" && a.Role != filter.Role {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if query != "" && !matches(fold, query, a) {
			continue
		}
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b RoleAssignment) int {
		if c := b.AssignedAt.Compare(a.AssignedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.IdentityKey, b.IdentityKey)
	})
	return out, nil
}

// Stats counts assignments per bucket shown on the admin screen.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	all, err := s.store.ListAssignments(ctx)
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	for _, a := range all {
		st.Total++
		if a.Active() {
			st.Active++
		}
		switch a.Role {
		case rbac.RoleAdmin:
			st.Admins++
		case rbac.RoleDoctor:
			st.Doctors++
		case rbac.RoleNurse:
			st.Nurses++
		default:
			st.Staff++
		}
	}
	return st, nil
}

// History returns the change log for key, newest first.
func (s *Service) History(ctx context.Context, key string) ([]AssignmentChange, error) {
	return s.store.ListHistory(ctx, NormalizeKey(key))
}

// Roles lists the roles an administrator can assign.
func (s *Service) Roles() []rbac.Role {
	return s.engine.Registry().List()
}

// keepAnAdmin refuses a mutation that takes away the last active Admin
// assignment. The admin screen is only reachable through one.
func (s *Service) keepAnAdmin(ctx context.Context, before, after RoleAssignment) error {
	if !isActiveAdmin(before) || isActiveAdmin(after) {
		return nil
	}
	all, err := s.store.ListAssignments(ctx)
	if err != nil {
		return err
	}
	for _, a := range all {
		if a.IdentityKey != before.IdentityKey && isActiveAdmin(a) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrLastAdmin, before.IdentityKey)
}

func isActiveAdmin(a RoleAssignment) bool {
	return a.Role == rbac.RoleAdmin && a.Active()
}

func matches(fold cases.Caser, query string, a RoleAssignment) bool {
	for _, field := range []string{a.IdentityKey, string(a.Role), a.Department} {
		if strings.Contains(fold.String(field), query) {
			return true
		}
	}
	return false
}

func (s *Service) authorize(actor rbac.Subject) error {
	return s.engine.Authorize(actor, rbac.PermRolesManage)
}

func (s *Service) checkInput(key, department string) (string, string, error) {
	in := keyInput{IdentityKey: NormalizeKey(key), Department: strings.TrimSpace(department)}
	if err := s.validate.Struct(in); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return in.IdentityKey, in.Department, nil
}

func (s *Service) resolveRole(name string) (rbac.RoleName, error) {
	parsed, ok := rbac.ParseRoleName(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, name)
	}
	role, ok := s.engine.Registry().Get(string(parsed))
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, name)
	}
	return role.Name, nil
}

func (s *Service) change(actor rbac.Subject, key string, action Action, before, after RoleAssignment) AssignmentChange {
	return AssignmentChange{
		IdentityKey: key,
		Action:      action,
		OldRole:     before.Role,
		NewRole:     after.Role,
		OldStatus:   before.Status,
		NewStatus:   after.Status,
		ChangedBy:   actor.SubjectID(),
		ChangedAt:   s.now(),
	}
}

func (s *Service) notify(ctx context.Context, change AssignmentChange) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.AssignmentChanged(ctx, change); err != nil {
		s.logger.Warn("enqueue assignment notification",
			slog.String("identity", change.IdentityKey),
			slog.Any("error", err))
	}
}

type systemActor struct{}

func (systemActor) SubjectID() string            { return "system" }
func (systemActor) RoleName() string             { return string(rbac.RoleAdmin) }
func (systemActor) GrantedPermissions() []string { return []string{rbac.PermissionAll} }
func (systemActor) GrantedPages() []string       { return nil }

// SystemActor is the administrative actor used by the bootstrap CLI.
var SystemActor rbac.Subject = systemActor{}
