package assignments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/carepoint/carepoint/internal/platform/db"
	"github.com/carepoint/carepoint/internal/rbac"
	"github.com/carepoint/carepoint/internal/shared"
)

// Querier is the part of *pgxpool.Pool that PGStore uses.
type Querier interface {
	db.TxBeginner
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool Querier
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool Querier) *PGStore {
	return &PGStore{pool: pool}
}

const assignmentColumns = `identity_key, role, department, status, assigned_by, assigned_at, updated_by, updated_at`

func (s *PGStore) GetAssignment(ctx context.Context, key string) (RoleAssignment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM role_assignments WHERE identity_key = $1`, key)
	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleAssignment{}, ErrNotFound
		}
		return RoleAssignment{}, storeErr("get assignment", err)
	}
	return a, nil
}

func (s *PGStore) UpsertAssignment(ctx context.Context, a RoleAssignment, change *AssignmentChange) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
INSERT INTO role_assignments (`+assignmentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (identity_key) DO UPDATE SET
    role = EXCLUDED.role,
    department = EXCLUDED.department,
    status = EXCLUDED.status,
    updated_by = EXCLUDED.updated_by,
    updated_at = EXCLUDED.updated_at`,
			a.IdentityKey, string(a.Role), a.Department, string(a.Status), a.AssignedBy, a.AssignedAt, a.UpdatedBy, a.UpdatedAt)
		if err != nil {
			return err
		}
		if change == nil {
			return nil
		}
		return insertChange(ctx, tx, *change)
	})
	if err != nil {
		return storeErr("upsert assignment", err)
	}
	return nil
}

func (s *PGStore) DeleteAssignment(ctx context.Context, key string, change AssignmentChange) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM role_assignments WHERE identity_key = $1`, key)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return insertChange(ctx, tx, change)
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return storeErr("delete assignment", err)
	}
	return nil
}

func (s *PGStore) ListAssignments(ctx context.Context) ([]RoleAssignment, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+assignmentColumns+` FROM role_assignments ORDER BY assigned_at DESC, identity_key`)
	if err != nil {
		return nil, storeErr("list assignments", err)
	}
	defer rows.Close()
	var out []RoleAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, storeErr("scan assignment", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list assignments", err)
	}
	return out, nil
}

func (s *PGStore) ListHistory(ctx context.Context, key string) ([]AssignmentChange, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, identity_key, action, old_role, new_role, old_status, new_status, changed_by, changed_at
FROM role_assignment_history
WHERE identity_key = $1
ORDER BY changed_at DESC, id DESC`, key)
	if err != nil {
		return nil, storeErr("list history", err)
	}
	defer rows.Close()
	var out []AssignmentChange
	for rows.Next() {
		var c AssignmentChange
		var action, oldRole, newRole, oldSt, newSt string
		if err := rows.Scan(&c.ID, &c.IdentityKey, &action, &oldRole, &newRole, &oldSt, &newSt, &c.ChangedBy, &c.ChangedAt); err != nil {
			return nil, storeErr("scan history", err)
		}
		c.Action = Action(action)
		c.OldRole, c.NewRole = rbac.RoleName(oldRole), rbac.RoleName(newRole)
		c.OldStatus, c.NewStatus = Status(oldSt), Status(newSt)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list history", err)
	}
	return out, nil
}

func insertChange(ctx context.Context, tx pgx.Tx, c AssignmentChange) error {
	_, err := tx.Exec(ctx, `
INSERT INTO role_assignment_history (identity_key, action, old_role, new_role, old_status, new_status, changed_by, changed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.IdentityKey, string(c.Action), string(c.OldRole), string(c.NewRole), string(c.OldStatus), string(c.NewStatus), c.ChangedBy, c.ChangedAt)
	return err
}

func scanAssignment(row pgx.Row) (RoleAssignment, error) {
	var (
		a            RoleAssignment
		role, status string
	)
	if err := row.Scan(&a.IdentityKey, &role, &a.Department, &status, &a.AssignedBy, &a.AssignedAt, &a.UpdatedBy, &a.UpdatedAt); err != nil {
		return RoleAssignment{}, err
	}
	a.Role = rbac.RoleName(role)
	a.Status = Status(status)
	return a, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("assignments: %s: %w", op, errors.Join(shared.ErrStore, err))
}

var _ Store = (*PGStore)(nil)
