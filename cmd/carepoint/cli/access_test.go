package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carepoint/carepoint/internal/assignments"
	"github.com/carepoint/carepoint/internal/auth"
	"github.com/carepoint/carepoint/internal/rbac"
	"github.com/carepoint/carepoint/internal/shared"
)

func newAccessCLI(t *testing.T, store *assignments.MemoryStore) (*AccessCLI, *auth.Provider) {
	t.Helper()
	engine := rbac.NewEngine(rbac.DefaultRegistry(), nil)
	service := assignments.NewService(store, engine, nil, nil)
	provider := auth.NewProvider(auth.NewMemoryRepository())
	c, err := NewAccessCLI(service, provider)
	require.NoError(t, err)
	return c, provider
}

func TestBootstrapCreatesActiveAdmin(t *testing.T) {
	store := assignments.NewMemoryStore()
	c, provider := newAccessCLI(t, store)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	code := c.BootstrapCommand(context.Background(), BootstrapOptions{
		Output:   Output{Stdout: stdout, Stderr: stderr},
		Email:    " Root@H.com ",
		Name:     "Root",
		Password: "correct-horse-9",
	})
	require.Equal(t, ExitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "root@h.com is now an active Admin")

	a, err := store.GetAssignment(context.Background(), "root@h.com")
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, a.Role)
	assert.True(t, a.Active())

	_, err = provider.Authenticate(context.Background(), auth.Credentials{Email: "root@h.com", Password: "correct-horse-9"})
	assert.NoError(t, err)
}

func TestBootstrapPromotesExistingAssignment(t *testing.T) {
	store := assignments.NewMemoryStore(assignments.RoleAssignment{
		IdentityKey: "root@h.com",
		Role:        rbac.RoleStaff,
		Status:      assignments.StatusInactive,
	})
	c, _ := newAccessCLI(t, store)
	out := Output{Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)}

	require.Equal(t, ExitOK, c.BootstrapCommand(context.Background(), BootstrapOptions{Output: out, Email: "root@h.com"}))
	require.Equal(t, ExitOK, c.BootstrapCommand(context.Background(), BootstrapOptions{Output: out, Email: "root@h.com"}))

	a, err := store.GetAssignment(context.Background(), "root@h.com")
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, a.Role)
	assert.True(t, a.Active())
}

func TestBootstrapRequiresEmail(t *testing.T) {
	c, _ := newAccessCLI(t, assignments.NewMemoryStore())
	stderr := new(bytes.Buffer)

	code := c.BootstrapCommand(context.Background(), BootstrapOptions{Output: Output{Stdout: new(bytes.Buffer), Stderr: stderr}})
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, stderr.String(), "--email is required")
}

func TestAssignCommand(t *testing.T) {
	store := assignments.NewMemoryStore()
	c, _ := newAccessCLI(t, store)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	out := Output{Stdout: stdout, Stderr: stderr}

	code := c.AssignCommand(context.Background(), AssignOptions{Output: out, Email: "lab@h.com", Role: "lab", Department: "Pathology"})
	require.Equal(t, ExitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "lab@h.com assigned Lab (lands on /pages/lab.html)")

	code = c.AssignCommand(context.Background(), AssignOptions{Output: out, Email: "x@h.com", Role: "Janitor"})
	assert.Equal(t, ExitUsage, code)

	code = c.AssignCommand(context.Background(), AssignOptions{Output: out, Email: "x@h.com"})
	assert.Equal(t, ExitUsage, code)

	store.FailWith(errors.Join(shared.ErrStore, errors.New("down")))
	code = c.AssignCommand(context.Background(), AssignOptions{Output: out, Email: "y@h.com", Role: "Nurse"})
	assert.Equal(t, ExitFailure, code)
}

func TestListCommand(t *testing.T) {
	store := assignments.NewMemoryStore()
	c, _ := newAccessCLI(t, store)
	out := Output{Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)}
	require.Equal(t, ExitOK, c.AssignCommand(context.Background(), AssignOptions{Output: out, Email: "a@h.com", Role: "Nurse"}))
	require.Equal(t, ExitOK, c.AssignCommand(context.Background(), AssignOptions{Output: out, Email: "b@h.com", Role: "Doctor"}))

	stdout := new(bytes.Buffer)
	code := c.ListCommand(context.Background(), ListOptions{Output: Output{Stdout: stdout, Stderr: new(bytes.Buffer)}, Role: "doctor"})
	require.Equal(t, ExitOK, code)
	assert.Contains(t, stdout.String(), "IDENTITY")
	assert.Contains(t, stdout.String(), "b@h.com")
	assert.NotContains(t, stdout.String(), "a@h.com")

	stdout.Reset()
	code = c.ListCommand(context.Background(), ListOptions{Output: Output{Stdout: stdout, Stderr: new(bytes.Buffer)}, JSONOutput: true})
	require.Equal(t, ExitOK, code)
	var items []assignments.RoleAssignment
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &items))
	assert.Len(t, items, 2)

	code = c.ListCommand(context.Background(), ListOptions{Output: Output{Stdout: stdout, Stderr: new(bytes.Buffer)}, Role: "janitor"})
	assert.Equal(t, ExitUsage, code)
}
