package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/carepoint/carepoint/internal/assignments"
	"github.com/carepoint/carepoint/internal/auth"
	"github.com/carepoint/carepoint/internal/identity"
	"github.com/carepoint/carepoint/internal/rbac"
)

// Exit codes returned by the access commands.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// Registrar creates sign-in accounts.
type Registrar interface {
	Register(ctx context.Context, email, displayName, password string) (identity.Identity, error)
}

// AccessCLI performs role administration from the command line. Every
// change is made as the system actor.
type AccessCLI struct {
	service  *assignments.Service
	accounts Registrar
}

// NewAccessCLI constructs the helper.
func NewAccessCLI(service *assignments.Service, accounts Registrar) (*AccessCLI, error) {
	if service == nil {
		return nil, errors.New("access cli: assignment service required")
	}
	return &AccessCLI{service: service, accounts: accounts}, nil
}

// Output holds the writers every command prints to.
type Output struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (o Output) withDefaults() Output {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	return o
}

// BootstrapOptions configures the bootstrap command.
type BootstrapOptions struct {
	Output
	Email    string
	Name     string
	Password string
}

// BootstrapCommand creates the first administrator. An existing account or
// assignment is reused and left as an active Admin.
func (c *AccessCLI) BootstrapCommand(ctx context.Context, opts BootstrapOptions) int {
	out := opts.withDefaults()
	key := assignments.NormalizeKey(opts.Email)
	if key == "" {
		_, _ = fmt.Fprintln(out.Stderr, "access bootstrap: --email is required")
		return ExitUsage
	}
	if c.accounts != nil && opts.Password != "" {
		if _, err := c.accounts.Register(ctx, key, opts.Name, opts.Password); err != nil && !errors.Is(err, auth.ErrEmailTaken) {
			_, _ = fmt.Fprintf(out.Stderr, "access bootstrap: %v\n", err)
			return ExitFailure
		}
	}
	var department string
	existing, err := c.service.Get(ctx, key)
	switch {
	case err == nil:
		department = existing.Department
	case !errors.Is(err, assignments.ErrNotFound):
		_, _ = fmt.Fprintf(out.Stderr, "access bootstrap: %v\n", err)
		return ExitFailure
	}
	if _, err := c.service.AssignRole(ctx, assignments.SystemActor, key, string(rbac.RoleAdmin), department); err != nil {
		_, _ = fmt.Fprintf(out.Stderr, "access bootstrap: %v\n", err)
		return ExitFailure
	}
	_, _ = fmt.Fprintf(out.Stdout, "%s is now an active Admin\n", key)
	return ExitOK
}

// AssignOptions configures the assign command.
type AssignOptions struct {
	Output
	Email      string
	Role       string
	Department string
}

// AssignCommand binds a role to an identity.
func (c *AccessCLI) AssignCommand(ctx context.Context, opts AssignOptions) int {
	out := opts.withDefaults()
	if assignments.NormalizeKey(opts.Email) == "" || opts.Role == "" {
		_, _ = fmt.Fprintln(out.Stderr, "access assign: --email and --role are required")
		return ExitUsage
	}
	a, err := c.service.AssignRole(ctx, assignments.SystemActor, opts.Email, opts.Role, opts.Department)
	if err != nil {
		_, _ = fmt.Fprintf(out.Stderr, "access assign: %v\n", err)
		if errors.Is(err, assignments.ErrInvalidRole) || errors.Is(err, assignments.ErrInvalidInput) {
			return ExitUsage
		}
		return ExitFailure
	}
	var landing string
	for _, r := range c.service.Roles() {
		if r.Name == a.Role {
			landing = rbac.PagePath(r.LandingPage)
		}
	}
	_, _ = fmt.Fprintf(out.Stdout, "%s assigned %s (lands on %s)\n", a.IdentityKey, a.Role, landing)
	return ExitOK
}

// ListOptions configures the list command.
type ListOptions struct {
	Output
	Role       string
	Query      string
	JSONOutput bool
}

// ListCommand prints assignments.
func (c *AccessCLI) ListCommand(ctx context.Context, opts ListOptions) int {
	out := opts.withDefaults()
	filter := assignments.Filter{Query: opts.Query}
	if opts.Role != "" {
		role, ok := rbac.ParseRoleName(opts.Role)
		if !ok {
			_, _ = fmt.Fprintf(out.Stderr, "access list: unknown role %q\n", opts.Role)
			return ExitUsage
		}
		filter.Role = role
	}
	items, err := c.service.ListAssignments(ctx, filter)
	if err != nil {
		_, _ = fmt.Fprintf(out.Stderr, "access list: %v\n", err)
		return ExitFailure
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(out.Stdout).Encode(items); err != nil {
			_, _ = fmt.Fprintf(out.Stderr, "access list: encode json: %v\n", err)
			return ExitFailure
		}
		return ExitOK
	}
	tw := tabwriter.NewWriter(out.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "IDENTITY\tROLE\tDEPARTMENT\tSTATUS\tUPDATED BY")
	for _, a := range items {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.IdentityKey, a.Role, a.Department, a.Status, a.UpdatedBy)
	}
	if err := tw.Flush(); err != nil {
		return ExitFailure
	}
	return ExitOK
}
