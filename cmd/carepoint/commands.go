package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/carepoint/carepoint/cmd/carepoint/cli"
	"github.com/carepoint/carepoint/internal/app"
	"github.com/carepoint/carepoint/internal/assignments"
	"github.com/carepoint/carepoint/internal/auth"
	"github.com/carepoint/carepoint/internal/platform/db"
	"github.com/carepoint/carepoint/internal/rbac"
	"github.com/carepoint/carepoint/jobs"
	"github.com/carepoint/carepoint/migrations"
)

// exitError carries a command exit code through cobra.
type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func exitWith(code int) error {
	if code == cli.ExitOK {
		return nil
	}
	return exitError(code)
}

func openPool(ctx context.Context) (*app.Config, *pgxpool.Pool, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres not ready: %w", err)
	}
	return cfg, pool, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-8s %-32s %-8s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-8d %-32s %-8s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})
	return cmd
}

// withAccessCLI opens the stores the access commands need and hands them to fn.
func withAccessCLI(cmd *cobra.Command, fn func(context.Context, *cli.AccessCLI) int) error {
	ctx := cmd.Context()
	cfg, pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger := app.NewLogger(cfg)

	notifier, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		return err
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	engine := rbac.NewEngine(rbac.DefaultRegistry(), nil)
	service := assignments.NewService(assignments.NewPGStore(pool), engine, notifier, logger)
	accessCLI, err := cli.NewAccessCLI(service, auth.NewProvider(auth.NewRepository(pool)))
	if err != nil {
		return err
	}
	return exitWith(fn(ctx, accessCLI))
}

func accessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Manage role assignments",
	}

	var boot cli.BootstrapOptions
	bootstrap := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create or promote the first administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			boot.Output = cli.Output{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}
			if boot.Password == "" {
				boot.Password = os.Getenv("CAREPOINT_ADMIN_PASSWORD")
			}
			return withAccessCLI(cmd, func(ctx context.Context, c *cli.AccessCLI) int {
				return c.BootstrapCommand(ctx, boot)
			})
		},
	}
	bootstrap.Flags().StringVar(&boot.Email, "email", "", "Administrator email")
	bootstrap.Flags().StringVar(&boot.Name, "name", "", "Display name for a new account")
	bootstrap.Flags().StringVar(&boot.Password, "password", "", "Password for a new account (or CAREPOINT_ADMIN_PASSWORD)")
	cmd.AddCommand(bootstrap)

	var assign cli.AssignOptions
	assignCmd := &cobra.Command{
		Use:   "assign",
		Short: "Bind a role to an identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			assign.Output = cli.Output{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}
			return withAccessCLI(cmd, func(ctx context.Context, c *cli.AccessCLI) int {
				return c.AssignCommand(ctx, assign)
			})
		},
	}
	assignCmd.Flags().StringVar(&assign.Email, "email", "", "Identity email")
	assignCmd.Flags().StringVar(&assign.Role, "role", "", "Role name")
	assignCmd.Flags().StringVar(&assign.Department, "department", "", "Department label")
	cmd.AddCommand(assignCmd)

	var list cli.ListOptions
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List role assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			list.Output = cli.Output{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}
			return withAccessCLI(cmd, func(ctx context.Context, c *cli.AccessCLI) int {
				return c.ListCommand(ctx, list)
			})
		},
	}
	listCmd.Flags().StringVar(&list.Role, "role", "", "Only this role")
	listCmd.Flags().StringVar(&list.Query, "q", "", "Search identity or department")
	listCmd.Flags().BoolVar(&list.JSONOutput, "json", false, "Print JSON")
	cmd.AddCommand(listCmd)

	return cmd
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect background jobs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show notification queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
			defer jobsCLI.Close()
			return exitWith(jobsCLI.StatsCommand(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr()))
		},
	})
	return cmd
}
