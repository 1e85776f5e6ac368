package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/medconnect/medconnect/internal/config"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/db"
	"github.com/medconnect/medconnect/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medconnect-server",
		Short: "MedConnect patient and pharmacy API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
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
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, migrations.FS))
}

// tokenCmd issues an access token for an existing user, for operators and
// local testing.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage access tokens",
	}

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue an access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			userFlag, _ := cmd.Flags().GetString("user")
			roleFlag, _ := cmd.Flags().GetString("role")

			userID, err := uuid.Parse(userFlag)
			if err != nil {
				return fmt.Errorf("--user must be a UUID: %w", err)
			}
			role := auth.Role(roleFlag)
			if !role.Valid() && role != auth.RoleAdmin {
				return fmt.Errorf("--role must be patient, pharmacy or admin")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			token, expires, err := newTokenIssuer(cfg).Issue(userID, role)
			if err != nil {
				return err
			}
			fmt.Println(token)
			fmt.Fprintf(os.Stderr, "expires at %s\n", expires.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
	issueCmd.Flags().String("user", "", "User id (UUID)")
	issueCmd.Flags().String("role", string(auth.RolePatient), "Role: patient, pharmacy or admin")
	cmd.AddCommand(issueCmd)

	return cmd
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}
}

func newTokenIssuer(cfg *config.Config) *auth.TokenIssuer {
	return auth.NewTokenIssuer([]byte(cfg.JWTSigningKey), cfg.JWTIssuer, cfg.JWTTTL)
}
