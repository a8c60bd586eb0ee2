package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanhquoc4114/app-sub000/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dir string

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply chat database migrations",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&dir, "dir", "", "migrations directory (searched upward from the working directory when empty)")

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(dir, func(m *migrate.Migrate, log *zap.Logger) error {
				if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return err
				}
				log.Info("migration up successful")
				return nil
			})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(dir, func(m *migrate.Migrate, log *zap.Logger) error {
				if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return err
				}
				log.Info("migration down successful")
				return nil
			})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "steps N",
		Short: "Apply N migrations (negative rolls back)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("steps must be an integer: %w", err)
			}
			return withMigrator(dir, func(m *migrate.Migrate, log *zap.Logger) error {
				if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return err
				}
				log.Info("migration steps applied", zap.Int("steps", n))
				return nil
			})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(dir, func(m *migrate.Migrate, log *zap.Logger) error {
				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					log.Info("no migrations applied")
					return nil
				}
				if err != nil {
					return err
				}
				log.Info("schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
				return nil
			})
		},
	})
	return root
}

func withMigrator(dir string, fn func(*migrate.Migrate, *zap.Logger) error) error {
	_ = godotenv.Load()

	log, err := logging.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		return errors.New("DB_URL environment variable is required")
	}

	migrationsPath := dir
	if migrationsPath == "" {
		migrationsPath, err = findMigrationsDir()
		if err != nil {
			return err
		}
	}
	absMigrationsPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		return err
	}

	m, err := migrate.New("file://"+absMigrationsPath, dbURL)
	if err != nil {
		return err
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			log.Warn("closing migrator", zap.NamedError("source", srcErr), zap.NamedError("database", dbErr))
		}
	}()

	log.Debug("using migrations", zap.String("path", absMigrationsPath))
	return fn(m, log)
}

func findMigrationsDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	candidates := []string{}
	current := cwd
	for i := 0; i < 6; i++ {
		candidates = append(candidates, filepath.Join(current, "migrations"))
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		candidates = append(candidates,
			filepath.Join(exeDir, "migrations"),
			filepath.Join(exeDir, "..", "migrations"),
		)
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && info.IsDir() {
			return candidate, nil
		}
	}
	return "", errors.New("migrations directory not found")
}
