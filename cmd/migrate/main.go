package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"BookingSettlement/internal/config"
	"BookingSettlement/internal/db"
)

var (
	dsnFlag string
	dirFlag string
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply booking settlement SQL migrations",
	}
	rootCmd.PersistentFlags().StringVar(&dsnFlag, "dsn", "", "postgres DSN (defaults to DB_DSN, then the config file)")
	rootCmd.PersistentFlags().StringVar(&dirFlag, "dir", "migrations", "directory holding *.sql files")

	rootCmd.AddCommand(upCmd(), statusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			files, err := listSQLFiles(dirFlag)
			if err != nil {
				return fmt.Errorf("list migrations: %w", err)
			}
			applied, err := appliedSet(ctx, pool)
			if err != nil {
				return err
			}
			n := 0
			for _, file := range files {
				if _, ok := applied[filepath.Base(file)]; ok {
					continue
				}
				if err := applyMigration(ctx, pool, file); err != nil {
					return fmt.Errorf("apply %s: %w", file, err)
				}
				logrus.WithField("file", file).Info("applied")
				n++
			}
			logrus.WithField("count", n).Info("migrations up to date")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List migrations and when they were applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			files, err := listSQLFiles(dirFlag)
			if err != nil {
				return fmt.Errorf("list migrations: %w", err)
			}
			applied, err := appliedSet(ctx, pool)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, file := range files {
				name := filepath.Base(file)
				if at, ok := applied[name]; ok {
					fmt.Fprintf(out, "%-32s applied %s\n", name, at.Format(time.RFC3339))
				} else {
					fmt.Fprintf(out, "%-32s pending\n", name)
				}
			}
			return nil
		},
	}
}

func connect(ctx context.Context) (*db.Pool, error) {
	dsn := dsnFlag
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		cfg, err := config.Load("")
		if err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
		dsn = cfg.DB.DSN
	}
	pool, err := db.Connect(ctx, dsn, 2)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := ensureSchemaTable(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema table: %w", err)
	}
	return pool, nil
}

func ensureSchemaTable(ctx context.Context, pool *db.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (filename TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`)
	return err
}

func listSQLFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func appliedSet(ctx context.Context, pool *db.Pool) (map[string]time.Time, error) {
	rows, err := pool.Query(ctx, `SELECT filename, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]time.Time{}
	for rows.Next() {
		var name string
		var at time.Time
		if err := rows.Scan(&name, &at); err != nil {
			return nil, err
		}
		out[name] = at
	}
	return out, rows.Err()
}

// applyMigration runs the file and records it in one transaction.
func applyMigration(ctx context.Context, pool *db.Pool, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if strings.TrimSpace(string(data)) != "" {
			if _, err := tx.Exec(ctx, string(data)); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, filepath.Base(file))
		return err
	})
}
