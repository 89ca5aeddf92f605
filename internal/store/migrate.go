package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ApplyMigrations runs every *.up.sql file in migrationsDir that is not yet
// recorded in schema_migrations, in lexical order, one transaction per file.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	return ApplyMigrationsFS(ctx, db, os.DirFS(migrationsDir))
}

func ApplyMigrationsFS(ctx context.Context, db *sql.DB, migrations fs.FS) error {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return err
	}

	files, err := migrationFiles(migrations, ".up.sql")
	if err != nil {
		return err
	}

	for _, version := range files {
		if migrated, err := isMigrated(ctx, db, version); err != nil {
			return err
		} else if migrated {
			continue
		}

		contents, err := fs.ReadFile(migrations, version)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", version, err)
		}

		err = runInTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
				return fmt.Errorf("execute migration %s: %w", version, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, version); err != nil {
				return fmt.Errorf("record migration %s: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		log.Infof("[store] applied migration %s", version)
	}

	return nil
}

// RollbackMigrations runs the *.down.sql counterpart of every recorded
// migration, newest first, and forgets it.
func RollbackMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	migrations := os.DirFS(migrationsDir)
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return err
	}

	files, err := migrationFiles(migrations, ".down.sql")
	if err != nil {
		return err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	for _, file := range files {
		version := strings.TrimSuffix(file, ".down.sql") + ".up.sql"
		if migrated, err := isMigrated(ctx, db, version); err != nil {
			return err
		} else if !migrated {
			continue
		}

		contents, err := fs.ReadFile(migrations, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		err = runInTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
				return fmt.Errorf("execute migration %s: %w", file, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version=$1`, version); err != nil {
				return fmt.Errorf("forget migration %s: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		log.Infof("[store] rolled back migration %s", version)
	}
	return nil
}

func migrationFiles(migrations fs.FS, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name := entry.Name(); strings.HasSuffix(name, suffix) {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return files, nil
}

func runInTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isMigrated(ctx context.Context, db *sql.DB, version string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return exists, nil
}
