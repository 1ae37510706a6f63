package migrations

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed *.sql
var embedded embed.FS

// Migrator handles database schema migrations
type Migrator struct {
	db     *sql.DB
	source fs.FS
	out    io.Writer
}

// NewMigrator creates a migrator over the embedded roster schema
func NewMigrator(db *sql.DB, out io.Writer) *Migrator {
	return &Migrator{db: db, source: embedded, out: out}
}

// MigrationFile represents one version of the schema
type MigrationFile struct {
	Version string
	Name    string
	Up      string
	Down    string
}

// MigrationStatus reports whether a version has been applied
type MigrationStatus struct {
	Version  string
	Name     string
	Applied  bool
	Modified bool
}

// Up executes all pending migrations
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}

	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	files, err := LoadMigrationFiles(m.source)
	if err != nil {
		return fmt.Errorf("failed to find migration files: %w", err)
	}

	for _, file := range files {
		if _, ok := applied[file.Version]; ok {
			continue
		}
		if err := m.applyMigration(ctx, file); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file.Version, err)
		}
		fmt.Fprintf(m.out, "Applied migration: %s_%s\n", file.Version, file.Name)
	}
	return nil
}

// Down rolls back the last applied migration
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}

	var version string
	err := m.db.QueryRowContext(ctx, `
		SELECT version FROM schema_migrations
		ORDER BY version DESC LIMIT 1`).Scan(&version)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("no migrations to rollback")
		}
		return fmt.Errorf("failed to get last migration: %w", err)
	}

	files, err := LoadMigrationFiles(m.source)
	if err != nil {
		return fmt.Errorf("failed to find migration files: %w", err)
	}
	var file *MigrationFile
	for i := range files {
		if files[i].Version == version {
			file = &files[i]
		}
	}
	if file == nil || file.Down == "" {
		return fmt.Errorf("no down migration for version %s", version)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, file.Down); err != nil {
		return fmt.Errorf("failed to execute down migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = $1", version); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	fmt.Fprintf(m.out, "Rolled back migration: %s_%s\n", file.Version, file.Name)
	return nil
}

// Status lists every known migration with its applied state. A version whose
// recorded checksum differs from the embedded file is flagged Modified.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	files, err := LoadMigrationFiles(m.source)
	if err != nil {
		return nil, fmt.Errorf("failed to find migration files: %w", err)
	}

	statuses := make([]MigrationStatus, 0, len(files))
	for _, file := range files {
		checksum, ok := applied[file.Version]
		statuses = append(statuses, MigrationStatus{
			Version:  file.Version,
			Name:     file.Name,
			Applied:  ok,
			Modified: ok && checksum != calculateChecksum([]byte(file.Up)),
		})
	}
	return statuses, nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// getAppliedMigrations returns the checksum of each applied version
func (m *Migrator) getAppliedMigrations(ctx context.Context) (map[string]string, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, err
		}
		applied[version] = checksum
	}
	return applied, rows.Err()
}

// calculateChecksum computes SHA256 checksum of migration content
func calculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

// LoadMigrationFiles pairs NNN_name.up.sql and NNN_name.down.sql files, sorted by version.
func LoadMigrationFiles(source fs.FS) ([]MigrationFile, error) {
	entries, err := fs.ReadDir(source, ".")
	if err != nil {
		return nil, err
	}

	byVersion := make(map[string]*MigrationFile)
	for _, entry := range entries {
		base := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(base, ".sql") {
			continue
		}

		// Parse filename: 001_rosters.up.sql
		stem := strings.TrimSuffix(base, ".sql")
		direction := path.Ext(stem)
		if direction != ".up" && direction != ".down" {
			continue
		}
		parts := strings.SplitN(strings.TrimSuffix(stem, direction), "_", 2)
		if len(parts) < 2 {
			continue
		}

		data, err := fs.ReadFile(source, base)
		if err != nil {
			return nil, err
		}

		file, ok := byVersion[parts[0]]
		if !ok {
			file = &MigrationFile{Version: parts[0], Name: parts[1]}
			byVersion[parts[0]] = file
		}
		if direction == ".up" {
			file.Up = string(data)
		} else {
			file.Down = string(data)
		}
	}

	files := make([]MigrationFile, 0, len(byVersion))
	for _, file := range byVersion {
		if file.Up == "" {
			return nil, fmt.Errorf("migration %s_%s has no up file", file.Version, file.Name)
		}
		files = append(files, *file)
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Version < files[j].Version
	})
	return files, nil
}

// applyMigration executes a single migration in a transaction
func (m *Migrator) applyMigration(ctx context.Context, file MigrationFile) error {
	checksum := calculateChecksum([]byte(file.Up))

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, file.Up); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, checksum) VALUES ($1, $2)", file.Version, checksum); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}
