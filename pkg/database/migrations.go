package database

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration represents a database migration
// ARCHITECTURAL DISCOVERY: Migration struct encapsulates all information
// needed for safe schema evolution across environments
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// FUNCTIONAL DISCOVERY: Migrations compiled into the binary keep deployment
// to a single artifact; version ordering still governs application order
var migrations = []Migration{
	{
		Version:     "001",
		Description: "initial_schema",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				name            TEXT NOT NULL,
				email           TEXT NOT NULL UNIQUE,
				hashed_password TEXT NOT NULL,
				role            TEXT NOT NULL DEFAULT 'student'
			);

			CREATE TABLE IF NOT EXISTS classes (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				name        TEXT NOT NULL,
				description TEXT,
				teacher_id  INTEGER NOT NULL REFERENCES users(id),
				created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE IF NOT EXISTS class_enrollments (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				class_id    INTEGER NOT NULL REFERENCES classes(id),
				student_id  INTEGER NOT NULL REFERENCES users(id),
				enrolled_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE(class_id, student_id)
			);

			CREATE TABLE IF NOT EXISTS sessions (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				title        TEXT NOT NULL,
				teacher_id   INTEGER NOT NULL REFERENCES users(id),
				class_id     INTEGER REFERENCES classes(id),
				session_type TEXT NOT NULL DEFAULT 'live',
				start_time   DATETIME NOT NULL,
				end_time     DATETIME
			);

			CREATE TABLE IF NOT EXISTS messages (
				id           TEXT PRIMARY KEY,
				session_id   INTEGER NOT NULL REFERENCES sessions(id),
				sender_id    INTEGER NOT NULL REFERENCES users(id),
				message_text TEXT NOT NULL,
				timestamp    DATETIME NOT NULL
			);

			CREATE TABLE IF NOT EXISTS whiteboard_events (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id INTEGER NOT NULL REFERENCES sessions(id),
				data_json  TEXT NOT NULL,
				timestamp  DATETIME NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
			CREATE INDEX IF NOT EXISTS idx_enrollments_class ON class_enrollments(class_id, student_id);
			CREATE INDEX IF NOT EXISTS idx_sessions_teacher ON sessions(teacher_id);
			CREATE INDEX IF NOT EXISTS idx_sessions_end_time ON sessions(end_time);
			CREATE INDEX IF NOT EXISTS idx_messages_session_time ON messages(session_id, timestamp);
			CREATE INDEX IF NOT EXISTS idx_whiteboard_session ON whiteboard_events(session_id, timestamp);
		`,
	},
}

// MigrationManager handles database migrations
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies all pending migrations
// ARCHITECTURAL DISCOVERY: Transaction-based migration application ensures
// atomicity - either a migration fully applies or it does not at all
func (m *MigrationManager) ApplyMigrations() error {
	// FUNCTIONAL DISCOVERY: Migration tracking table created automatically
	// to maintain schema version state across application restarts
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	// TECHNICAL DISCOVERY: Version ordering ensures consistent application
	// order across different environments
	pending := make([]Migration, len(migrations))
	copy(pending, migrations)
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Version < pending[j].Version
	})

	for _, migration := range pending {
		if !contains(applied, migration.Version) {
			if err := m.applyMigration(migration); err != nil {
				return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
			}
		}
	}

	return nil
}

// ValidateSchema ensures database matches expected structure
// FUNCTIONAL DISCOVERY: Schema validation prevents runtime errors from
// structural mismatches between code expectations and database reality
func (m *MigrationManager) ValidateSchema() error {
	requiredTables := []string{"users", "classes", "class_enrollments", "sessions", "messages", "whiteboard_events"}
	for _, table := range requiredTables {
		exists, err := m.tableExists(table)
		if err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}

	requiredIndexes := []string{
		"idx_users_email",
		"idx_enrollments_class",
		"idx_sessions_teacher",
		"idx_sessions_end_time",
		"idx_messages_session_time",
		"idx_whiteboard_session",
	}

	for _, index := range requiredIndexes {
		exists, err := m.indexExists(index)
		if err != nil {
			return fmt.Errorf("failed to check index %s: %w", index, err)
		}
		if !exists {
			return fmt.Errorf("required index %s does not exist", index)
		}
	}

	return nil
}

// createMigrationTable creates the migration tracking table
func (m *MigrationManager) createMigrationTable() error {
	sql := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := m.db.Exec(sql)
	return err
}

// getAppliedMigrations returns list of already applied migration versions
func (m *MigrationManager) getAppliedMigrations() ([]string, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var versions []string
	for rows.Next() {
		var version string
		if err = rows.Scan(&version); err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}

	return versions, rows.Err()
}

// applyMigration applies a single migration within a transaction
func (m *MigrationManager) applyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.Exec(migration.SQL); err != nil {
		return err
	}

	if _, err = tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
		return err
	}

	return tx.Commit()
}

// tableExists checks if a table exists in the database
func (m *MigrationManager) tableExists(tableName string) (bool, error) {
	var count int
	err := m.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// indexExists checks if an index exists in the database
func (m *MigrationManager) indexExists(indexName string) (bool, error) {
	var count int
	err := m.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?",
		indexName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
