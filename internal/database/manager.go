package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"

	dbconfig "classhub/pkg/database"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// Manager implements the DatabaseManager and EventSink interfaces
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager creates a new database manager
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	// ARCHITECTURAL DISCOVERY: Connection string includes SQLite optimizations
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration critical for concurrent reads
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100), // TECHNICAL: Buffer for write operations prevents blocking
		shutdown:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			// FUNCTIONAL DISCOVERY: Retry exactly once after 5 seconds on write
			// failure; constraint violations are answers, not failures, and are
			// never retried
			err := op.operation(m.db)
			if err != nil && !isDomainError(err) {
				log.Printf("Database write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db) // Retry once
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// isDomainError reports whether a write error carries business meaning that
// callers handle themselves
func isDomainError(err error) bool {
	return errors.Is(err, interfaces.ErrDuplicateEmail) ||
		errors.Is(err, interfaces.ErrAlreadyEnrolled) ||
		errors.Is(err, interfaces.ErrSessionNotFound)
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// CreateUser inserts a new user account and returns its ID
func (m *Manager) CreateUser(ctx context.Context, user *types.User) (int64, error) {
	var id int64
	err := m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO users (name, email, hashed_password, role)
			VALUES (?, ?, ?, ?)
		`
		res, err := db.ExecContext(ctx, query, user.Name, user.Email, user.HashedPassword, user.Role)
		if err != nil {
			// FUNCTIONAL DISCOVERY: Unique email constraint surfaces as a typed
			// error so the API layer can return 409 instead of 500
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return interfaces.ErrDuplicateEmail
			}
			return fmt.Errorf("failed to insert user: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// GetUserByEmail retrieves a user by email address
func (m *Manager) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
	query := `
		SELECT id, name, email, hashed_password, role
		FROM users
		WHERE email = ?
	`
	return m.scanUser(m.db.QueryRowContext(ctx, query, email))
}

// GetUserByID retrieves a user by ID
func (m *Manager) GetUserByID(ctx context.Context, userID int64) (*types.User, error) {
	query := `
		SELECT id, name, email, hashed_password, role
		FROM users
		WHERE id = ?
	`
	return m.scanUser(m.db.QueryRowContext(ctx, query, userID))
}

func (m *Manager) scanUser(row *sql.Row) (*types.User, error) {
	var user types.User
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.HashedPassword, &user.Role)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// CreateClass inserts a new class and returns its ID
func (m *Manager) CreateClass(ctx context.Context, class *types.Class) (int64, error) {
	var id int64
	err := m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO classes (name, description, teacher_id, created_at)
			VALUES (?, ?, ?, ?)
		`
		res, err := db.ExecContext(ctx, query, class.Name, class.Description, class.TeacherID, class.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert class: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// GetClass retrieves a class by ID
func (m *Manager) GetClass(ctx context.Context, classID int64) (*types.Class, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), teacher_id, created_at
		FROM classes
		WHERE id = ?
	`
	var class types.Class
	err := m.db.QueryRowContext(ctx, query, classID).Scan(
		&class.ID, &class.Name, &class.Description, &class.TeacherID, &class.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrClassNotFound
		}
		return nil, fmt.Errorf("failed to query class: %w", err)
	}
	return &class, nil
}

// ListClassesByTeacher returns all classes owned by a teacher
func (m *Manager) ListClassesByTeacher(ctx context.Context, teacherID int64) ([]*types.Class, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), teacher_id, created_at
		FROM classes
		WHERE teacher_id = ?
		ORDER BY created_at DESC
	`
	return m.queryClasses(ctx, query, teacherID)
}

// ListClassesByStudent returns all classes a student is enrolled in
func (m *Manager) ListClassesByStudent(ctx context.Context, studentID int64) ([]*types.Class, error) {
	query := `
		SELECT c.id, c.name, COALESCE(c.description, ''), c.teacher_id, c.created_at
		FROM classes c
		JOIN class_enrollments e ON e.class_id = c.id
		WHERE e.student_id = ?
		ORDER BY c.created_at DESC
	`
	return m.queryClasses(ctx, query, studentID)
}

func (m *Manager) queryClasses(ctx context.Context, query string, arg interface{}) ([]*types.Class, error) {
	rows, err := m.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query classes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var classes []*types.Class
	for rows.Next() {
		var class types.Class
		if err := rows.Scan(&class.ID, &class.Name, &class.Description, &class.TeacherID, &class.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan class row: %w", err)
		}
		classes = append(classes, &class)
	}
	return classes, rows.Err()
}

// EnrollStudent adds a student to a class
func (m *Manager) EnrollStudent(ctx context.Context, classID, studentID int64) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO class_enrollments (class_id, student_id, enrolled_at)
			VALUES (?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query, classID, studentID, time.Now())
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return interfaces.ErrAlreadyEnrolled
			}
			return fmt.Errorf("failed to insert enrollment: %w", err)
		}
		return nil
	})
}

// IsEnrolled reports whether a student is enrolled in a class
// FUNCTIONAL DISCOVERY: Hot path for student authorization on every session
// join; covered by idx_enrollments_class
func (m *Manager) IsEnrolled(ctx context.Context, classID, studentID int64) (bool, error) {
	var count int
	err := m.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM class_enrollments WHERE class_id = ? AND student_id = ?",
		classID, studentID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query enrollment: %w", err)
	}
	return count > 0, nil
}

// CreateSession creates a new session in the database and returns its ID
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) (int64, error) {
	var id int64
	err := m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO sessions (title, teacher_id, class_id, session_type, start_time)
			VALUES (?, ?, ?, ?, ?)
		`
		res, err := db.ExecContext(ctx, query,
			session.Title,
			session.TeacherID,
			session.ClassID,
			session.SessionType,
			session.StartTime,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// GetSession retrieves a session by ID
func (m *Manager) GetSession(ctx context.Context, sessionID int64) (*types.Session, error) {
	query := `
		SELECT id, title, teacher_id, class_id, session_type, start_time, end_time
		FROM sessions
		WHERE id = ?
	`
	row := m.db.QueryRowContext(ctx, query, sessionID)

	var session types.Session
	var classID sql.NullInt64
	var endTime sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.Title,
		&session.TeacherID,
		&classID,
		&session.SessionType,
		&session.StartTime,
		&endTime,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			// FUNCTIONAL DISCOVERY: Return specific error type for session not found
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Handle nullable class_id and end_time fields properly
	if classID.Valid {
		session.ClassID = &classID.Int64
	}
	if endTime.Valid {
		session.EndTime = &endTime.Time
	}

	return &session, nil
}

// ListActiveSessions returns all sessions that have not ended
func (m *Manager) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	// ARCHITECTURAL DISCOVERY: Read operations concurrent, ordered by start_time DESC for recency
	query := `
		SELECT id, title, teacher_id, class_id, session_type, start_time, end_time
		FROM sessions
		WHERE end_time IS NULL
		ORDER BY start_time DESC
	`
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		var session types.Session
		var classID sql.NullInt64
		var endTime sql.NullTime

		err := rows.Scan(
			&session.ID,
			&session.Title,
			&session.TeacherID,
			&classID,
			&session.SessionType,
			&session.StartTime,
			&endTime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}

		if classID.Valid {
			session.ClassID = &classID.Int64
		}
		if endTime.Valid {
			session.EndTime = &endTime.Time
		}

		sessions = append(sessions, &session)
	}

	return sessions, rows.Err()
}

// EndSession marks a session as ended
func (m *Manager) EndSession(ctx context.Context, sessionID int64, endTime time.Time) error {
	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			"UPDATE sessions SET end_time = ? WHERE id = ? AND end_time IS NULL",
			endTime, sessionID,
		)
		if err != nil {
			return fmt.Errorf("failed to end session: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrSessionNotFound
		}
		return nil
	})
}

// GetSessionMessages retrieves all chat messages for a session
func (m *Manager) GetSessionMessages(ctx context.Context, sessionID int64) ([]*types.ChatMessage, error) {
	// FUNCTIONAL DISCOVERY: Order by timestamp ASC for chronological history
	query := `
		SELECT id, session_id, sender_id, message_text, timestamp
		FROM messages
		WHERE session_id = ?
		ORDER BY timestamp ASC
	`
	rows, err := m.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.ChatMessage
	for rows.Next() {
		var message types.ChatMessage
		err := rows.Scan(
			&message.ID,
			&message.SessionID,
			&message.SenderID,
			&message.Text,
			&message.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, &message)
	}

	return messages, rows.Err()
}

// OnChatMessage implements the EventSink persistence hook for chat fan-out
// ARCHITECTURAL DISCOVERY: Server-side UUID generation prevents client
// tampering and keeps message IDs unique across sessions
func (m *Manager) OnChatMessage(ctx context.Context, sessionID, senderID int64, text string, timestamp time.Time) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO messages (id, session_id, sender_id, message_text, timestamp)
			VALUES (?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query, uuid.New().String(), sessionID, senderID, text, timestamp)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

// OnWhiteboardEvent implements the EventSink persistence hook for whiteboard fan-out
func (m *Manager) OnWhiteboardEvent(ctx context.Context, sessionID int64, payload map[string]interface{}) error {
	// TECHNICAL DISCOVERY: JSON serialization keeps the stored stroke payload
	// identical to what clients received
	dataJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal whiteboard payload: %w", err)
	}

	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO whiteboard_events (session_id, data_json, timestamp)
			VALUES (?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query, sessionID, string(dataJSON), time.Now())
		if err != nil {
			return fmt.Errorf("failed to insert whiteboard event: %w", err)
		}
		return nil
	})
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Test read operation to verify database is accessible
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// GetDB returns the underlying database connection for migrations
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	// TECHNICAL DISCOVERY: Prevent multiple close operations
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil // Already closed
	}
	m.closed = true
	m.mu.Unlock()

	// ARCHITECTURAL DISCOVERY: Graceful shutdown requires careful goroutine coordination
	close(m.shutdown)
	m.wg.Wait() // Wait for write loop to finish processing

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// applySQLiteOptimizations applies performance optimizations
func applySQLiteOptimizations(db *sql.DB) error {
	// TECHNICAL DISCOVERY: SQLite pragmas tuned for classroom-scale concurrency
	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for concurrency
		"PRAGMA synchronous = NORMAL", // Balance safety and performance
		"PRAGMA cache_size = -64000",  // 64MB cache
		"PRAGMA temp_store = MEMORY",  // Use memory for temporary tables
		"PRAGMA foreign_keys = ON",    // Ensure referential integrity
		"PRAGMA busy_timeout = 5000",  // 5 second timeout for write coordination
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	return nil
}
