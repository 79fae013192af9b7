// ABOUTME: SQLite implementation of the Store interface (modernc.org/sqlite or mattn/go-sqlite3)
// ABOUTME: Provides session/feedback/resource persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names registered by the two SQLite drivers linked into the binary.
const (
	DriverModernc = "sqlite"  // pure Go, the default
	DriverCGO     = "sqlite3" // mattn/go-sqlite3, requires cgo
)

// timeFormat is fixed-width so that ORDER BY on the text column matches chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path using the pure Go driver.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return Open(DriverModernc, path)
}

// Open creates a SQLite store with an explicit driver name (DriverModernc or DriverCGO).
func Open(driver, path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	switch driver {
	case "":
		driver = DriverModernc
	case DriverModernc, DriverCGO:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn(driver, path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every pooled connection to :memory: would otherwise see its own empty database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "driver", driver)
	return s, nil
}

// dsn attaches the per-connection busy timeout in each driver's own syntax.
// A PRAGMA issued through db.Exec would only reach one pooled connection.
func dsn(driver, path string) string {
	if path == ":memory:" {
		return path
	}
	if driver == DriverCGO {
		return path + "?_busy_timeout=5000"
	}
	return path + "?_pragma=busy_timeout(5000)"
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			thread_id TEXT,
			display_name TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_updated
			ON sessions(updated_at);

		CREATE TABLE IF NOT EXISTS feedback (
			id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL,
			session_id TEXT,
			user_query TEXT NOT NULL DEFAULT '',
			bot_response TEXT NOT NULL DEFAULT '',
			rating INTEGER NOT NULL,
			comment TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_feedback_message
			ON feedback(message_id);

		CREATE TABLE IF NOT EXISTS resources (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			category TEXT NOT NULL,
			location_tag TEXT,
			url TEXT,
			phone TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_resources_category
			ON resources(category, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
		after  string // optional backfill run once the column exists
	}{
		{
			table:  "feedback",
			column: "session_id",
			apply:  `ALTER TABLE feedback ADD COLUMN session_id TEXT`,
			after:  `UPDATE feedback SET session_id = 'migration_default' WHERE session_id IS NULL`,
		},
		{
			table:  "sessions",
			column: "thread_id",
			apply:  `ALTER TABLE sessions ADD COLUMN thread_id TEXT`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking %s.%s: %w", m.table, m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		if m.after != "" {
			if _, err := s.db.Exec(m.after); err != nil {
				return fmt.Errorf("backfilling %s.%s: %w", m.table, m.column, err)
			}
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(field, value string) (time.Time, error) {
	t, err := time.Parse(timeFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", field, err)
	}
	return t, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

const sessionColumns = `id, thread_id, display_name, created_at, updated_at`

func scanSession(row rowScanner) (*Session, error) {
	var session Session
	var threadID sql.NullString
	var createdAtStr, updatedAtStr string

	if err := row.Scan(&session.ID, &threadID, &session.DisplayName, &createdAtStr, &updatedAtStr); err != nil {
		return nil, err
	}
	session.ThreadID = threadID.String

	var err error
	if session.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
		return nil, err
	}
	if session.UpdatedAt, err = parseTime("updated_at", updatedAtStr); err != nil {
		return nil, err
	}
	return &session, nil
}

// CreateSession inserts a new session.
// Returns ErrDuplicateSession if the ID is already taken.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (id, thread_id, display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		nullString(session.ThreadID),
		session.DisplayName,
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateSession
		}
		return fmt.Errorf("inserting session: %w", err)
	}

	s.logger.Debug("created session", "id", session.ID)
	return nil
}

// GetSession retrieves a session by ID.
// Returns ErrNotFound if the session doesn't exist.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return session, nil
}

// UpsertThreadID inserts the session if missing, or binds threadID to it if it has none.
// An existing binding is never replaced; the caller gets back whichever binding won.
func (s *SQLiteStore) UpsertThreadID(ctx context.Context, sessionID, threadID, displayName string) (*Session, error) {
	now := formatTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, thread_id, display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			thread_id = COALESCE(NULLIF(sessions.thread_id, ''), excluded.thread_id),
			updated_at = excluded.updated_at
	`, sessionID, threadID, displayName, now, now)
	if err != nil {
		return nil, fmt.Errorf("upserting session thread: %w", err)
	}

	session, err := scanSession(tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID))
	if err != nil {
		return nil, fmt.Errorf("reading back session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing session thread: %w", err)
	}

	if session.ThreadID != threadID {
		s.logger.Warn("session already bound to a different thread",
			"session_id", sessionID,
			"kept_thread_id", session.ThreadID,
			"discarded_thread_id", threadID)
	} else {
		s.logger.Debug("bound thread to session", "session_id", sessionID, "thread_id", threadID)
	}
	return session, nil
}

// ListSessions retrieves sessions ordered by most recent activity.
// If limit is 0 or negative, a default limit of 100 is used.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY updated_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}

	return sessions, nil
}

// RenameSession changes a session's display name.
// Returns ErrNotFound if the session doesn't exist.
func (s *SQLiteStore) RenameSession(ctx context.Context, id, displayName string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET display_name = ?, updated_at = ? WHERE id = ?`,
		displayName, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("renaming session: %w", err)
	}
	return expectOneRow(result)
}

// DeleteSession removes a session.
// Returns ErrNotFound if the session doesn't exist.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if err := expectOneRow(result); err != nil {
		return err
	}
	s.logger.Debug("deleted session", "id", id)
	return nil
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveFeedback records a feedback row
func (s *SQLiteStore) SaveFeedback(ctx context.Context, fb *Feedback) error {
	query := `
		INSERT INTO feedback (id, message_id, session_id, user_query, bot_response, rating, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		fb.ID,
		fb.MessageID,
		nullString(fb.SessionID),
		fb.UserQuery,
		fb.BotResponse,
		fb.Rating,
		nullString(fb.Comment),
		formatTime(fb.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting feedback: %w", err)
	}

	s.logger.Debug("saved feedback", "id", fb.ID, "message_id", fb.MessageID, "rating", fb.Rating)
	return nil
}

// ListFeedback returns feedback newest first, optionally restricted to one session.
func (s *SQLiteStore) ListFeedback(ctx context.Context, sessionID string, limit int) ([]*Feedback, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, message_id, session_id, user_query, bot_response, rating, comment, created_at
		FROM feedback
	`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying feedback: %w", err)
	}
	defer rows.Close()

	var out []*Feedback
	for rows.Next() {
		var fb Feedback
		var session, comment sql.NullString
		var createdAtStr string
		if err := rows.Scan(&fb.ID, &fb.MessageID, &session, &fb.UserQuery, &fb.BotResponse,
			&fb.Rating, &comment, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning feedback row: %w", err)
		}
		fb.SessionID = session.String
		fb.Comment = comment.String
		if fb.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
			return nil, err
		}
		out = append(out, &fb)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating feedback rows: %w", err)
	}
	return out, nil
}

// CreateResource inserts a resource listing
func (s *SQLiteStore) CreateResource(ctx context.Context, res *Resource) error {
	query := `
		INSERT INTO resources (id, title, description, category, location_tag, url, phone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		res.ID,
		res.Title,
		nullString(res.Description),
		res.Category,
		nullString(res.LocationTag),
		nullString(res.URL),
		nullString(res.Phone),
		formatTime(res.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting resource: %w", err)
	}
	return nil
}

// ListResources returns resources newest first, filtered by category and location tag.
// If filter.Limit is 0 or negative, a default limit of 50 is used.
func (s *SQLiteStore) ListResources(ctx context.Context, filter ResourceFilter) ([]*Resource, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, title, description, category, location_tag, url, phone, created_at
		FROM resources
		WHERE 1=1
	`
	var args []any
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.Location != "" {
		query += ` AND location_tag = ?`
		args = append(args, filter.Location)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying resources: %w", err)
	}
	defer rows.Close()

	var out []*Resource
	for rows.Next() {
		var res Resource
		var description, location, url, phone sql.NullString
		var createdAtStr string
		if err := rows.Scan(&res.ID, &res.Title, &description, &res.Category, &location,
			&url, &phone, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning resource row: %w", err)
		}
		res.Description = description.String
		res.LocationTag = location.String
		res.URL = url.String
		res.Phone = phone.String
		if res.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
			return nil, err
		}
		out = append(out, &res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating resource rows: %w", err)
	}
	return out, nil
}
