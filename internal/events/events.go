package events

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection and provides logging methods
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the SQLite database at the specified path
func Open(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
	}

	// Initialize schema
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		// Checkpoint the WAL to ensure all data is written to the main database file
		db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return db.conn.Close()
	}
	return nil
}

// initSchema creates the database tables if they don't exist
func (db *DB) initSchema() error {
	schema := `
	-- Worker process lifecycle events
	CREATE TABLE IF NOT EXISTS proxy_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Binary install operations
	CREATE TABLE IF NOT EXISTS install_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version TEXT NOT NULL,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Auth flow sessions
	CREATE TABLE IF NOT EXISTS auth_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		flow TEXT NOT NULL,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Indexes for common queries
	CREATE INDEX IF NOT EXISTS idx_proxy_events_timestamp ON proxy_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_install_events_timestamp ON install_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_install_events_version ON install_events(version);
	CREATE INDEX IF NOT EXISTS idx_auth_events_timestamp ON auth_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_auth_events_flow ON auth_events(flow);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// ProxyEvent represents a worker process lifecycle event
type ProxyEvent struct {
	ID        int64
	EventType string
	Details   string
	Timestamp time.Time
}

// LogProxyEvent logs a worker lifecycle event to the database
func (db *DB) LogProxyEvent(eventType, details string) error {
	// Retry briefly if database is locked (3 attempts, 5ms between)
	// This is best-effort - we don't want to block supervisor shutdown
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		_, err := db.conn.Exec(
			`INSERT INTO proxy_events (event_type, details, timestamp)
			 VALUES (?, ?, ?)`,
			eventType, details, time.Now(),
		)
		if err == nil {
			return nil
		}
		// Check if error is SQLITE_BUSY
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
			// Wait briefly and retry
			time.Sleep(5 * time.Millisecond)
			continue
		}
		// Other error, return immediately
		return err
	}
	return fmt.Errorf("failed to log proxy event after %d retries: database locked", maxRetries)
}

// InstallEvent represents a binary install operation
type InstallEvent struct {
	ID        int64
	Version   string
	EventType string
	Details   string
	Timestamp time.Time
}

// LogInstallEvent logs an install operation to the database
func (db *DB) LogInstallEvent(version, eventType, details string) error {
	_, err := db.conn.Exec(
		`INSERT INTO install_events (version, event_type, details, timestamp)
		 VALUES (?, ?, ?, ?)`,
		version, eventType, details, time.Now(),
	)
	return err
}

// AuthEvent represents an auth flow session event
type AuthEvent struct {
	ID        int64
	Flow      string
	EventType string
	Details   string
	Timestamp time.Time
}

// LogAuthEvent logs an auth flow session event to the database
func (db *DB) LogAuthEvent(flow, eventType, details string) error {
	_, err := db.conn.Exec(
		`INSERT INTO auth_events (flow, event_type, details, timestamp)
		 VALUES (?, ?, ?, ?)`,
		flow, eventType, details, time.Now(),
	)
	return err
}

// RecentProxyEvents retrieves recent worker lifecycle events
func (db *DB) RecentProxyEvents(limit int) ([]ProxyEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, event_type, details, timestamp
		 FROM proxy_events
		 ORDER BY timestamp DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ProxyEvent
	for rows.Next() {
		var e ProxyEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecentInstallEvents retrieves recent install operations
func (db *DB) RecentInstallEvents(limit int) ([]InstallEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, version, event_type, details, timestamp
		 FROM install_events
		 ORDER BY timestamp DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []InstallEvent
	for rows.Next() {
		var e InstallEvent
		if err := rows.Scan(&e.ID, &e.Version, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecentAuthEvents retrieves recent auth flow session events
func (db *DB) RecentAuthEvents(limit int) ([]AuthEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, flow, event_type, details, timestamp
		 FROM auth_events
		 ORDER BY timestamp DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []AuthEvent
	for rows.Next() {
		var e AuthEvent
		if err := rows.Scan(&e.ID, &e.Flow, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LastAuthEventPerFlow retrieves the most recent event for each auth flow
func (db *DB) LastAuthEventPerFlow() ([]AuthEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, flow, event_type, details, timestamp
		 FROM auth_events
		 WHERE id IN (
			 SELECT MAX(id)
			 FROM auth_events
			 GROUP BY flow
		 )
		 ORDER BY timestamp DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []AuthEvent
	for rows.Next() {
		var e AuthEvent
		if err := rows.Scan(&e.ID, &e.Flow, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
