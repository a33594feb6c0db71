package database

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

// LogEntry is one row of the bridge's audit trail: refresh outcomes and
// rule pause/resume actions.
type LogEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"` // "refresh_failed", "rule_paused", "rule_resumed", "action_failed"
	RuleID    string    `json:"rule_id,omitempty"`
	Message   string    `json:"message"`
}

func Initialize(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Create tables
	if err := createTables(db); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		event TEXT NOT NULL,
		rule_id TEXT,
		message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_rule_id ON events(rule_id);
	CREATE INDEX IF NOT EXISTS idx_events_event ON events(event);
	`

	_, err := db.Exec(schema)
	return err
}

func (db *DB) LogEvent(entry *LogEntry) error {
	query := `
		INSERT INTO events (event, rule_id, message)
		VALUES (?, ?, ?)
	`
	_, err := db.Exec(query, entry.Event, entry.RuleID, entry.Message)
	return err
}

// RecordEvent satisfies the coordinator's Recorder interface.
func (db *DB) RecordEvent(event, ruleID, message string) error {
	return db.LogEvent(&LogEntry{Event: event, RuleID: ruleID, Message: message})
}

func (db *DB) GetLogs(limit int, offset int) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, event, COALESCE(rule_id, ''), COALESCE(message, '')
		FROM events
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`

	rows, err := db.Query(query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var entry LogEntry
		err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.Event, &entry.RuleID, &entry.Message)
		if err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}

	return logs, nil
}

func (db *DB) GetLogsByRule(ruleID string, limit int) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, event, COALESCE(rule_id, ''), COALESCE(message, '')
		FROM events
		WHERE rule_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := db.Query(query, ruleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var entry LogEntry
		err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.Event, &entry.RuleID, &entry.Message)
		if err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}

	return logs, nil
}

// DeleteOldLogs deletes event entries older than the specified number of days
func (db *DB) DeleteOldLogs(daysToKeep int) (int64, error) {
	query := `DELETE FROM events WHERE timestamp < datetime('now', '-' || ? || ' days')`
	result, err := db.Exec(query, daysToKeep)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
