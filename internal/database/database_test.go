package database

import (
	"fmt"
	"os"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := fmt.Sprintf("test_events_%d.db", time.Now().UnixNano())

	db, err := Initialize(dbPath)
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
		os.Remove(dbPath)
	})

	return db
}

func TestInitialize(t *testing.T) {
	db := setupTestDB(t)

	// Schema creation is idempotent and the events table is queryable
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM events").Scan(&count); err != nil {
		t.Fatalf("Events table should exist: %v", err)
	}
	if count != 0 {
		t.Errorf("Fresh database should have no events, got %d", count)
	}
}

func TestLogEvent(t *testing.T) {
	db := setupTestDB(t)

	entry := &LogEntry{
		Event:   "rule_paused",
		RuleID:  "r1",
		Message: "Paused via API",
	}
	if err := db.LogEvent(entry); err != nil {
		t.Fatalf("Failed to log event: %v", err)
	}

	logs, err := db.GetLogs(10, 0)
	if err != nil {
		t.Fatalf("Failed to get logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(logs))
	}
	if logs[0].Event != "rule_paused" || logs[0].RuleID != "r1" || logs[0].Message != "Paused via API" {
		t.Errorf("Log entry round-tripped incorrectly: %+v", logs[0])
	}
	if logs[0].ID == 0 {
		t.Error("Log entry should have an id assigned")
	}
}

func TestRecordEvent(t *testing.T) {
	db := setupTestDB(t)

	if err := db.RecordEvent("refresh_failed", "", "no appliances returned"); err != nil {
		t.Fatalf("Failed to record event: %v", err)
	}

	logs, err := db.GetLogs(10, 0)
	if err != nil {
		t.Fatalf("Failed to get logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(logs))
	}
	if logs[0].Event != "refresh_failed" || logs[0].RuleID != "" {
		t.Errorf("Recorded event wrong: %+v", logs[0])
	}
}

func TestGetLogsPagination(t *testing.T) {
	db := setupTestDB(t)

	for i := 0; i < 5; i++ {
		err := db.LogEvent(&LogEntry{
			Event:   "rule_resumed",
			RuleID:  fmt.Sprintf("r%d", i),
			Message: "test",
		})
		if err != nil {
			t.Fatalf("Failed to log event %d: %v", i, err)
		}
	}

	logs, err := db.GetLogs(3, 0)
	if err != nil {
		t.Fatalf("Failed to get logs: %v", err)
	}
	if len(logs) != 3 {
		t.Errorf("Expected 3 entries with limit 3, got %d", len(logs))
	}

	rest, err := db.GetLogs(10, 3)
	if err != nil {
		t.Fatalf("Failed to get offset logs: %v", err)
	}
	if len(rest) != 2 {
		t.Errorf("Expected 2 remaining entries with offset 3, got %d", len(rest))
	}
}

func TestGetLogsByRule(t *testing.T) {
	db := setupTestDB(t)

	events := []*LogEntry{
		{Event: "rule_paused", RuleID: "r1", Message: "pause"},
		{Event: "rule_resumed", RuleID: "r1", Message: "resume"},
		{Event: "rule_paused", RuleID: "r2", Message: "pause"},
	}
	for _, e := range events {
		if err := db.LogEvent(e); err != nil {
			t.Fatalf("Failed to log event: %v", err)
		}
	}

	logs, err := db.GetLogsByRule("r1", 10)
	if err != nil {
		t.Fatalf("Failed to get logs by rule: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("Expected 2 entries for r1, got %d", len(logs))
	}
	for _, entry := range logs {
		if entry.RuleID != "r1" {
			t.Errorf("Got entry for wrong rule: %+v", entry)
		}
	}
}

func TestDeleteOldLogs(t *testing.T) {
	db := setupTestDB(t)

	// One old entry, one fresh one
	_, err := db.Exec(
		`INSERT INTO events (timestamp, event, rule_id, message) VALUES (datetime('now', '-40 days'), 'rule_paused', 'r1', 'old')`,
	)
	if err != nil {
		t.Fatalf("Failed to insert old entry: %v", err)
	}
	if err := db.LogEvent(&LogEntry{Event: "rule_resumed", RuleID: "r1", Message: "fresh"}); err != nil {
		t.Fatalf("Failed to log fresh event: %v", err)
	}

	deleted, err := db.DeleteOldLogs(30)
	if err != nil {
		t.Fatalf("Failed to delete old logs: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted entry, got %d", deleted)
	}

	logs, err := db.GetLogs(10, 0)
	if err != nil {
		t.Fatalf("Failed to get logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Message != "fresh" {
		t.Errorf("Only the fresh entry should remain, got %+v", logs)
	}
}
