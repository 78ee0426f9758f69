package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
	"github.com/google/uuid"
)

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("audit journal path must be configured")

const schema = `
CREATE TABLE IF NOT EXISTS treasury_operations (
    id TEXT PRIMARY KEY,
    operation TEXT NOT NULL,
    strategy TEXT NOT NULL,
    token TEXT NOT NULL,
    amount TEXT NOT NULL,
    outcome TEXT NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_treasury_operations_strategy
    ON treasury_operations(strategy, recorded_at);
`

// Journal is the append-only operation log the daemon writes alongside the
// ledger. It records what was attempted and how it ended; it is never read
// back to make settlement decisions.
type Journal struct {
	db *sql.DB
}

// Entry is one recorded operation.
type Entry struct {
	ID         string
	Operation  string
	Strategy   string
	Token      string
	Amount     string
	Outcome    string
	RecordedAt time.Time
}

// Open initialises the journal at the given sqlite DSN.
func Open(path string) (*Journal, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases database resources.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record appends an entry and returns its generated id.
func (j *Journal) Record(ctx context.Context, operation, strategy, token, amount, outcome string) (string, error) {
	if j == nil || j.db == nil {
		return "", fmt.Errorf("journal not configured")
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		return "", fmt.Errorf("operation required")
	}
	id := uuid.NewString()
	_, err := j.db.ExecContext(ctx, `
        INSERT INTO treasury_operations(id, operation, strategy, token, amount, outcome, recorded_at)
        VALUES(?, ?, ?, ?, ?, ?, ?)
    `, id, operation, strings.TrimSpace(strategy), strings.TrimSpace(token), strings.TrimSpace(amount), strings.TrimSpace(outcome), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert entry: %w", err)
	}
	return id, nil
}

// Recent returns the latest entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, fmt.Errorf("journal not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
        SELECT id, operation, strategy, token, amount, outcome, recorded_at
        FROM treasury_operations
        ORDER BY recorded_at DESC, id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()
	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.Operation, &entry.Strategy, &entry.Token, &entry.Amount, &entry.Outcome, &entry.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// StrategyHistory returns the entries recorded for one strategy, newest first.
func (j *Journal) StrategyHistory(ctx context.Context, strategy string, limit int) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, fmt.Errorf("journal not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
        SELECT id, operation, strategy, token, amount, outcome, recorded_at
        FROM treasury_operations
        WHERE strategy = ?
        ORDER BY recorded_at DESC, id DESC
        LIMIT ?
    `, strings.TrimSpace(strategy), limit)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()
	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.Operation, &entry.Strategy, &entry.Token, &entry.Amount, &entry.Outcome, &entry.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
