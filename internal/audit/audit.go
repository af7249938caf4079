// Package audit keeps a SQLite journal of applied dashboard transitions.
// The journal records what happened and when; the dashboard state itself is
// never persisted and is rebuilt from scratch on each process start.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Entry represents one journaled transition.
type Entry struct {
	ID         string                 `json:"id"`
	Action     string                 `json:"action"` // "import", "tick", "dismiss", etc.
	IncidentID string                 `json:"incident_id,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Journal is the SQLite-backed audit log.
type Journal struct {
	db *sql.DB
}

// NewJournal opens (or creates) the journal at dbPath.
func NewJournal(dbPath string) (*Journal, error) {
	// Ensure target directory exists (e.g., ./data)
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open(sqliteDriver, dbPath+"?_journal_mode=WAL&_foreign_keys=off")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	j := &Journal{db: db}

	if err := j.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate journal database: %w", err)
	}

	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS audit_entries (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			incident_id TEXT,
			details TEXT,
			created_at INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_entries(action)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_incident_id ON audit_entries(incident_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_entries(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := j.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// Record appends an entry to the journal.
func (j *Journal) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	var detailsJSON []byte
	if entry.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
	}

	query := `INSERT INTO audit_entries (id, action, incident_id, details, created_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err := j.db.ExecContext(ctx, query,
		entry.ID, entry.Action, entry.IncidentID, string(detailsJSON), entry.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Recent retrieves the newest entries, optionally filtered by action.
func (j *Journal) Recent(ctx context.Context, action string, limit int) ([]Entry, error) {
	query := `SELECT id, action, incident_id, details, created_at FROM audit_entries`
	args := []interface{}{}
	if action != "" {
		query += ` WHERE action = ?`
		args = append(args, action)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var incidentID, detailsJSON sql.NullString
		var createdAt int64

		if err := rows.Scan(&entry.ID, &entry.Action, &incidentID, &detailsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		entry.IncidentID = incidentID.String
		entry.CreatedAt = time.Unix(createdAt, 0)

		if detailsJSON.Valid && detailsJSON.String != "" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &entry.Details); err != nil {
				entry.Details = map[string]interface{}{"raw": detailsJSON.String}
			}
		}

		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountByAction returns how many entries exist per action.
func (j *Journal) CountByAction(ctx context.Context) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT action, COUNT(*) FROM audit_entries GROUP BY action`)
	if err != nil {
		return nil, fmt.Errorf("failed to count audit entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("failed to scan audit count: %w", err)
		}
		counts[action] = count
	}
	return counts, rows.Err()
}
