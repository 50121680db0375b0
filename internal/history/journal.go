package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - attempts table
const currentSchemaVersion = 1

// Compile modes recorded in the journal.
const (
	ModePreview  = "preview"
	ModeArtifact = "artifact"
)

// Attempt is one recorded compiler invocation.
type Attempt struct {
	Seq        int64  `json:"seq"`
	RunID      string `json:"run_id"`
	Source     string `json:"source"`
	Mode       string `json:"mode"`
	Outcome    string `json:"outcome"`
	Diagnostic string `json:"diagnostic,omitempty"`
	RolledBack bool   `json:"rolled_back,omitempty"`
}

// Journal appends compile attempts to a SQLite database.
//
// Thread-safety: safe for concurrent use. Sequence numbers come from an
// atomic counter seeded from the database on Open.
type Journal struct {
	db  *sql.DB
	seq atomic.Int64
}

// Open creates or opens the journal at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	j := &Journal{db: db}

	var maxSeq sql.NullInt64
	if err := db.QueryRow("SELECT MAX(seq) FROM attempts").Scan(&maxSeq); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read journal position: %w", err)
	}
	j.seq.Store(maxSeq.Int64)

	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record appends an attempt and returns it with its assigned sequence.
func (j *Journal) Record(ctx context.Context, a Attempt) (Attempt, error) {
	a.Seq = j.seq.Add(1)

	rolledBack := 0
	if a.RolledBack {
		rolledBack = 1
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO attempts
		(seq, run_id, source, mode, outcome, diagnostic, rolled_back)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		a.Seq,
		a.RunID,
		a.Source,
		a.Mode,
		a.Outcome,
		a.Diagnostic,
		rolledBack,
	)
	if err != nil {
		return Attempt{}, fmt.Errorf("record attempt: %w", err)
	}
	return a, nil
}

// Recent returns up to limit attempts, newest first. An empty source lists
// attempts for all sources.
func (j *Journal) Recent(ctx context.Context, source string, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT seq, run_id, source, mode, outcome, diagnostic, rolled_back
		FROM attempts
	`
	args := []any{}
	if source != "" {
		query += " WHERE source = ?"
		args = append(args, source)
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var rolledBack int
		if err := rows.Scan(&a.Seq, &a.RunID, &a.Source, &a.Mode, &a.Outcome, &a.Diagnostic, &rolledBack); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.RolledBack = rolledBack != 0
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if needed and records the schema version.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
