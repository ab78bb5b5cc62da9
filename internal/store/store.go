// Package store provides SQLite-backed persistence for the plan execution
// journal and the audit trail.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/bioreactor/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a database that lives only as long as the process.
const MemoryPath = ":memory:"

// Store provides access to the journal database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations. dbPath may be MemoryPath.
func New(dbPath string) (*Store, error) {
	dsn := MemoryPath
	if dbPath != MemoryPath {
		// Ensure directory exists
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		// Open with WAL mode for better concurrency
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time, and an in-memory database
	// exists per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		note TEXT,
		allow_on_success INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL,
		steps TEXT NOT NULL,
		log TEXT NOT NULL,
		failed_step INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at DATETIME NOT NULL,
		ended_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		execution_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_executions_started_at ON executions(started_at);
	CREATE INDEX IF NOT EXISTS idx_pdr_execution_id ON pdr(execution_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Execution Operations ---

// SaveExecution inserts a finished plan execution. An empty ID is filled in.
func (s *Store) SaveExecution(exec *models.Execution) error {
	if exec.ID == "" {
		exec.ID = uuid.New().String()
	}
	stepsJSON, err := json.Marshal(exec.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	logJSON, err := json.Marshal(exec.Log)
	if err != nil {
		return fmt.Errorf("encode log: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO executions (id, note, allow_on_success, status, steps, log, failed_step, error, started_at, ended_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.Note, exec.AllowOnSuccess, exec.Status, string(stepsJSON), string(logJSON),
		exec.FailedStep, exec.Error, exec.StartedAt.UTC(), exec.EndedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// GetExecution returns an execution by ID, or nil if there is none.
func (s *Store) GetExecution(id string) (*models.Execution, error) {
	row := s.db.QueryRow(
		`SELECT id, note, allow_on_success, status, steps, log, failed_step, error, started_at, ended_at FROM executions WHERE id = ?`,
		id,
	)
	exec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query execution: %w", err)
	}
	return exec, nil
}

// ListExecutions returns the most recent executions, newest first.
func (s *Store) ListExecutions(limit int) ([]models.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, note, allow_on_success, status, steps, log, failed_step, error, started_at, ended_at FROM executions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var execs []models.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		execs = append(execs, *exec)
	}
	return execs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(row scanner) (*models.Execution, error) {
	var exec models.Execution
	var note, errMsg sql.NullString
	var stepsJSON, logJSON string

	if err := row.Scan(&exec.ID, &note, &exec.AllowOnSuccess, &exec.Status, &stepsJSON, &logJSON,
		&exec.FailedStep, &errMsg, &exec.StartedAt, &exec.EndedAt); err != nil {
		return nil, err
	}
	if note.Valid {
		exec.Note = note.String
	}
	if errMsg.Valid {
		exec.Error = errMsg.String
	}
	if err := json.Unmarshal([]byte(stepsJSON), &exec.Steps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	if err := json.Unmarshal([]byte(logJSON), &exec.Log); err != nil {
		return nil, fmt.Errorf("decode log: %w", err)
	}
	return &exec, nil
}

// --- PDR Operations ---

// WritePDR writes a Process Decision Record.
func (s *Store) WritePDR(action, inputsHash, outcome, executionID, details string) (*models.PDREntry, error) {
	now := time.Now().UTC()
	pdr := &models.PDREntry{
		ID:          uuid.New().String(),
		Action:      action,
		InputsHash:  inputsHash,
		Outcome:     outcome,
		ExecutionID: executionID,
		Details:     details,
		Timestamp:   now,
	}

	_, err := s.db.Exec(
		`INSERT INTO pdr (id, action, inputs_hash, outcome, execution_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pdr.ID, pdr.Action, pdr.InputsHash, pdr.Outcome, pdr.ExecutionID, pdr.Details, pdr.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return pdr, nil
}

// ListPDR returns the most recent audit records, newest first.
func (s *Store) ListPDR(limit int) ([]models.PDREntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, action, inputs_hash, outcome, execution_id, details, timestamp FROM pdr ORDER BY timestamp DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var entries []models.PDREntry
	for rows.Next() {
		var e models.PDREntry
		var execID, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &execID, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		if execID.Valid {
			e.ExecutionID = execID.String
		}
		if details.Valid {
			e.Details = details.String
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
