package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/stackagent/conductor/pkg/models"
	"github.com/stackagent/conductor/pkg/storage"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// PostgresStore persists the workflow catalog: definitions as JSONB rows and
// execution summaries keyed by execution id.
type PostgresStore struct {
	db DBInterface
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &PostgresStore{db: tx}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *PostgresStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *PostgresStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

type workflowRow struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Definition  []byte    `db:"definition"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r workflowRow) toDefinition() (models.WorkflowDefinition, error) {
	var wf models.WorkflowDefinition
	if err := json.Unmarshal(r.Definition, &wf); err != nil {
		return models.WorkflowDefinition{}, fmt.Errorf("decode workflow %d: %w", r.ID, err)
	}
	wf.ID = r.ID
	wf.Name = r.Name
	wf.Description = r.Description
	wf.CreatedAt = r.CreatedAt
	wf.UpdatedAt = r.UpdatedAt
	return wf, nil
}

// SaveWorkflow inserts a definition and returns its id. The task graph,
// variables and error policy are stored as one JSONB document.
func (s *PostgresStore) SaveWorkflow(wf models.WorkflowDefinition) (int64, error) {
	definition, err := json.Marshal(wf)
	if err != nil {
		return 0, fmt.Errorf("encode workflow: %w", err)
	}
	var id int64
	err = s.db.QueryRowx(
		"INSERT INTO workflows (name, description, definition) VALUES ($1, $2, $3) RETURNING id",
		wf.Name, wf.Description, definition).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save workflow: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetWorkflow(id int64) (models.WorkflowDefinition, error) {
	var row workflowRow
	err := s.db.Get(&row, "SELECT * FROM workflows WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.WorkflowDefinition{}, storage.ErrNotFound
	}
	if err != nil {
		return models.WorkflowDefinition{}, err
	}
	return row.toDefinition()
}

func (s *PostgresStore) ListWorkflows() ([]models.WorkflowDefinition, error) {
	var rows []workflowRow
	err := s.db.Select(&rows, "SELECT * FROM workflows ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	workflows := make([]models.WorkflowDefinition, 0, len(rows))
	for _, row := range rows {
		wf, err := row.toDefinition()
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

func (s *PostgresStore) SaveExecution(rec models.ExecutionRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO executions (id, workflow_id, workflow_name, status, progress, error_msg, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, nullableID(rec.WorkflowID), rec.WorkflowName, rec.Status, rec.Progress, rec.ErrorMsg, rec.StartedAt, rec.FinishedAt)
	return err
}

func (s *PostgresStore) UpdateExecution(rec models.ExecutionRecord) error {
	_, err := s.db.Exec(`
		UPDATE executions
		SET status = $1, progress = $2, error_msg = $3, started_at = $4, finished_at = $5
		WHERE id = $6`,
		rec.Status, rec.Progress, rec.ErrorMsg, rec.StartedAt, rec.FinishedAt, rec.ID)
	return err
}

func (s *PostgresStore) GetExecution(id string) (models.ExecutionRecord, error) {
	var rec executionRow
	err := s.db.Get(&rec, "SELECT * FROM executions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.ExecutionRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return models.ExecutionRecord{}, err
	}
	return rec.toRecord(), nil
}

func (s *PostgresStore) ListExecutions(workflowID int64) ([]models.ExecutionRecord, error) {
	var rows []executionRow
	var err error
	if workflowID == 0 {
		err = s.db.Select(&rows, "SELECT * FROM executions ORDER BY started_at DESC NULLS LAST")
	} else {
		err = s.db.Select(&rows, "SELECT * FROM executions WHERE workflow_id = $1 ORDER BY started_at DESC NULLS LAST", workflowID)
	}
	if err != nil {
		return nil, err
	}
	records := make([]models.ExecutionRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, nil
}

type executionRow struct {
	ID           string                 `db:"id"`
	WorkflowID   sql.NullInt64          `db:"workflow_id"`
	WorkflowName string                 `db:"workflow_name"`
	Status       models.ExecutionStatus `db:"status"`
	Progress     float64                `db:"progress"`
	ErrorMsg     string                 `db:"error_msg"`
	StartedAt    *time.Time             `db:"started_at"`
	FinishedAt   *time.Time             `db:"finished_at"`
}

func (r executionRow) toRecord() models.ExecutionRecord {
	return models.ExecutionRecord{
		ID:           r.ID,
		WorkflowID:   r.WorkflowID.Int64,
		WorkflowName: r.WorkflowName,
		Status:       r.Status,
		Progress:     r.Progress,
		ErrorMsg:     r.ErrorMsg,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
	}
}

// executions created by ad-hoc runs carry no catalog workflow id
func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}
