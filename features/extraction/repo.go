package extraction

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alereyleyva/extractify/internal/llm"
)

type Repository interface {
	GetModelVersion(ctx context.Context, id string) (*ModelVersion, error)
	GetLLMModel(ctx context.Context, id string) (*llm.Model, error)
	StartRun(ctx context.Context, job *Job) error
	CompleteRun(ctx context.Context, id string, result json.RawMessage, usage llm.Usage) (*Run, error)
	FailRun(ctx context.Context, id, message string) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) GetModelVersion(ctx context.Context, id string) (*ModelVersion, error) {
	mv := &ModelVersion{}
	var attrs []byte
	var prompt sql.NullString
	query := `SELECT id, model_id, attributes, system_prompt FROM model_versions WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&mv.ID, &mv.ModelID, &attrs, &prompt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrModelVersionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	mv.Attributes = json.RawMessage(attrs)
	mv.SystemPrompt = prompt.String
	return mv, nil
}

func (r *PostgresRepo) GetLLMModel(ctx context.Context, id string) (*llm.Model, error) {
	m := &llm.Model{}
	query := `SELECT id, provider, model_name FROM llm_models WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&m.ID, &m.Provider, &m.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrLLMModelNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// StartRun puts the run into processing, creating it if the enqueuer did
// not. A redelivered job resets any previous outcome.
func (r *PostgresRepo) StartRun(ctx context.Context, job *Job) error {
	query := `INSERT INTO extraction_runs (id, owner_id, model_id, model_version_id, llm_model_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, result = NULL, usage = NULL, completed_at = NULL`
	_, err := r.db.ExecContext(ctx, query, job.ExtractionID, job.OwnerID, job.ModelID, job.ModelVersionID, job.LLMModelID, StatusProcessing)
	return err
}

func (r *PostgresRepo) CompleteRun(ctx context.Context, id string, result json.RawMessage, usage llm.Usage) (*Run, error) {
	usageJSON, err := json.Marshal(usage)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM extraction_errors WHERE extraction_id = $1`, id); err != nil {
		return nil, fmt.Errorf("clear errors: %w", err)
	}

	run := &Run{ID: id, Status: StatusCompleted, Result: result, Usage: &usage}
	query := `UPDATE extraction_runs SET status = $2, result = $3, usage = $4, completed_at = NOW() WHERE id = $1
		RETURNING owner_id, model_id, model_version_id, llm_model_id, created_at, completed_at`
	err = tx.QueryRowContext(ctx, query, id, StatusCompleted, []byte(result), usageJSON).
		Scan(&run.OwnerID, &run.ModelID, &run.ModelVersionID, &run.LLMModelID, &run.CreatedAt, &run.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("complete run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return run, nil
}

// FailRun replaces the run's error record and marks it failed.
func (r *PostgresRepo) FailRun(ctx context.Context, id, message string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM extraction_errors WHERE extraction_id = $1`, id); err != nil {
		return fmt.Errorf("clear errors: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO extraction_errors (extraction_id, message) VALUES ($1, $2)`, id, message); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	query := `UPDATE extraction_runs SET status = $2, result = NULL, usage = NULL, completed_at = NOW() WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id, StatusFailed); err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return tx.Commit()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Run, error) {
	run := &Run{}
	var result, usage []byte
	query := `SELECT id, owner_id, model_id, model_version_id, llm_model_id, status, result, usage, created_at, completed_at FROM extraction_runs WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&run.ID, &run.OwnerID, &run.ModelID, &run.ModelVersionID, &run.LLMModelID, &run.Status, &result, &usage, &run.CreatedAt, &run.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if len(result) > 0 {
		run.Result = json.RawMessage(result)
	}
	if len(usage) > 0 {
		run.Usage = &llm.Usage{}
		if err := json.Unmarshal(usage, run.Usage); err != nil {
			return nil, fmt.Errorf("decode usage: %w", err)
		}
	}
	return run, nil
}

// LastError returns the live error message of a run, or "" if none.
func (r *PostgresRepo) LastError(ctx context.Context, id string) (string, error) {
	var msg string
	err := r.db.QueryRowContext(ctx, `SELECT message FROM extraction_errors WHERE extraction_id = $1 ORDER BY created_at DESC LIMIT 1`, id).Scan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return msg, err
}

func (r *PostgresRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM extraction_runs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
