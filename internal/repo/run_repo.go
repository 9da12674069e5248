package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Loom/internal/domain"
)

// RunRepo — архив завершённых runs.
//
// Движок выполняет run в памяти; сюда попадает только финальное
// состояние для истории и отладки.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// Save сохраняет завершённый run в архив.
func (r *RunRepo) Save(ctx context.Context, run *domain.Run) error {
	inputs, err := json.Marshal(run.Inputs)
	if err != nil {
		return fmt.Errorf("marshal run inputs: %w", err)
	}

	query := `
		INSERT INTO runs (id, workflow_ref, status, inputs, action, error,
		                  started_at, finished_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.WorkflowRef,
		run.Status,
		inputs,
		run.Action,
		run.Error,
		run.StartedAt,
		run.FinishedAt,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `
		SELECT id, workflow_ref, status, inputs, action, error,
		       started_at, finished_at, created_at
		FROM runs
		WHERE id = $1
	`
	run, err := scanRun(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	return run, nil
}

// ListByWorkflow возвращает последние runs для workflow.
func (r *RunRepo) ListByWorkflow(ctx context.Context, workflowRef string, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, workflow_ref, status, inputs, action, error,
		       started_at, finished_at, created_at
		FROM runs
		WHERE workflow_ref = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, workflowRef, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var inputs []byte
	err := row.Scan(
		&run.ID,
		&run.WorkflowRef,
		&run.Status,
		&inputs,
		&run.Action,
		&run.Error,
		&run.StartedAt,
		&run.FinishedAt,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(inputs) > 0 {
		if err := json.Unmarshal(inputs, &run.Inputs); err != nil {
			return nil, fmt.Errorf("unmarshal run inputs: %w", err)
		}
	}
	return &run, nil
}
