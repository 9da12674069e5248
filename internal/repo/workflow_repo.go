package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Loom/internal/domain"
)

// WorkflowRecord — версионированное определение workflow.
type WorkflowRecord struct {
	// Ref — имя, по которому workflow ссылаются узлы workflow_ref.
	Ref string `json:"ref"`

	// Version — версия определения (инкрементируется при Save).
	Version int `json:"version"`

	// Spec — IR определения.
	Spec *domain.WorkflowIR `json:"spec"`

	// CreatedAt — время сохранения версии.
	CreatedAt time.Time `json:"created_at"`
}

// WorkflowRepo — репозиторий определений workflow.
//
// Хранит IR как JSONB с версионированием по ref. Get возвращает
// последнюю версию и реализует engine.Loader, так что вложенные
// workflow_ref разрешаются прямо из БД при компиляции.
type WorkflowRepo struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepo создаёт новый WorkflowRepo.
func NewWorkflowRepo(pool *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{pool: pool}
}

// Save сохраняет новую версию определения workflow.
// Версия вычисляется атомарно от последней сохранённой.
func (r *WorkflowRepo) Save(ctx context.Context, ref string, spec *domain.WorkflowIR) (*WorkflowRecord, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow spec: %w", err)
	}

	query := `
		INSERT INTO workflows (ref, version, spec, created_at)
		VALUES (
			$1,
			COALESCE((SELECT MAX(version) FROM workflows WHERE ref = $1), 0) + 1,
			$2,
			$3
		)
		RETURNING version, created_at
	`
	rec := &WorkflowRecord{Ref: ref, Spec: spec}
	err = r.pool.QueryRow(ctx, query, ref, data, time.Now()).Scan(&rec.Version, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert workflow %s: %w", ref, err)
	}
	return rec, nil
}

// Load возвращает последнюю версию IR по ref.
// Реализует engine.Loader.
func (r *WorkflowRepo) Load(ctx context.Context, ref string) (*domain.WorkflowIR, error) {
	rec, err := r.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return rec.Spec, nil
}

// Get возвращает последнюю версию определения по ref.
func (r *WorkflowRepo) Get(ctx context.Context, ref string) (*WorkflowRecord, error) {
	query := `
		SELECT ref, version, spec, created_at
		FROM workflows
		WHERE ref = $1
		ORDER BY version DESC
		LIMIT 1
	`
	return r.scanRecord(r.pool.QueryRow(ctx, query, ref), ref)
}

// GetVersion возвращает конкретную версию определения.
func (r *WorkflowRepo) GetVersion(ctx context.Context, ref string, version int) (*WorkflowRecord, error) {
	query := `
		SELECT ref, version, spec, created_at
		FROM workflows
		WHERE ref = $1 AND version = $2
	`
	return r.scanRecord(r.pool.QueryRow(ctx, query, ref, version), ref)
}

// List возвращает последние версии всех определений.
func (r *WorkflowRepo) List(ctx context.Context) ([]WorkflowRecord, error) {
	query := `
		SELECT DISTINCT ON (ref) ref, version, spec, created_at
		FROM workflows
		ORDER BY ref, version DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var records []WorkflowRecord
	for rows.Next() {
		var rec WorkflowRecord
		var data []byte
		if err := rows.Scan(&rec.Ref, &rec.Version, &data, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		spec, err := domain.ParseWorkflowIR(data)
		if err != nil {
			return nil, fmt.Errorf("parse workflow %s: %w", rec.Ref, err)
		}
		rec.Spec = spec
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Delete удаляет все версии определения.
func (r *WorkflowRepo) Delete(ctx context.Context, ref string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM workflows WHERE ref = $1`, ref)
	if err != nil {
		return fmt.Errorf("delete workflow %s: %w", ref, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *WorkflowRepo) scanRecord(row pgx.Row, ref string) (*WorkflowRecord, error) {
	var rec WorkflowRecord
	var data []byte
	err := row.Scan(&rec.Ref, &rec.Version, &data, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", ref, err)
	}
	spec, err := domain.ParseWorkflowIR(data)
	if err != nil {
		return nil, fmt.Errorf("parse workflow %s: %w", ref, err)
	}
	rec.Spec = spec
	return &rec, nil
}
