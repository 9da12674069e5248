package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — экземпляр выполнения workflow.
//
// Run создаётся движком при старте верхнеуровневого выполнения
// и живёт в памяти до его завершения. Финальное состояние может быть
// сохранено в архив завершённых runs (repo) и опубликовано как событие.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// WorkflowRef — ссылка на workflow (имя или ref определения).
	WorkflowRef string `json:"workflow_ref"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Inputs — входные параметры, переданные при запуске.
	Inputs map[string]any `json:"inputs,omitempty"`

	// Action — финальное действие, с которым завершился run.
	Action string `json:"action,omitempty"`

	// Error — текст ошибки, если run завершился с FAILED.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// NewRun создаёт новый Run в статусе PENDING.
func NewRun(workflowRef string, inputs map[string]any) *Run {
	return &Run{
		ID:          uuid.New(),
		WorkflowRef: workflowRef,
		Status:      RunStatusPending,
		Inputs:      inputs,
		CreatedAt:   time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkSucceeded переводит run в статус SUCCEEDED с финальным действием.
func (r *Run) MarkSucceeded(action string) {
	now := time.Now()
	r.Status = RunStatusSucceeded
	r.Action = action
	r.FinishedAt = &now
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *Run) MarkFailed(err string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.Error = err
	r.FinishedAt = &now
}
