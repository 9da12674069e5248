package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType — тип события жизненного цикла.
type EventType string

// Типы событий.
const (
	EventTypeRunStarted   EventType = "run.started"
	EventTypeRunFinished  EventType = "run.finished"
	EventTypeNodeStarted  EventType = "node.started"
	EventTypeNodeFinished EventType = "node.finished"
)

// Message — событие для публикации.
type Message struct {
	// ID — уникальный идентификатор события.
	ID string `json:"id"`

	// Type — тип события.
	Type EventType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// RunStartedPayload — payload события о старте run.
type RunStartedPayload struct {
	RunID    uuid.UUID `json:"run_id"`
	Workflow string    `json:"workflow"`
}

// RunFinishedPayload — payload события о завершении run.
type RunFinishedPayload struct {
	RunID      uuid.UUID `json:"run_id"`
	Workflow   string    `json:"workflow"`
	Status     string    `json:"status"` // SUCCEEDED или FAILED
	Action     string    `json:"action,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// NodeStartedPayload — payload события о старте узла.
type NodeStartedPayload struct {
	RunID        uuid.UUID `json:"run_id"`
	NodeID       string    `json:"node_id"`
	NodeType     string    `json:"node_type"`
	WorkflowPath []string  `json:"workflow_path,omitempty"`
}

// NodeFinishedPayload — payload события о завершении узла.
type NodeFinishedPayload struct {
	RunID        uuid.UUID `json:"run_id"`
	NodeID       string    `json:"node_id"`
	NodeType     string    `json:"node_type"`
	Status       string    `json:"status"` // SUCCEEDED или FAILED
	Action       string    `json:"action,omitempty"`
	Error        string    `json:"error,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	WorkflowPath []string  `json:"workflow_path,omitempty"`
}

// Sink — приёмник событий жизненного цикла выполнения.
//
// Движок публикует события через Sink; ошибки публикации
// логируются и никогда не влияют на выполнение workflow.
type Sink interface {
	RunStarted(ctx context.Context, p RunStartedPayload) error
	RunFinished(ctx context.Context, p RunFinishedPayload) error
	NodeStarted(ctx context.Context, p NodeStartedPayload) error
	NodeFinished(ctx context.Context, p NodeFinishedPayload) error
}

// NopSink — Sink-заглушка, когда публикация событий не сконфигурирована.
type NopSink struct{}

// RunStarted ничего не делает.
func (NopSink) RunStarted(context.Context, RunStartedPayload) error { return nil }

// RunFinished ничего не делает.
func (NopSink) RunFinished(context.Context, RunFinishedPayload) error { return nil }

// NodeStarted ничего не делает.
func (NopSink) NodeStarted(context.Context, NodeStartedPayload) error { return nil }

// NodeFinished ничего не делает.
func (NopSink) NodeFinished(context.Context, NodeFinishedPayload) error { return nil }
