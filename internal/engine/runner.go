package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Loom/internal/domain"
	"github.com/shaiso/Loom/internal/events"
	"github.com/shaiso/Loom/internal/nodes"
	"github.com/shaiso/Loom/internal/telemetry"
)

// EngineState — состояние конечного автомата движка.
type EngineState string

const (
	// StateReady — движок создан, run ещё не запускался.
	StateReady EngineState = "ready"

	// StateRunning — выполняется очередной узел.
	StateRunning EngineState = "running"

	// StateDone — run завершился терминальным action.
	StateDone EngineState = "done"

	// StateFailed — run завершился ошибкой.
	StateFailed EngineState = "failed"
)

// Outcome — итог одного run.
type Outcome struct {
	// RunID — идентификатор run.
	RunID uuid.UUID

	// Workflow — имя корневого workflow.
	Workflow string

	// Status — терминальный статус run.
	Status domain.RunStatus

	// Action — терминальный action (для успешного run).
	Action string

	// Err — ошибка выполнения (для провалившегося run).
	Err error

	// Store — итоговое состояние SharedStore корневого workflow.
	Store *Store

	// Duration — длительность run.
	Duration time.Duration
}

// EngineOptions — зависимости движка.
type EngineOptions struct {
	// Store — начальное состояние SharedStore. Nil означает пустой Store.
	Store *Store

	// Sink — приёмник событий жизненного цикла.
	// Nil заменяется на events.NopSink.
	Sink events.Sink

	// Logger — базовый логгер run. Nil означает slog.Default.
	Logger *slog.Logger
}

// Engine выполняет скомпилированный workflow.
//
// Движок строго последовательный: в любой момент выполняется не более
// одного узла корневого графа; параллелизм существует только внутри
// узлов типа parallel. Один Engine описывает один run.
type Engine struct {
	compiled *Compiled
	store    *Store
	sink     events.Sink
	logger   *slog.Logger

	mu      sync.Mutex
	state   EngineState
	current string
}

// NewEngine создаёт движок для одного run скомпилированного workflow.
func NewEngine(compiled *Compiled, opts EngineOptions) *Engine {
	store := opts.Store
	if store == nil {
		store = NewStore()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Sink
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Engine{
		compiled: compiled,
		store:    store,
		sink:     sink,
		logger:   logger,
		state:    StateReady,
	}
}

// State возвращает текущее состояние движка.
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CurrentNode возвращает идентификатор выполняемого узла
// (пустая строка вне состояния running).
func (e *Engine) CurrentNode() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *Engine) setState(state EngineState, current string) {
	e.mu.Lock()
	e.state = state
	e.current = current
	e.mu.Unlock()
}

// Run выполняет workflow от стартового узла до терминального action
// или первой невосстановимой ошибки.
//
// Outcome возвращается в обоих случаях; при ошибке Outcome.Err
// совпадает с возвращённой ошибкой, а Store содержит состояние
// на момент падения.
func (e *Engine) Run(ctx context.Context) (*Outcome, error) {
	runID := uuid.New()
	name := workflowID(e.compiled.IR)

	logger := telemetry.WithRunID(telemetry.WithWorkflow(e.logger, name), runID.String())
	ctx = telemetry.WithLogger(ctx, logger)

	logger.Info("run запущен", "start_node", e.compiled.IR.StartNode)
	e.setState(StateRunning, e.compiled.IR.StartNode)
	e.emitRunStarted(ctx, runID, name, logger)

	start := time.Now()
	action, err := runGraph(ctx, e.compiled, e.store, e.compiled.InitialParams,
		[]string{name}, runID, e.sink)
	elapsed := time.Since(start)

	outcome := &Outcome{
		RunID:    runID,
		Workflow: name,
		Store:    e.store,
		Duration: elapsed,
	}

	if err != nil {
		e.setState(StateFailed, "")
		outcome.Status = domain.RunStatusFailed
		outcome.Err = err
		telemetry.ObserveRun(string(domain.RunStatusFailed))
		logger.Error("run завершился с ошибкой",
			"error", err, "duration_ms", elapsed.Milliseconds())
		e.emitRunFinished(ctx, outcome, logger)
		return outcome, err
	}

	e.setState(StateDone, "")
	outcome.Status = domain.RunStatusSucceeded
	outcome.Action = action
	telemetry.ObserveRun(string(domain.RunStatusSucceeded))
	logger.Info("run выполнен",
		"action", action, "duration_ms", elapsed.Milliseconds())
	e.emitRunFinished(ctx, outcome, logger)
	return outcome, nil
}

func (e *Engine) emitRunStarted(ctx context.Context, runID uuid.UUID, name string, logger *slog.Logger) {
	if err := e.sink.RunStarted(ctx, events.RunStartedPayload{
		RunID:    runID,
		Workflow: name,
	}); err != nil {
		logger.Warn("событие run.started не опубликовано", "error", err)
	}
}

func (e *Engine) emitRunFinished(ctx context.Context, outcome *Outcome, logger *slog.Logger) {
	p := events.RunFinishedPayload{
		RunID:      outcome.RunID,
		Workflow:   outcome.Workflow,
		Status:     string(outcome.Status),
		Action:     outcome.Action,
		DurationMs: outcome.Duration.Milliseconds(),
	}
	if outcome.Err != nil {
		p.Error = outcome.Err.Error()
	}
	if err := e.sink.RunFinished(ctx, p); err != nil {
		logger.Warn("событие run.finished не опубликовано", "error", err)
	}
}

// runGraph прогоняет один скомпилированный граф: от стартового узла
// по таблице переходов до терминального action или первой ошибки.
//
// Используется и корневым движком, и узлами вложенных workflow —
// path задаёт workflow_path для сообщений об ошибках.
func runGraph(ctx context.Context, c *Compiled, store *Store, params map[string]any, path []string, runID uuid.UUID, sink events.Sink) (string, error) {
	ec := NewExecContext(store, params, path)
	ec.RunID = runID
	if sink != nil {
		ec.Sink = sink
	}

	current := c.IR.StartNode
	for {
		if err := ctx.Err(); err != nil {
			return "", wrapExecError(err, path, current)
		}

		exec, ok := c.Node(current)
		if !ok {
			// Недостижимо после успешной компиляции.
			return "", wrapExecError(fmt.Errorf("узел %s отсутствует в скомпилированном графе", current), path, current)
		}

		nodeEC := ec.WithNode(current)
		res, err := runWithRetry(ctx, exec, nodeEC, c.retries[current])
		if err != nil {
			return "", wrapExecError(err, nodeEC.WorkflowPath, current)
		}

		action := res.Action
		if action == "" {
			action = nodes.ActionDefault
		}

		next, ok := c.Transition(current, action)
		if !ok {
			// Нет перехода для (узел, action) — терминальное состояние.
			return action, nil
		}
		current = next
	}
}

// wrapExecError оборачивает ошибку узла в WorkflowExecutionError
// с workflow_path. Уже обёрнутая ошибка из вложенного workflow
// проходит как есть: её путь длиннее и точнее.
func wrapExecError(err error, path []string, nodeID string) error {
	var weErr *WorkflowExecutionError
	if errors.As(err, &weErr) {
		return err
	}
	return &WorkflowExecutionError{
		Message:      fmt.Sprintf("узел %s: %v", nodeID, err),
		WorkflowPath: path,
		Cause:        err,
	}
}
