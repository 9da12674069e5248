package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Loom/internal/domain"
	"github.com/shaiso/Loom/internal/events"
	"github.com/shaiso/Loom/internal/nodes"
	"github.com/shaiso/Loom/internal/telemetry"
)

// Executable — исполняемая единица скомпилированного графа.
//
// Узел из реестра оборачивается цепочкой декораторов (снаружи внутрь):
// instrumentation -> namespacing -> template-aware -> сам узел.
// Каждая обёртка делегирует исполнение внутреннему Executable и никогда
// не глотает его ошибку.
type Executable interface {
	// ID возвращает идентификатор узла в графе.
	ID() string

	// Type возвращает тип узла.
	Type() string

	// Exec выполняет узел в контексте run.
	Exec(ctx context.Context, ec *ExecContext) (*nodes.Result, error)
}

// nodeExec — внутренний адаптер nodes.Node -> Executable.
//
// Передаёт узлу параметры, уже разрешённые template-aware обёрткой,
// и нормализует пустой action в action по умолчанию.
type nodeExec struct {
	node nodes.Node
}

func (n *nodeExec) ID() string   { return n.node.ID() }
func (n *nodeExec) Type() string { return n.node.Type() }

func (n *nodeExec) Exec(ctx context.Context, ec *ExecContext) (*nodes.Result, error) {
	res, err := n.node.Run(ctx, &nodes.Request{
		NodeID: n.node.ID(),
		Params: ec.Params,
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = nodes.EmptyResult()
	}
	if res.Action == "" {
		res.Action = nodes.ActionDefault
	}
	return res, nil
}

// templated — template-aware обёртка.
//
// Перед исполнением разрешает все шаблонные ссылки в декларации
// параметров узла против текущего контекста. Разрешение выполняется
// при каждом вызове, поэтому retry видит актуальное состояние Store.
type templated struct {
	Executable

	params map[string]any
}

func (w *templated) Exec(ctx context.Context, ec *ExecContext) (*nodes.Result, error) {
	resolved, err := ResolveParams(w.params, ec)
	if err != nil {
		return nil, fmt.Errorf("узел %s: разрешение параметров: %w", w.ID(), err)
	}
	return w.Executable.Exec(ctx, ec.WithParams(resolved))
}

// namespaced — обёртка изоляции выходов.
//
// Записывает каждый выход узла в Store под namespace узла, так что
// одноимённые выходы разных узлов не перетирают друг друга.
type namespaced struct {
	Executable
}

func (w *namespaced) Exec(ctx context.Context, ec *ExecContext) (*nodes.Result, error) {
	res, err := w.Executable.Exec(ctx, ec)
	if err != nil {
		return nil, err
	}
	for k, v := range res.Outputs {
		ec.Store.SetInNamespace(w.ID(), k, v)
	}
	return res, nil
}

// instrumented — внешняя обёртка наблюдаемости.
//
// Логирует старт и завершение узла, пишет метрики длительности и usage,
// публикует события жизненного цикла в Sink из контекста run. Ошибки
// публикации событий не влияют на результат узла.
type instrumented struct {
	Executable
}

func (w *instrumented) Exec(ctx context.Context, ec *ExecContext) (*nodes.Result, error) {
	logger := telemetry.WithNodeID(telemetry.FromContext(ctx), w.ID()).
		With("node_type", w.Type())
	logger.Debug("узел запущен")

	w.emitStarted(ctx, ec, logger)

	start := time.Now()
	res, err := w.Executable.Exec(ctx, ec)
	elapsed := time.Since(start)

	status := domain.NodeStatusSucceeded
	if err != nil {
		status = domain.NodeStatusFailed
	}
	telemetry.ObserveNode(w.Type(), string(status), elapsed)
	if res != nil && res.Usage != nil {
		telemetry.ObserveUsage(w.Type(), res.Usage.PromptTokens, res.Usage.CompletionTokens, res.Usage.CostUSD)
	}

	if err != nil {
		logger.Error("узел завершился с ошибкой",
			"error", err, "duration_ms", elapsed.Milliseconds())
	} else {
		logger.Info("узел выполнен",
			"action", res.Action, "duration_ms", elapsed.Milliseconds())
	}

	w.emitFinished(ctx, ec, logger, res, err, elapsed)
	return res, err
}

func (w *instrumented) emitStarted(ctx context.Context, ec *ExecContext, logger *slog.Logger) {
	if err := ec.Sink.NodeStarted(ctx, events.NodeStartedPayload{
		RunID:        ec.RunID,
		NodeID:       w.ID(),
		NodeType:     w.Type(),
		WorkflowPath: ec.WorkflowPath,
	}); err != nil {
		logger.Warn("событие node.started не опубликовано", "error", err)
	}
}

func (w *instrumented) emitFinished(ctx context.Context, ec *ExecContext, logger *slog.Logger, res *nodes.Result, execErr error, elapsed time.Duration) {
	p := events.NodeFinishedPayload{
		RunID:        ec.RunID,
		NodeID:       w.ID(),
		NodeType:     w.Type(),
		Status:       string(domain.NodeStatusSucceeded),
		DurationMs:   elapsed.Milliseconds(),
		WorkflowPath: ec.WorkflowPath,
	}
	if execErr != nil {
		p.Status = string(domain.NodeStatusFailed)
		p.Error = execErr.Error()
	} else if res != nil {
		p.Action = res.Action
	}
	if err := ec.Sink.NodeFinished(ctx, p); err != nil {
		logger.Warn("событие node.finished не опубликовано", "error", err)
	}
}

// WrapNode оборачивает узел из реестра полной цепочкой декораторов.
// Порядок фиксирован: instrumentation снаружи, затем namespacing,
// затем template-aware, внутри — сам узел.
func WrapNode(node nodes.Node, def *domain.NodeDef) Executable {
	var exec Executable = &nodeExec{node: node}
	exec = &templated{Executable: exec, params: def.Params}
	exec = &namespaced{Executable: exec}
	exec = &instrumented{Executable: exec}
	return exec
}

// wrapComposite оборачивает составной узел (вложенный workflow или
// параллельная группа) без template-aware слоя: такие узлы разрешают
// свои параметры сами и в свой момент времени.
func wrapComposite(exec Executable) Executable {
	return &instrumented{Executable: &namespaced{Executable: exec}}
}
