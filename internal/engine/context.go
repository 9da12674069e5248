package engine

import (
	"github.com/google/uuid"

	"github.com/shaiso/Loom/internal/events"
)

// ExecContext — контекст одного вызова узла.
//
// Объединяет текущий Store и начальные параметры run в namespace
// разрешения шаблонов, а также несёт workflow_path — упорядоченный
// список идентификаторов workflow/узлов для сообщений об ошибках.
type ExecContext struct {
	// RunID — идентификатор текущего run.
	RunID uuid.UUID

	// Sink — приёмник событий жизненного цикла. Никогда не nil:
	// без сконфигурированной публикации — events.NopSink.
	Sink events.Sink

	// Store — текущий SharedStore.
	Store *Store

	// InitialParams — входные параметры run (после применения defaults).
	// Проверяются при разрешении base после Store.
	InitialParams map[string]any

	// WorkflowPath — путь от корневого workflow до текущего места.
	WorkflowPath []string

	// Params — разрешённые параметры текущего узла.
	// Заполняется template-aware обёрткой перед вызовом узла.
	Params map[string]any
}

// NewExecContext создаёт контекст выполнения.
func NewExecContext(store *Store, initialParams map[string]any, path []string) *ExecContext {
	if initialParams == nil {
		initialParams = make(map[string]any)
	}
	return &ExecContext{
		Sink:          events.NopSink{},
		Store:         store,
		InitialParams: initialParams,
		WorkflowPath:  path,
	}
}

// Lookup разрешает base шаблонной ссылки: сначала текущий Store,
// затем initial params.
func (ec *ExecContext) Lookup(base string) (any, bool) {
	if v, ok := ec.Store.Lookup(base); ok {
		return v, true
	}
	v, ok := ec.InitialParams[base]
	return v, ok
}

// WithNode возвращает копию контекста с добавленным в path узлом.
// Исходный контекст не модифицируется.
func (ec *ExecContext) WithNode(nodeID string) *ExecContext {
	path := make([]string, 0, len(ec.WorkflowPath)+1)
	path = append(path, ec.WorkflowPath...)
	path = append(path, nodeID)

	clone := *ec
	clone.WorkflowPath = path
	return &clone
}

// WithParams возвращает копию контекста с разрешёнными параметрами узла.
func (ec *ExecContext) WithParams(params map[string]any) *ExecContext {
	clone := *ec
	clone.Params = params
	return &clone
}
