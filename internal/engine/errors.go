package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Ошибки компиляции.
var (
	// ErrEmptyNodes — workflow не содержит узлов.
	ErrEmptyNodes = errors.New("workflow has no nodes")

	// ErrEmptyNodeID — узел не имеет ID.
	ErrEmptyNodeID = errors.New("node has empty ID")

	// ErrDuplicateNodeID — несколько узлов с одинаковым ID.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownStartNode — start_node отсутствует среди узлов.
	ErrUnknownStartNode = errors.New("start node not found")

	// ErrUnknownEdgeNode — переход ссылается на несуществующий узел.
	ErrUnknownEdgeNode = errors.New("edge references unknown node")

	// ErrDuplicateEdge — два перехода для одной пары (node, action).
	ErrDuplicateEdge = errors.New("duplicate edge for (node, action)")

	// ErrMissingInput — не передан обязательный входной параметр.
	ErrMissingInput = errors.New("required input missing")

	// ErrMissingWorkflowRef — workflow узел без workflow_ref и workflow_ir.
	ErrMissingWorkflowRef = errors.New("workflow node requires workflow_ref or workflow_ir")

	// ErrNoLoader — workflow_ref задан, но loader не сконфигурирован.
	ErrNoLoader = errors.New("workflow_ref requires a configured loader")

	// ErrInvalidStorageMode — неизвестный storage_mode.
	ErrInvalidStorageMode = errors.New("invalid storage mode")

	// ErrEmptyGroup — parallel узел без дочерних узлов.
	ErrEmptyGroup = errors.New("parallel node has no children")
)

// Ошибки разрешения шаблонов.
var (
	// ErrUnresolvedReference — base ссылки не найден в scope.
	ErrUnresolvedReference = errors.New("unresolved template reference")

	// ErrUnresolvedSegment — сегмент пути не может быть разрешён.
	ErrUnresolvedSegment = errors.New("unresolved path segment")
)

// ValidationError — ошибка валидации с контекстом узла.
type ValidationError struct {
	NodeID  string // ID узла, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(nodeID, field, message string, err error) *ValidationError {
	return &ValidationError{
		NodeID:  nodeID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// TemplateValidationError — ошибка статической проверки шаблонов.
//
// Собирает все проблемы валидации за один проход, чтобы
// пользователь исправил их разом, а не по одной.
type TemplateValidationError struct {
	// Problems — список сообщений. Каждое называет выражение,
	// узел и (для путей) неразрешённый сегмент.
	Problems []string
}

// Error реализует интерфейс error.
func (e *TemplateValidationError) Error() string {
	return fmt.Sprintf("template validation failed: %s", strings.Join(e.Problems, "; "))
}

// CircularReferenceError — циклическая ссылка между workflows.
type CircularReferenceError struct {
	// CyclePath — полный путь цикла, например ["A", "B", "A"].
	CyclePath []string
}

// Error реализует интерфейс error.
func (e *CircularReferenceError) Error() string {
	return fmt.Sprintf("circular workflow reference: %s", strings.Join(e.CyclePath, " -> "))
}

// MaxNestingDepthError — превышена максимальная глубина вложенности.
type MaxNestingDepthError struct {
	// Depth — фактическая глубина.
	Depth int

	// Limit — сконфигурированный предел.
	Limit int
}

// Error реализует интерфейс error.
func (e *MaxNestingDepthError) Error() string {
	return fmt.Sprintf("max workflow nesting depth exceeded: depth %d, limit %d", e.Depth, e.Limit)
}

// WorkflowExecutionError — ошибка выполнения с путём до места падения.
//
// WorkflowPath — цепочка идентификаторов workflow/узлов от корня
// до упавшего узла, чтобы ошибки внутри глубоко вложенных
// workflows оставались трассируемыми.
type WorkflowExecutionError struct {
	Message      string
	WorkflowPath []string
	Cause        error
}

// Error реализует интерфейс error.
func (e *WorkflowExecutionError) Error() string {
	if len(e.WorkflowPath) > 0 {
		return fmt.Sprintf("%s (at %s)", e.Message, strings.Join(e.WorkflowPath, " -> "))
	}
	return e.Message
}

// Unwrap возвращает причину ошибки.
func (e *WorkflowExecutionError) Unwrap() error {
	return e.Cause
}

// GroupError — агрегированная ошибка конкурентной группы (policy Continue).
type GroupError struct {
	// Failures — ошибки по индексам дочерних узлов.
	Failures map[int]error
}

// Error реализует интерфейс error.
// Ошибки перечисляются в порядке индексов детей.
func (e *GroupError) Error() string {
	idxs := make([]int, 0, len(e.Failures))
	for i := range e.Failures {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)

	parts := make([]string, 0, len(idxs))
	for _, i := range idxs {
		parts = append(parts, fmt.Sprintf("child %d: %v", i, e.Failures[i]))
	}
	return fmt.Sprintf("%d of group children failed: %s", len(e.Failures), strings.Join(parts, "; "))
}
