package domain

import "encoding/json"

// WorkflowIR — декларативное описание рабочего процесса.
//
// IR ("intermediate representation") — это "программа" для Loom:
// граф типизированных узлов с переходами по действиям (actions).
// После валидации IR считается неизменяемым — компилятор и движок
// его не модифицируют.
type WorkflowIR struct {
	// Name — имя workflow. Используется в workflow_path при ошибках
	// и как идентификатор при обнаружении циклических ссылок.
	Name string `json:"name,omitempty"`

	// Description — описание назначения workflow.
	Description string `json:"description,omitempty"`

	// Nodes — узлы графа.
	Nodes []NodeDef `json:"nodes"`

	// Edges — переходы между узлами.
	Edges []EdgeDef `json:"edges,omitempty"`

	// Inputs — входные параметры workflow.
	// Ключ — имя параметра, значение — его определение.
	Inputs map[string]InputDef `json:"inputs,omitempty"`

	// Outputs — декларация выходных значений workflow.
	Outputs map[string]OutputDef `json:"outputs,omitempty"`

	// StartNode — ID узла, с которого начинается выполнение.
	StartNode string `json:"start_node"`
}

// NodeDef — определение узла в workflow.
type NodeDef struct {
	// ID — уникальный идентификатор узла в рамках workflow.
	ID string `json:"id"`

	// Type — тип узла: "echo", "http", "delay", "transform", "set",
	// "workflow" (вложенный workflow), "parallel" (конкурентная группа).
	Type string `json:"type"`

	// Params — параметры узла. Строковые значения могут содержать
	// шаблонные выражения ${...}, которые разрешаются непосредственно
	// перед выполнением узла.
	Params map[string]any `json:"params,omitempty"`

	// Purpose — назначение узла (для человека, на выполнение не влияет).
	Purpose string `json:"purpose,omitempty"`

	// Retry — политика повторных попыток для этого узла.
	Retry *RetryPolicy `json:"retry,omitempty"`
}

// EdgeDef — переход между узлами.
//
// Узел может иметь несколько исходящих переходов с разными actions,
// но не более одного перехода на каждую пару (from, action).
type EdgeDef struct {
	// From — ID узла-источника.
	From string `json:"from"`

	// To — ID узла-приёмника.
	To string `json:"to"`

	// Action — действие, при котором срабатывает переход.
	// Пустое значение означает действие по умолчанию ("default").
	Action string `json:"action,omitempty"`
}

// InputDef — определение входного параметра workflow.
type InputDef struct {
	// Type — тип параметра: "string", "number", "boolean", "dict", "list".
	Type string `json:"type"`

	// Description — описание параметра.
	Description string `json:"description,omitempty"`

	// Required — обязательный ли параметр.
	Required bool `json:"required,omitempty"`

	// Default — значение по умолчанию.
	Default any `json:"default,omitempty"`
}

// OutputDef — декларация выходного значения workflow.
type OutputDef struct {
	// Description — описание выходного значения.
	Description string `json:"description,omitempty"`

	// Source — шаблонное выражение, откуда берётся значение
	// (например, "${report.summary}").
	Source string `json:"source"`
}

// Стратегии backoff для RetryPolicy.
const (
	// BackoffFixed — постоянная задержка между попытками.
	BackoffFixed = "fixed"

	// BackoffExponential — удвоение задержки после каждой попытки.
	BackoffExponential = "exponential"
)

// RetryPolicy — политика повторных попыток узла.
//
// Применяется движком снаружи цепочки обёрток: обёртки никогда
// не поглощают ошибки, поэтому retry видит каждую неудачную попытку.
type RetryPolicy struct {
	// MaxAttempts — максимальное количество попыток (включая первую).
	MaxAttempts int `json:"max_attempts,omitempty"`

	// Backoff — стратегия задержки: "fixed" (по умолчанию), "exponential".
	Backoff string `json:"backoff,omitempty"`

	// InitialDelayMs — начальная задержка в миллисекундах.
	InitialDelayMs int `json:"initial_delay_ms,omitempty"`

	// MaxDelayMs — максимальная задержка в миллисекундах.
	MaxDelayMs int `json:"max_delay_ms,omitempty"`
}

// ParseWorkflowIR парсит WorkflowIR из JSON.
func ParseWorkflowIR(data []byte) (*WorkflowIR, error) {
	var ir WorkflowIR
	if err := json.Unmarshal(data, &ir); err != nil {
		return nil, err
	}
	return &ir, nil
}

// FindNode возвращает определение узла по ID или nil.
func (ir *WorkflowIR) FindNode(id string) *NodeDef {
	for i := range ir.Nodes {
		if ir.Nodes[i].ID == id {
			return &ir.Nodes[i]
		}
	}
	return nil
}

// NodeTypes возвращает множество типов узлов, встречающихся в IR.
func (ir *WorkflowIR) NodeTypes() []string {
	seen := make(map[string]bool)
	types := make([]string, 0, len(ir.Nodes))
	for i := range ir.Nodes {
		t := ir.Nodes[i].Type
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	return types
}
