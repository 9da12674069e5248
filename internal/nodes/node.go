package nodes

import (
	"context"
	"errors"
)

// Ошибки узлов.
var (
	// ErrUnknownNodeType — тип узла не найден в реестре.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrInvalidParams — невалидные параметры узла.
	ErrInvalidParams = errors.New("invalid node params")

	// ErrNodeCancelled — выполнение узла отменено.
	ErrNodeCancelled = errors.New("node execution cancelled")
)

// Действия, которые узел может вернуть.
const (
	// ActionDefault — действие по умолчанию (успешное завершение).
	ActionDefault = "default"

	// ActionError — действие при логической ошибке.
	ActionError = "error"
)

// Node — интерфейс исполняемого узла workflow.
//
// Экземпляр Node создаётся фабрикой по определению узла из IR
// и выполняется движком через цепочку обёрток. Узел не имеет
// доступа к SharedStore: результаты он возвращает через Result,
// а запись в store (под namespace узла) — забота обёртки.
type Node interface {
	// ID возвращает идентификатор узла из IR.
	ID() string

	// Type возвращает тип узла.
	Type() string

	// Run выполняет узел и возвращает результат.
	// req.Params уже содержит разрешённые шаблонные выражения.
	// Узел должен проверять ctx.Done() в долгих операциях.
	Run(ctx context.Context, req *Request) (*Result, error)
}

// Request — входные данные для выполнения узла.
type Request struct {
	// NodeID — идентификатор узла.
	NodeID string

	// Params — параметры узла с уже разрешёнными ${...} выражениями.
	Params map[string]any
}

// Result — результат выполнения узла.
type Result struct {
	// Action — действие для выбора следующего перехода.
	// Пустое значение трактуется движком как ActionDefault.
	Action string

	// Outputs — выходные данные узла. Будут записаны в namespace
	// узла внутри SharedStore.
	Outputs map[string]any

	// Usage — данные о стоимости/потреблении (для узлов,
	// которые их сообщают). Может быть nil.
	Usage *Usage
}

// Usage — данные о потреблении ресурсов узлом.
type Usage struct {
	// PromptTokens — количество токенов запроса.
	PromptTokens int `json:"prompt_tokens,omitempty"`

	// CompletionTokens — количество токенов ответа.
	CompletionTokens int `json:"completion_tokens,omitempty"`

	// CostUSD — стоимость вызова в долларах.
	CostUSD float64 `json:"cost_usd,omitempty"`
}

// NewResult создаёт Result с действием по умолчанию.
func NewResult(outputs map[string]any) *Result {
	if outputs == nil {
		outputs = make(map[string]any)
	}
	return &Result{
		Action:  ActionDefault,
		Outputs: outputs,
	}
}

// EmptyResult возвращает пустой Result с действием по умолчанию.
func EmptyResult() *Result {
	return NewResult(nil)
}

// GetParamString извлекает строковое значение из параметров.
func GetParamString(params map[string]any, key string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetParamInt извлекает числовое значение из параметров.
func GetParamInt(params map[string]any, key string) int {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// GetParamBool извлекает булево значение из параметров.
func GetParamBool(params map[string]any, key string, defaultVal bool) bool {
	if v, ok := params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// GetParamMap извлекает map из параметров.
func GetParamMap(params map[string]any, key string) map[string]any {
	if v, ok := params[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}

// GetParamMapString извлекает map[string]string из параметров.
func GetParamMapString(params map[string]any, key string) map[string]string {
	if v, ok := params[key]; ok {
		switch m := v.(type) {
		case map[string]string:
			return m
		case map[string]any:
			result := make(map[string]string)
			for k, val := range m {
				if s, ok := val.(string); ok {
					result[k] = s
				}
			}
			return result
		}
	}
	return nil
}
