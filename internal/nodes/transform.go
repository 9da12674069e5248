package nodes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shaiso/Loom/internal/domain"
)

const (
	// NodeTypeTransform — тип узла трансформации.
	NodeTypeTransform = "transform"

	// Ключи параметров transform.
	paramMappings  = "mappings"
	paramParseJSON = "parse_json"
)

// TransformFactory — фабрика узлов transform.
type TransformFactory struct{}

// Type возвращает тип узла.
func (f *TransformFactory) Type() string { return NodeTypeTransform }

// Descriptor возвращает описание интерфейса transform.
func (f *TransformFactory) Descriptor() *domain.NodeDescriptor {
	return &domain.NodeDescriptor{
		Type: NodeTypeTransform,
		Interface: domain.InterfaceDef{
			Description: "Собирает новые значения из данных предыдущих узлов",
			Params: []domain.ParamDef{
				{Key: "mappings", Type: "dict", Description: "Имя output → выражение", Required: true},
				{Key: "parse_json", Type: "boolean", Description: "Парсить строковые результаты как JSON"},
			},
			Outputs: []domain.PortDef{
				{Key: "result", Type: "dict", Description: "Результаты всех mappings"},
			},
			Actions: []string{ActionDefault},
		},
	}
}

// New создаёт экземпляр узла transform.
func (f *TransformFactory) New(def *domain.NodeDef) (Node, error) {
	return &TransformNode{id: def.ID}, nil
}

// TransformNode — узел трансформации данных.
//
// Шаблонные выражения в mappings разрешены обёрткой до вызова Run,
// поэтому узел получает готовые значения — это "pass-through с
// подстановкой" для переноса данных между узлами. При parse_json=true
// строковые значения дополнительно парсятся как JSON.
type TransformNode struct {
	id string
}

// ID возвращает идентификатор узла.
func (n *TransformNode) ID() string { return n.id }

// Type возвращает тип узла.
func (n *TransformNode) Type() string { return NodeTypeTransform }

// Run собирает outputs из mappings.
func (n *TransformNode) Run(ctx context.Context, req *Request) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrNodeCancelled, ctx.Err())
	default:
	}

	mappings := GetParamMap(req.Params, paramMappings)
	if mappings == nil {
		return nil, fmt.Errorf("%w: %s: mappings is required", ErrInvalidParams, NodeTypeTransform)
	}

	parseJSON := GetParamBool(req.Params, paramParseJSON, false)

	result := make(map[string]any, len(mappings))
	for key, val := range mappings {
		if parseJSON {
			if s, ok := val.(string); ok {
				val = parseValue(s)
			}
		}
		result[key] = val
	}

	return NewResult(map[string]any{
		"result": result,
	}), nil
}

// parseValue пытается распарсить строку как JSON.
// Если не получается — возвращает строку как есть.
func parseValue(value string) any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(value), &obj); err == nil {
		return obj
	}

	var arr []any
	if err := json.Unmarshal([]byte(value), &arr); err == nil {
		return arr
	}

	var num json.Number
	if err := json.Unmarshal([]byte(value), &num); err == nil {
		if i, err := num.Int64(); err == nil {
			return i
		}
		if f, err := num.Float64(); err == nil {
			return f
		}
	}

	if value == "true" {
		return true
	}
	if value == "false" {
		return false
	}

	return value
}
