package nodes

import (
	"context"
	"fmt"

	"github.com/shaiso/Loom/internal/domain"
)

const (
	// NodeTypeSet — тип узла set.
	NodeTypeSet = "set"

	// Ключ параметров set.
	paramValues = "values"
)

// SetFactory — фабрика узлов set.
type SetFactory struct{}

// Type возвращает тип узла.
func (f *SetFactory) Type() string { return NodeTypeSet }

// Descriptor возвращает описание интерфейса set.
func (f *SetFactory) Descriptor() *domain.NodeDescriptor {
	return &domain.NodeDescriptor{
		Type: NodeTypeSet,
		Interface: domain.InterfaceDef{
			Description: "Записывает заданные значения в scope выполнения",
			Params: []domain.ParamDef{
				{Key: "values", Type: "dict", Description: "Значения для записи", Required: true},
			},
			Outputs: []domain.PortDef{
				{Key: "values", Type: "dict", Description: "Записанные значения"},
			},
			Actions: []string{ActionDefault},
		},
	}
}

// New создаёт экземпляр узла set.
func (f *SetFactory) New(def *domain.NodeDef) (Node, error) {
	return &SetNode{id: def.ID}, nil
}

// SetNode — узел записи статических или вычисленных значений.
//
// Шаблонные выражения в values уже разрешены обёрткой,
// поэтому узел просто возвращает их как outputs.
type SetNode struct {
	id string
}

// ID возвращает идентификатор узла.
func (n *SetNode) ID() string { return n.id }

// Type возвращает тип узла.
func (n *SetNode) Type() string { return NodeTypeSet }

// Run возвращает values как outputs узла.
func (n *SetNode) Run(ctx context.Context, req *Request) (*Result, error) {
	values := GetParamMap(req.Params, paramValues)
	if values == nil {
		return nil, fmt.Errorf("%w: %s: values is required", ErrInvalidParams, NodeTypeSet)
	}

	return NewResult(map[string]any{
		"values": values,
	}), nil
}
