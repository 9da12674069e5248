package nodes

import (
	"context"
	"log/slog"

	"github.com/shaiso/Loom/internal/domain"
)

const (
	// NodeTypeEcho — тип узла echo.
	NodeTypeEcho = "echo"

	// Ключи параметров echo.
	paramMsg = "msg"
)

// EchoFactory — фабрика узлов echo.
type EchoFactory struct{}

// Type возвращает тип узла.
func (f *EchoFactory) Type() string { return NodeTypeEcho }

// Descriptor возвращает описание интерфейса echo.
func (f *EchoFactory) Descriptor() *domain.NodeDescriptor {
	return &domain.NodeDescriptor{
		Type: NodeTypeEcho,
		Interface: domain.InterfaceDef{
			Description: "Логирует сообщение и возвращает его как output",
			Params: []domain.ParamDef{
				{Key: "msg", Type: "string", Description: "Сообщение", Required: true},
			},
			Outputs: []domain.PortDef{
				{Key: "msg", Type: "string", Description: "Переданное сообщение"},
			},
			Actions: []string{ActionDefault},
		},
	}
}

// New создаёт экземпляр узла echo.
func (f *EchoFactory) New(def *domain.NodeDef) (Node, error) {
	return &EchoNode{id: def.ID}, nil
}

// EchoNode — простейший узел: пишет сообщение в лог и в outputs.
//
// Используется для отладки workflow и как минимальный пример узла.
type EchoNode struct {
	id string
}

// ID возвращает идентификатор узла.
func (n *EchoNode) ID() string { return n.id }

// Type возвращает тип узла.
func (n *EchoNode) Type() string { return NodeTypeEcho }

// Run логирует сообщение и возвращает его.
func (n *EchoNode) Run(ctx context.Context, req *Request) (*Result, error) {
	msg := GetParamString(req.Params, paramMsg)

	slog.InfoContext(ctx, "echo", "node_id", req.NodeID, "msg", msg)

	return NewResult(map[string]any{
		"msg": msg,
	}), nil
}
