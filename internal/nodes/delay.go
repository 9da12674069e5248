package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Loom/internal/domain"
)

const (
	// NodeTypeDelay — тип узла задержки.
	NodeTypeDelay = "delay"

	// Ключи параметров delay.
	paramDurationSec = "duration_sec"
	paramDurationMs  = "duration_ms"
)

// DelayFactory — фабрика узлов delay.
type DelayFactory struct{}

// Type возвращает тип узла.
func (f *DelayFactory) Type() string { return NodeTypeDelay }

// Descriptor возвращает описание интерфейса delay.
func (f *DelayFactory) Descriptor() *domain.NodeDescriptor {
	return &domain.NodeDescriptor{
		Type: NodeTypeDelay,
		Interface: domain.InterfaceDef{
			Description: "Приостанавливает выполнение на указанное время",
			Params: []domain.ParamDef{
				{Key: "duration_sec", Type: "number", Description: "Задержка в секундах"},
				{Key: "duration_ms", Type: "number", Description: "Задержка в миллисекундах"},
			},
			Outputs: []domain.PortDef{
				{Key: "duration_ms", Type: "number", Description: "Фактическая задержка"},
			},
			Actions: []string{ActionDefault},
		},
	}
}

// New создаёт экземпляр узла delay.
func (f *DelayFactory) New(def *domain.NodeDef) (Node, error) {
	return &DelayNode{id: def.ID}, nil
}

// DelayNode — узел задержки.
//
// Поддерживает отмену через context cancellation.
type DelayNode struct {
	id string
}

// ID возвращает идентификатор узла.
func (n *DelayNode) ID() string { return n.id }

// Type возвращает тип узла.
func (n *DelayNode) Type() string { return NodeTypeDelay }

// Run выполняет задержку.
func (n *DelayNode) Run(ctx context.Context, req *Request) (*Result, error) {
	duration, err := n.parseDuration(req.Params)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrNodeCancelled, ctx.Err())
	case <-timer.C:
		return NewResult(map[string]any{
			"duration_ms": duration.Milliseconds(),
		}), nil
	}
}

// parseDuration извлекает длительность из параметров.
func (n *DelayNode) parseDuration(params map[string]any) (time.Duration, error) {
	if sec := GetParamInt(params, paramDurationSec); sec > 0 {
		return time.Duration(sec) * time.Second, nil
	}

	if ms := GetParamInt(params, paramDurationMs); ms > 0 {
		return time.Duration(ms) * time.Millisecond, nil
	}

	return 0, fmt.Errorf("%w: %s: duration_sec or duration_ms required",
		ErrInvalidParams, NodeTypeDelay)
}
