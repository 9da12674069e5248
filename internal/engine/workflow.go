package engine

import (
	"context"
	"fmt"

	"github.com/shaiso/Loom/internal/nodes"
	"github.com/shaiso/Loom/internal/telemetry"
)

// workflowExec — составной узел вложенного workflow.
//
// Ребёнок скомпилирован на этапе компиляции родителя; в момент
// выполнения узел разрешает param_mapping против родительского
// контекста, строит дочерний Store согласно storage_mode, прогоняет
// дочерний граф и переносит выходы по output_mapping.
type workflowExec struct {
	id            string
	childName     string
	child         *Compiled
	paramMapping  map[string]any
	outputMapping map[string]string
	storageMode   string
	errorAction   string
	scopePrefix   string
}

func (w *workflowExec) ID() string   { return w.id }
func (w *workflowExec) Type() string { return NodeTypeWorkflow }

func (w *workflowExec) Exec(ctx context.Context, ec *ExecContext) (*nodes.Result, error) {
	mapped, err := ResolveParams(w.paramMapping, ec)
	if err != nil {
		return nil, fmt.Errorf("узел %s: разрешение param_mapping: %w", w.id, err)
	}

	childStore, err := ec.Store.ChildStore(w.storageMode, mapped, w.scopePrefix)
	if err != nil {
		return nil, fmt.Errorf("узел %s: %w", w.id, err)
	}

	childParams, err := applyInputDefaults(w.child.IR, mapped)
	if err != nil {
		return nil, fmt.Errorf("узел %s: входы ребёнка %s: %w", w.id, w.childName, err)
	}

	// ec.WorkflowPath уже заканчивается идентификатором этого узла.
	path := make([]string, 0, len(ec.WorkflowPath)+1)
	path = append(path, ec.WorkflowPath...)
	path = append(path, w.childName)

	action, err := runGraph(ctx, w.child, childStore, childParams, path, ec.RunID, ec.Sink)
	if err != nil {
		return nil, err
	}

	outputs := w.mapOutputs(childStore, childParams)

	// Терминальный error action ребёнка транслируется в настроенный
	// error_action родителя, остальные actions проходят как есть.
	if action == nodes.ActionError {
		telemetry.FromContext(ctx).Warn("вложенный workflow завершился error action",
			"workflow_path", path, "error_action", w.errorAction)
		action = w.errorAction
	}
	return &nodes.Result{Action: action, Outputs: outputs}, nil
}

// mapOutputs переносит значения из дочернего Store в выходы узла
// согласно output_mapping {ключ ребёнка: ключ родителя}.
//
// Отсутствующий в дочернем Store ключ молча пропускается. В режиме
// shared родитель и ребёнок делят один Store, копирование не нужно.
func (w *workflowExec) mapOutputs(childStore *Store, childParams map[string]any) map[string]any {
	outputs := make(map[string]any, len(w.outputMapping))
	if w.storageMode == StorageModeShared {
		return outputs
	}
	childEC := NewExecContext(childStore, childParams, nil)
	for childKey, parentKey := range w.outputMapping {
		v, err := resolveExpr(childKey, childEC)
		if err != nil {
			continue
		}
		outputs[parentKey] = v
	}
	return outputs
}
