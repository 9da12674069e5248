package engine

import (
	"fmt"
	"strings"

	"github.com/shaiso/Loom/internal/domain"
	"github.com/shaiso/Loom/internal/nodes"
)

// ValidateIR выполняет структурную валидацию WorkflowIR.
//
// Проверяет:
//   - Наличие узлов
//   - Непустые и уникальные ID узлов
//   - Существование start_node
//   - Корректность ссылок в edges
//
// Дубликаты (from, action) обнаруживаются при построении таблицы
// переходов в компиляторе.
func ValidateIR(ir *domain.WorkflowIR) error {
	if ir == nil || len(ir.Nodes) == 0 {
		return ErrEmptyNodes
	}

	nodeIDs := make(map[string]bool, len(ir.Nodes))
	for i := range ir.Nodes {
		node := &ir.Nodes[i]

		if node.ID == "" {
			return NewValidationError("", "id", "node has empty ID", ErrEmptyNodeID)
		}
		if nodeIDs[node.ID] {
			return NewValidationError(node.ID, "id",
				fmt.Sprintf("duplicate node ID: %s", node.ID), ErrDuplicateNodeID)
		}
		nodeIDs[node.ID] = true
	}

	if ir.StartNode == "" {
		return NewValidationError("", "start_node", "start_node is required", ErrUnknownStartNode)
	}
	if !nodeIDs[ir.StartNode] {
		return NewValidationError("", "start_node",
			fmt.Sprintf("start node not found: %s", ir.StartNode), ErrUnknownStartNode)
	}

	for i := range ir.Edges {
		edge := &ir.Edges[i]
		if !nodeIDs[edge.From] {
			return NewValidationError(edge.From, "edges",
				fmt.Sprintf("edge from unknown node: %s", edge.From), ErrUnknownEdgeNode)
		}
		if !nodeIDs[edge.To] {
			return NewValidationError(edge.From, "edges",
				fmt.Sprintf("edge to unknown node: %s", edge.To), ErrUnknownEdgeNode)
		}
	}

	return nil
}

// ValidateTemplates статически проверяет каждую ссылку ${...}
// в параметрах узлов против объявленных inputs workflow и
// интерфейсов узлов из реестра.
//
// Возвращает *TemplateValidationError со списком всех проблем
// или nil, если проблем нет.
//
// Правила разрешения base:
//   - base объявлен во входах workflow — валидно; вложенные пути под
//     inputs статически не проверяются (значения неизвестны до запуска);
//   - base совпадает с ID узла — первый сегмент пути должен быть
//     объявленным output этого узла, дальше путь сверяется с structure;
//   - иначе base ищется как имя output среди всех узлов workflow;
//   - ничего не найдено — ошибка валидации.
func ValidateTemplates(ir *domain.WorkflowIR, registry *nodes.Registry) error {
	allNodes, err := collectAllNodeDefs(ir)
	if err != nil {
		return err
	}

	interfaces, err := registryInterfaces(allNodes, registry)
	if err != nil {
		return err
	}

	v := &templateValidator{
		ir:         ir,
		nodes:      allNodes,
		interfaces: interfaces,
	}

	for i := range allNodes {
		node := &allNodes[i]
		for _, expr := range collectNodeRefs(node) {
			v.checkRef(node.ID, expr)
		}
	}

	// Декларации outputs workflow тоже ссылаются на данные узлов
	for name, out := range ir.Outputs {
		for _, expr := range CollectRefs(out.Source) {
			v.checkRef("outputs."+name, expr)
		}
	}

	if len(v.problems) > 0 {
		return &TemplateValidationError{Problems: v.problems}
	}
	return nil
}

// templateValidator — состояние одного прохода валидации.
type templateValidator struct {
	ir         *domain.WorkflowIR
	nodes      []domain.NodeDef
	interfaces map[string]*domain.NodeDescriptor
	problems   []string
}

// checkRef проверяет одно выражение base.seg.seg из параметров узла nodeID.
func (v *templateValidator) checkRef(nodeID, expr string) {
	segments := strings.Split(expr, ".")
	base := segments[0]

	// Входы workflow валидны без проверки вложенных путей
	if _, ok := v.ir.Inputs[base]; ok {
		return
	}

	// base — ID узла: путь идёт через его объявленные outputs
	if target := v.findNode(base); target != nil {
		v.checkNodeScopedRef(nodeID, expr, target, segments[1:])
		return
	}

	// base — имя output какого-то узла
	v.checkOutputKeyRef(nodeID, expr, base, segments[1:])
}

// checkNodeScopedRef проверяет ссылку вида ${nodeID.output.child}.
func (v *templateValidator) checkNodeScopedRef(nodeID, expr string, target *domain.NodeDef, segments []string) {
	// Outputs вложенных workflow и групп определяются их маппингами,
	// статически их форма неизвестна
	if target.Type == NodeTypeWorkflow || target.Type == NodeTypeParallel {
		return
	}

	if len(segments) == 0 {
		return
	}

	desc, ok := v.interfaces[target.Type]
	if !ok {
		return
	}

	out := desc.Interface.FindOutput(segments[0])
	if out == nil {
		v.fail(nodeID, expr, segments[0],
			fmt.Sprintf("node %q declares no output %q", target.ID, segments[0]))
		return
	}

	if seg, ok := checkStructurePath(out, segments[1:]); !ok {
		v.fail(nodeID, expr, seg, fmt.Sprintf("output %q of node %q has no child %q",
			segments[0], target.ID, seg))
	}
}

// checkOutputKeyRef проверяет ссылку вида ${outputKey.child}.
func (v *templateValidator) checkOutputKeyRef(nodeID, expr, base string, segments []string) {
	var firstFailSeg string
	var firstFailOwner string
	found := false

	for i := range v.nodes {
		def := &v.nodes[i]
		desc, ok := v.interfaces[def.Type]
		if !ok {
			continue
		}
		out := desc.Interface.FindOutput(base)
		if out == nil {
			continue
		}
		found = true

		seg, ok := checkStructurePath(out, segments)
		if ok {
			return
		}
		if firstFailSeg == "" {
			firstFailSeg = seg
			firstFailOwner = def.ID
		}
	}

	if !found {
		v.fail(nodeID, expr, base,
			fmt.Sprintf("%q is not a workflow input and no node declares an output %q", base, base))
		return
	}

	v.fail(nodeID, expr, firstFailSeg, fmt.Sprintf("output %q of node %q has no child %q",
		base, firstFailOwner, firstFailSeg))
}

// fail добавляет проблему, называя выражение, узел и сегмент.
func (v *templateValidator) fail(nodeID, expr, segment, detail string) {
	v.problems = append(v.problems,
		fmt.Sprintf("node %q: ${%s}: unresolved segment %q: %s", nodeID, expr, segment, detail))
}

// findNode возвращает определение узла по ID среди всех узлов
// (включая дочерние узлы параллельных групп).
func (v *templateValidator) findNode(id string) *domain.NodeDef {
	for i := range v.nodes {
		if v.nodes[i].ID == id {
			return &v.nodes[i]
		}
	}
	return nil
}

// checkStructurePath сверяет оставшиеся сегменты пути с объявленной
// structure выхода. Возвращает ("", true) при успехе либо
// (неразрешённый сегмент, false).
//
// Порт с неизвестной формой (type "any" или dict без structure)
// статически не проверяется — как и вложенные пути под inputs.
func checkStructurePath(port *domain.PortDef, segments []string) (string, bool) {
	current := port

	for _, seg := range segments {
		if isOpaque(current) {
			return "", true
		}

		if !current.IsDict() {
			// Примитив, а сегменты ещё остались
			return seg, false
		}

		child := current.Child(seg)
		if child == nil {
			return seg, false
		}
		current = child
	}

	return "", true
}

// isOpaque возвращает true для портов, форма которых статически
// неизвестна (проверка пути невозможна и не требуется).
func isOpaque(port *domain.PortDef) bool {
	if port.Type == "any" {
		return true
	}
	return port.IsDict() && len(port.Structure) == 0
}

// collectNodeRefs собирает ${...} выражения из параметров узла.
//
// Для workflow-узлов исключаются workflow_ir (валидируется при
// компиляции дочернего IR), workflow_ref и output_mapping (его
// значения — ключи в store дочернего workflow, не родительском).
func collectNodeRefs(node *domain.NodeDef) []string {
	if node.Type != NodeTypeWorkflow {
		if node.Type == NodeTypeParallel {
			// Дочерние определения валидируются как отдельные узлы
			params := make(map[string]any, len(node.Params))
			for k, val := range node.Params {
				if k == paramGroupNodes {
					continue
				}
				params[k] = val
			}
			return CollectRefs(params)
		}
		return CollectRefs(node.Params)
	}

	params := make(map[string]any, len(node.Params))
	for k, val := range node.Params {
		switch k {
		case paramWorkflowIR, paramWorkflowRef, paramOutputMapping:
			continue
		}
		params[k] = val
	}
	return CollectRefs(params)
}

// collectAllNodeDefs возвращает все узлы IR, включая дочерние узлы
// параллельных групп.
func collectAllNodeDefs(ir *domain.WorkflowIR) ([]domain.NodeDef, error) {
	all := make([]domain.NodeDef, 0, len(ir.Nodes))
	for i := range ir.Nodes {
		node := ir.Nodes[i]
		all = append(all, node)

		if node.Type == NodeTypeParallel {
			children, err := parseGroupChildren(&node)
			if err != nil {
				return nil, err
			}
			all = append(all, children...)
		}
	}
	return all, nil
}

// registryInterfaces возвращает descriptors для всех типов узлов,
// кроме встроенных в engine (workflow, parallel).
func registryInterfaces(defs []domain.NodeDef, registry *nodes.Registry) (map[string]*domain.NodeDescriptor, error) {
	seen := make(map[string]bool)
	var types []string
	for i := range defs {
		t := defs[i].Type
		if t == NodeTypeWorkflow || t == NodeTypeParallel || seen[t] {
			continue
		}
		seen[t] = true
		types = append(types, t)
	}
	return registry.GetInterfaces(types)
}
