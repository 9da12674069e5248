package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shaiso/Loom/internal/domain"
	"github.com/shaiso/Loom/internal/nodes"
)

// Типы составных узлов, обрабатываемых самим движком.
// Остальные типы разрешаются через реестр фабрик.
const (
	// NodeTypeWorkflow — вложенный workflow.
	NodeTypeWorkflow = "workflow"

	// NodeTypeParallel — параллельная группа узлов.
	NodeTypeParallel = "parallel"
)

// DefaultMaxDepth — предел глубины вложенности workflow по умолчанию.
const DefaultMaxDepth = 10

// Ключи параметров составных узлов.
const (
	paramWorkflowRef    = "workflow_ref"
	paramWorkflowIR     = "workflow_ir"
	paramParamMapping   = "param_mapping"
	paramOutputMapping  = "output_mapping"
	paramStorageMode    = "storage_mode"
	paramErrorAction    = "error_action"
	paramScopePrefix    = "scope_prefix"
	paramGroupNodes     = "nodes"
	paramMaxConcurrency = "max_concurrency"
	paramGroupPolicy    = "policy"
)

// Loader загружает IR вложенного workflow по ссылке workflow_ref.
// Реализации: файловый каталог и PostgreSQL-хранилище.
type Loader interface {
	Load(ctx context.Context, ref string) (*domain.WorkflowIR, error)
}

// CompilationContext — состояние одной рекурсивной компиляции.
//
// Стек хранит идентификаторы workflow, находящихся в процессе
// компиляции, и живёт на протяжении всей рекурсии: по нему
// обнаруживаются циклы ссылок и превышение глубины вложенности.
type CompilationContext struct {
	stack    []string
	maxDepth int
}

// NewCompilationContext создаёт контекст компиляции.
// maxDepth меньше либо равный нулю заменяется на DefaultMaxDepth.
func NewCompilationContext(maxDepth int) *CompilationContext {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &CompilationContext{maxDepth: maxDepth}
}

// Push добавляет workflow в стек компиляции.
//
// Если идентификатор уже в стеке — цикл ссылок: возвращается
// CircularReferenceError с полным путём цикла. Если глубина превысила
// предел — MaxNestingDepthError.
func (cc *CompilationContext) Push(id string) error {
	for _, existing := range cc.stack {
		if existing == id {
			cycle := make([]string, 0, len(cc.stack)+1)
			cycle = append(cycle, cc.stack...)
			cycle = append(cycle, id)
			return &CircularReferenceError{CyclePath: cycle}
		}
	}
	if len(cc.stack)+1 > cc.maxDepth {
		return &MaxNestingDepthError{Depth: len(cc.stack) + 1, Limit: cc.maxDepth}
	}
	cc.stack = append(cc.stack, id)
	return nil
}

// Pop снимает верхний workflow со стека.
func (cc *CompilationContext) Pop() {
	if len(cc.stack) > 0 {
		cc.stack = cc.stack[:len(cc.stack)-1]
	}
}

// Depth возвращает текущую глубину вложенности.
func (cc *CompilationContext) Depth() int {
	return len(cc.stack)
}

// Current возвращает идентификатор workflow на вершине стека
// (пустая строка для пустого стека).
func (cc *CompilationContext) Current() string {
	if len(cc.stack) == 0 {
		return ""
	}
	return cc.stack[len(cc.stack)-1]
}

// transitionKey — ключ таблицы переходов: пара (узел, action).
type transitionKey struct {
	From   string
	Action string
}

// Compiled — скомпилированный workflow, готовый к исполнению.
//
// Узлы обёрнуты полной цепочкой декораторов, переходы сведены
// в таблицу (узел, action) -> следующий узел. Компиляция
// детерминирована: один IR всегда даёт одинаковую структуру.
type Compiled struct {
	// IR — исходное промежуточное представление.
	IR *domain.WorkflowIR

	// InitialParams — входные параметры run после применения defaults.
	// Для вложенных workflow заполняется в момент выполнения.
	InitialParams map[string]any

	nodes       map[string]Executable
	transitions map[transitionKey]string
	retries     map[string]*domain.RetryPolicy
}

// Node возвращает исполняемый узел по идентификатору.
func (c *Compiled) Node(id string) (Executable, bool) {
	exec, ok := c.nodes[id]
	return exec, ok
}

// Transition возвращает следующий узел для пары (узел, action).
func (c *Compiled) Transition(from, action string) (string, bool) {
	next, ok := c.transitions[transitionKey{From: from, Action: action}]
	return next, ok
}

// CompileOptions — параметры компиляции workflow.
type CompileOptions struct {
	// Registry — реестр фабрик узлов. Nil означает DefaultRegistry.
	Registry *nodes.Registry

	// Loader — загрузчик вложенных workflow по workflow_ref.
	// Без него компилируются только инлайновые workflow_ir.
	Loader Loader

	// ValidateTemplates включает статическую проверку шаблонных
	// ссылок против деклараций интерфейсов узлов.
	ValidateTemplates bool

	// MaxDepth — предел глубины вложенности workflow.
	// Ноль означает DefaultMaxDepth.
	MaxDepth int
}

// Compile компилирует IR корневого workflow в исполняемую структуру.
//
// Проверяет структуру IR, применяет defaults входов и проверяет
// обязательные входы против initialParams, собирает таблицу переходов
// и инстанцирует узлы через реестр. Вложенные workflow компилируются
// рекурсивно в общем CompilationContext.
func Compile(ctx context.Context, ir *domain.WorkflowIR, initialParams map[string]any, opts CompileOptions) (*Compiled, error) {
	cc := NewCompilationContext(opts.MaxDepth)
	if err := cc.Push(workflowID(ir)); err != nil {
		return nil, err
	}
	defer cc.Pop()

	compiled, err := compile(ctx, ir, opts, cc)
	if err != nil {
		return nil, err
	}

	params, err := applyInputDefaults(ir, initialParams)
	if err != nil {
		return nil, err
	}
	compiled.InitialParams = params
	return compiled, nil
}

// ValidateWorkflow прогоняет полный цикл компиляции IR без проверки
// входных параметров run: структура, шаблоны, вложенные workflow,
// циклы и глубина. Используется для статической проверки определений.
func ValidateWorkflow(ctx context.Context, ir *domain.WorkflowIR, opts CompileOptions) error {
	cc := NewCompilationContext(opts.MaxDepth)
	if err := cc.Push(workflowID(ir)); err != nil {
		return err
	}
	defer cc.Pop()

	_, err := compile(ctx, ir, opts, cc)
	return err
}

// compile — общая часть компиляции корневого и вложенного workflow.
// Входные параметры не проверяются: у вложенного workflow они
// известны только в момент выполнения.
func compile(ctx context.Context, ir *domain.WorkflowIR, opts CompileOptions, cc *CompilationContext) (*Compiled, error) {
	if err := ValidateIR(ir); err != nil {
		return nil, err
	}
	registry := opts.Registry
	if registry == nil {
		registry = nodes.DefaultRegistry()
	}
	if opts.ValidateTemplates {
		if err := ValidateTemplates(ir, registry); err != nil {
			return nil, err
		}
	}

	c := &Compiled{
		IR:          ir,
		nodes:       make(map[string]Executable, len(ir.Nodes)),
		transitions: make(map[transitionKey]string, len(ir.Edges)),
		retries:     make(map[string]*domain.RetryPolicy),
	}

	for i := range ir.Nodes {
		def := &ir.Nodes[i]
		exec, err := buildExecutable(ctx, def, registry, opts, cc)
		if err != nil {
			return nil, err
		}
		c.nodes[def.ID] = exec
		if def.Retry != nil {
			c.retries[def.ID] = def.Retry
		}
	}

	for _, edge := range ir.Edges {
		action := edge.Action
		if action == "" {
			action = nodes.ActionDefault
		}
		key := transitionKey{From: edge.From, Action: action}
		if _, ok := c.transitions[key]; ok {
			return nil, NewValidationError(edge.From, "edges",
				fmt.Sprintf("переход (%s, %s) определён дважды", edge.From, action),
				ErrDuplicateEdge)
		}
		c.transitions[key] = edge.To
	}
	return c, nil
}

// buildExecutable инстанцирует один узел IR.
// Составные типы (workflow, parallel) собирает сам движок,
// остальные — через фабрику из реестра.
func buildExecutable(ctx context.Context, def *domain.NodeDef, registry *nodes.Registry, opts CompileOptions, cc *CompilationContext) (Executable, error) {
	switch def.Type {
	case NodeTypeWorkflow:
		return compileWorkflowNode(ctx, def, opts, cc)
	case NodeTypeParallel:
		return compileGroupNode(ctx, def, registry, opts, cc)
	default:
		factory, err := registry.Get(def.Type)
		if err != nil {
			return nil, NewValidationError(def.ID, "type", "тип узла не зарегистрирован", err)
		}
		node, err := factory.New(def)
		if err != nil {
			return nil, NewValidationError(def.ID, "params", "создание узла", err)
		}
		return WrapNode(node, def), nil
	}
}

// compileWorkflowNode компилирует узел вложенного workflow.
//
// IR ребёнка берётся из инлайнового workflow_ir либо загружается
// по workflow_ref. Компиляция ребёнка идёт в том же
// CompilationContext: циклы ссылок и глубина отслеживаются по всей
// цепочке вложенности.
func compileWorkflowNode(ctx context.Context, def *domain.NodeDef, opts CompileOptions, cc *CompilationContext) (Executable, error) {
	childIR, ref, err := loadChildIR(ctx, def, opts)
	if err != nil {
		return nil, err
	}

	storageMode := nodes.GetParamString(def.Params, paramStorageMode)
	if storageMode == "" {
		storageMode = StorageModeMapped
	}
	switch storageMode {
	case StorageModeMapped, StorageModeIsolated, StorageModeScoped, StorageModeShared:
	default:
		return nil, NewValidationError(def.ID, paramStorageMode,
			fmt.Sprintf("режим %q не поддерживается", storageMode), ErrInvalidStorageMode)
	}

	errorAction := nodes.GetParamString(def.Params, paramErrorAction)
	if errorAction == "" {
		errorAction = nodes.ActionError
	}

	childID := childWorkflowID(childIR, ref, cc.Current(), def.ID)
	if err := cc.Push(childID); err != nil {
		return nil, err
	}
	defer cc.Pop()

	child, err := compile(ctx, childIR, opts, cc)
	if err != nil {
		return nil, fmt.Errorf("вложенный workflow %s (узел %s): %w", childID, def.ID, err)
	}

	exec := &workflowExec{
		id:            def.ID,
		childName:     childID,
		child:         child,
		paramMapping:  nodes.GetParamMap(def.Params, paramParamMapping),
		outputMapping: nodes.GetParamMapString(def.Params, paramOutputMapping),
		storageMode:   storageMode,
		errorAction:   errorAction,
		scopePrefix:   nodes.GetParamString(def.Params, paramScopePrefix),
	}
	return wrapComposite(exec), nil
}

// loadChildIR извлекает IR ребёнка из параметров узла workflow.
// Для ребёнка, загруженного по ссылке, вторым значением возвращается
// workflow_ref; для инлайнового — пустая строка.
func loadChildIR(ctx context.Context, def *domain.NodeDef, opts CompileOptions) (*domain.WorkflowIR, string, error) {
	if raw, ok := def.Params[paramWorkflowIR]; ok && raw != nil {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, "", NewValidationError(def.ID, paramWorkflowIR, "сериализация инлайнового IR", err)
		}
		ir, err := domain.ParseWorkflowIR(data)
		if err != nil {
			return nil, "", NewValidationError(def.ID, paramWorkflowIR, "разбор инлайнового IR", err)
		}
		return ir, "", nil
	}

	ref := nodes.GetParamString(def.Params, paramWorkflowRef)
	if ref == "" {
		return nil, "", NewValidationError(def.ID, paramWorkflowRef, "узел workflow без ссылки на ребёнка", ErrMissingWorkflowRef)
	}
	if opts.Loader == nil {
		return nil, "", NewValidationError(def.ID, paramWorkflowRef, fmt.Sprintf("ссылка %q", ref), ErrNoLoader)
	}
	ir, err := opts.Loader.Load(ctx, ref)
	if err != nil {
		return nil, "", NewValidationError(def.ID, paramWorkflowRef, fmt.Sprintf("загрузка %q", ref), err)
	}
	return ir, ref, nil
}

// compileGroupNode компилирует узел параллельной группы.
// Дети описываются инлайново в параметре nodes и могут быть любого
// типа, включая вложенные workflow и группы.
func compileGroupNode(ctx context.Context, def *domain.NodeDef, registry *nodes.Registry, opts CompileOptions, cc *CompilationContext) (Executable, error) {
	children, err := parseGroupChildren(def)
	if err != nil {
		return nil, err
	}

	policy, err := ParseGroupPolicy(nodes.GetParamString(def.Params, paramGroupPolicy))
	if err != nil {
		return nil, NewValidationError(def.ID, paramGroupPolicy, err.Error(), nil)
	}

	execs := make([]Executable, 0, len(children))
	for i := range children {
		exec, err := buildExecutable(ctx, &children[i], registry, opts, cc)
		if err != nil {
			return nil, fmt.Errorf("группа %s: %w", def.ID, err)
		}
		execs = append(execs, exec)
	}

	return wrapComposite(&groupExec{
		id:             def.ID,
		children:       execs,
		maxConcurrency: nodes.GetParamInt(def.Params, paramMaxConcurrency),
		policy:         policy,
	}), nil
}

// parseGroupChildren разбирает декларации детей параллельной группы
// из параметра nodes через JSON round-trip.
func parseGroupChildren(def *domain.NodeDef) ([]domain.NodeDef, error) {
	raw, ok := def.Params[paramGroupNodes]
	if !ok || raw == nil {
		return nil, NewValidationError(def.ID, paramGroupNodes, "группа без детей", ErrEmptyGroup)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, NewValidationError(def.ID, paramGroupNodes, "сериализация деклараций детей", err)
	}
	var children []domain.NodeDef
	if err := json.Unmarshal(data, &children); err != nil {
		return nil, NewValidationError(def.ID, paramGroupNodes, "разбор деклараций детей", err)
	}
	if len(children) == 0 {
		return nil, NewValidationError(def.ID, paramGroupNodes, "группа без детей", ErrEmptyGroup)
	}
	for i := range children {
		if children[i].ID == "" {
			return nil, NewValidationError(def.ID, paramGroupNodes,
				fmt.Sprintf("ребёнок %d без идентификатора", i), ErrEmptyNodeID)
		}
	}
	return children, nil
}

// applyInputDefaults применяет defaults входов IR к параметрам run
// и проверяет наличие обязательных входов.
func applyInputDefaults(ir *domain.WorkflowIR, params map[string]any) (map[string]any, error) {
	merged := make(map[string]any, len(params)+len(ir.Inputs))
	for k, v := range params {
		merged[k] = v
	}
	for name, input := range ir.Inputs {
		if _, ok := merged[name]; ok {
			continue
		}
		if input.Default != nil {
			merged[name] = input.Default
			continue
		}
		if input.Required {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, name)
		}
	}
	return merged, nil
}

// workflowID возвращает идентификатор корневого workflow
// для стека компиляции.
func workflowID(ir *domain.WorkflowIR) string {
	if ir.Name != "" {
		return ir.Name
	}
	return "workflow@" + ir.StartNode
}

// childWorkflowID возвращает идентификатор вложенного workflow
// для стека компиляции.
//
// Безымянный IR получает идентичность от workflow_ref, а инлайновый —
// от родителя и узла: два разных безымянных ребёнка никогда не
// совпадают в стеке и не дают ложного цикла.
func childWorkflowID(ir *domain.WorkflowIR, ref, parentID, nodeID string) string {
	if ir.Name != "" {
		return ir.Name
	}
	if ref != "" {
		return ref
	}
	return parentID + "/" + nodeID
}
