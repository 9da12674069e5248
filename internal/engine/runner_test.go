package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shaiso/Loom/internal/domain"
	"github.com/shaiso/Loom/internal/events"
	"github.com/shaiso/Loom/internal/nodes"
)

func mustCompile(t *testing.T, ir *domain.WorkflowIR, params map[string]any, opts CompileOptions) *Compiled {
	t.Helper()
	if opts.Registry == nil {
		opts.Registry = stubRegistry()
	}
	c, err := Compile(context.Background(), ir, params, opts)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return c
}

func TestEngine_RunSimple(t *testing.T) {
	ir := &domain.WorkflowIR{
		Name: "simple",
		Nodes: []domain.NodeDef{
			stubDef("a", map[string]any{"msg": "hi"}),
		},
		StartNode: "a",
	}

	e := NewEngine(mustCompile(t, ir, nil, CompileOptions{}), EngineOptions{})
	if e.State() != StateReady {
		t.Errorf("initial state: %v", e.State())
	}

	outcome, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if outcome.Status != domain.RunStatusSucceeded {
		t.Errorf("status: %v", outcome.Status)
	}
	if outcome.Action != nodes.ActionDefault {
		t.Errorf("action: %q", outcome.Action)
	}
	if e.State() != StateDone {
		t.Errorf("final state: %v", e.State())
	}

	// Выход узла лежит в его namespace
	if v := outcome.Store.Namespace("a")["msg"]; v != "hi" {
		t.Errorf("store: namespace a msg = %v", v)
	}
}

func TestEngine_RunChain(t *testing.T) {
	// Узел b читает выход узла a через шаблон
	ir := &domain.WorkflowIR{
		Name: "chain",
		Nodes: []domain.NodeDef{
			stubDef("a", map[string]any{"msg": "hello"}),
			stubDef("b", map[string]any{"prev": "${a.msg}", "action": "finish"}),
		},
		Edges: []domain.EdgeDef{
			{From: "a", To: "b"},
		},
		StartNode: "a",
	}

	e := NewEngine(mustCompile(t, ir, nil, CompileOptions{}), EngineOptions{})
	outcome, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if v := outcome.Store.Namespace("b")["prev"]; v != "hello" {
		t.Errorf("template chain: got %v", v)
	}
	// Терминальный action последнего узла
	if outcome.Action != "finish" {
		t.Errorf("action: %q", outcome.Action)
	}
}

func TestEngine_Branching(t *testing.T) {
	ir := &domain.WorkflowIR{
		Name: "branch",
		Nodes: []domain.NodeDef{
			stubDef("cond", map[string]any{"action": "left"}),
			stubDef("left", map[string]any{"took": "left"}),
			stubDef("right", map[string]any{"took": "right"}),
		},
		Edges: []domain.EdgeDef{
			{From: "cond", To: "left", Action: "left"},
			{From: "cond", To: "right", Action: "right"},
		},
		StartNode: "cond",
	}

	e := NewEngine(mustCompile(t, ir, nil, CompileOptions{}), EngineOptions{})
	outcome, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if outcome.Store.Namespace("left") == nil {
		t.Error("left branch should have run")
	}
	if outcome.Store.Namespace("right") != nil {
		t.Error("right branch should not have run")
	}
}

func TestEngine_InitialParams(t *testing.T) {
	ir := &domain.WorkflowIR{
		Name: "inputs",
		Inputs: map[string]domain.InputDef{
			"who": {Type: "string", Default: "world"},
		},
		Nodes: []domain.NodeDef{
			stubDef("a", map[string]any{"greeting": "hello ${who}"}),
		},
		StartNode: "a",
	}

	e := NewEngine(mustCompile(t, ir, nil, CompileOptions{}), EngineOptions{})
	outcome, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if v := outcome.Store.Namespace("a")["greeting"]; v != "hello world" {
		t.Errorf("greeting: %v", v)
	}
}

func TestEngine_RunFailure(t *testing.T) {
	boom := errors.New("boom")
	registry := stubRegistry(&stubFactory{
		typ: "failing",
		run: func(context.Context, *nodes.Request) (*nodes.Result, error) {
			return nil, boom
		},
	})

	ir := &domain.WorkflowIR{
		Name: "failing_wf",
		Nodes: []domain.NodeDef{
			stubDef("a", nil),
			{ID: "b", Type: "failing"},
		},
		Edges:     []domain.EdgeDef{{From: "a", To: "b"}},
		StartNode: "a",
	}

	e := NewEngine(mustCompile(t, ir, nil, CompileOptions{Registry: registry}), EngineOptions{})
	outcome, err := e.Run(context.Background())
	if err == nil {
		t.Fatal("run should fail")
	}
	if !errors.Is(err, boom) {
		t.Errorf("cause should be preserved: %v", err)
	}

	// Ошибка обёрнута с workflow_path до упавшего узла
	var weErr *WorkflowExecutionError
	if !errors.As(err, &weErr) {
		t.Fatalf("expected WorkflowExecutionError, got %v", err)
	}
	wantPath := []string{"failing_wf", "b"}
	if len(weErr.WorkflowPath) != len(wantPath) {
		t.Fatalf("workflow path: %v", weErr.WorkflowPath)
	}
	for i := range wantPath {
		if weErr.WorkflowPath[i] != wantPath[i] {
			t.Errorf("path[%d]: got %q, want %q", i, weErr.WorkflowPath[i], wantPath[i])
		}
	}

	if outcome.Status != domain.RunStatusFailed || outcome.Err == nil {
		t.Errorf("outcome: %+v", outcome)
	}
	if e.State() != StateFailed {
		t.Errorf("state: %v", e.State())
	}
}

func TestEngine_Retry(t *testing.T) {
	attempts := 0
	registry := stubRegistry(&stubFactory{
		typ: "flaky",
		run: func(context.Context, *nodes.Request) (*nodes.Result, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("transient")
			}
			return nodes.NewResult(map[string]any{"attempts": attempts}), nil
		},
	})

	ir := &domain.WorkflowIR{
		Name: "retry_wf",
		Nodes: []domain.NodeDef{
			{
				ID:   "a",
				Type: "flaky",
				Retry: &domain.RetryPolicy{
					MaxAttempts:    3,
					Backoff:        domain.BackoffExponential,
					InitialDelayMs: 1,
					MaxDelayMs:     4,
				},
			},
		},
		StartNode: "a",
	}

	e := NewEngine(mustCompile(t, ir, nil, CompileOptions{Registry: registry}), EngineOptions{})
	outcome, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts: %d", attempts)
	}
	if v := outcome.Store.Namespace("a")["attempts"]; v != 3 {
		t.Errorf("outputs: %v", v)
	}
}

func TestEngine_RetryExhausted(t *testing.T) {
	attempts := 0
	registry := stubRegistry(&stubFactory{
		typ: "broken",
		run: func(context.Context, *nodes.Request) (*nodes.Result, error) {
			attempts++
			return nil, errors.New("permanent")
		},
	})

	ir := &domain.WorkflowIR{
		Name: "retry_wf",
		Nodes: []domain.NodeDef{
			{ID: "a", Type: "broken", Retry: &domain.RetryPolicy{MaxAttempts: 2, InitialDelayMs: 1}},
		},
		StartNode: "a",
	}

	e := NewEngine(mustCompile(t, ir, nil, CompileOptions{Registry: registry}), EngineOptions{})
	if _, err := e.Run(context.Background()); err == nil {
		t.Fatal("run should fail after retries")
	}
	if attempts != 2 {
		t.Errorf("attempts: %d", attempts)
	}
}

func TestEngine_NestedWorkflow(t *testing.T) {
	childIR := map[string]any{
		"name": "child",
		"nodes": []any{
			map[string]any{
				"id":     "inner",
				"type":   "stub",
				"params": map[string]any{"greeting": "${who}"},
			},
		},
		"start_node": "inner",
	}

	ir := &domain.WorkflowIR{
		Name: "parent",
		Nodes: []domain.NodeDef{
			{
				ID:   "sub",
				Type: NodeTypeWorkflow,
				Params: map[string]any{
					paramWorkflowIR:    childIR,
					paramParamMapping:  map[string]any{"who": "world"},
					paramOutputMapping: map[string]any{"inner.greeting": "greeting_out"},
				},
			},
		},
		StartNode: "sub",
	}

	e := NewEngine(mustCompile(t, ir, nil, CompileOptions{}), EngineOptions{})
	outcome, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Выход ребёнка перенесён по output_mapping в namespace узла
	if v := outcome.Store.Namespace("sub")["greeting_out"]; v != "world" {
		t.Errorf("mapped output: %v", v)
	}
	// Данные ребёнка не протекли в родительский store
	if outcome.Store.Namespace("inner") != nil {
		t.Error("child namespace should not leak into parent store")
	}
}

func TestEngine_NestedWorkflow_MissingOutputSkipped(t *testing.T) {
	childIR := map[string]any{
		"name":       "child",
		"nodes":      []any{map[string]any{"id": "inner", "type": "stub"}},
		"start_node": "inner",
	}

	ir := &domain.WorkflowIR{
		Name: "parent",
		Nodes: []domain.NodeDef{
			{
				ID:   "sub",
				Type: NodeTypeWorkflow,
				Params: map[string]any{
					paramWorkflowIR:    childIR,
					paramOutputMapping: map[string]any{"inner.nope": "out"},
				},
			},
		},
		StartNode: "sub",
	}

	e := NewEngine(mustCompile(t, ir, nil, CompileOptions{}), EngineOptions{})
	outcome, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("missing mapped output should not fail the run: %v", err)
	}
	if _, ok := outcome.Store.Namespace("sub")["out"]; ok {
		t.Error("missing child key should be silently skipped")
	}
}

func TestEngine_NestedWorkflow_SharedStore(t *testing.T) {
	childIR := map[string]any{
		"name": "child",
		"nodes": []any{
			map[string]any{
				"id":     "inner",
				"type":   "stub",
				"params": map[string]any{"from_child": true},
			},
		},
		"start_node": "inner",
	}

	ir := &domain.WorkflowIR{
		Name: "parent",
		Nodes: []domain.NodeDef{
			{
				ID:   "sub",
				Type: NodeTypeWorkflow,
				Params: map[string]any{
					paramWorkflowIR:  childIR,
					paramStorageMode: StorageModeShared,
				},
			},
		},
		StartNode: "sub",
	}

	e := NewEngine(mustCompile(t, ir, nil, CompileOptions{}), EngineOptions{})
	outcome, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// В shared режиме ребёнок пишет прямо в родительский store
	if v := outcome.Store.Namespace("inner")["from_child"]; v != true {
		t.Errorf("shared store write: %v", v)
	}
}

func TestEngine_NestedWorkflow_ErrorActionTranslation(t *testing.T) {
	// Ребёнок завершается терминальным action "error"
	childIR := map[string]any{
		"name": "child",
		"nodes": []any{
			map[string]any{
				"id":     "inner",
				"type":   "stub",
				"params": map[string]any{"action": "error"},
			},
		},
		"start_node": "inner",
	}

	ir := &domain.WorkflowIR{
		Name: "parent",
		Nodes: []domain.NodeDef{
			{
				ID:   "sub",
				Type: NodeTypeWorkflow,
				Params: map[string]any{
					paramWorkflowIR:  childIR,
					paramErrorAction: "fallback",
				},
			},
			stubDef("recover", map[string]any{"recovered": true}),
		},
		Edges: []domain.EdgeDef{
			{From: "sub", To: "recover", Action: "fallback"},
		},
		StartNode: "sub",
	}

	e := NewEngine(mustCompile(t, ir, nil, CompileOptions{}), EngineOptions{})
	outcome, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// error action ребёнка транслирован в error_action и разведён ребром
	if outcome.Store.Namespace("recover") == nil {
		t.Error("recover node should have run via error_action edge")
	}
}

func TestEngine_ParallelNode(t *testing.T) {
	ir := &domain.WorkflowIR{
		Name: "par",
		Nodes: []domain.NodeDef{
			{
				ID:   "grp",
				Type: NodeTypeParallel,
				Params: map[string]any{
					paramGroupNodes: []any{
						map[string]any{"id": "c1", "type": "stub", "params": map[string]any{"v": "one"}},
						map[string]any{"id": "c2", "type": "stub", "params": map[string]any{"v": "two"}},
					},
					paramMaxConcurrency: 2,
					paramGroupPolicy:    "continue",
				},
			},
		},
		StartNode: "grp",
	}

	e := NewEngine(mustCompile(t, ir, nil, CompileOptions{}), EngineOptions{})
	outcome, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Дети пишут в собственные namespaces, группа агрегирует в свой
	if v := outcome.Store.Namespace("c1")["v"]; v != "one" {
		t.Errorf("c1 output: %v", v)
	}
	if v := outcome.Store.Namespace("c2")["v"]; v != "two" {
		t.Errorf("c2 output: %v", v)
	}
	if outcome.Store.Namespace("grp") == nil {
		t.Error("group namespace should exist")
	}
}

func TestEngine_ParallelConcurrentStoreWrites(t *testing.T) {
	// Много детей без ограничения одновременности: все пишут свои
	// выходы в общий Store параллельно
	children := make([]any, 16)
	for i := range children {
		children[i] = map[string]any{
			"id":     fmt.Sprintf("c%d", i),
			"type":   "stub",
			"params": map[string]any{"v": fmt.Sprintf("val-%d", i)},
		}
	}

	ir := &domain.WorkflowIR{
		Name: "wide",
		Nodes: []domain.NodeDef{
			{
				ID:   "grp",
				Type: NodeTypeParallel,
				Params: map[string]any{
					paramGroupNodes: children,
				},
			},
		},
		StartNode: "grp",
	}

	e := NewEngine(mustCompile(t, ir, nil, CompileOptions{}), EngineOptions{})
	outcome, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	for i := range children {
		id := fmt.Sprintf("c%d", i)
		if v := outcome.Store.Namespace(id)["v"]; v != fmt.Sprintf("val-%d", i) {
			t.Errorf("child %s output: %v", id, v)
		}
	}
}

func TestEngine_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ir := &domain.WorkflowIR{
		Name:      "cancelled",
		Nodes:     []domain.NodeDef{stubDef("a", nil)},
		StartNode: "a",
	}

	e := NewEngine(mustCompile(t, ir, nil, CompileOptions{}), EngineOptions{})
	if _, err := e.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// recordingSink — Sink для проверки порядка событий жизненного цикла.
type recordingSink struct {
	mu   sync.Mutex
	seen []string
}

func (s *recordingSink) record(ev string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, ev)
	return nil
}

func (s *recordingSink) RunStarted(context.Context, events.RunStartedPayload) error {
	return s.record("run.started")
}

func (s *recordingSink) RunFinished(context.Context, events.RunFinishedPayload) error {
	return s.record("run.finished")
}

func (s *recordingSink) NodeStarted(context.Context, events.NodeStartedPayload) error {
	return s.record("node.started")
}

func (s *recordingSink) NodeFinished(context.Context, events.NodeFinishedPayload) error {
	return s.record("node.finished")
}

func TestEngine_EventSink(t *testing.T) {
	ir := &domain.WorkflowIR{
		Name:      "evts",
		Nodes:     []domain.NodeDef{stubDef("a", map[string]any{"msg": "hi"})},
		StartNode: "a",
	}

	sink := &recordingSink{}
	e := NewEngine(mustCompile(t, ir, nil, CompileOptions{}), EngineOptions{Sink: sink})
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{"run.started", "node.started", "node.finished", "run.finished"}
	if len(sink.seen) != len(want) {
		t.Fatalf("events: got %v, want %v", sink.seen, want)
	}
	for i := range want {
		if sink.seen[i] != want[i] {
			t.Errorf("event[%d]: got %q, want %q", i, sink.seen[i], want[i])
		}
	}
}

func TestEngine_DefaultSink(t *testing.T) {
	// Без Sink в опциях события уходят в events.NopSink
	ir := &domain.WorkflowIR{
		Name:      "nosink",
		Nodes:     []domain.NodeDef{stubDef("a", nil)},
		StartNode: "a",
	}

	e := NewEngine(mustCompile(t, ir, nil, CompileOptions{}), EngineOptions{})
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
}
