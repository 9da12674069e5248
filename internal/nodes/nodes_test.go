package nodes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shaiso/Loom/internal/domain"
)

// Registry Tests

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	// Пустой реестр
	if r.Count() != 0 {
		t.Errorf("expected empty registry")
	}

	// Регистрация
	r.Register(&EchoFactory{})
	if r.Count() != 1 {
		t.Errorf("expected 1 factory, got %d", r.Count())
	}

	// Получение
	f, err := r.Get(NodeTypeEcho)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if f.Type() != NodeTypeEcho {
		t.Errorf("expected echo, got %s", f.Type())
	}

	// Несуществующий тип
	_, err = r.Get("unknown")
	if !errors.Is(err, ErrUnknownNodeType) {
		t.Errorf("expected ErrUnknownNodeType, got %v", err)
	}
	var typeErr *UnknownNodeTypeError
	if !errors.As(err, &typeErr) || typeErr.Type != "unknown" {
		t.Errorf("error should carry the missing type: %v", err)
	}

	// Has
	if !r.Has(NodeTypeEcho) {
		t.Error("should have echo")
	}
	if r.Has("unknown") {
		t.Error("should not have unknown")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	expectedTypes := []string{"echo", "set", "http", "delay", "transform"}
	for _, typ := range expectedTypes {
		if !r.Has(typ) {
			t.Errorf("default registry should have %s", typ)
		}
	}

	types := r.Types()
	if len(types) != len(expectedTypes) {
		t.Errorf("expected %d types, got %d", len(expectedTypes), len(types))
	}
}

func TestRegistry_GetInterfaces(t *testing.T) {
	r := DefaultRegistry()

	descs, err := r.GetInterfaces([]string{"echo", "http"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(descs) != 2 {
		t.Errorf("expected 2 descriptors, got %d", len(descs))
	}
	if descs["http"].Interface.FindOutput("response") == nil {
		t.Error("http descriptor should declare output response")
	}

	// Несуществующий тип
	if _, err := r.GetInterfaces([]string{"echo", "ghost"}); !errors.Is(err, ErrUnknownNodeType) {
		t.Errorf("expected ErrUnknownNodeType, got %v", err)
	}
}

func newNode(t *testing.T, f Factory, id string) Node {
	t.Helper()
	n, err := f.New(&domain.NodeDef{ID: id, Type: f.Type()})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return n
}

// Echo Node Tests

func TestEchoNode_Run(t *testing.T) {
	n := newNode(t, &EchoFactory{}, "e1")

	res, err := n.Run(context.Background(), &Request{
		NodeID: "e1",
		Params: map[string]any{"msg": "hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outputs["msg"] != "hello" {
		t.Errorf("outputs: %v", res.Outputs)
	}
	if res.Action != ActionDefault {
		t.Errorf("action: %q", res.Action)
	}
}

// Set Node Tests

func TestSetNode_Run(t *testing.T) {
	n := newNode(t, &SetFactory{}, "s1")

	values := map[string]any{"a": 1, "b": "two"}
	res, err := n.Run(context.Background(), &Request{
		NodeID: "s1",
		Params: map[string]any{"values": values},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := res.Outputs["values"].(map[string]any)
	if got["a"] != 1 || got["b"] != "two" {
		t.Errorf("outputs: %v", res.Outputs)
	}

	// values обязателен
	_, err = n.Run(context.Background(), &Request{NodeID: "s1", Params: map[string]any{}})
	if !errors.Is(err, ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
}

// Delay Node Tests

func TestDelayNode_Run(t *testing.T) {
	n := newNode(t, &DelayFactory{}, "d1")

	start := time.Now()
	res, err := n.Run(context.Background(), &Request{
		NodeID: "d1",
		Params: map[string]any{"duration_ms": 50},
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("delay was too short: %v", elapsed)
	}
	if res.Outputs["duration_ms"] != int64(50) {
		t.Errorf("outputs: %v", res.Outputs)
	}
}

func TestDelayNode_Cancel(t *testing.T) {
	n := newNode(t, &DelayFactory{}, "d1")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := n.Run(ctx, &Request{
		NodeID: "d1",
		Params: map[string]any{"duration_sec": 5},
	})
	elapsed := time.Since(start)

	if !errors.Is(err, ErrNodeCancelled) {
		t.Errorf("expected ErrNodeCancelled, got %v", err)
	}
	if elapsed > time.Second {
		t.Errorf("cancel took too long: %v", elapsed)
	}
}

func TestDelayNode_MissingDuration(t *testing.T) {
	n := newNode(t, &DelayFactory{}, "d1")

	_, err := n.Run(context.Background(), &Request{NodeID: "d1", Params: map[string]any{}})
	if !errors.Is(err, ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
}

// Transform Node Tests

func TestTransformNode_Run(t *testing.T) {
	n := newNode(t, &TransformFactory{}, "t1")

	res, err := n.Run(context.Background(), &Request{
		NodeID: "t1",
		Params: map[string]any{
			"mappings": map[string]any{
				"copied": "value",
				"number": 7,
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := res.Outputs["result"].(map[string]any)
	if result["copied"] != "value" || result["number"] != 7 {
		t.Errorf("result: %v", result)
	}
}

func TestTransformNode_ParseJSON(t *testing.T) {
	n := newNode(t, &TransformFactory{}, "t1")

	res, err := n.Run(context.Background(), &Request{
		NodeID: "t1",
		Params: map[string]any{
			"mappings": map[string]any{
				"obj":    `{"k": "v"}`,
				"arr":    `[1, 2]`,
				"num":    "42",
				"flag":   "true",
				"plain":  "not json",
			},
			"parse_json": true,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := res.Outputs["result"].(map[string]any)

	obj, ok := result["obj"].(map[string]any)
	if !ok || obj["k"] != "v" {
		t.Errorf("obj: %v", result["obj"])
	}
	if arr, ok := result["arr"].([]any); !ok || len(arr) != 2 {
		t.Errorf("arr: %v", result["arr"])
	}
	if result["num"] != int64(42) {
		t.Errorf("num: %v (%T)", result["num"], result["num"])
	}
	if result["flag"] != true {
		t.Errorf("flag: %v", result["flag"])
	}
	if result["plain"] != "not json" {
		t.Errorf("plain: %v", result["plain"])
	}
}

// HTTP Node Tests

func TestHTTPNode_Run(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "yes" {
			t.Errorf("missing header, got %q", r.Header.Get("X-Test"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer server.Close()

	n := newNode(t, &HTTPFactory{}, "h1")
	res, err := n.Run(context.Background(), &Request{
		NodeID: "h1",
		Params: map[string]any{
			"url":     server.URL,
			"headers": map[string]any{"X-Test": "yes"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	response := res.Outputs["response"].(map[string]any)
	if response["status_code"] != 200 {
		t.Errorf("status_code: %v", response["status_code"])
	}
	body := response["body"].(map[string]any)
	if body["ok"] != true {
		t.Errorf("body: %v", body)
	}
	if res.Action != ActionDefault {
		t.Errorf("action: %q", res.Action)
	}
}

func TestHTTPNode_PostBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type: %q", ct)
		}
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["key"] != "value" {
			t.Errorf("payload: %v", payload)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	n := newNode(t, &HTTPFactory{}, "h1")
	res, err := n.Run(context.Background(), &Request{
		NodeID: "h1",
		Params: map[string]any{
			"url":    server.URL,
			"method": "post",
			"body":   map[string]any{"key": "value"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	response := res.Outputs["response"].(map[string]any)
	if response["status_code"] != 201 {
		t.Errorf("status_code: %v", response["status_code"])
	}
}

func TestHTTPNode_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	n := newNode(t, &HTTPFactory{}, "h1")
	res, err := n.Run(context.Background(), &Request{
		NodeID: "h1",
		Params: map[string]any{"url": server.URL},
	})
	if err != nil {
		t.Fatalf("status >= 400 is not a hard error: %v", err)
	}

	// Логическая ошибка маршрутизируется через action
	if res.Action != ActionError {
		t.Errorf("action: %q", res.Action)
	}
	response := res.Outputs["response"].(map[string]any)
	if response["status_code"] != 500 {
		t.Errorf("status_code: %v", response["status_code"])
	}
}

func TestHTTPNode_MissingURL(t *testing.T) {
	n := newNode(t, &HTTPFactory{}, "h1")
	_, err := n.Run(context.Background(), &Request{NodeID: "h1", Params: map[string]any{}})
	if !errors.Is(err, ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
}

func TestHTTPNode_NoFollowRedirects(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusFound)
	}))
	defer server.Close()

	n := newNode(t, &HTTPFactory{}, "h1")
	res, err := n.Run(context.Background(), &Request{
		NodeID: "h1",
		Params: map[string]any{
			"url":              server.URL,
			"follow_redirects": false,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	response := res.Outputs["response"].(map[string]any)
	if response["status_code"] != 302 {
		t.Errorf("redirect should not be followed, status: %v", response["status_code"])
	}
}

// Param Helper Tests

func TestGetParamHelpers(t *testing.T) {
	params := map[string]any{
		"s":  "str",
		"i":  42,
		"f":  3.0,
		"b":  true,
		"m":  map[string]any{"k": "v"},
		"ms": map[string]any{"h": "x", "skip": 1},
	}

	if GetParamString(params, "s") != "str" || GetParamString(params, "i") != "" {
		t.Error("GetParamString")
	}
	if GetParamInt(params, "i") != 42 || GetParamInt(params, "f") != 3 || GetParamInt(params, "s") != 0 {
		t.Error("GetParamInt")
	}
	if !GetParamBool(params, "b", false) || !GetParamBool(params, "missing", true) {
		t.Error("GetParamBool")
	}
	if GetParamMap(params, "m")["k"] != "v" || GetParamMap(params, "s") != nil {
		t.Error("GetParamMap")
	}
	ms := GetParamMapString(params, "ms")
	if ms["h"] != "x" {
		t.Error("GetParamMapString")
	}
	if _, ok := ms["skip"]; ok {
		t.Error("non-string values should be skipped")
	}
}
