package engine

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func testContext() *ExecContext {
	store := NewStore()
	store.SetInNamespace("fetch", "response", map[string]any{
		"status_code": 200,
		"body":        `{"items": ["a", "b"], "count": 2}`,
	})
	store.SetInNamespace("fetch", "plain", "text")
	return NewExecContext(store, map[string]any{
		"name":  "loom",
		"count": 42,
	}, nil)
}

func TestHasTemplate(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"${a}", true},
		{"prefix ${a.b} suffix", true},
		{"plain", false},
		{"${}", false},
		{"$ {a}", false},
		{"${9bad}", false},
	}
	for _, tt := range tests {
		if got := HasTemplate(tt.s); got != tt.want {
			t.Errorf("HasTemplate(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestResolveString_SingleToken(t *testing.T) {
	ec := testContext()

	// Одиночная ссылка сохраняет нативный тип
	v, err := ResolveString("${count}", ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Errorf("expected int 42, got %v (%T)", v, v)
	}

	// Вложенный путь в outputs узла
	v, err = ResolveString("${fetch.response.status_code}", ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 200 {
		t.Errorf("expected 200, got %v", v)
	}
}

func TestResolveString_Interpolation(t *testing.T) {
	ec := testContext()

	v, err := ResolveString("hello ${name}, count=${count}", ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "hello loom, count=42" {
		t.Errorf("unexpected interpolation: %v", v)
	}

	// Составное значение сериализуется в JSON при интерполяции
	v, err = ResolveString("resp: ${fetch.response}", ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, ok := v.(string)
	if !ok || !strings.Contains(s, `"status_code":200`) {
		t.Errorf("composite should interpolate as JSON, got %v", v)
	}
}

func TestResolveString_JSONStringTraversal(t *testing.T) {
	ec := testContext()

	// Строка с JSON парсится опортунистически при траверсе
	v, err := ResolveString("${fetch.response.body.count}", ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != float64(2) {
		t.Errorf("expected 2, got %v (%T)", v, v)
	}
}

func TestResolveString_Errors(t *testing.T) {
	ec := testContext()

	// Неизвестный base
	_, err := ResolveString("${missing}", ec)
	if !errors.Is(err, ErrUnresolvedReference) {
		t.Errorf("expected ErrUnresolvedReference, got %v", err)
	}

	// Несуществующий сегмент
	_, err = ResolveString("${fetch.response.bogus}", ec)
	if !errors.Is(err, ErrUnresolvedSegment) {
		t.Errorf("expected ErrUnresolvedSegment, got %v", err)
	}

	// Траверс в примитив
	_, err = ResolveString("${fetch.plain.deeper}", ec)
	if !errors.Is(err, ErrUnresolvedSegment) {
		t.Errorf("expected ErrUnresolvedSegment, got %v", err)
	}
}

func TestResolveParams(t *testing.T) {
	ec := testContext()

	params := map[string]any{
		"url":  "https://api/${name}",
		"num":  7,
		"list": []any{"${count}", "static"},
		"nested": map[string]any{
			"status": "${fetch.response.status_code}",
		},
	}

	resolved, err := ResolveParams(params, ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resolved["url"] != "https://api/loom" {
		t.Errorf("url: got %v", resolved["url"])
	}
	if resolved["num"] != 7 {
		t.Errorf("num: got %v", resolved["num"])
	}
	if !reflect.DeepEqual(resolved["list"], []any{42, "static"}) {
		t.Errorf("list: got %v", resolved["list"])
	}
	nested := resolved["nested"].(map[string]any)
	if nested["status"] != 200 {
		t.Errorf("nested.status: got %v", nested["status"])
	}

	// Nil params — пустая map, не nil
	resolved, err = ResolveParams(nil, ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved == nil {
		t.Error("resolved params should not be nil")
	}
}

func TestResolveParams_InitialParamsFallback(t *testing.T) {
	// Store проверяется раньше initial params
	store := NewStore()
	store.Set("name", "from_store")
	ec := NewExecContext(store, map[string]any{"name": "from_inputs", "only_input": 1}, nil)

	v, err := ResolveString("${name}", ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "from_store" {
		t.Errorf("store should win over initial params, got %v", v)
	}

	v, err = ResolveString("${only_input}", ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 1 {
		t.Errorf("initial param fallback: got %v", v)
	}
}

func TestCollectRefs(t *testing.T) {
	refs := CollectRefs(map[string]any{
		"a": "${x.y}",
		"b": []any{"${z}", "plain"},
		"c": map[string]any{"d": "pre ${x.y.w} post"},
	})

	want := map[string]bool{"x.y": true, "z": true, "x.y.w": true}
	if len(refs) != 3 {
		t.Fatalf("expected 3 refs, got %v", refs)
	}
	for _, r := range refs {
		if !want[r] {
			t.Errorf("unexpected ref %q", r)
		}
	}
}
