package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeWorkflow(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFileLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "greet.json", `{
		"name": "greet",
		"nodes": [{"id": "a", "type": "echo", "params": {"msg": "hi"}}],
		"start_node": "a"
	}`)
	writeWorkflow(t, dir, "billing/report.json", `{
		"name": "report",
		"nodes": [{"id": "b", "type": "echo"}],
		"start_node": "b"
	}`)

	l := NewFileLoader(dir)

	ir, err := l.Load(context.Background(), "greet")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ir.Name != "greet" || len(ir.Nodes) != 1 {
		t.Errorf("parsed IR: %+v", ir)
	}

	// Вложенный ref с разделителем пути
	ir, err = l.Load(context.Background(), "billing/report")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ir.Name != "report" {
		t.Errorf("nested ref: %+v", ir)
	}
}

func TestFileLoader_Errors(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "bad.json", `{not json`)
	l := NewFileLoader(dir)

	// Отсутствующий файл
	if _, err := l.Load(context.Background(), "missing"); err == nil {
		t.Error("missing ref should fail")
	}

	// Невалидный JSON
	if _, err := l.Load(context.Background(), "bad"); err == nil {
		t.Error("invalid JSON should fail")
	}

	// Пустой ref
	if _, err := l.Load(context.Background(), ""); err == nil {
		t.Error("empty ref should fail")
	}

	// Выход за пределы каталога
	if _, err := l.Load(context.Background(), "../escape"); err == nil {
		t.Error("path traversal should fail")
	}
}
