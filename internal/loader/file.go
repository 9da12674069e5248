// Package loader содержит загрузчики определений workflow для
// разрешения workflow_ref при компиляции.
//
// Файловый загрузчик читает IR из каталога: ref "billing/report"
// соответствует файлу <dir>/billing/report.json. Загрузчик из БД
// живёт в пакете repo (WorkflowRepo).
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shaiso/Loom/internal/domain"
)

// FileLoader загружает IR workflow из каталога с JSON файлами.
type FileLoader struct {
	// Dir — корневой каталог определений.
	Dir string
}

// NewFileLoader создаёт загрузчик для каталога dir.
func NewFileLoader(dir string) *FileLoader {
	return &FileLoader{Dir: dir}
}

// Load читает и парсит IR по ref. Реализует engine.Loader.
// Ref с выходом за пределы каталога отклоняется.
func (l *FileLoader) Load(_ context.Context, ref string) (*domain.WorkflowIR, error) {
	path, err := l.refPath(ref)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow %q: %w", ref, err)
	}

	ir, err := domain.ParseWorkflowIR(data)
	if err != nil {
		return nil, fmt.Errorf("parse workflow %q: %w", ref, err)
	}
	return ir, nil
}

// refPath превращает ref в путь файла внутри каталога.
func (l *FileLoader) refPath(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty workflow ref")
	}

	name := ref
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}

	path := filepath.Join(l.Dir, filepath.FromSlash(name))

	// Ref не должен выводить за пределы каталога
	root, err := filepath.Abs(l.Dir)
	if err != nil {
		return "", fmt.Errorf("resolve loader dir: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve workflow path: %w", err)
	}
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", fmt.Errorf("workflow ref %q escapes loader directory", ref)
	}
	return abs, nil
}
