package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Максимальный размер строки, которую resolver попробует
// опортунистически распарсить как JSON при траверсе пути.
// Строки больше предела не парсятся (сегмент считается неразрешимым),
// чтобы не тратить память на разбор мегабайтных значений.
const maxJSONParseSize = 1 << 20 // 1 MB

// tokenRe — синтаксис шаблонной ссылки: ${identifier(.identifier)*}.
var tokenRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_-]*(?:\.[A-Za-z0-9_-]+)*)\}`)

// HasTemplate возвращает true, если строка содержит ссылку ${...}.
func HasTemplate(s string) bool {
	return strings.Contains(s, "${") && tokenRe.MatchString(s)
}

// ResolveString разрешает все ссылки ${...} в строке против контекста.
//
// Если вся строка — ровно одна ссылка ("${x}"), возвращается
// разрешённое значение с сохранением его типа. Иначе все ссылки
// приводятся к строкам и интерполируются.
//
// Разрешение происходит непосредственно перед выполнением узла,
// никогда на этапе компиляции.
func ResolveString(s string, ec *ExecContext) (any, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}

	// Одиночная ссылка на всю строку — тип сохраняется
	if m := tokenRe.FindStringSubmatch(s); m != nil && m[0] == s {
		return resolveExpr(m[1], ec)
	}

	var resolveErr error
	result := tokenRe.ReplaceAllStringFunc(s, func(token string) string {
		if resolveErr != nil {
			return token
		}
		expr := token[2 : len(token)-1]
		value, err := resolveExpr(expr, ec)
		if err != nil {
			resolveErr = err
			return token
		}
		return stringify(value)
	})
	if resolveErr != nil {
		return nil, resolveErr
	}

	return result, nil
}

// ResolveValue разрешает шаблоны в произвольном значении.
// Рекурсивно обрабатывает map и slice.
func ResolveValue(value any, ec *ExecContext) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch v := value.(type) {
	case string:
		return ResolveString(v, ec)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			resolved, err := ResolveValue(val, ec)
			if err != nil {
				return nil, err
			}
			result[key] = resolved
		}
		return result, nil

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			resolved, err := ResolveValue(val, ec)
			if err != nil {
				return nil, err
			}
			result[i] = resolved
		}
		return result, nil

	case map[string]string:
		result := make(map[string]any, len(v))
		for key, val := range v {
			resolved, err := ResolveString(val, ec)
			if err != nil {
				return nil, err
			}
			result[key] = resolved
		}
		return result, nil

	default:
		// Остальные типы (int, float, bool) возвращаются как есть
		return value, nil
	}
}

// ResolveParams разрешает параметры узла.
// Обёртка над ResolveValue для map[string]any.
func ResolveParams(params map[string]any, ec *ExecContext) (map[string]any, error) {
	if params == nil {
		return make(map[string]any), nil
	}

	resolved, err := ResolveValue(params, ec)
	if err != nil {
		return nil, err
	}

	result, ok := resolved.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected map, got %T", ErrUnresolvedReference, resolved)
	}

	return result, nil
}

// resolveExpr разрешает одно выражение "base.seg.seg".
func resolveExpr(expr string, ec *ExecContext) (any, error) {
	segments := strings.Split(expr, ".")
	base := segments[0]

	value, ok := ec.Lookup(base)
	if !ok {
		return nil, fmt.Errorf("%w: ${%s}: %q not found in store or initial params",
			ErrUnresolvedReference, expr, base)
	}

	return traversePath(value, segments[1:], expr)
}

// traversePath обходит оставшиеся сегменты пути по живой структуре
// значения. Строки, похожие на JSON, опортунистически парсятся
// (в пределах maxJSONParseSize) перед продолжением обхода.
func traversePath(value any, segments []string, expr string) (any, error) {
	current := value

	for _, seg := range segments {
		current = maybeParseJSON(current)

		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: ${%s}: segment %q: cannot traverse into %T",
				ErrUnresolvedSegment, expr, seg, current)
		}

		next, exists := m[seg]
		if !exists {
			return nil, fmt.Errorf("%w: ${%s}: segment %q not found",
				ErrUnresolvedSegment, expr, seg)
		}
		current = next
	}

	return current, nil
}

// maybeParseJSON парсит строковое значение как JSON объект,
// если оно похоже на JSON и не превышает предел размера.
func maybeParseJSON(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	if len(s) > maxJSONParseSize {
		return value
	}

	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return value
	}

	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return value
	}
	return parsed
}

// stringify приводит разрешённое значение к строке для интерполяции.
// Составные значения сериализуются в JSON.
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// CollectRefs собирает все выражения ${...} из произвольного значения.
// Используется валидатором для статической проверки.
func CollectRefs(value any) []string {
	var refs []string
	collectRefs(value, &refs)
	return refs
}

func collectRefs(value any, refs *[]string) {
	switch v := value.(type) {
	case string:
		for _, m := range tokenRe.FindAllStringSubmatch(v, -1) {
			*refs = append(*refs, m[1])
		}
	case map[string]any:
		for _, val := range v {
			collectRefs(val, refs)
		}
	case []any:
		for _, val := range v {
			collectRefs(val, refs)
		}
	case map[string]string:
		for _, val := range v {
			collectRefs(val, refs)
		}
	}
}
