package engine

import (
	"strings"
	"sync"
)

// Store — изменяемый key/value scope одного выполнения (SharedStore).
//
// Store состоит из корневого scope и явных namespaces узлов:
// запись outputs узла идёт в его namespace, поэтому узлы физически
// не могут затереть чужие данные. Принадлежность к scope — свойство
// структуры, а не соглашение о префиксах в строковых ключах.
//
// Движок выполняет один узел за раз, но дети конкурентной группы
// пишут свои выходы в общий Store параллельно, а в режиме "shared"
// вложенный workflow разделяет Store с родителем. Все операции
// защищены RWMutex: дизъюнктность namespaces не делает конкурентную
// запись в одну map безопасной.
type Store struct {
	mu sync.RWMutex

	// root — корневой scope (начальные значения, mapped/scoped данные).
	root map[string]any

	// ns — namespaces узлов: nodeID → его значения.
	ns map[string]map[string]any

	// nsOrder — порядок создания namespaces. Нужен для
	// детерминированного поиска "голого" ключа по namespaces.
	nsOrder []string
}

// NewStore создаёт пустой Store.
func NewStore() *Store {
	return &Store{
		root: make(map[string]any),
		ns:   make(map[string]map[string]any),
	}
}

// NewStoreFrom создаёт Store, заполнив корневой scope копией values.
func NewStoreFrom(values map[string]any) *Store {
	s := NewStore()
	for k, v := range values {
		s.root[k] = v
	}
	return s
}

// Set записывает значение в корневой scope.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root[key] = value
}

// Get возвращает значение из корневого scope.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.root[key]
	return v, ok
}

// SetInNamespace записывает значение в namespace узла.
func (s *Store) SetInNamespace(nodeID, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.ns[nodeID]
	if !ok {
		m = make(map[string]any)
		s.ns[nodeID] = m
		s.nsOrder = append(s.nsOrder, nodeID)
	}
	m[key] = value
}

// Namespace возвращает копию содержимого namespace узла
// (nil, если его нет).
func (s *Store) Namespace(nodeID string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.ns[nodeID]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Lookup разрешает base шаблонной ссылки против Store.
//
// Порядок поиска:
//  1. Корневой scope.
//  2. Namespace с именем base целиком (взгляд на outputs узла как dict).
//  3. "Голый" ключ внутри namespaces — в порядке их создания,
//     побеждает последняя запись (узлы выполняются последовательно,
//     поэтому это «самое свежее» значение).
func (s *Store) Lookup(base string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.root[base]; ok {
		return v, true
	}

	if m, ok := s.ns[base]; ok {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, true
	}

	var found any
	ok := false
	for _, nodeID := range s.nsOrder {
		if v, exists := s.ns[nodeID][base]; exists {
			found = v
			ok = true
		}
	}
	return found, ok
}

// FlatView возвращает плоское представление Store: корневые ключи
// как есть, namespace-записи как "nodeID.key". Используется для
// построения scoped child store.
func (s *Store) FlatView() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flat := make(map[string]any, len(s.root))
	for k, v := range s.root {
		flat[k] = v
	}
	for nodeID, m := range s.ns {
		for k, v := range m {
			flat[nodeID+"."+k] = v
		}
	}
	return flat
}

// Keys возвращает количество ключей во всех scope.
func (s *Store) Keys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.root)
	for _, m := range s.ns {
		n += len(m)
	}
	return n
}

// Storage modes вложенного workflow.
const (
	// StorageModeMapped — новый store ровно с resolved param_mapping.
	StorageModeMapped = "mapped"

	// StorageModeIsolated — новый пустой store без данных родителя.
	StorageModeIsolated = "isolated"

	// StorageModeScoped — новый store с ключами родителя по префиксу.
	StorageModeScoped = "scoped"

	// StorageModeShared — тот же store, что у родителя (алиасинг).
	StorageModeShared = "shared"
)

// ChildStore строит store дочернего workflow согласно storage_mode.
//
// mapped/isolated/scoped копируют данные, чтобы исключить алиасинг;
// shared возвращает тот же указатель — это единственный режим,
// в котором два scope разделяют одну структуру.
func (s *Store) ChildStore(mode string, mapped map[string]any, scopePrefix string) (*Store, error) {
	switch mode {
	case StorageModeMapped, "":
		return NewStoreFrom(mapped), nil

	case StorageModeIsolated:
		return NewStore(), nil

	case StorageModeScoped:
		child := NewStore()
		for k, v := range s.FlatView() {
			if strings.HasPrefix(k, scopePrefix) {
				child.root[strings.TrimPrefix(k, scopePrefix)] = v
			}
		}
		return child, nil

	case StorageModeShared:
		return s, nil

	default:
		return nil, NewValidationError("", "storage_mode", "invalid storage mode: "+mode, ErrInvalidStorageMode)
	}
}
