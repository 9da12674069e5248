package nodes

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Loom/internal/domain"
)

// Factory — фабрика узлов одного типа.
//
// Фабрика регистрируется при старте и статически экспонирует
// описание интерфейса типа (descriptor) рядом с конструктором —
// никакого динамического импорта или разбора документации.
type Factory interface {
	// Type возвращает тип узла.
	Type() string

	// Descriptor возвращает описание интерфейса типа узла.
	Descriptor() *domain.NodeDescriptor

	// New создаёт экземпляр узла по его определению из IR.
	New(def *domain.NodeDef) (Node, error)
}

// UnknownNodeTypeError — ошибка обращения к незарегистрированному типу узла.
type UnknownNodeTypeError struct {
	// Type — запрошенный тип.
	Type string
}

// Error реализует интерфейс error.
func (e *UnknownNodeTypeError) Error() string {
	return fmt.Sprintf("unknown node type: %s", e.Type)
}

// Unwrap возвращает базовую ошибку.
func (e *UnknownNodeTypeError) Unwrap() error {
	return ErrUnknownNodeType
}

// Registry — реестр типов узлов.
//
// Неизменяемый после инициализации с точки зрения потребителей:
// компилятор и валидатор только читают его. Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry создаёт реестр со всеми встроенными типами узлов.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(&EchoFactory{})
	r.Register(&SetFactory{})
	r.Register(&HTTPFactory{})
	r.Register(&DelayFactory{})
	r.Register(&TransformFactory{})

	return r
}

// Register регистрирует фабрику в реестре.
// Если фабрика с таким типом уже существует, она будет перезаписана.
func (r *Registry) Register(f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[f.Type()] = f
}

// Get возвращает фабрику по типу узла.
// Возвращает UnknownNodeTypeError, если тип не зарегистрирован.
func (r *Registry) Get(nodeType string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, exists := r.factories[nodeType]
	if !exists {
		return nil, &UnknownNodeTypeError{Type: nodeType}
	}

	return f, nil
}

// Has проверяет, зарегистрирован ли тип узла.
func (r *Registry) Has(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[nodeType]
	return exists
}

// GetInterfaces возвращает descriptors для перечисленных типов.
// Возвращает UnknownNodeTypeError для первого отсутствующего типа.
func (r *Registry) GetInterfaces(types []string) (map[string]*domain.NodeDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*domain.NodeDescriptor, len(types))
	for _, t := range types {
		f, exists := r.factories[t]
		if !exists {
			return nil, &UnknownNodeTypeError{Type: t}
		}
		result[t] = f.Descriptor()
	}

	return result, nil
}

// Types возвращает отсортированный список зарегистрированных типов.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Count возвращает количество зарегистрированных типов.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}
