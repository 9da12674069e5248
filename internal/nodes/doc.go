// Package nodes содержит реестр типов узлов и встроенные реализации.
//
// # Обзор
//
// Узел — минимальная единица выполнения workflow. Каждый узел:
//   - Получает параметры с уже разрешёнными ${...} выражениями
//     (подстановкой занимается обёртка в engine)
//   - Выполняет действие (HTTP запрос, задержка, трансформация)
//   - Возвращает Result с outputs и action для выбора перехода
//
// Узлы не имеют доступа к SharedStore: запись outputs в namespace
// узла выполняет обёртка. Благодаря этому узлы внутри конкурентной
// группы физически не могут писать в чужой scope.
//
// # Интерфейсы Node и Factory
//
//	type Node interface {
//	    ID() string
//	    Type() string
//	    Run(ctx context.Context, req *Request) (*Result, error)
//	}
//
//	type Factory interface {
//	    Type() string
//	    Descriptor() *domain.NodeDescriptor
//	    New(def *domain.NodeDef) (Node, error)
//	}
//
// Descriptor декларируется статически рядом с фабрикой — это
// источник данных для валидатора шаблонов: по нему проверяются
// пути ${output.child} до выполнения.
//
// # Registry
//
//	registry := nodes.DefaultRegistry() // echo, set, http, delay, transform
//	factory, err := registry.Get("http")
//	descs, err := registry.GetInterfaces([]string{"http", "echo"})
//
// Несуществующий тип — UnknownNodeTypeError.
//
// # Встроенные типы узлов
//
// ## echo — логирует msg и возвращает его как output.
//
// ## set — записывает values в scope выполнения.
//
// ## http — HTTP запрос; outputs: response{status_code, headers, body}.
// Статус >= 400 возвращает action "error" с сохранёнными outputs.
//
// ## delay — пауза (duration_sec / duration_ms), отменяемая через context.
//
// ## transform — собирает новые значения из mappings; с parse_json=true
// строковые значения парсятся как JSON.
//
// Типы "workflow" (вложенный workflow) и "parallel" (конкурентная группа)
// реализованы в engine: им нужны компилятор и групповой исполнитель.
//
// # Обработка ошибок
//
// Инфраструктурные ошибки возвращаются через error и проходят через
// цепочку обёрток без изменений — retry политика узла видит каждую
// попытку. Логические ошибки (HTTP >= 400) возвращаются как action
// "error" с outputs для маршрутизации внутри workflow.
package nodes
