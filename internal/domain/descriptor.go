package domain

// NodeDescriptor — описание интерфейса типа узла в реестре.
//
// Descriptor создаётся один раз при регистрации фабрики узла
// и никогда не мутируется. Валидатор шаблонов использует его
// для статической проверки ссылок ${...} до выполнения.
type NodeDescriptor struct {
	// Type — имя типа узла ("http", "echo", ...).
	Type string `json:"type"`

	// Interface — декларация входов/выходов/параметров/действий.
	Interface InterfaceDef `json:"interface"`
}

// InterfaceDef — интерфейс типа узла.
type InterfaceDef struct {
	// Description — описание назначения типа узла.
	Description string `json:"description,omitempty"`

	// Inputs — значения, которые узел читает из scope выполнения.
	Inputs []PortDef `json:"inputs,omitempty"`

	// Outputs — значения, которые узел записывает в свой namespace.
	Outputs []PortDef `json:"outputs,omitempty"`

	// Params — параметры конфигурации узла.
	Params []ParamDef `json:"params,omitempty"`

	// Actions — действия, которые узел может вернуть.
	// Пустой список означает только действие по умолчанию.
	Actions []string `json:"actions,omitempty"`
}

// PortDef — описание входа или выхода узла.
type PortDef struct {
	// Key — имя значения.
	Key string `json:"key"`

	// Type — тип значения: "string", "number", "boolean", "dict", "list", "any".
	Type string `json:"type"`

	// Description — описание значения.
	Description string `json:"description,omitempty"`

	// Structure — рекурсивное описание формы dict-значения.
	// Ключ — имя дочернего поля. Необходимо для статической проверки
	// путей вида ${output.child.grandchild}.
	Structure map[string]*PortDef `json:"structure,omitempty"`
}

// ParamDef — описание параметра конфигурации узла.
type ParamDef struct {
	// Key — имя параметра.
	Key string `json:"key"`

	// Type — тип параметра.
	Type string `json:"type"`

	// Description — описание параметра.
	Description string `json:"description,omitempty"`

	// Required — обязательный ли параметр.
	Required bool `json:"required,omitempty"`
}

// FindOutput возвращает описание выхода по ключу или nil.
func (i *InterfaceDef) FindOutput(key string) *PortDef {
	for idx := range i.Outputs {
		if i.Outputs[idx].Key == key {
			return &i.Outputs[idx]
		}
	}
	return nil
}

// IsDict возвращает true, если порт имеет dict-форму
// (по нему можно продолжать путь ${...}).
func (p *PortDef) IsDict() bool {
	return p.Type == "dict" || p.Type == "object" || len(p.Structure) > 0
}

// Child возвращает описание дочернего поля dict-порта или nil.
func (p *PortDef) Child(key string) *PortDef {
	if p.Structure == nil {
		return nil
	}
	return p.Structure[key]
}
