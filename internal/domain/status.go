package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
type RunStatus string

const (
	// RunStatusPending — run создан, но ещё не начал выполняться.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — run успешно завершён.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — run завершился с ошибкой.
	RunStatusFailed RunStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed:
		return true
	default:
		return false
	}
}

// NodeStatus — статус выполнения отдельного узла.
//
// Используется в телеметрии и событиях жизненного цикла.
type NodeStatus string

const (
	// NodeStatusRunning — узел выполняется.
	NodeStatusRunning NodeStatus = "RUNNING"

	// NodeStatusSucceeded — узел успешно завершён.
	NodeStatusSucceeded NodeStatus = "SUCCEEDED"

	// NodeStatusFailed — узел завершился с ошибкой (после всех retry).
	NodeStatusFailed NodeStatus = "FAILED"
)
