package agent

import "errors"

// Ошибки runtime агента.
var (
	// ErrNoStore — агенту не передано хранилище requests.
	ErrNoStore = errors.New("agent has no request store")

	// ErrNoTasks — агент сконфигурирован без этапов.
	ErrNoTasks = errors.New("agent has no stage tasks")

	// ErrAgentStopped — агент остановлен.
	ErrAgentStopped = errors.New("agent stopped")
)
