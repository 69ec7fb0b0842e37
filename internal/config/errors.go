package config

import "errors"

// Ошибки загрузки и валидации конфигурации.
// Любая из них фатальна: процесс не должен стартовать с неполной конфигурацией.
var (
	// ErrMissingSection — обязательная секция отсутствует.
	ErrMissingSection = errors.New("missing config section")

	// ErrMissingKey — обязательный ключ отсутствует.
	ErrMissingKey = errors.New("missing config key")

	// ErrInvalidValue — значение ключа вне допустимого диапазона.
	ErrInvalidValue = errors.New("invalid config value")

	// ErrNoAgents — секция [main] не содержит ни одного агента.
	ErrNoAgents = errors.New("no agents configured")

	// ErrDuplicateAgent — агент указан в [main] agents дважды.
	ErrDuplicateAgent = errors.New("duplicate agent in agents list")

	// ErrMissingImpl — привязка плагина без идентификатора реализации.
	ErrMissingImpl = errors.New("plugin binding has no implementation")

	// ErrInvalidPluginKey — ключ plugin.* не разбирается по грамматике привязок.
	ErrInvalidPluginKey = errors.New("malformed plugin key")
)

// ValidationError — ошибка валидации конфигурации с контекстом.
type ValidationError struct {
	Section string // секция, где произошла ошибка
	Key     string // ключ, вызвавший ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	switch {
	case e.Section != "" && e.Key != "":
		return "config [" + e.Section + "] " + e.Key + ": " + e.Message
	case e.Section != "":
		return "config [" + e.Section + "]: " + e.Message
	default:
		return "config: " + e.Message
	}
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(section, key, message string, err error) *ValidationError {
	return &ValidationError{
		Section: section,
		Key:     key,
		Message: message,
		Err:     err,
	}
}
