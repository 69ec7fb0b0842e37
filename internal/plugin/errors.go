package plugin

import (
	"errors"
	"fmt"
)

// Ошибки реестра и разрешения плагинов.
//
// Все они обнаруживаются при старте процесса, во время разрешения
// привязок агента, и означают непригодную конфигурацию: процесс
// завершается, частично сконфигурированный агент не запускается.
var (
	// ErrUnknownImpl — в привязке указана незарегистрированная реализация.
	ErrUnknownImpl = errors.New("unknown plugin implementation")

	// ErrMissingBinding — агенту нужна привязка, которой нет в конфигурации.
	ErrMissingBinding = errors.New("plugin binding not configured")

	// ErrCapabilityMismatch — реализация не предоставляет требуемую capability.
	ErrCapabilityMismatch = errors.New("plugin does not provide capability")

	// ErrPluginCycle — ссылки плагинов образуют цикл.
	ErrPluginCycle = errors.New("plugin reference cycle")

	// ErrUnknownRef — ссылка @name указывает на несуществующую привязку.
	ErrUnknownRef = errors.New("unknown plugin reference")

	// ErrMissingAttr — у привязки нет обязательного атрибута.
	ErrMissingAttr = errors.New("missing plugin attribute")

	// ErrInvalidAttr — атрибут привязки имеет непригодное значение.
	ErrInvalidAttr = errors.New("invalid plugin attribute")
)

// ConfigError — ошибка конфигурации плагина с точным путём до привязки.
//
// Path ведёт от секции агента до проблемного места, например
// "carrier: plugin.submitter.plugin.primary". Оборачивает один из
// сентинелов выше, проверяется через errors.Is.
type ConfigError struct {
	// Agent — имя агента, чья конфигурация непригодна.
	Agent string

	// Path — путь до привязки внутри секции агента.
	Path string

	// Message — описание проблемы.
	Message string

	// Err — обёрнутая ошибка (сентинел).
	Err error
}

// Error реализует интерфейс error.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Agent, e.Path, e.Message)
}

// Unwrap возвращает обёрнутую ошибку.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// newConfigError создаёт ConfigError.
func newConfigError(agent, path, message string, err error) *ConfigError {
	return &ConfigError{
		Agent:   agent,
		Path:    path,
		Message: message,
		Err:     err,
	}
}
