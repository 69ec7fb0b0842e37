package pipeline

import "errors"

// Ошибки сборки конвейера.
var (
	// ErrUnknownAgent — имя агента не входит в таблицу конвейера.
	ErrUnknownAgent = errors.New("unknown agent name")

	// ErrDuplicateAgent — агент перечислен в [main] agents более одного раза.
	ErrDuplicateAgent = errors.New("agent listed more than once")

	// ErrNoSubmitHandle — у request'а на этапе опроса нет tracking handle.
	ErrNoSubmitHandle = errors.New("request has no submit handle")
)
