package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState — операция невозможна в текущем состоянии.
	ErrInvalidState = errors.New("invalid state")

	// ErrLockContention — request уже удержан другим владельцем
	// (или исчез из этапа). Не ошибка обработки: воркер просто
	// пропускает такой request.
	ErrLockContention = errors.New("request locked by another owner")

	// ErrLockNotHeld — операция требует живого lock вызывающего владельца.
	ErrLockNotHeld = errors.New("lock not held")
)
