package domain

import (
	"time"

	"github.com/google/uuid"
)

// Request — единица работы, проходящая через конвейер этапов.
//
// Request создаётся в этапе Created (через conveyor-admin или
// встраивающий код). Дальше его двигают агенты: каждый агент забирает
// requests своего этапа из Request Store, вызывает backend-плагин и
// при успехе переводит request на следующий этап.
type Request struct {
	// ID — уникальный идентификатор request. Неизменяем.
	ID uuid.UUID `json:"id"`

	// Scope — пространство имён запрошенной коллекции.
	Scope string `json:"scope"`

	// Name — имя коллекции внутри scope.
	Name string `json:"name"`

	// Requester — кто создал request.
	Requester string `json:"requester,omitempty"`

	// Priority — приоритет request. Хранится и отображается;
	// на порядок выборки не влияет (выборка строго oldest-updated-first).
	Priority int `json:"priority"`

	// Stage — текущий этап конвейера. Ровно один в любой момент.
	Stage Stage `json:"stage"`

	// Payload — данные этапов. Каждый агент дописывает сюда результат
	// своего этапа (merge, не замена).
	Payload map[string]any `json:"payload,omitempty"`

	// Retries — счётчик неудачных попыток текущего этапа.
	// Сбрасывается при успешном переходе на следующий этап.
	Retries int `json:"retries"`

	// Reason — текст последней ошибки.
	Reason string `json:"reason,omitempty"`

	// LockedBy — owner token воркера, удерживающего lock. nil — свободен.
	LockedBy *string `json:"locked_by,omitempty"`

	// LockExpiresAt — момент истечения lease. Истёкший lock
	// эквивалентен свободному.
	LockExpiresAt *time.Time `json:"lock_expires_at,omitempty"`

	// ExpiresAt — lifetime request. После этого момента janitor
	// переводит request в Failed. nil — без ограничения.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения. Основа порядка выборки.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsLocked возвращает true, если lock удерживается и lease ещё жив.
func (r *Request) IsLocked(now time.Time) bool {
	return r.LockedBy != nil && r.LockExpiresAt != nil && r.LockExpiresAt.After(now)
}

// IsExpired возвращает true, если lifetime request истёк.
func (r *Request) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// Advance переводит request на этап next и мержит delta в payload.
// Retry-счётчик сбрасывается: у каждого этапа свой бюджет попыток.
func (r *Request) Advance(next Stage, delta map[string]any) {
	r.Stage = next
	if len(delta) > 0 {
		if r.Payload == nil {
			r.Payload = make(map[string]any, len(delta))
		}
		for k, v := range delta {
			r.Payload[k] = v
		}
	}
	r.Retries = 0
	r.Reason = ""
	r.UpdatedAt = time.Now()
}

// MarkFailed переводит request в Failed с причиной и снимает lock.
func (r *Request) MarkFailed(reason string) {
	r.Stage = StageFailed
	r.Reason = reason
	r.LockedBy = nil
	r.LockExpiresAt = nil
	r.UpdatedAt = time.Now()
}

// ResetFailed возвращает Failed request в работу на указанный этап.
// Сбрасывает retry-счётчик, причину и lock.
func (r *Request) ResetFailed(stage Stage) {
	r.Stage = stage
	r.Retries = 0
	r.Reason = ""
	r.LockedBy = nil
	r.LockExpiresAt = nil
	r.UpdatedAt = time.Now()
}
