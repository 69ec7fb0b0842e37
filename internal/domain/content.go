package domain

import (
	"time"

	"github.com/google/uuid"
)

// ContentStatus — статус элемента коллекции.
type ContentStatus string

const (
	// ContentStatusNew — content обнаружен листингом, но ещё не доступен.
	ContentStatusNew ContentStatus = "New"

	// ContentStatusAvailable — content доступен для обработки.
	ContentStatusAvailable ContentStatus = "Available"
)

// Content — элемент коллекции (файл или диапазон событий),
// обнаруженный при листинге и зарегистрированный transporter'ом.
type Content struct {
	// ID — уникальный идентификатор content.
	ID uuid.UUID `json:"id"`

	// RequestID — ссылка на родительский request.
	RequestID uuid.UUID `json:"request_id"`

	// Scope — пространство имён content.
	Scope string `json:"scope"`

	// Name — имя content внутри scope.
	Name string `json:"name"`

	// MinID, MaxID — диапазон обрабатываемых единиц внутри content
	// (например, событий в файле). 0/0 — content целиком.
	MinID int64 `json:"min_id"`
	MaxID int64 `json:"max_id"`

	// ContentType — тип content: "file", "dataset", "pseudo".
	ContentType string `json:"content_type"`

	// Bytes — размер в байтах.
	Bytes int64 `json:"bytes"`

	// Adler32 — контрольная сумма.
	Adler32 string `json:"adler32,omitempty"`

	// Path — физический путь или URL.
	Path string `json:"path,omitempty"`

	// Status — статус content.
	Status ContentStatus `json:"status"`

	// CreatedAt — время регистрации.
	CreatedAt time.Time `json:"created_at"`
}
