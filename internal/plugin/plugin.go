package plugin

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Capability — именованная способность, которую агент требует от плагина.
//
// Привязка в конфигурации задаёт реализацию, capability задаёт контракт:
// при разрешении проверяется, что созданный экземпляр реализует
// интерфейс требуемой capability.
type Capability string

// Capabilities агентов конвейера.
const (
	// CapabilityLister — перечисление содержимого коллекции (collector).
	CapabilityLister Capability = "collection_lister"

	// CapabilityMetadataReader — чтение метаданных коллекции (transformer).
	CapabilityMetadataReader Capability = "metadata_reader"

	// CapabilityContentsRegister — регистрация content-записей (transporter).
	CapabilityContentsRegister Capability = "contents_register"

	// CapabilitySubmitter — отправка запроса во внешний backend (carrier).
	CapabilitySubmitter Capability = "submitter"

	// CapabilityPoller — опрос состояния внешней обработки (carrier).
	CapabilityPoller Capability = "poller"

	// CapabilityNotifier — доставка уведомлений о терминальных статусах (conductor).
	CapabilityNotifier Capability = "notifier"
)

// Collection — коллекция данных, к которой относится request.
type Collection struct {
	// Scope — пространство имён коллекции.
	Scope string

	// Name — имя коллекции внутри scope.
	Name string
}

// Listing — результат перечисления коллекции.
type Listing struct {
	// Contents — перечисленные элементы коллекции.
	Contents []domain.Content

	// TotalFiles — число элементов в коллекции.
	TotalFiles int

	// TotalBytes — суммарный размер коллекции.
	TotalBytes int64
}

// PollResult — результат одного опроса внешней обработки.
type PollResult struct {
	// Done — обработка завершилась успешно; request готов к Completed.
	// false означает, что обработка продолжается и нужен следующий опрос.
	Done bool

	// Outputs — данные о ходе обработки, добавляются в payload request'а.
	Outputs map[string]any
}

// Notification — уведомление о достижении request'ом терминального статуса.
type Notification struct {
	// RequestID — идентификатор request'а.
	RequestID uuid.UUID

	// Scope, Name — коллекция request'а.
	Scope string
	Name  string

	// Requester — инициатор request'а.
	Requester string

	// Stage — терминальный этап (Completed или Failed).
	Stage domain.Stage

	// Reason — причина отказа, для Failed.
	Reason string
}

// Lister перечисляет содержимое коллекции.
//
// Реализуется плагинами collector'а.
type Lister interface {
	ListCollection(ctx context.Context, coll Collection) (*Listing, error)
}

// MetadataReader читает метаданные коллекции.
//
// Реализуется плагинами transformer'а: из метаданных строится
// описание преобразования в payload request'а.
type MetadataReader interface {
	ReadMetadata(ctx context.Context, coll Collection) (map[string]any, error)
}

// ContentsRegister регистрирует content-записи request'а.
//
// Реализуется плагинами transporter'а. Возвращает число
// зарегистрированных записей.
type ContentsRegister interface {
	RegisterContents(ctx context.Context, requestID uuid.UUID, contents []domain.Content) (int64, error)
}

// Submitter отправляет request во внешний обрабатывающий backend.
//
// Реализуется плагинами carrier'а. Возвращает handle внешней
// обработки, по которому её затем опрашивает Poller.
type Submitter interface {
	Submit(ctx context.Context, req *domain.Request) (string, error)
}

// Poller опрашивает состояние внешней обработки по handle.
//
// Реализуется плагинами carrier'а. Отказ внешней обработки
// возвращается как ошибка; Done=false при nil ошибке означает
// "ещё выполняется".
type Poller interface {
	Poll(ctx context.Context, handle string) (*PollResult, error)
}

// Notifier доставляет пакет уведомлений внешним подписчикам.
//
// Реализуется плагинами conductor'а. Ошибка доставки любой части
// пакета возвращается как ошибка всего вызова.
type Notifier interface {
	Notify(ctx context.Context, batch []Notification) error
}

// ContentStore — доступ к хранилищу content-записей, который процесс
// передаёт плагинам. Реализуется repo.ContentRepo.
type ContentStore interface {
	RegisterBatch(ctx context.Context, contents []domain.Content) (int64, error)
}

// Deps — зависимости процесса, доступные фабрикам плагинов.
type Deps struct {
	// Contents — хранилище content-записей. Нужен store.contents_register.
	Contents ContentStore

	// Logger — логгер процесса.
	Logger *slog.Logger
}

// capabilityMatches проверяет, что экземпляр реализует интерфейс capability.
func capabilityMatches(instance any, cap Capability) bool {
	switch cap {
	case CapabilityLister:
		_, ok := instance.(Lister)
		return ok
	case CapabilityMetadataReader:
		_, ok := instance.(MetadataReader)
		return ok
	case CapabilityContentsRegister:
		_, ok := instance.(ContentsRegister)
		return ok
	case CapabilitySubmitter:
		_, ok := instance.(Submitter)
		return ok
	case CapabilityPoller:
		_, ok := instance.(Poller)
		return ok
	case CapabilityNotifier:
		_, ok := instance.(Notifier)
		return ok
	default:
		return false
	}
}
