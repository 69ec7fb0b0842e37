// Package plugin содержит реестр плагинов и встроенные реализации
// backend-операций агентов.
//
// # Обзор
//
// Агенты не вызывают внешние системы напрямую: каждая backend-операция
// выражена capability (интерфейсом), а конкретная реализация выбирается
// привязками plugin.* из секции агента в конфигурации. Один и тот же
// агент в разных установках работает с разными backend'ами без
// изменения кода.
//
// # Capabilities
//
// Каждой capability соответствует интерфейс:
//
//	collection_lister  → Lister            (collector)
//	metadata_reader    → MetadataReader    (transformer)
//	contents_register  → ContentsRegister  (transporter)
//	submitter          → Submitter         (carrier)
//	poller             → Poller            (carrier)
//	notifier           → Notifier          (conductor)
//
// # Registry и Resolver
//
// Registry сопоставляет имя реализации с фабрикой:
//
//	registry := plugin.DefaultRegistry() // все встроенные реализации
//	registry.Register("custom.lister", newCustomLister)
//
// Resolver разрешает привязки одной секции агента. Разрешение идёт
// при старте процесса, до запуска воркеров: любая ошибка конфигурации
// (неизвестная реализация, отсутствующий атрибут, несовпадение
// capability, цикл ссылок) валит процесс целиком. Частично
// сконфигурированный агент никогда не начинает обрабатывать requests.
//
//	resolver := registry.NewResolver("carrier", bindings, deps)
//	submitter, err := resolver.Resolve("submitter", plugin.CapabilitySubmitter)
//
// # Вложенные привязки и ссылки
//
// Привязка может содержать вложенные привязки для плагинов-обёрток:
//
//	plugin.submitter = fallback.submitter
//	plugin.submitter.plugin.primary = http.submitter
//	plugin.submitter.plugin.primary.endpoint = https://backend-a/submit
//	plugin.submitter.plugin.secondary = @legacy
//	plugin.legacy = http.submitter
//	plugin.legacy.endpoint = https://backend-b/submit
//
// Значение @name — ссылка на привязку верхнего уровня той же секции.
// Разрешённые привязки кэшируются, поэтому две ссылки на @shared дают
// один экземпляр. Циклы ссылок обнаруживаются и отклоняются. Видимость
// ссылок ограничена секцией агента: одинаковые имена в разных секциях
// не мешают друг другу.
//
// # Встроенные реализации
//
// ## http.lister (http.go)
//
// Листинг коллекции через внешний каталог: GET {endpoint}/{scope}/{name}.
//
// ## http.metadata (http.go)
//
// Чтение метаданных коллекции: GET {endpoint}/{scope}/{name},
// произвольный JSON-объект в ответе.
//
// ## http.submitter (http.go)
//
// Отправка request'а в обрабатывающий backend: POST {endpoint},
// в ответе {"handle": "..."}.
//
// ## http.poller (http.go)
//
// Опрос обработки: GET {endpoint}/{handle}, в ответе
// {"status": "running"|"done"|"failed", "outputs": {...}}.
//
// Общие атрибуты HTTP-плагинов: endpoint (обязательный), timeout
// (секунды, default 30), header.<Name> (дополнительные заголовки).
//
// ## store.contents_register (contents.go)
//
// Регистрация content-записей в хранилище процесса. Атрибутов нет,
// требует ContentStore в Deps.
//
// ## messaging.notifier (notifier.go)
//
// Публикация уведомлений в AMQP брокер. Атрибуты: brokers, destination
// (обязательные), vhost, username, password, broker_timeout.
// Подключается лениво при первой доставке.
//
// ## fallback.submitter (fallback.go)
//
// Обёртка над двумя submitter'ами: primary, при отказе secondary.
//
// # Обработка ошибок
//
// Ошибки конфигурации типизированы:
//
//	var (
//	    ErrUnknownImpl        // незарегистрированная реализация
//	    ErrMissingBinding     // нет требуемой привязки
//	    ErrCapabilityMismatch // реализация не даёт capability
//	    ErrPluginCycle        // цикл ссылок @name
//	    ErrUnknownRef         // ссылка без цели
//	    ErrMissingAttr        // нет обязательного атрибута
//	    ErrInvalidAttr        // непригодное значение атрибута
//	)
//
// Все они оборачиваются в ConfigError с путём до привязки
// ("carrier: plugin.submitter.plugin.primary"). Ошибки самих вызовов
// плагинов (HTTP 500, недоступный брокер) типизированными не являются:
// их обрабатывает диспетчер агента через retry.
//
// # Файлы пакета
//
//   - plugin.go   — capabilities, интерфейсы, типы данных, Deps
//   - registry.go — Registry, Resolver, FactoryContext
//   - errors.go   — сентинелы и ConfigError
//   - http.go     — HTTP-реализации
//   - contents.go — store.contents_register
//   - notifier.go — messaging.notifier
//   - fallback.go — fallback.submitter
package plugin
