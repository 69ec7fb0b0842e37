// Package cli реализует административный инструмент conveyor-admin.
//
// # Обзор
//
// CLI — операторская утилита для ручных вмешательств в конвейер:
// создать request, посмотреть его состояние и contents, вернуть
// Failed request в работу. Оркестрационное ядро REST-интерфейса не
// имеет, поэтому CLI работает с Postgres напрямую через internal/repo.
//
// # Ключевые компоненты
//
// ## Stores
//
// Репозитории requests и contents. Подключение к БД открывается
// лениво через StoresFn — после парсинга PersistentFlags, когда
// известен путь к конфигурационному файлу (--config).
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: conveyor-admin request list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - request: list, show, create, reset
//   - contents: list
//
// Каждая группа создаётся через фабричную функцию (NewRequestCmd и
// т.д.), принимающую storesFn и outputFn — замыкания для ленивого
// создания Stores и Output после парсинга PersistentFlags.
//
// reset — единственный легальный выход из Failed: retry-счётчик и
// причина сбрасываются, request возвращается на указанный этап
// (по умолчанию Created).
package cli
