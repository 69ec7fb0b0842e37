// Package agent реализует универсальный poll-execute-sleep runtime агентов.
//
// # Обзор
//
// Agent — единственный механизм продвижения requests по конвейеру.
// Каждый агент (collector, transformer, transporter, carrier,
// conductor) — это экземпляр одного и того же runtime, различающийся
// только этапом выборки и обработчиком. Агент отвечает за:
//
//   - Периодическую выборку requests своего этапа из Request Store
//   - Атомарный захват каждого кандидата lock'ом с lease
//   - Передачу захваченного batch'а диспетчеру
//   - Экспоненциальную паузу цикла при отказе store
//
// Агенты масштабируются горизонтально: несколько процессов одного
// агента конкурируют за requests через locking-контракт store, без
// какой-либо координации между собой.
//
// # Ключевые компоненты
//
// ## Agent
//
// Основная структура, управляющая жизненным циклом воркеров.
// Создаётся через New(cfg Config) и запускается методом Start(ctx).
//
//	ag := agent.New(agent.Config{
//	    Name:  "collector",
//	    Tasks: []agent.StageTask{{Stage: domain.StageCreated, Handler: h}},
//	    Store: requestRepo,
//	    NumThreads: 2,
//	    PollPeriod: 30 * time.Second,
//	    Logger:     logger,
//	})
//
//	if err := ag.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer ag.Stop()
//
// num_threads воркеров гоняют одинаковый цикл параллельно. Такт цикла
// отсчитывается от начала цикла к началу следующего: затянувшийся цикл
// начинает преемника сразу, без накопления задержки.
//
// ## Handler
//
// Интерфейс операции этапа над группой requests:
//
//	type Handler interface {
//	    HandleBatch(ctx context.Context, batch []*domain.Request) []Outcome
//	}
//
// Реализации собирает пакет pipeline из плагинов агента.
//
// ## Dispatcher
//
// Режет захваченный batch на группы не больше retrieve_bulk_size,
// зовёт обработчик по группе с таймаутом invoke_timeout и разводит
// исходы по отдельным записям store: batch из N requests даёт
// ceil(N/bulk_size) инвокаций, и каждый request получает независимый
// исход.
//
// ## Supervisor
//
// Управляет агентами одного процесса: запуск в порядке [main] agents
// с откатом при отказе, остановка в обратном порядке.
//
// # Исходы
//
// Каждый request захваченного batch'а заканчивает цикл ровно одним из:
//
//  1. Advanced — перевод на следующий этап (Advance + Release)
//  2. Retried — отказ backend'а, retry-счётчик увеличен, lock снят;
//     request подберёт один из следующих циклов
//  3. Failed — бюджет попыток исчерпан, request в Failed с последней
//     причиной (MarkFailed снимает lock сам)
//
// Отказ одного request'а никогда не прерывает обработку соседей по
// batch'у и не прерывает цикл.
//
// # Ошибки
//
// Пакет различает два уровня ошибок:
//   - Отказы store (fetch/lock недоступны) — ставят весь цикл на
//     экспоненциальную паузу от 1s до 60s, не трогая requests
//   - Отказы backend'а (ошибка обработчика) — локальны для request'а
//     и конвертируются в инкремент его retry-счётчика
//
// Contention на lock'е ошибкой не является: request просто
// пропускается, им занят другой воркер.
package agent
