// Package pipeline связывает агентов с этапами конвейера.
//
// # Обзор
//
// Агент из пакета agent — универсальный runtime: он умеет выбирать,
// захватывать и продвигать requests, но не знает, какой этап кому
// принадлежит и что на нём делается. Пакет pipeline содержит это
// знание: таблицу владения переходами и обработчики этапов,
// построенные поверх плагинов агента.
//
// # Таблица владения
//
// Каждым переходом владеет ровно один агент:
//
//	collector    Created             → CollectionListed   (Lister)
//	transformer  CollectionListed    → Transformed        (MetadataReader)
//	transporter  Transformed         → ContentRegistered  (ContentsRegister)
//	carrier      ContentRegistered   → Submitted          (Submitter)
//	carrier      Submitted, Polling  → Polling | Completed (Poller)
//	conductor    Completed           → Notified           (Notifier)
//
// Failed достижим из любого нетерминального этапа после исчерпания
// retry-бюджета; обратно request возвращает только ручной reset.
// ValidateAgents проверяет список [main] agents до запуска: незнакомое
// имя или повтор (этап с двумя владельцами) — ошибка конфигурации.
//
// # Сборка
//
// Build разрешает привязки агента через plugin.Resolver и возвращает
// готовые agent.StageTask:
//
//	tasks, err := pipeline.Build("carrier", resolver, pipeline.Config{Logger: logger})
//	if err != nil {
//	    // конфигурация неполна, агент не стартует
//	}
//
// Carrier — единственный агент с несколькими задачами: submit на
// ContentRegistered и общий poller на Submitted и Polling. Поэтому
// его цикл обходит три этапа, остальные агенты обходят один.
//
// # Передача результатов между этапами
//
// Этапы общаются только через payload request'а:
//
//	collector    пишет total_files, total_bytes, contents
//	transformer  пишет metadata
//	transporter  читает contents, пишет registered_contents
//	carrier      пишет submit_handle, затем читает его при опросе;
//	             при завершении пишет outputs backend'а
//
// Payload после БД — карты и списки из JSON, поэтому обработчики
// декодируют значения, а не приводят типы напрямую.
//
// # Партии conductor'а
//
// Уведомления доставляются партиями не больше message_bulk_size.
// Доставка у брокера групповая: отказ партии — общий исход всех её
// requests, каждый уйдёт в retry со своим счётчиком. Завершённость
// request'а уведомление не откатывает: Completed остаётся позади,
// повторяется только доставка.
package pipeline
