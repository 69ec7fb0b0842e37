// Package telemetry обеспечивает наблюдаемость конвейера.
//
// Включает:
//   - logging.go — structured logging через slog; уровень и каталог
//     логов задаются секцией [common] конфигурации
//   - metrics.go — Prometheus счётчики агентов и уборки
//
// Все демоны используют единый формат логирования и экспортируют
// метрики на /metrics endpoint.
package telemetry
