// Package mq предоставляет инфраструктуру для публикации уведомлений
// в AMQP брокер.
//
// Структура:
//   - connection.go — управление соединением с брокером (reconnect, graceful shutdown)
//   - topology.go   — объявление очереди-назначения
//   - publisher.go  — публикация сообщений в очереди
//
// Типы сообщений:
//   - request.status — уведомление о смене статуса request'а
//
// Пакет исходящий: conveyor только публикует, подписка на очереди
// остаётся за внешними потребителями уведомлений.
package mq
