// Package config загружает секционированный key-value конфигурационный файл.
//
// Путь к файлу: переменная окружения CONVEYOR_CONFIG, по умолчанию
// /etc/conveyor/conveyor.cfg.
//
// Секции верхнего уровня:
//   - [common]   — logdir, loglevel
//   - [database] — default (connect string), pool_size, pool_recycle, echo, pool_reset_on_return
//   - [rest]     — host, url_prefix, cacher_dir
//   - [main]     — agents (упорядоченный список агентов процесса)
//   - [janitor]  — schedule (cron), expiry_grace_period
//   - по секции на каждого агента из [main] agents
//
// Секция агента:
//
//	[carrier]
//	num_threads = 4
//	poll_time_period = 30
//	retrieve_bulk_size = 20
//	plugin.submitter = fallback.submitter
//	plugin.submitter.plugin.primary = http.submitter
//	plugin.submitter.plugin.primary.endpoint = https://backend/api/submit
//	plugin.submitter.plugin.secondary = @legacy
//	plugin.legacy = http.submitter
//	plugin.legacy.endpoint = https://legacy/api/submit
//	plugin.poller = http.poller
//	plugin.poller.endpoint = https://backend/api/status
//
// Ключи plugin.* образуют рекурсивное дерево привязок: plugin.<name>
// задаёт реализацию, plugin.<name>.<attr> — атрибут, а
// plugin.<name>.plugin.<inner>... — вложенную привязку без ограничения
// глубины. Значение "@<sibling>" ссылается на соседнюю привязку той же
// секции; циклы ссылок отклоняет реестр плагинов при разрешении.
//
// Использование:
//
//	cfg, err := config.Load(config.DefaultPath())
//	if err != nil {
//	    // фатально: процесс не стартует с неполной конфигурацией
//	}
//
// Config неизменяем после Load и передаётся в компоненты явно.
package config
