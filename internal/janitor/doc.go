// Package janitor реализует периодическую уборку Request Store.
//
// # Обзор
//
// Две неисправности, которые агенты не чинят сами:
//
//   - lock с истёкшим lease: владелец умер, не вызвав release.
//     Fetch и Lock и без уборки считают такую строку свободной,
//     но lock-колонки остаются заполненными и мешают наблюдению.
//   - request, переживший свой lifetime: ни один агент его больше
//     не продвинет, но в терминальное состояние он сам не перейдёт.
//
// Janitor раз в расписание (cron-выражение [janitor] schedule)
// снимает первые и переводит вторые в Failed с reason "request
// lifetime exceeded". GracePeriod даёт просроченным requests отсрочку
// перед приговором.
//
// # Единственность
//
// Уборка идемпотентна, но гонять её с нескольких реплик бессмысленно.
// Процесс conveyor-janitor берёт advisory lock в Postgres и работает
// только будучи лидером; сам пакет об этом не знает.
package janitor
