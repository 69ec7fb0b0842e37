package plugin

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/config"
)

// Factory создаёт экземпляр плагина из привязки.
//
// fc даёт доступ к зависимостям процесса и разрешению вложенных
// привязок. Фабрика валидирует атрибуты и возвращает ConfigError
// при непригодной конфигурации; сетевые соединения она не открывает.
type Factory func(fc *FactoryContext, binding *config.PluginBinding) (any, error)

// Registry — реестр реализаций плагинов.
//
// Сопоставляет имя реализации (значение ключа plugin.<name> в
// конфигурации) с фабрикой. Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry создаёт реестр со всеми встроенными реализациями.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	// Регистрируем все встроенные реализации
	r.Register("http.lister", newHTTPLister)
	r.Register("http.metadata", newHTTPMetadataReader)
	r.Register("http.submitter", newHTTPSubmitter)
	r.Register("http.poller", newHTTPPoller)
	r.Register("store.contents_register", newStoreContentsRegister)
	r.Register("messaging.notifier", newMessagingNotifier)
	r.Register("fallback.submitter", newFallbackSubmitter)

	return r
}

// Register регистрирует фабрику реализации.
// Если реализация с таким именем уже есть, она будет перезаписана.
func (r *Registry) Register(impl string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[impl] = factory
}

// Has проверяет, зарегистрирована ли реализация.
func (r *Registry) Has(impl string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[impl]
	return exists
}

// Impls возвращает список всех зарегистрированных реализаций.
func (r *Registry) Impls() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	impls := make([]string, 0, len(r.factories))
	for impl := range r.factories {
		impls = append(impls, impl)
	}
	sort.Strings(impls)
	return impls
}

// Count возвращает количество зарегистрированных реализаций.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}

// Unregister удаляет реализацию из реестра.
func (r *Registry) Unregister(impl string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, impl)
}

// factory возвращает фабрику реализации.
func (r *Registry) factory(impl string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, exists := r.factories[impl]
	return f, exists
}

// Resolver разрешает привязки плагинов одного агента.
//
// Видимость ограничена секцией агента: ссылки @name разрешаются
// только среди привязок верхнего уровня этой же секции. Разрешённые
// привязки кэшируются, поэтому две ссылки на @shared получают один
// и тот же экземпляр.
//
// Resolver не потокобезопасен: все привязки агента разрешаются
// однократно при старте процесса, до запуска воркеров.
type Resolver struct {
	registry *Registry
	agent    string
	bindings map[string]*config.PluginBinding
	deps     Deps

	// visiting — имена верхнего уровня в текущей цепочке разрешения.
	// Повторная встреча имени означает цикл ссылок.
	visiting map[string]bool

	// resolved — кэш созданных экземпляров по имени верхнего уровня.
	resolved map[string]any

	// created — все созданные экземпляры в порядке создания,
	// включая вложенные. Для Close.
	created []any
}

// NewResolver создаёт Resolver для привязок одного агента.
func (r *Registry) NewResolver(agent string, bindings map[string]*config.PluginBinding, deps Deps) *Resolver {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Resolver{
		registry: r,
		agent:    agent,
		bindings: bindings,
		deps:     deps,
		visiting: make(map[string]bool),
		resolved: make(map[string]any),
	}
}

// Resolve разрешает привязку верхнего уровня с требуемой capability.
func (r *Resolver) Resolve(name string, cap Capability) (any, error) {
	binding, ok := r.bindings[name]
	if !ok {
		return nil, newConfigError(r.agent, "plugin."+name,
			fmt.Sprintf("binding required for capability %s is not configured", cap),
			ErrMissingBinding)
	}

	instance, err := r.resolveTop(name)
	if err != nil {
		return nil, err
	}

	if !capabilityMatches(instance, cap) {
		return nil, newConfigError(r.agent, "plugin."+name,
			fmt.Sprintf("implementation %q does not provide capability %s", binding.Impl, cap),
			ErrCapabilityMismatch)
	}

	return instance, nil
}

// resolveTop разрешает привязку верхнего уровня по имени.
//
// Кэш проверяется до пометки visiting: повторное обращение к уже
// созданному экземпляру циклом не является.
func (r *Resolver) resolveTop(name string) (any, error) {
	if instance, ok := r.resolved[name]; ok {
		return instance, nil
	}

	if r.visiting[name] {
		return nil, newConfigError(r.agent, "plugin."+name,
			fmt.Sprintf("reference cycle through %q", name), ErrPluginCycle)
	}

	binding := r.bindings[name]
	r.visiting[name] = true
	defer delete(r.visiting, name)

	instance, err := r.instantiate("plugin."+name, binding)
	if err != nil {
		return nil, err
	}

	r.resolved[name] = instance
	return instance, nil
}

// instantiate создаёт экземпляр по привязке.
//
// Ссылка @name перенаправляется на привязку верхнего уровня;
// инлайновая привязка идёт через фабрику реализации.
func (r *Resolver) instantiate(path string, binding *config.PluginBinding) (any, error) {
	if binding.IsRef() {
		target := binding.RefTarget()
		if _, ok := r.bindings[target]; !ok {
			return nil, newConfigError(r.agent, path,
				fmt.Sprintf("reference %s has no target binding", binding.Impl),
				ErrUnknownRef)
		}
		return r.resolveTop(target)
	}

	factory, ok := r.registry.factory(binding.Impl)
	if !ok {
		return nil, newConfigError(r.agent, path,
			fmt.Sprintf("implementation %q is not registered", binding.Impl),
			ErrUnknownImpl)
	}

	fc := &FactoryContext{resolver: r, path: path}
	instance, err := factory(fc, binding)
	if err != nil {
		return nil, err
	}

	r.created = append(r.created, instance)
	return instance, nil
}

// Close закрывает все созданные экземпляры, реализующие io.Closer,
// в порядке, обратном созданию.
func (r *Resolver) Close() error {
	var firstErr error
	for i := len(r.created) - 1; i >= 0; i-- {
		closer, ok := r.created[i].(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// FactoryContext — контекст создания одного плагина.
//
// Передаётся фабрике; знает путь до привязки для точных ошибок
// конфигурации и умеет разрешать вложенные привязки.
type FactoryContext struct {
	resolver *Resolver
	path     string
}

// Agent возвращает имя агента, для которого создаётся плагин.
func (fc *FactoryContext) Agent() string {
	return fc.resolver.agent
}

// Deps возвращает зависимости процесса.
func (fc *FactoryContext) Deps() Deps {
	return fc.resolver.deps
}

// Logger возвращает логгер процесса.
func (fc *FactoryContext) Logger() *slog.Logger {
	return fc.resolver.deps.Logger
}

// ResolveNested разрешает вложенную привязку binding с требуемой capability.
//
// Используется фабриками-обёртками (fallback.submitter) для создания
// своих частей. Вложенная привязка может быть как инлайновой, так и
// ссылкой @name на привязку верхнего уровня.
func (fc *FactoryContext) ResolveNested(binding *config.PluginBinding, name string, cap Capability) (any, error) {
	nested, ok := binding.Nested[name]
	if !ok {
		return nil, newConfigError(fc.resolver.agent, fc.path+".plugin."+name,
			fmt.Sprintf("nested binding required for capability %s is not configured", cap),
			ErrMissingBinding)
	}

	path := fc.path + ".plugin." + name
	instance, err := fc.resolver.instantiate(path, nested)
	if err != nil {
		return nil, err
	}

	if !capabilityMatches(instance, cap) {
		return nil, newConfigError(fc.resolver.agent, path,
			fmt.Sprintf("implementation %q does not provide capability %s", nested.Impl, cap),
			ErrCapabilityMismatch)
	}

	return instance, nil
}

// RequireAttr возвращает обязательный атрибут привязки.
func (fc *FactoryContext) RequireAttr(binding *config.PluginBinding, name string) (string, error) {
	v, ok := binding.Attr(name)
	if !ok || v == "" {
		return "", newConfigError(fc.resolver.agent, fc.path,
			fmt.Sprintf("attribute %q is required for %s", name, binding.Impl),
			ErrMissingAttr)
	}
	return v, nil
}

// AttrSeconds читает атрибут-длительность, заданную в секундах.
func (fc *FactoryContext) AttrSeconds(binding *config.PluginBinding, name string, def time.Duration) (time.Duration, error) {
	v, ok := binding.Attr(name)
	if !ok || v == "" {
		return def, nil
	}

	sec, err := strconv.Atoi(v)
	if err != nil || sec <= 0 {
		return 0, newConfigError(fc.resolver.agent, fc.path,
			fmt.Sprintf("attribute %q must be a positive number of seconds, got %q", name, v),
			ErrInvalidAttr)
	}

	return time.Duration(sec) * time.Second, nil
}
