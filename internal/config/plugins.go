package config

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/ini.v1"
)

// PluginBinding — привязка плагина: идентификатор реализации,
// атрибуты и вложенные привязки (plugin-of-plugin).
//
// Значение Impl вида "@<sibling>" — ссылка на привязку с именем
// <sibling> в той же секции агента (разрешается реестром плагинов).
type PluginBinding struct {
	// Name — имя привязки внутри секции агента.
	Name string

	// Impl — идентификатор реализации из реестра плагинов,
	// либо ссылка "@<sibling>".
	Impl string

	// Attrs — атрибуты привязки. Пространство имён изолировано:
	// атрибуты одной привязки не видны другой.
	Attrs map[string]string

	// Nested — вложенные привязки (ключи plugin.<name>.plugin.<inner>...).
	Nested map[string]*PluginBinding
}

// IsRef возвращает true, если Impl — ссылка на соседнюю привязку.
func (b *PluginBinding) IsRef() bool {
	return strings.HasPrefix(b.Impl, "@")
}

// RefTarget возвращает имя привязки, на которую указывает ссылка.
func (b *PluginBinding) RefTarget() string {
	return strings.TrimPrefix(b.Impl, "@")
}

// Attr возвращает значение атрибута.
func (b *PluginBinding) Attr(name string) (string, bool) {
	v, ok := b.Attrs[name]
	return v, ok
}

// NestedNames возвращает имена вложенных привязок в стабильном порядке.
func (b *PluginBinding) NestedNames() []string {
	names := make([]string, 0, len(b.Nested))
	for name := range b.Nested {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// parsePlugins строит дерево привязок из ключей секции агента.
//
// Грамматика ключей:
//
//	plugin.<name>                       = <implementation identifier>
//	plugin.<name>.<attr>                = <value>
//	plugin.<name>.plugin.<inner>        = <implementation identifier | @sibling>
//	plugin.<name>.plugin.<inner>.<attr> = <value>
//
// Вложенность не ограничена.
func parsePlugins(sec *ini.Section) (map[string]*PluginBinding, error) {
	root := make(map[string]*PluginBinding)

	for _, key := range sec.Keys() {
		if !strings.HasPrefix(key.Name(), "plugin.") {
			continue
		}
		if err := assignPluginKey(root, sec.Name(), key.Name(), key.String()); err != nil {
			return nil, err
		}
	}

	// Каждая привязка обязана иметь реализацию
	for _, binding := range root {
		if err := checkImpl(sec.Name(), "plugin."+binding.Name, binding); err != nil {
			return nil, err
		}
	}

	return root, nil
}

// assignPluginKey записывает один ключ plugin.* в дерево привязок.
func assignPluginKey(root map[string]*PluginBinding, section, fullKey, value string) error {
	tokens := strings.Split(fullKey, ".")
	level := root

	for {
		// Инвариант цикла: tokens[0] == "plugin"
		if tokens[0] != "plugin" {
			return NewValidationError(section, fullKey,
				fmt.Sprintf("expected %q segment, got %q", "plugin", tokens[0]), ErrInvalidPluginKey)
		}
		if len(tokens) < 2 || tokens[1] == "" {
			return NewValidationError(section, fullKey, "dangling plugin segment", ErrInvalidPluginKey)
		}

		name := tokens[1]
		binding := level[name]
		if binding == nil {
			binding = &PluginBinding{
				Name:   name,
				Attrs:  make(map[string]string),
				Nested: make(map[string]*PluginBinding),
			}
			level[name] = binding
		}

		tokens = tokens[2:]
		switch {
		case len(tokens) == 0:
			// plugin.<name> = <impl>
			binding.Impl = value
			return nil
		case tokens[0] == "plugin":
			// спуск во вложенную привязку
			level = binding.Nested
		default:
			// остаток — имя атрибута (может содержать точки)
			binding.Attrs[strings.Join(tokens, ".")] = value
			return nil
		}
	}
}

// checkImpl рекурсивно проверяет, что у привязки задана реализация.
func checkImpl(section, path string, binding *PluginBinding) error {
	if binding.Impl == "" {
		return NewValidationError(section, path,
			"attributes present but implementation not set", ErrMissingImpl)
	}
	for _, name := range binding.NestedNames() {
		if err := checkImpl(section, path+".plugin."+name, binding.Nested[name]); err != nil {
			return err
		}
	}
	return nil
}
