package formatters

import (
	"sort"
	"strings"
	"sync"

	"github.com/wayneeseguin/fanlog/pkg/types"
)

// Preset templates available by name.
const (
	MessageTemplate = "{message}"
	SimpleTemplate  = "{level}: {message}"
)

// Factory creates formatter instances by preset name
type Factory struct {
	mu         sync.RWMutex
	formatters map[string]FormatterConstructor
}

// FormatterConstructor is a function that creates a formatter
type FormatterConstructor func() (Formatter, error)

// NewFactory creates a new formatter factory with the presets registered
func NewFactory() *Factory {
	f := &Factory{
		formatters: make(map[string]FormatterConstructor),
	}

	f.formatters["default"] = templateConstructor(DefaultTemplate)
	f.formatters["message"] = templateConstructor(MessageTemplate)
	f.formatters["simple"] = templateConstructor(SimpleTemplate)
	f.formatters["json"] = func() (Formatter, error) {
		return NewJSONFormatter(nil), nil
	}

	return f
}

func templateConstructor(template string) FormatterConstructor {
	return func() (Formatter, error) {
		return NewTextFormatter(template)
	}
}

// Register registers a new formatter constructor
func (f *Factory) Register(name string, constructor FormatterConstructor) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return types.ConfigError("register_formatter", "formatter name cannot be empty")
	}
	if constructor == nil {
		return types.ConfigError("register_formatter", "formatter constructor cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.formatters[name] = constructor
	return nil
}

// CreateFormatter creates a formatter by name
func (f *Factory) CreateFormatter(name string) (Formatter, error) {
	f.mu.RLock()
	constructor, exists := f.formatters[strings.ToLower(strings.TrimSpace(name))]
	f.mu.RUnlock()

	if !exists {
		return nil, types.ConfigError("create_formatter", "formatter %q not registered", name)
	}
	return constructor()
}

// Resolve turns a format setting into a formatter: a registered preset name, or else a
// template string.
func (f *Factory) Resolve(format string) (Formatter, error) {
	if format == "" {
		return f.CreateFormatter("default")
	}
	f.mu.RLock()
	_, isPreset := f.formatters[strings.ToLower(strings.TrimSpace(format))]
	f.mu.RUnlock()
	if isPreset {
		return f.CreateFormatter(format)
	}
	return NewTextFormatter(format)
}

// ListFormatters returns the names of all registered formatters
func (f *Factory) ListFormatters() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.formatters))
	for name := range f.formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultFactory is the global formatter factory
var DefaultFactory = NewFactory()

// Register registers a formatter with the default factory
func Register(name string, constructor FormatterConstructor) error {
	return DefaultFactory.Register(name, constructor)
}

// CreateFormatter creates a formatter using the default factory
func CreateFormatter(name string) (Formatter, error) {
	return DefaultFactory.CreateFormatter(name)
}

// Resolve resolves a preset name or template using the default factory
func Resolve(format string) (Formatter, error) {
	return DefaultFactory.Resolve(format)
}
