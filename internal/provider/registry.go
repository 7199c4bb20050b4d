package provider

import (
	"sort"
	"sync"

	"github.com/riyak972/capstone-chat/internal/domain"
)

// Registry maps provider names to adapters.
type Registry struct {
	mu          sync.RWMutex
	adapters    map[string]Adapter
	defaultName string
}

// NewRegistry creates a registry with the given default provider name.
// A mock adapter is registered when none is supplied so a default always exists.
func NewRegistry(defaultName string, adapters ...Adapter) *Registry {
	r := &Registry{
		adapters:    make(map[string]Adapter),
		defaultName: defaultName,
	}
	for _, a := range adapters {
		r.Register(a)
	}
	if _, ok := r.adapters[NameMock]; !ok {
		r.Register(NewMock(0))
	}
	return r
}

// Register adds or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Resolve returns the named adapter, or the default when name is empty.
// Unregistered names fail with UnknownProvider.
func (r *Registry) Resolve(name string) (Adapter, error) {
	if name == "" {
		return r.Default(), nil
	}
	a, ok := r.Get(name)
	if !ok {
		return nil, domain.NewError(domain.CodeUnknownProvider, "unknown provider: %s", name)
	}
	return a, nil
}

// Default returns the configured default adapter if it is enabled, otherwise the mock.
func (r *Registry) Default() Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.adapters[r.defaultName]; ok && a.Enabled() {
		return a
	}
	return r.adapters[NameMock]
}

// ListAvailable describes every registered adapter, sorted by name.
func (r *Registry) ListAvailable() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.adapters))
	for name, a := range r.adapters {
		out = append(out, Info{Name: name, Enabled: a.Enabled(), DefaultModel: a.DefaultModel()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
