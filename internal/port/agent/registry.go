package agent

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Factory builds an agent Set.
type Factory func(log *slog.Logger) (Set, error)

var (
	regMu    sync.RWMutex
	registry = map[string]Factory{}
)

// Register makes an agent set available under the given name. It is
// meant to be called from init; registering a duplicate name panics.
func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("agent: Register called twice for %q", name))
	}
	registry[name] = f
}

// New builds the agent set registered under name.
func New(name string, log *slog.Logger) (Set, error) {
	regMu.RLock()
	f, ok := registry[name]
	regMu.RUnlock()
	if !ok {
		return Set{}, fmt.Errorf("agent: unknown agent set %q (available: %v)", name, Available())
	}
	return f(log)
}

// Available returns the registered names, sorted.
func Available() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
