package forwarder

import (
	"slices"
	"sync"
)

// DestinationTable is the set of queue names declared on the current connection.
// It only grows.
type DestinationTable struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

func newDestinationTable() *DestinationTable {
	return &DestinationTable{names: make(map[string]struct{})}
}

// Add records name; it reports whether the name was new.
func (t *DestinationTable) Add(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.names[name]; ok {
		return false
	}

	t.names[name] = struct{}{}

	return true
}

func (t *DestinationTable) Has(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.names[name]

	return ok
}

func (t *DestinationTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.names)
}

// Names returns the declared names sorted.
func (t *DestinationTable) Names() []string {
	t.mu.RLock()
	out := make([]string, 0, len(t.names))
	for n := range t.names {
		out = append(out, n)
	}
	t.mu.RUnlock()

	slices.Sort(out)

	return out
}
