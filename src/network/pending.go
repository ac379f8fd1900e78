package network

import (
	"fmt"
)

// pendingTable maps the identifier of an in-flight operation to whatever is
// needed to complete it. Entries are inserted once by the command processor
// and removed once by the event router, so a late or duplicate event finds
// nothing to complete.
type pendingTable[K comparable, V any] struct {
	name    string
	entries map[K]V
}

func newPendingTable[K comparable, V any](name string) *pendingTable[K, V] {
	return &pendingTable[K, V]{
		name:    name,
		entries: make(map[K]V),
	}
}

func (t *pendingTable[K, V]) insert(k K, v V) error {
	if _, ok := t.entries[k]; ok {
		return fmt.Errorf("%s %v: %w", t.name, k, ErrDuplicateOperation)
	}
	t.entries[k] = v
	return nil
}

// remove returns the entry of k and deletes it. The second result is false if
// there was no entry.
func (t *pendingTable[K, V]) remove(k K) (V, bool) {
	v, ok := t.entries[k]
	if ok {
		delete(t.entries, k)
	}
	return v, ok
}

func (t *pendingTable[K, V]) get(k K) (V, bool) {
	v, ok := t.entries[k]
	return v, ok
}

func (t *pendingTable[K, V]) contains(k K) bool {
	_, ok := t.entries[k]
	return ok
}

func (t *pendingTable[K, V]) len() int {
	return len(t.entries)
}

// drain empties the table and returns what it held.
func (t *pendingTable[K, V]) drain() []V {
	res := make([]V, 0, len(t.entries))
	for k, v := range t.entries {
		res = append(res, v)
		delete(t.entries, k)
	}
	return res
}
