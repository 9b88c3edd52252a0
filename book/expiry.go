package book

import (
	"time"

	"github.com/lattice-exchange/matchcore/structure"
)

// ExpiryIndex orders GTD orders by expiry instant for the sweep. It is a
// thin time.Time facade over structure.ExpiryHeap; the heap's insertion-
// order tie-break keeps a sweep over identical instants deterministic.
type ExpiryIndex struct {
	heap *structure.ExpiryHeap
}

func newExpiryIndex(capacity int) *ExpiryIndex {
	return &ExpiryIndex{heap: structure.NewExpiryHeap(capacity)}
}

// Add registers id to expire at (or after) at.
func (e *ExpiryIndex) Add(id string, at time.Time) {
	e.heap.Push(id, at.UnixNano())
}

// Remove unregisters id, e.g. on cancel or fill of a GTD order before it
// expires.
func (e *ExpiryIndex) Remove(id string) {
	e.heap.Remove(id)
}

// Due pops and returns every order id whose expiry instant is at or
// before now, earliest first.
func (e *ExpiryIndex) Due(now time.Time) []string {
	return e.heap.PopDue(now.UnixNano())
}
