package book

import "github.com/lattice-exchange/matchcore/coretypes"

// resting wraps a coretypes.Order with the intrusive FIFO pointers used by
// Level. visible is the quantity this resting node contributes to the
// level's aggregate: for an ordinary order it is the order's full
// remaining quantity; for an iceberg it is only the current displayed
// slice, kept separate from the order's total Remaining() so the book
// never shows more than the iceberg's display size.
type resting struct {
	order   *coretypes.Order
	visible coretypes.Qty
	next    *resting
	prev    *resting
}

// Level is the FIFO of resting orders at a single price: head/tail
// pointers plus a running aggregate kept in lockstep with every
// insert/remove so depth queries never have to walk the list.
type Level struct {
	Price     coretypes.Price
	head      *resting
	tail      *resting
	count     int
	aggregate coretypes.Qty
}

func newLevel(price coretypes.Price) *Level {
	return &Level{Price: price, aggregate: coretypes.Zero}
}

// sliceQty is the amount of o that should be visible in the book: the
// full remainder, or the iceberg's display size, whichever is smaller.
func sliceQty(o *coretypes.Order) coretypes.Qty {
	remaining := o.Remaining()
	if o.Type == coretypes.Iceberg && !o.DisplayQty.IsZero() && o.DisplayQty.LessThan(remaining) {
		return o.DisplayQty
	}
	return remaining
}

// pushBack appends an order with fresh time priority (the normal admission
// path, and the iceberg "new slice = new time priority" case). A maker
// that partially fills is never re-queued; its node shrinks in place via
// fill, keeping its position.
func (l *Level) pushBack(o *coretypes.Order) *resting {
	r := &resting{order: o, visible: sliceQty(o)}
	if l.tail != nil {
		l.tail.next = r
		r.prev = l.tail
	} else {
		l.head = r
	}
	l.tail = r
	l.count++
	l.aggregate = l.aggregate.Add(r.visible)
	return r
}

// remove unlinks r from the FIFO and removes its visible quantity from
// the cached aggregate.
func (l *Level) remove(r *resting) {
	if r.prev != nil {
		r.prev.next = r.next
	} else {
		l.head = r.next
	}
	if r.next != nil {
		r.next.prev = r.prev
	} else {
		l.tail = r.prev
	}
	r.next = nil
	r.prev = nil
	l.count--
	l.aggregate = l.aggregate.Sub(r.visible)
}

// fill consumes qty from r's visible slice (qty must be <= r.visible) and
// returns the visible quantity remaining on the node afterward.
func (l *Level) fill(r *resting, qty coretypes.Qty) coretypes.Qty {
	r.visible = r.visible.Sub(qty)
	l.aggregate = l.aggregate.Sub(qty)
	return r.visible
}

// Front returns the head order of the level without removing it.
func (l *Level) Front() *coretypes.Order {
	if l.head == nil {
		return nil
	}
	return l.head.order
}

// Empty reports whether the level has no resting orders left.
func (l *Level) Empty() bool {
	return l.count == 0
}

// Aggregate returns the cached total visible quantity at this level.
func (l *Level) Aggregate() coretypes.Qty {
	return l.aggregate
}

// Count returns the number of resting orders at this level.
func (l *Level) Count() int {
	return l.count
}

// Orders returns a snapshot slice of the orders at this level, in time
// priority order. Used by book snapshots and tests, never the hot path.
func (l *Level) Orders() []*coretypes.Order {
	out := make([]*coretypes.Order, 0, l.count)
	for r := l.head; r != nil; r = r.next {
		out = append(out, r.order)
	}
	return out
}
