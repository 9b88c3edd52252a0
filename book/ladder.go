package book

import (
	"github.com/lattice-exchange/matchcore/coretypes"
	"github.com/lattice-exchange/matchcore/structure"
)

// handle is the order-id index entry: a back-reference to the level and
// the FIFO node, so cancel never has to walk a queue.
type handle struct {
	level *Level
	node  *resting
}

// Ladder is one side of the order book: an ordered set of occupied
// prices (best price first), the Level holding the FIFO at each price,
// and the order-id index for O(log n) cancel.
type Ladder struct {
	side   coretypes.Side
	prices *structure.PooledSkiplist
	levels map[coretypes.Price]*Level
	index  map[string]handle
}

func newLadder(side coretypes.Side, capacity int32, seed int64) *Ladder {
	var sl *structure.PooledSkiplist
	if side == coretypes.Buy {
		sl = structure.NewDescPooledSkiplist(capacity, seed)
	} else {
		sl = structure.NewPooledSkiplist(capacity, seed)
	}
	return &Ladder{
		side:   side,
		prices: sl,
		levels: make(map[coretypes.Price]*Level),
		index:  make(map[string]handle),
	}
}

// admit appends o to the back of its price level's queue, creating the
// level if absent, and records it in the order-id index.
func (lad *Ladder) admit(o *coretypes.Order) {
	lvl, ok := lad.levels[o.Price]
	if !ok {
		lvl = newLevel(o.Price)
		lad.levels[o.Price] = lvl
		lad.prices.MustInsert(o.Price)
	}
	lad.index[o.ID] = handle{level: lvl, node: lvl.pushBack(o)}
}

// cancel unlinks the order by id. Returns false if the id is unknown. A
// level emptied by the unlink is dropped in the same step, never left
// behind as a zero-quantity price.
func (lad *Ladder) cancel(id string) bool {
	h, ok := lad.index[id]
	if !ok {
		return false
	}
	delete(lad.index, id)
	h.level.remove(h.node)
	if h.level.Empty() {
		delete(lad.levels, h.level.Price)
		lad.prices.Delete(h.level.Price)
	}
	return true
}

// dropIfEmpty removes a level that has just had its last order consumed
// by matching rather than removed by cancel().
func (lad *Ladder) dropIfEmpty(lvl *Level) {
	if lvl.Empty() {
		delete(lad.levels, lvl.Price)
		lad.prices.Delete(lvl.Price)
	}
}

// best returns the best (price-time-priority-first) level, or nil if the
// ladder is empty.
func (lad *Ladder) best() *Level {
	price, ok := lad.prices.Min()
	if !ok {
		return nil
	}
	return lad.levels[price]
}

// bestHead returns the best level and its head resting node together,
// the pair the crossing loop peeks on every iteration.
func (lad *Ladder) bestHead() (*Level, *resting) {
	lvl := lad.best()
	if lvl == nil {
		return nil, nil
	}
	return lvl, lvl.head
}

// consume applies a fill of qty to r's visible slice. If that exhausts
// the slice it unlinks r from both the level and the order-id index and
// reports true (the caller then decides whether an iceberg replenishment
// slice should be re-admitted).
func (lad *Ladder) consume(lvl *Level, r *resting, qty coretypes.Qty) bool {
	remaining := lvl.fill(r, qty)
	if remaining.IsZero() {
		delete(lad.index, r.order.ID)
		lvl.remove(r)
		lad.dropIfEmpty(lvl)
		return true
	}
	return false
}

// depth returns up to n levels, best first, as (price, aggregate) pairs.
func (lad *Ladder) depth(n int) []DepthLevel {
	out := make([]DepthLevel, 0, n)
	it := lad.prices.Iterator()
	for it.Valid() && len(out) < n {
		price := it.Price()
		if lvl, ok := lad.levels[price]; ok {
			out = append(out, DepthLevel{Price: price, Qty: lvl.Aggregate(), Orders: int64(lvl.Count())})
		}
		it.Next()
	}
	return out
}

// orderCount/levelCount feed the market statistics snapshot.
func (lad *Ladder) orderCount() int { return len(lad.index) }
func (lad *Ladder) levelCount() int { return len(lad.levels) }

// DepthLevel is one row of a depth snapshot.
type DepthLevel struct {
	Price  coretypes.Price
	Qty    coretypes.Qty
	Orders int64
}
