package book

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/igrmk/treemap/v2"
	"github.com/lattice-exchange/matchcore/coretypes"
)

// AggregatedBook maintains a depth-only view of a symbol's book (price
// levels and their aggregated visible size) rebuilt purely from the
// BookLog stream a Book publishes. It carries no order identity and no
// matching logic, and is meant for downstream consumers that receive the
// event stream over a queue rather than holding the book itself.
type AggregatedBook struct {
	mu    sync.RWMutex
	seqID atomic.Uint64

	bid *treemap.TreeMap[coretypes.Price, coretypes.Qty]
	ask *treemap.TreeMap[coretypes.Price, coretypes.Qty]
}

// NewAggregatedBook constructs an empty AggregatedBook. bid is ordered
// descending (best bid highest), ask ascending (best ask lowest).
func NewAggregatedBook() *AggregatedBook {
	return &AggregatedBook{
		bid: treemap.NewWithKeyCompare[coretypes.Price, coretypes.Qty](func(a, b coretypes.Price) bool {
			return a.GreaterThan(b)
		}),
		ask: treemap.NewWithKeyCompare[coretypes.Price, coretypes.Qty](func(a, b coretypes.Price) bool {
			return a.LessThan(b)
		}),
	}
}

// SequenceID returns the last BookLog sequence number applied.
func (ab *AggregatedBook) SequenceID() uint64 {
	return ab.seqID.Load()
}

func (ab *AggregatedBook) sideMap(side coretypes.Side) *treemap.TreeMap[coretypes.Price, coretypes.Qty] {
	if side == coretypes.Buy {
		return ab.bid
	}
	return ab.ask
}

// Replay applies one BookLog event to the aggregated view. Sequence gaps
// are reported rather than silently skipped.
func (ab *AggregatedBook) Replay(log *BookLog) error {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	prev := ab.seqID.Load()
	if prev != 0 && log.SequenceID != prev+1 {
		return fmt.Errorf("book: aggregated replay sequence gap: have %d, got %d", prev, log.SequenceID)
	}
	ab.seqID.Store(log.SequenceID)

	switch log.Type {
	case LogOpen:
		ab.addDepth(log.Side, log.Price, log.Qty)
	case LogMatch:
		ab.addDepth(log.Side.Opposite(), log.Price, coretypes.Zero.Sub(log.Qty))
	case LogCancel, LogExpire:
		ab.addDepth(log.Side, log.Price, coretypes.Zero.Sub(log.Qty))
	case LogAmend:
		delta := log.Qty.Sub(log.OldQty)
		ab.addDepth(log.Side, log.Price, delta)
	case LogReject, LogTrigger:
		// no depth effect, sequence counter still advances above.
	}
	return nil
}

func (ab *AggregatedBook) addDepth(side coretypes.Side, price, delta coretypes.Qty) {
	m := ab.sideMap(side)
	cur, _ := m.Get(price)
	next := cur.Add(delta)
	if next.LessThanOrEqual(coretypes.Zero) {
		m.Del(price)
		return
	}
	m.Set(price, next)
}

// OnRebuild resets the aggregated view, discarding every level and the
// sequence counter. Call before replaying a fresh snapshot + log tail.
func (ab *AggregatedBook) OnRebuild() {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	ab.seqID.Store(0)
	ab.bid = treemap.NewWithKeyCompare[coretypes.Price, coretypes.Qty](func(a, b coretypes.Price) bool {
		return a.GreaterThan(b)
	})
	ab.ask = treemap.NewWithKeyCompare[coretypes.Price, coretypes.Qty](func(a, b coretypes.Price) bool {
		return a.LessThan(b)
	})
}

// LoadSnapshot seeds the aggregated view directly from an
// OrderBookSnapshot, skipping a full log replay from zero.
func (ab *AggregatedBook) LoadSnapshot(snap OrderBookSnapshot) {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	ab.seqID.Store(snap.SeqID)
	for _, o := range snap.Bids {
		ab.addDepthLocked(ab.bid, o.Price, o.Remaining())
	}
	for _, o := range snap.Asks {
		ab.addDepthLocked(ab.ask, o.Price, o.Remaining())
	}
}

func (ab *AggregatedBook) addDepthLocked(m *treemap.TreeMap[coretypes.Price, coretypes.Qty], price, qty coretypes.Qty) {
	cur, _ := m.Get(price)
	m.Set(price, cur.Add(qty))
}

// Depth returns the aggregated visible size at price on side, zero if the
// level does not exist.
func (ab *AggregatedBook) Depth(side coretypes.Side, price coretypes.Price) coretypes.Qty {
	ab.mu.RLock()
	defer ab.mu.RUnlock()
	qty, ok := ab.sideMap(side).Get(price)
	if !ok {
		return coretypes.Zero
	}
	return qty
}

// TopN returns up to n levels of side, best first.
func (ab *AggregatedBook) TopN(side coretypes.Side, n int) []DepthLevel {
	ab.mu.RLock()
	defer ab.mu.RUnlock()
	out := make([]DepthLevel, 0, n)
	m := ab.sideMap(side)
	for it := m.Iterator(); it.Valid() && len(out) < n; it.Next() {
		out = append(out, DepthLevel{Price: it.Key(), Qty: it.Value()})
	}
	return out
}
