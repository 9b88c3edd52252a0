package book

import (
	"time"

	"github.com/lattice-exchange/matchcore/coretypes"
)

// SnapshotSchemaVersion is bumped whenever OrderBookSnapshot's wire shape
// changes in a backward-incompatible way.
const SnapshotSchemaVersion = 1

// OrderBookSnapshot contains the full resting state of one Book, enough to
// rebuild its ladders exactly (including per-order time priority) without
// replaying the command log from the beginning.
type OrderBookSnapshot struct {
	SchemaVersion int                `json:"schema_version"`
	Symbol        string             `json:"symbol"`
	SeqID         uint64             `json:"seq_id"`
	TradeID       uint64             `json:"trade_id"`
	LastTrade     coretypes.Price    `json:"last_trade"`
	Volume        coretypes.Qty      `json:"session_volume"`
	Bids          []*coretypes.Order `json:"bids"` // best price first, time priority within a level
	Asks          []*coretypes.Order `json:"asks"`
	TakenAt       time.Time          `json:"taken_at"`
}

// snapshot builds an OrderBookSnapshot of the book's current state. Must
// only be called from the ring's consumer goroutine.
func (b *Book) snapshot() OrderBookSnapshot {
	return OrderBookSnapshot{
		SchemaVersion: SnapshotSchemaVersion,
		Symbol:        b.symbol.Name,
		SeqID:         b.seqID.Load(),
		TradeID:       b.tradeID.Load(),
		LastTrade:     b.lastTrade,
		Volume:        b.sessionVolume,
		Bids:          b.bids.ordersInPriority(),
		Asks:          b.asks.ordersInPriority(),
		TakenAt:       time.Now().UTC(),
	}
}

// Snapshot is the public, synchronous form of snapshot, dispatched through
// the ring like every other Book call.
func (b *Book) Snapshot() OrderBookSnapshot {
	res, _ := b.dispatch(&command{kind: cmdSnapshot})
	return res.(OrderBookSnapshot)
}

// Restore rebuilds a Book's ladders from a previously taken snapshot. It
// must be called before Start, on a freshly constructed, empty Book.
func (b *Book) Restore(snap OrderBookSnapshot) {
	b.seqID.Store(snap.SeqID)
	b.tradeID.Store(snap.TradeID)
	b.lastTrade = snap.LastTrade
	b.sessionVolume = snap.Volume
	for _, o := range snap.Bids {
		b.orders[o.ID] = o
		b.bids.admit(o)
		if o.TIF == coretypes.GTD && !o.ExpireAt.IsZero() {
			b.expiry.Add(o.ID, o.ExpireAt)
		}
	}
	for _, o := range snap.Asks {
		b.orders[o.ID] = o
		b.asks.admit(o)
		if o.TIF == coretypes.GTD && !o.ExpireAt.IsZero() {
			b.expiry.Add(o.ID, o.ExpireAt)
		}
	}
}

// ordersInPriority returns every resting order on this ladder, best price
// first and time priority preserved within a level.
func (lad *Ladder) ordersInPriority() []*coretypes.Order {
	var out []*coretypes.Order
	it := lad.prices.Iterator()
	for it.Valid() {
		price := it.Price()
		if lvl, ok := lad.levels[price]; ok {
			out = append(out, lvl.Orders()...)
		}
		it.Next()
	}
	return out
}
