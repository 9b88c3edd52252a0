package book

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lattice-exchange/matchcore/coretypes"
	"github.com/rs/xid"
)

// cmdKind tags the variant carried by a command, the actor-loop envelope
// that lets every public Book method funnel through the single
// per-symbol executor.
type cmdKind uint8

const (
	cmdSubmit cmdKind = iota
	cmdCancel
	cmdAmend
	cmdDepth
	cmdStats
	cmdSweepExpiry
	cmdReferenceChange
	cmdSubmitBracket
	cmdSubmitOCO
	cmdSnapshot
)

type amendRequest struct {
	orderID  string
	newPrice coretypes.Price
	newQty   coretypes.Qty
}

type command struct {
	kind      cmdKind
	order     *coretypes.Order
	childA    *coretypes.Order
	childB    *coretypes.Order
	cancelID  string
	owner     string
	amend     amendRequest
	depthN    int
	reference coretypes.Price
	at        time.Time
	resp      chan any
}

// BookStats is the per-market statistics snapshot. The 24h figures come
// from hourly buckets rolled in place, so they cover the trailing window
// at hour granularity without keeping a trade history.
type BookStats struct {
	Symbol        string
	BidLevels     int
	AskLevels     int
	BidOrders     int
	AskOrders     int
	LastTrade     coretypes.Price
	SessionVolume coretypes.Qty
	Volume24h     coretypes.Qty
	High24h       coretypes.Price
	Low24h        coretypes.Price
}

// hourBucket accumulates one clock hour of trade flow.
type hourBucket struct {
	hour   int64 // unix time / 3600; stale buckets are overwritten in place
	volume coretypes.Qty
	high   coretypes.Price
	low    coretypes.Price
}

// DepthSnapshot is the response to Depth: up to n levels per side, best
// first.
type DepthSnapshot struct {
	Bids []DepthLevel
	Asks []DepthLevel
}

// Book is the per-symbol order book, matching engine, and order-type
// state machine. Exactly one goroutine (the ring's consumer loop) ever
// touches the ladders, so no field below needs its own lock.
type Book struct {
	symbol *coretypes.Symbol

	bids *Ladder
	asks *Ladder

	orders map[string]*coretypes.Order // every order this book has ever admitted, any state
	tb     *triggerBook
	expiry *ExpiryIndex

	lastTrade     coretypes.Price
	markPrice     coretypes.Price
	sessionVolume coretypes.Qty
	rolling       [24]hourBucket

	seqID   atomic.Uint64
	tradeID atomic.Uint64

	sink      Sink
	ledger    Ledger
	positions PositionObserver

	highWater int64
	r         *ring[*command]
}

// NewBook constructs a Book for symbol. ledger and sink are required;
// positions may be nil for a spot symbol.
func NewBook(symbol *coretypes.Symbol, sink Sink, ledger Ledger, positions PositionObserver, ringCapacity, highWater int64) *Book {
	b := &Book{
		symbol:        symbol,
		bids:          newLadder(coretypes.Buy, 4096, 1),
		asks:          newLadder(coretypes.Sell, 4096, 2),
		orders:        make(map[string]*coretypes.Order),
		expiry:        newExpiryIndex(1024),
		lastTrade:     coretypes.Zero,
		markPrice:     coretypes.Zero,
		sessionVolume: coretypes.Zero,
		sink:          sink,
		ledger:        ledger,
		positions:     positions,
		highWater:     highWater,
	}
	b.tb = newTriggerBook()
	b.r = newRing[*command](ringCapacity, b)
	return b
}

// Start launches the book's single consumer goroutine.
func (b *Book) Start() { b.r.start() }

// Shutdown stops accepting new work and waits for the ring to drain.
func (b *Book) Shutdown(ctx context.Context) error {
	b.r.stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if b.r.consumed.Load() >= b.r.produced.Load() {
				return nil
			}
			time.Sleep(time.Millisecond)
		}
	}
}

// dispatch sends cmd through the ring and blocks for its response,
// honoring the high-water admission back-pressure.
func (b *Book) dispatch(cmd *command) (any, *coretypes.Rejection) {
	cmd.resp = make(chan any, 1)
	if !b.r.tryPublish(cmd, b.highWater) {
		return nil, coretypes.NewRejection(coretypes.RejectOverloaded, "admission queue full")
	}
	res := <-cmd.resp
	if rej, ok := res.(*coretypes.Rejection); ok {
		return nil, rej
	}
	return res, nil
}

// onEvent implements eventHandler[*command]; it is the only function
// that ever mutates Book state, running on the ring's sole consumer.
func (b *Book) onEvent(cmd *command) {
	switch cmd.kind {
	case cmdSubmit:
		cmd.resp <- b.submit(cmd.order)
	case cmdCancel:
		cmd.resp <- b.cancel(cmd.cancelID, cmd.owner)
	case cmdAmend:
		cmd.resp <- b.amend(cmd.amend)
	case cmdDepth:
		cmd.resp <- b.depth(cmd.depthN)
	case cmdStats:
		cmd.resp <- b.stats()
	case cmdSweepExpiry:
		b.sweepExpiry(cmd.at)
		cmd.resp <- struct{}{}
	case cmdReferenceChange:
		b.applyReferenceChange(cmd.reference)
		cmd.resp <- struct{}{}
	case cmdSubmitBracket:
		cmd.resp <- b.submitBracket(cmd.order, cmd.childA, cmd.childB)
	case cmdSubmitOCO:
		cmd.resp <- b.submitOCO(cmd.order, cmd.childA)
	case cmdSnapshot:
		cmd.resp <- b.snapshot()
	}
}

// Submit admits a new order. Synchronous from the caller's perspective:
// it returns only after the order has been fully admitted, matched,
// rested, or rejected.
func (b *Book) Submit(o *coretypes.Order) (*coretypes.Order, *coretypes.Rejection) {
	res, rej := b.dispatch(&command{kind: cmdSubmit, order: o})
	if rej != nil {
		return nil, rej
	}
	return res.(*coretypes.Order), nil
}

// Cancel cancels an order by id, enforcing ownership.
func (b *Book) Cancel(orderID, owner string) (*coretypes.Order, *coretypes.Rejection) {
	res, rej := b.dispatch(&command{kind: cmdCancel, cancelID: orderID, owner: owner})
	if rej != nil {
		return nil, rej
	}
	return res.(*coretypes.Order), nil
}

// Amend requests a price/quantity change. A pure quantity reduction at
// the same price keeps time priority; anything else re-admits the order
// at the back of the queue under the same id.
func (b *Book) Amend(orderID string, newPrice, newQty coretypes.Price) (*coretypes.Order, *coretypes.Rejection) {
	res, rej := b.dispatch(&command{kind: cmdAmend, amend: amendRequest{orderID: orderID, newPrice: newPrice, newQty: newQty}})
	if rej != nil {
		return nil, rej
	}
	return res.(*coretypes.Order), nil
}

// Depth returns up to n levels per side.
func (b *Book) Depth(n int) DepthSnapshot {
	res, _ := b.dispatch(&command{kind: cmdDepth, depthN: n})
	return res.(DepthSnapshot)
}

// Stats returns the market statistics snapshot.
func (b *Book) Stats() BookStats {
	res, _ := b.dispatch(&command{kind: cmdStats})
	return res.(BookStats)
}

// BestBid returns the highest resting bid, if any.
func (b *Book) BestBid() (coretypes.Price, bool) {
	d := b.Depth(1)
	if len(d.Bids) == 0 {
		return coretypes.Zero, false
	}
	return d.Bids[0].Price, true
}

// BestAsk returns the lowest resting ask, if any.
func (b *Book) BestAsk() (coretypes.Price, bool) {
	d := b.Depth(1)
	if len(d.Asks) == 0 {
		return coretypes.Zero, false
	}
	return d.Asks[0].Price, true
}

// Spread returns ask minus bid, false when either side is empty.
func (b *Book) Spread() (coretypes.Price, bool) {
	d := b.Depth(1)
	if len(d.Bids) == 0 || len(d.Asks) == 0 {
		return coretypes.Zero, false
	}
	return d.Asks[0].Price.Sub(d.Bids[0].Price), true
}

// SweepExpiry cancels every GTD order due at or before now.
func (b *Book) SweepExpiry(now time.Time) {
	b.dispatch(&command{kind: cmdSweepExpiry, at: now})
}

// OnReferenceChange re-evaluates pending stop/trailing-stop orders
// against a new mark or last-trade reference price.
func (b *Book) OnReferenceChange(reference coretypes.Price) {
	b.dispatch(&command{kind: cmdReferenceChange, reference: reference})
}

// SubmitBracket admits a parent order plus its stop-loss/take-profit
// children. The children are held back and only admitted once the parent
// has a non-zero fill.
func (b *Book) SubmitBracket(parent, stopLoss, takeProfit *coretypes.Order) (*coretypes.Order, *coretypes.Rejection) {
	res, rej := b.dispatch(&command{kind: cmdSubmitBracket, order: parent, childA: stopLoss, childB: takeProfit})
	if rej != nil {
		return nil, rej
	}
	return res.(*coretypes.Order), nil
}

// SubmitOCO admits two sibling orders where any fill or cancel on one
// cancels the other.
func (b *Book) SubmitOCO(a, sibling *coretypes.Order) (*coretypes.Order, *coretypes.Rejection) {
	res, rej := b.dispatch(&command{kind: cmdSubmitOCO, order: a, childA: sibling})
	if rej != nil {
		return nil, rej
	}
	return res.(*coretypes.Order), nil
}

func (b *Book) nextSeq() uint64   { return b.seqID.Add(1) }
func (b *Book) nextTrade() uint64 { return b.tradeID.Add(1) }

func newOrderID() string { return xid.New().String() }
