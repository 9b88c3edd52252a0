package book

import (
	"time"

	"github.com/lattice-exchange/matchcore/coretypes"
)

// submit is the implementation behind Book.Submit, run on the ring's
// consumer. It is the single entry point for every order type: stop
// variants are parked in the trigger book, everything else goes straight
// through admitPrimitive.
func (b *Book) submit(o *coretypes.Order) any {
	if o.ID == "" {
		o.ID = newOrderID()
	}
	o.Price = coretypes.Normalize(o.Price)
	o.StopPrice = coretypes.Normalize(o.StopPrice)
	o.TrailAmount = coretypes.Normalize(o.TrailAmount)
	o.Quantity = coretypes.Normalize(o.Quantity)
	o.DisplayQty = coretypes.Normalize(o.DisplayQty)
	if rej := b.validate(o); rej != nil {
		o.Status = coretypes.StatusRejected
		b.publishReject(o, rej.Reason)
		return rej
	}
	o.AdmittedAt = time.Now().UTC()
	b.orders[o.ID] = o

	switch o.Type {
	case coretypes.Stop, coretypes.StopLimit, coretypes.TrailingStop:
		b.tb.admitPending(o, b.reference(o))
		b.publish(o, LogTrigger, coretypes.RejectNone)
		return o
	default:
		return b.admitPrimitive(o)
	}
}

// admitPrimitive runs the reserve -> FOK precheck -> cross -> residual
// pipeline shared by market, limit, and iceberg orders, and by a
// just-triggered stop once materialize has converted it.
func (b *Book) admitPrimitive(o *coretypes.Order) any {
	b.applySlippageCap(o)

	if o.PostOnly {
		if lvl := b.ladderFor(o.Side.Opposite()).best(); lvl != nil && crossable(o, lvl.Price) {
			o.Status = coretypes.StatusRejected
			b.publishReject(o, coretypes.RejectPostOnlyMatch)
			return coretypes.NewRejection(coretypes.RejectPostOnlyMatch, "order would take liquidity")
		}
	}

	if rej := b.reserveFor(o); rej != nil {
		o.Status = coretypes.StatusRejected
		b.publishReject(o, rej.Reason)
		return rej
	}

	if o.TIF == coretypes.FOK && !b.canFillFully(o) {
		b.releaseLeftover(o)
		o.Status = coretypes.StatusRejected
		b.publishReject(o, coretypes.RejectInsufficientSize)
		return coretypes.NewRejection(coretypes.RejectInsufficientSize, "cannot fill in full")
	}

	b.cross(o)

	if o.Status.IsTerminal() {
		// cross already finalized o: fully filled, or cancelled by
		// self-trade prevention, or rejected by a reduce-only violation.
		return o
	}

	switch o.TIF {
	case coretypes.FOK:
		// canFillFully held against the same uninterrupted state cross
		// just ran in; a residual here means self-trade or reduce-only
		// pruning shrank the other side mid-loop.
		b.releaseLeftover(o)
		o.Status = coretypes.StatusCancelled
		b.publishReject(o, coretypes.RejectInsufficientSize)
		return coretypes.NewRejection(coretypes.RejectInsufficientSize, "partial fill under fill-or-kill")
	case coretypes.IOC:
		b.releaseLeftover(o)
		o.Status = coretypes.StatusCancelled
		b.publishQty(o, LogCancel, coretypes.RejectNone, coretypes.Zero)
		return o
	default: // GTC, GTD
		if o.Type == coretypes.Market {
			// A market order never rests; a residual with no IOC/FOK tag
			// simply has no liquidity left to take. An untouched order is
			// rejected outright, a partially filled one keeps its fills
			// and cancels.
			b.releaseLeftover(o)
			if o.Filled.IsZero() {
				o.Status = coretypes.StatusRejected
				b.publishReject(o, coretypes.RejectNoLiquidity)
				return coretypes.NewRejection(coretypes.RejectNoLiquidity, "no liquidity remaining")
			}
			o.Status = coretypes.StatusCancelled
			b.publishQty(o, LogCancel, coretypes.RejectNone, coretypes.Zero)
			return o
		}
		if o.Filled.IsZero() {
			o.Status = coretypes.StatusOpen
		} else {
			o.Status = coretypes.StatusPartiallyFilled
		}
		b.ladderFor(o.Side).admit(o)
		if o.TIF == coretypes.GTD && !o.ExpireAt.IsZero() {
			b.expiry.Add(o.ID, o.ExpireAt)
		}
		b.publishOpen(o)
		return o
	}
}

// cancel implements Book.Cancel: look the order up across every state it
// could be resting in (ladder, trigger-pending) and finalize it.
func (b *Book) cancel(orderID, owner string) any {
	o, ok := b.orders[orderID]
	if !ok {
		return coretypes.NewRejection(coretypes.RejectNotFound, "unknown order id")
	}
	if o.Owner != owner {
		return coretypes.NewRejection(coretypes.RejectNotOwned, "order belongs to a different owner")
	}
	if o.Status.IsTerminal() {
		return coretypes.NewRejection(coretypes.RejectTerminal, "order already in a terminal state")
	}
	b.finalizeCancel(o, coretypes.StatusCancelled)
	return o
}

// finalizeCancel moves o to status (Cancelled or Expired), removing it
// from whichever structure currently holds it and releasing its unused
// reservation. Callers must check IsTerminal first.
func (b *Book) finalizeCancel(o *coretypes.Order, status coretypes.OrderStatus) {
	removedVisible := coretypes.Zero
	if !b.tb.cancelPending(o.ID) {
		ladder := b.ladderFor(o.Side)
		if h, ok := ladder.index[o.ID]; ok {
			removedVisible = h.node.visible
		}
		ladder.cancel(o.ID)
	}
	if o.TIF == coretypes.GTD && !o.ExpireAt.IsZero() {
		b.expiry.Remove(o.ID)
	}
	b.releaseLeftover(o)
	o.Status = status

	// An OCO (or bracket-child) sibling goes down with this order.
	if sib, ok := b.tb.siblingOf(o.ID); ok {
		b.tb.clearSibling(o.ID)
		b.cancelLinked(sib)
	}
	b.cancelBracketChildren(o.ID)

	logType := LogCancel
	if status == coretypes.StatusExpired {
		logType = LogExpire
	}
	b.publishQty(o, logType, coretypes.RejectNone, removedVisible)
}

// cancelBracketChildren cancels both contingent children when their
// parent is cancelled or expires. Children that were never admitted (the
// parent had no fill yet) just get marked terminal.
func (b *Book) cancelBracketChildren(parentID string) {
	link, ok := b.tb.bracketChildren[parentID]
	if !ok {
		return
	}
	delete(b.tb.bracketChildren, parentID)
	delete(b.tb.bracketParent, link.stopLoss.ID)
	delete(b.tb.bracketParent, link.takeProfit.ID)
	for _, c := range [2]*coretypes.Order{link.stopLoss, link.takeProfit} {
		if _, known := b.orders[c.ID]; known {
			b.cancelLinked(c.ID)
		} else if !c.Status.IsTerminal() {
			c.Status = coretypes.StatusCancelled
		}
	}
}

// amend implements Book.Amend, preserving the order id in both shapes: a
// pure quantity reduction at the same price is applied in place with no
// time-priority loss; any price change or quantity increase re-admits the
// order at the back of the new level's queue (and may cross on the way).
func (b *Book) amend(req amendRequest) any {
	req.newPrice = coretypes.Normalize(req.newPrice)
	req.newQty = coretypes.Normalize(req.newQty)
	o, ok := b.orders[req.orderID]
	if !ok {
		return coretypes.NewRejection(coretypes.RejectNotFound, "unknown order id")
	}
	if o.Status.IsTerminal() {
		return coretypes.NewRejection(coretypes.RejectTerminal, "order already in a terminal state")
	}
	if o.Status == coretypes.StatusPending {
		return coretypes.NewRejection(coretypes.RejectInvalidParam, "cannot amend an untriggered order")
	}
	if !req.newPrice.IsZero() && !coretypes.OnTick(req.newPrice, b.symbol.Tick) {
		return coretypes.NewRejection(coretypes.RejectPriceOffTick, "price not a multiple of tick size")
	}
	if !req.newQty.IsZero() && req.newQty.LessThan(o.Filled) {
		return coretypes.NewRejection(coretypes.RejectQuantityOutOfRange, "new quantity below already-filled amount")
	}

	samePrice := req.newPrice.IsZero() || req.newPrice.Equal(o.Price)
	reduction := !req.newQty.IsZero() && req.newQty.LessThanOrEqual(o.Quantity)

	if samePrice && reduction {
		oldRemaining := o.Remaining()
		o.Quantity = req.newQty
		oldVisible, newVisible := coretypes.Zero, coretypes.Zero
		ladder := b.ladderFor(o.Side)
		if h, ok := ladder.index[o.ID]; ok {
			oldVisible = h.node.visible
			newVisible = sliceQty(o)
			if newVisible.GreaterThan(oldVisible) {
				newVisible = oldVisible
			}
			if oldVisible.GreaterThan(newVisible) {
				h.level.fill(h.node, oldVisible.Sub(newVisible))
			}
		}
		// Shrink the reservation proportionally to the dropped remainder.
		dropped := oldRemaining.Sub(o.Remaining())
		if !o.ReduceOnly && !dropped.IsZero() {
			var release coretypes.Price
			switch {
			case b.symbol.IsPerpetual():
				release = coretypes.Div(dropped.Mul(b.reservePrice(o)), coretypes.FromInt(int64(leverageOf(o))))
			case o.Side == coretypes.Buy:
				release = dropped.Mul(b.reservePrice(o))
			default:
				release = dropped
			}
			if release.GreaterThan(o.Reserved) {
				release = o.Reserved
			}
			b.ledger.Release(o.Owner, b.reserveAsset(o), release)
			o.Reserved = o.Reserved.Sub(release)
		}
		b.publishAmend(o, oldVisible, newVisible)
		return o
	}

	// Re-admit at the new terms: pull the order off the book, return its
	// reservation, rewrite price/quantity, and run it back through the
	// normal admission pipeline under the same id (losing time priority).
	removedVisible := coretypes.Zero
	ladder := b.ladderFor(o.Side)
	if h, ok := ladder.index[o.ID]; ok {
		removedVisible = h.node.visible
	}
	ladder.cancel(o.ID)
	if o.TIF == coretypes.GTD && !o.ExpireAt.IsZero() {
		b.expiry.Remove(o.ID)
	}
	b.releaseLeftover(o)
	b.publishQty(o, LogCancel, coretypes.RejectNone, removedVisible)

	if !req.newPrice.IsZero() {
		o.Price = req.newPrice
	}
	if !req.newQty.IsZero() {
		o.Quantity = req.newQty
	}
	o.AdmittedAt = time.Now().UTC()
	return b.admitPrimitive(o)
}

// depth implements Book.Depth.
func (b *Book) depth(n int) any {
	return DepthSnapshot{
		Bids: b.bids.depth(n),
		Asks: b.asks.depth(n),
	}
}

// rollTrade folds one trade into the hourly window.
func (b *Book) rollTrade(now time.Time, price coretypes.Price, qty coretypes.Qty) {
	hour := now.Unix() / 3600
	bkt := &b.rolling[hour%24]
	if bkt.hour != hour {
		*bkt = hourBucket{hour: hour, volume: coretypes.Zero, high: price, low: price}
	}
	bkt.volume = bkt.volume.Add(qty)
	if price.GreaterThan(bkt.high) {
		bkt.high = price
	}
	if price.LessThan(bkt.low) {
		bkt.low = price
	}
}

// rolling24h aggregates the buckets still inside the trailing window.
func (b *Book) rolling24h(now time.Time) (volume coretypes.Qty, high, low coretypes.Price) {
	cutoff := now.Unix()/3600 - 23
	volume = coretypes.Zero
	for i := range b.rolling {
		bkt := &b.rolling[i]
		if bkt.hour < cutoff || bkt.volume.IsZero() {
			continue
		}
		volume = volume.Add(bkt.volume)
		if high.IsZero() || bkt.high.GreaterThan(high) {
			high = bkt.high
		}
		if low.IsZero() || bkt.low.LessThan(low) {
			low = bkt.low
		}
	}
	return volume, high, low
}

// stats implements Book.Stats.
func (b *Book) stats() any {
	vol24, high24, low24 := b.rolling24h(time.Now())
	return BookStats{
		Symbol:        b.symbol.Name,
		BidLevels:     b.bids.levelCount(),
		AskLevels:     b.asks.levelCount(),
		BidOrders:     b.bids.orderCount(),
		AskOrders:     b.asks.orderCount(),
		LastTrade:     b.lastTrade,
		SessionVolume: b.sessionVolume,
		Volume24h:     vol24,
		High24h:       high24,
		Low24h:        low24,
	}
}

// sweepExpiry cancels every GTD order due at or before now, in the same
// critical section that services every other admission/cancel, so expiry
// is totally ordered against the command stream.
func (b *Book) sweepExpiry(now time.Time) {
	for _, id := range b.expiry.Due(now) {
		o, ok := b.orders[id]
		if !ok || o.Status.IsTerminal() {
			continue
		}
		b.finalizeCancel(o, coretypes.StatusExpired)
	}
}

// applyReferenceChange records a fresh mark price and re-evaluates every
// pending stop/trailing-stop order against it (WorkingMark orders) and
// the last trade (WorkingLast orders), admitting whatever just triggered.
func (b *Book) applyReferenceChange(reference coretypes.Price) {
	b.markPrice = reference
	b.retriggerPending()
}

// submitBracket implements Book.SubmitBracket: admit the parent normally,
// register the stop-loss/take-profit pair to be admitted on the parent's
// first fill. The children always close: opposite side, and reduce-only
// on a perpetual.
func (b *Book) submitBracket(parent, stopLoss, takeProfit *coretypes.Order) any {
	if parent.ID == "" {
		parent.ID = newOrderID()
	}
	if stopLoss.ID == "" {
		stopLoss.ID = newOrderID()
	}
	if takeProfit.ID == "" {
		takeProfit.ID = newOrderID()
	}
	for _, child := range [2]*coretypes.Order{stopLoss, takeProfit} {
		child.Owner = parent.Owner
		child.Symbol = parent.Symbol
		child.Side = parent.Side.Opposite()
		child.ReduceOnly = b.symbol.IsPerpetual()
		child.Status = coretypes.StatusPending
	}

	b.tb.registerBracket(parent, stopLoss, takeProfit)
	res := b.submit(parent)
	if rej, isRej := res.(*coretypes.Rejection); isRej {
		b.tb.unregisterBracket(parent.ID)
		return rej
	}
	return res
}

// submitOCO implements Book.SubmitOCO: register the OCO link, admit a,
// then admit sibling. Whichever leg terminates first takes the other with
// it.
func (b *Book) submitOCO(a, sibling *coretypes.Order) any {
	if a.ID == "" {
		a.ID = newOrderID()
	}
	if sibling.ID == "" {
		sibling.ID = newOrderID()
	}
	b.tb.registerOCO(a, sibling)

	resA := b.submit(a)
	if rej, isRej := resA.(*coretypes.Rejection); isRej {
		b.tb.clearSibling(a.ID)
		return rej
	}
	if a.Status.IsTerminal() {
		// a never rested (e.g. fully filled on arrival); the sibling is
		// dead before it was ever admitted.
		b.tb.clearSibling(a.ID)
		sibling.Status = coretypes.StatusCancelled
		return resA
	}

	resB := b.submit(sibling)
	if rej, isRej := resB.(*coretypes.Rejection); isRej {
		// a is already live; undo back to a single resting order rather
		// than leaving a half-registered OCO pair.
		b.tb.clearSibling(a.ID)
		return rej
	}
	if sibling.Status.IsTerminal() {
		b.cancelLinked(a.ID)
	}
	return resA
}

// publishOpen/publishReject/publish/publishQty are the depth-affecting
// event emissions shared by the submit/cancel/amend paths. Open events
// carry the visible slice (not an iceberg's hidden remainder); cancel
// events carry the visible quantity actually removed from the book.
func (b *Book) publishOpen(o *coretypes.Order) {
	b.publishQty(o, LogOpen, coretypes.RejectNone, sliceQty(o))
}

func (b *Book) publishReject(o *coretypes.Order, reason coretypes.RejectReason) {
	b.publishQty(o, LogReject, reason, coretypes.Zero)
}

func (b *Book) publish(o *coretypes.Order, kind LogType, reason coretypes.RejectReason) {
	b.publishQty(o, kind, reason, o.Remaining())
}

// publishAmend carries both the old and new visible quantity so a depth
// view replaying the stream can apply the exact delta.
func (b *Book) publishAmend(o *coretypes.Order, oldVisible, newVisible coretypes.Qty) {
	log := acquireLog()
	log.SequenceID = b.nextSeq()
	log.Type = LogAmend
	log.Symbol = b.symbol.Name
	log.Side = o.Side
	log.Price = o.Price
	log.Qty = newVisible
	log.OldQty = oldVisible
	log.OrderID = o.ID
	log.Owner = o.Owner
	log.OrderType = o.Type
	log.CreatedAt = time.Now().UTC()
	b.sink.Publish(log)
	releaseLog(log)
}

func (b *Book) publishQty(o *coretypes.Order, kind LogType, reason coretypes.RejectReason, qty coretypes.Qty) {
	log := acquireLog()
	log.SequenceID = b.nextSeq()
	log.Type = kind
	log.Symbol = b.symbol.Name
	log.Side = o.Side
	log.Price = o.Price
	log.Qty = qty
	log.OrderID = o.ID
	log.Owner = o.Owner
	log.OrderType = o.Type
	log.RejectReason = reason
	log.CreatedAt = time.Now().UTC()
	b.sink.Publish(log)
	releaseLog(log)
}
