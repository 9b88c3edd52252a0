package book

import (
	"fmt"
	"time"

	"github.com/lattice-exchange/matchcore/coretypes"
)

// ladderFor returns this book's resting ladder for side: bids for a buy,
// asks for a sell. This is the ladder an order of this side would rest on,
// not the opposite side it crosses against.
func (b *Book) ladderFor(side coretypes.Side) *Ladder {
	if side == coretypes.Buy {
		return b.bids
	}
	return b.asks
}

// reference returns the price o's stop/trailing trigger evaluates
// against: the symbol's mark price for WorkingMark, last trade otherwise.
// Falls back to last trade when no mark has been pushed in yet via
// OnReferenceChange.
func (b *Book) reference(o *coretypes.Order) coretypes.Price {
	if o.WorkingType == coretypes.WorkingMark && !b.markPrice.IsZero() {
		return b.markPrice
	}
	return b.lastTrade
}

func minQty(a, c coretypes.Qty) coretypes.Qty {
	if a.LessThan(c) {
		return a
	}
	return c
}

// validate applies the admission-time checks: zero quantity/price,
// tick/lot compliance, min/max bounds, leverage, trigger parameters.
func (b *Book) validate(o *coretypes.Order) *coretypes.Rejection {
	if o.Type == coretypes.Bracket || o.Type == coretypes.OCO {
		return coretypes.NewRejection(coretypes.RejectInvalidParam, "bracket/oco groups have their own entry points")
	}
	if o.Quantity.IsZero() || o.Quantity.LessThan(coretypes.Zero) {
		return coretypes.NewRejection(coretypes.RejectQuantityOutOfRange, "quantity must be positive")
	}
	if !coretypes.OnLot(o.Quantity, b.symbol.Lot) {
		return coretypes.NewRejection(coretypes.RejectQuantityOutOfRange, "quantity not a multiple of lot size")
	}
	if !b.symbol.MinQty.IsZero() && o.Quantity.LessThan(b.symbol.MinQty) {
		return coretypes.NewRejection(coretypes.RejectQuantityOutOfRange, "below minimum quantity")
	}
	if !b.symbol.MaxQty.IsZero() && o.Quantity.GreaterThan(b.symbol.MaxQty) {
		return coretypes.NewRejection(coretypes.RejectQuantityOutOfRange, "above maximum quantity")
	}

	needsPrice := o.Type == coretypes.Limit || o.Type == coretypes.StopLimit || o.Type == coretypes.Iceberg
	if needsPrice {
		if o.Price.IsZero() || o.Price.LessThan(coretypes.Zero) {
			return coretypes.NewRejection(coretypes.RejectInvalidParam, "price must be positive")
		}
		if !coretypes.OnTick(o.Price, b.symbol.Tick) {
			return coretypes.NewRejection(coretypes.RejectPriceOffTick, "price not a multiple of tick size")
		}
	}

	needsStop := o.Type == coretypes.Stop || o.Type == coretypes.StopLimit
	if needsStop && o.StopPrice.IsZero() {
		return coretypes.NewRejection(coretypes.RejectInvalidParam, "stop price must be positive")
	}
	if o.Type == coretypes.TrailingStop && o.TrailAmount.IsZero() && o.TrailPercent <= 0 {
		return coretypes.NewRejection(coretypes.RejectInvalidParam, "trailing stop requires a trail amount or percent")
	}

	if o.PostOnly {
		if o.Type != coretypes.Limit && o.Type != coretypes.Iceberg {
			return coretypes.NewRejection(coretypes.RejectInvalidParam, "post_only requires a resting order type")
		}
		if o.TIF == coretypes.IOC || o.TIF == coretypes.FOK {
			return coretypes.NewRejection(coretypes.RejectInvalidParam, "post_only cannot combine with an immediate time-in-force")
		}
	}

	if o.ReduceOnly && !b.symbol.IsPerpetual() {
		return coretypes.NewRejection(coretypes.RejectInvalidParam, "reduce_only only applies to perpetual futures")
	}

	if b.symbol.IsPerpetual() && o.Leverage > b.symbol.MaxLeverage {
		return coretypes.NewRejection(coretypes.RejectLeverageExceeded, "requested leverage exceeds symbol maximum")
	}
	return nil
}

// leverageOf returns o's requested leverage, defaulting to 1x when unset.
func leverageOf(o *coretypes.Order) int {
	if o.Leverage <= 0 {
		return 1
	}
	return o.Leverage
}

// applySlippageCap converts an uncapped market order into a price-bounded
// one when the symbol configures a default max slippage: the bound is the
// current reference price padded by the slippage fraction. The order
// still never rests; the bound only stops the crossing loop from walking
// arbitrarily deep into the opposite ladder.
func (b *Book) applySlippageCap(o *coretypes.Order) {
	if o.Type != coretypes.Market || !o.Price.IsZero() || b.symbol.MaxSlippageDefault <= 0 {
		return
	}
	ref := b.lastTrade
	if ref.IsZero() {
		return
	}
	pad := coretypes.ToFloat64(ref) * b.symbol.MaxSlippageDefault
	if o.Side == coretypes.Buy {
		o.Price = coretypes.FromFloat64(coretypes.ToFloat64(ref) + pad)
	} else {
		o.Price = coretypes.FromFloat64(coretypes.ToFloat64(ref) - pad)
	}
}

// reservePrice is the price used to size a reservation at admission: the
// order's own (or slippage-capped) price when it has one, else the best
// opposite price it would cross first, else the stop it will trigger at,
// else the order's reference price (see reference).
func (b *Book) reservePrice(o *coretypes.Order) coretypes.Price {
	if !o.Price.IsZero() {
		return o.Price
	}
	if opp := b.ladderFor(o.Side.Opposite()).best(); opp != nil {
		return opp.Price
	}
	if !o.StopPrice.IsZero() {
		return o.StopPrice
	}
	return b.reference(o)
}

// reserveAsset is the asset a reservation for o is held in: quote for
// buys and for any perpetual order (margin is quote-denominated), base
// for a spot sell.
func (b *Book) reserveAsset(o *coretypes.Order) string {
	if b.symbol.IsPerpetual() || o.Side == coretypes.Buy {
		return b.symbol.QuoteAsset
	}
	return b.symbol.BaseAsset
}

// reservationFor sizes the admission-time hold for o: initial margin
// (notional / leverage) for a perpetual, full notional for a spot buy,
// base quantity for a spot sell.
func (b *Book) reservationFor(o *coretypes.Order) coretypes.Price {
	if b.symbol.IsPerpetual() {
		notional := o.Remaining().Mul(b.reservePrice(o))
		return coretypes.Div(notional, coretypes.FromInt(int64(leverageOf(o))))
	}
	if o.Side == coretypes.Buy {
		return o.Remaining().Mul(b.reservePrice(o))
	}
	return o.Remaining()
}

func (b *Book) reserveFor(o *coretypes.Order) *coretypes.Rejection {
	if o.ReduceOnly {
		return nil
	}
	amount := b.reservationFor(o)
	if amount.IsZero() {
		return nil
	}
	if rej := b.ledger.Reserve(o.Owner, b.reserveAsset(o), amount); rej != nil {
		return rej
	}
	o.Reserved = amount
	return nil
}

// releaseLeftover returns whatever o still holds reserved to the owner's
// free balance: the unfilled remainder on cancel/expiry, or the
// price-improvement tail after a full fill below the reserved price.
func (b *Book) releaseLeftover(o *coretypes.Order) {
	if o.Reserved.IsZero() {
		return
	}
	b.ledger.Release(o.Owner, b.reserveAsset(o), o.Reserved)
	o.Reserved = coretypes.Zero
}

// consumeReservation attributes the part of o's reservation spent by a
// fill of qty at price, so the leftover released later is exact. The
// ledger-side movement happens in SettleFill (spot) or stays reserved as
// position margin (perpetual); this only maintains the per-order counter.
func (b *Book) consumeReservation(o *coretypes.Order, price, qty coretypes.Price) {
	if o.ReduceOnly || o.Reserved.IsZero() {
		return
	}
	var consumed coretypes.Price
	switch {
	case b.symbol.IsPerpetual():
		consumed = coretypes.Div(price.Mul(qty), coretypes.FromInt(int64(leverageOf(o))))
	case o.Side == coretypes.Buy:
		consumed = price.Mul(qty)
	default:
		consumed = qty
	}
	if consumed.GreaterThan(o.Reserved) {
		consumed = o.Reserved
	}
	o.Reserved = o.Reserved.Sub(consumed)
}

// withinPriceBand reports whether price is inside the symbol's protective
// band around the last trade. A zero band width or a zero last-trade
// price (no reference yet) disables the check.
func (b *Book) withinPriceBand(price coretypes.Price) bool {
	if b.symbol.PriceBandWidth <= 0 || b.lastTrade.IsZero() {
		return true
	}
	ref := coretypes.ToFloat64(b.lastTrade)
	p := coretypes.ToFloat64(price)
	dev := (p - ref) / ref
	if dev < 0 {
		dev = -dev
	}
	return dev <= b.symbol.PriceBandWidth
}

// crossable reports whether a maker at makerPrice satisfies o's price
// bound. An order with a zero price (uncapped market) crosses anything.
func crossable(o *coretypes.Order, makerPrice coretypes.Price) bool {
	if o.Price.IsZero() {
		return true
	}
	if o.Side == coretypes.Buy {
		return !makerPrice.GreaterThan(o.Price)
	}
	return !makerPrice.LessThan(o.Price)
}

// canFillFully simulates whether the opposite ladder holds enough
// aggregate quantity, within o's price bound, to fill o completely. Used
// by FOK admission so a fill-or-kill that cannot complete rejects
// without any state change.
func (b *Book) canFillFully(o *coretypes.Order) bool {
	target := o.Remaining()
	opp := b.ladderFor(o.Side.Opposite())
	sum := coretypes.Zero
	it := opp.prices.Iterator()
	for it.Valid() {
		price := it.Price()
		if !crossable(o, price) {
			break
		}
		if lvl, ok := opp.levels[price]; ok {
			sum = sum.Add(lvl.Aggregate())
			if sum.GreaterThanOrEqual(target) {
				return true
			}
		}
		it.Next()
	}
	return false
}

// cross runs the price-time crossing loop against taker until it is fully
// filled, the opposite book is exhausted, the taker's price bound is no
// longer met, or self-trade prevention stops it.
func (b *Book) cross(taker *coretypes.Order) {
	opp := b.ladderFor(taker.Side.Opposite())
	for !taker.IsFullyFilled() {
		lvl, r := opp.bestHead()
		if lvl == nil {
			return
		}
		makerPrice := lvl.Price
		if !crossable(taker, makerPrice) {
			return
		}

		maker := r.order

		if maker.Owner == taker.Owner && b.symbol.SelfTradePolicy != coretypes.SelfTradeAllow {
			switch b.symbol.SelfTradePolicy {
			case coretypes.SelfTradeCancelTaker:
				b.cancelTaker(taker)
				return
			case coretypes.SelfTradeCancelMaker:
				b.pullMaker(opp, lvl, r, maker, coretypes.RejectSelfTrade)
				continue
			case coretypes.SelfTradeCancelBoth:
				b.pullMaker(opp, lvl, r, maker, coretypes.RejectSelfTrade)
				b.cancelTaker(taker)
				return
			}
		}

		if !b.withinPriceBand(makerPrice) {
			return
		}

		qty := minQty(taker.Remaining(), r.visible)

		if b.positions != nil && b.symbol.IsPerpetual() {
			if taker.ReduceOnly && b.positions.WouldIncreaseSize(taker.Owner, b.symbol.Name, taker.Side, qty) {
				taker.Status = coretypes.StatusRejected
				b.publishReject(taker, coretypes.RejectReduceOnlyViolation)
				return
			}
			if maker.ReduceOnly && b.positions.WouldIncreaseSize(maker.Owner, b.symbol.Name, maker.Side, qty) {
				b.pullMaker(opp, lvl, r, maker, coretypes.RejectReduceOnlyViolation)
				continue
			}
		}

		b.applyFill(taker, maker, makerPrice, qty)

		if opp.consume(lvl, r, qty) {
			if maker.Type == coretypes.Iceberg && !maker.Remaining().IsZero() {
				// A replenished slice joins the back of the queue: new
				// slice, new time priority.
				opp.admit(maker)
				b.publishOpen(maker)
			}
		}
	}
}

func (b *Book) pullMaker(ladder *Ladder, lvl *Level, r *resting, maker *coretypes.Order, reason coretypes.RejectReason) {
	ladder.consume(lvl, r, r.visible)
	b.releaseLeftover(maker)
	maker.Status = coretypes.StatusCancelled
	b.publishReject(maker, reason)
}

// cancelTaker finalizes taker as cancelled for self-trade prevention,
// preserving whatever it already filled earlier in this crossing pass.
func (b *Book) cancelTaker(taker *coretypes.Order) {
	b.releaseLeftover(taker)
	taker.Status = coretypes.StatusCancelled
	b.publishReject(taker, coretypes.RejectSelfTrade)
}

func updateAvg(o *coretypes.Order, price, qty coretypes.Qty) {
	prevFilled := o.Filled
	newFilled := prevFilled.Add(qty)
	if prevFilled.IsZero() {
		o.AvgFillPrice = price
	} else {
		weighted := o.AvgFillPrice.Mul(prevFilled).Add(price.Mul(qty))
		o.AvgFillPrice = coretypes.Div(weighted, newFilled)
	}
	o.Filled = newFilled
}

// applyFill executes one match: updates both orders' fill state, settles
// the ledger (spot) or the position book (perpetual) atomically with the
// trade emission, and publishes the trade log.
func (b *Book) applyFill(taker, maker *coretypes.Order, price, qty coretypes.Qty) {
	now := time.Now().UTC()
	seq := b.nextSeq()
	tid := b.nextTrade()

	buyer, seller := taker, maker
	buyerIsTaker := true
	if taker.Side == coretypes.Sell {
		buyer, seller = maker, taker
		buyerIsTaker = false
	}

	buyerRate := b.symbol.Fees.MakerRate
	if buyerIsTaker {
		buyerRate = b.symbol.Fees.TakerRate
	}
	sellerRate := b.symbol.Fees.MakerRate
	if !buyerIsTaker {
		sellerRate = b.symbol.Fees.TakerRate
	}

	notional := price.Mul(qty)
	var buyerFee, sellerFee coretypes.Price
	if b.symbol.IsPerpetual() {
		// Margin markets charge both sides in quote on notional.
		buyerFee = notional.Mul(coretypes.FromFloat64(buyerRate))
		sellerFee = notional.Mul(coretypes.FromFloat64(sellerRate))
	} else {
		// Spot fees come out of the asset each side receives: base for
		// the buyer, quote for the seller.
		buyerFee = qty.Mul(coretypes.FromFloat64(buyerRate))
		sellerFee = notional.Mul(coretypes.FromFloat64(sellerRate))
	}

	updateAvg(taker, price, qty)
	updateAvg(maker, price, qty)
	b.consumeReservation(taker, price, qty)
	b.consumeReservation(maker, price, qty)

	if b.symbol.IsPerpetual() {
		if b.positions != nil {
			if err := b.positions.OnFill(b.symbol.Name, b.symbol.QuoteAsset, buyer.Owner, seller.Owner, price, qty, leverageOf(buyer), leverageOf(seller)); err != nil {
				logger.Error("position update failed, halting symbol", "symbol", b.symbol.Name, "error", err)
				panic(fmt.Errorf("%w: position update for symbol %s: %v", ErrInternal, b.symbol.Name, err))
			}
		}
		if !buyerFee.IsZero() {
			b.ledger.Credit(buyer.Owner, b.symbol.QuoteAsset, coretypes.Zero.Sub(buyerFee))
		}
		if !sellerFee.IsZero() {
			b.ledger.Credit(seller.Owner, b.symbol.QuoteAsset, coretypes.Zero.Sub(sellerFee))
		}
	} else {
		if err := b.ledger.SettleFill(buyer.Owner, seller.Owner, b.symbol.BaseAsset, b.symbol.QuoteAsset, price, qty, buyerFee, sellerFee); err != nil {
			// A match the reservation discipline cannot cover is a logic
			// bug; halting the symbol beats papering over it.
			logger.Error("ledger settlement failed, halting symbol", "symbol", b.symbol.Name, "error", err)
			panic(fmt.Errorf("%w: ledger settlement for symbol %s: %v", ErrInternal, b.symbol.Name, err))
		}
	}

	for _, o := range [2]*coretypes.Order{maker, taker} {
		if o.IsFullyFilled() {
			o.Status = coretypes.StatusFilled
			b.releaseLeftover(o)
			b.expiry.Remove(o.ID)
		} else {
			o.Status = coretypes.StatusPartiallyFilled
		}
	}

	b.lastTrade = price
	b.sessionVolume = b.sessionVolume.Add(qty)
	b.rollTrade(now, price, qty)

	log := acquireLog()
	log.SequenceID = seq
	log.TradeID = tid
	log.Type = LogMatch
	log.Symbol = b.symbol.Name
	log.Side = taker.Side
	log.Price = price
	log.Qty = qty
	log.OrderID = taker.ID
	log.Owner = taker.Owner
	log.OrderType = taker.Type
	log.MakerOrderID = maker.ID
	log.MakerOwner = maker.Owner
	log.TakerFee = buyerFee
	log.MakerFee = sellerFee
	if taker.Side == coretypes.Sell {
		log.TakerFee, log.MakerFee = sellerFee, buyerFee
	}
	log.CreatedAt = now
	b.sink.Publish(log)
	releaseLog(log)

	b.onFillProgress(maker)
	b.onFillProgress(taker)

	// A fresh last trade can trigger any WorkingLast stop/trailing order;
	// mark-price triggers are driven separately by OnReferenceChange.
	b.retriggerPending()
}

// retriggerPending re-evaluates every stop/trailing order still parked in
// the trigger book against the book's current last-trade and mark-price
// references, materializing and admitting whatever just triggered.
func (b *Book) retriggerPending() {
	for _, o := range b.tb.onReferenceChange(b.lastTrade, b.markPrice) {
		materialize(o)
		b.publish(o, LogTrigger, coretypes.RejectNone)
		b.admitPrimitive(o)
	}
}

// onFillProgress fires the bracket/OCO side effects that must happen the
// instant an order's filled quantity advances: cancel an OCO/bracket
// sibling, or admit/resize bracket children once the parent has a
// non-zero fill.
func (b *Book) onFillProgress(o *coretypes.Order) {
	if sib, ok := b.tb.siblingOf(o.ID); ok {
		b.tb.clearSibling(o.ID)
		b.cancelLinked(sib)
	}

	sl, tp, first := b.tb.onParentFill(o)
	if sl == nil {
		return
	}
	if first {
		now := time.Now().UTC()
		sl.AdmittedAt = now
		tp.AdmittedAt = now
		b.orders[sl.ID] = sl
		b.orders[tp.ID] = tp
		b.admitChild(sl)
		b.admitChild(tp)
		return
	}
	b.resizeResting(sl)
	b.resizeResting(tp)
}

// admitChild routes a bracket child into the ladder or the trigger book
// depending on its type, the same dispatch submit performs for a freshly
// arrived order: a stop-loss child is itself a stop order and must wait
// to trigger, not be crossed immediately.
func (b *Book) admitChild(o *coretypes.Order) {
	switch o.Type {
	case coretypes.Stop, coretypes.StopLimit, coretypes.TrailingStop:
		b.tb.admitPending(o, b.reference(o))
		b.publish(o, LogTrigger, coretypes.RejectNone)
	default:
		b.admitPrimitive(o)
	}
}

// cancelLinked cancels a sibling/child order referenced by id, ignoring
// unknown or already-terminal ids (idempotent, since both directions of
// an OCO link can race to cancel each other).
func (b *Book) cancelLinked(id string) {
	o, ok := b.orders[id]
	if !ok || o.Status.IsTerminal() {
		return
	}
	b.finalizeCancel(o, coretypes.StatusCancelled)
}

// resizeResting re-admits a bracket child at its (already updated)
// Quantity. A child still waiting in the trigger book (not yet
// triggered) has already had its Quantity updated in place by
// onParentFill and needs no further action here.
func (b *Book) resizeResting(o *coretypes.Order) {
	if o.Status.IsTerminal() || o.Status == coretypes.StatusPending {
		return
	}
	ladder := b.ladderFor(o.Side)
	if ladder.cancel(o.ID) {
		ladder.admit(o)
	}
}
