package book

import (
	"sort"

	"github.com/lattice-exchange/matchcore/coretypes"
)

// triggerBook owns the state machines for the triggered order shells:
// stop/stop-limit, trailing-stop, bracket, and OCO. Iceberg replenishment
// needs no separate state here (it lives in Level/resting, see level.go)
// since it only ever touches the slice currently resting.
type triggerBook struct {
	// pending holds stop/stop-limit/trailing orders not yet admitted to
	// either ladder, keyed by order id.
	pending map[string]*coretypes.Order

	// ocoSibling links two order ids such that a fill or cancel on one
	// cancels the other. Bracket children are linked the same way from
	// the moment the bracket is registered.
	ocoSibling map[string]string

	// bracketChildren holds a bracket parent's stop-loss/take-profit pair
	// for its whole lifetime, so later fills can resize an already
	// admitted pair rather than only handling the first admission.
	bracketChildren map[string]*bracketLink

	// bracketParent maps a child id back to its parent id, so a child
	// fill/cancel can find its sibling and its parent.
	bracketParent map[string]string
}

// bracketLink tracks one parent's stop-loss/take-profit pair across the
// parent's whole fill history: not admitted until the first fill, resized
// on every fill after that.
type bracketLink struct {
	stopLoss, takeProfit *coretypes.Order
	admitted             bool
}

func newTriggerBook() *triggerBook {
	return &triggerBook{
		pending:         make(map[string]*coretypes.Order),
		ocoSibling:      make(map[string]string),
		bracketChildren: make(map[string]*bracketLink),
		bracketParent:   make(map[string]string),
	}
}

// stopReady reports whether the reference price has crossed o's stop in
// o's trigger direction. Buy-stops trigger when reference >= stop, sell-
// stops when reference <= stop. A trailing stop compares strictly: its
// stop ratchets to reference -/+ trail at the peak, and a reversal has
// to actually pierce that level, not just touch it.
func stopReady(o *coretypes.Order, reference coretypes.Price) bool {
	strict := o.Type == coretypes.TrailingStop
	if o.Side == coretypes.Buy {
		if strict {
			return reference.GreaterThan(o.StopPrice)
		}
		return reference.GreaterThanOrEqual(o.StopPrice)
	}
	if strict {
		return reference.LessThan(o.StopPrice)
	}
	return reference.LessThanOrEqual(o.StopPrice)
}

// admitPending stashes a stop/stop-limit/trailing-stop order in the
// armed-but-not-triggered state. For a trailing stop the initial stop
// price is seeded from the current reference immediately.
func (tb *triggerBook) admitPending(o *coretypes.Order, reference coretypes.Price) {
	if o.Type == coretypes.TrailingStop {
		tb.seedTrail(o, reference)
	}
	o.Status = coretypes.StatusPending
	tb.pending[o.ID] = o
}

// seedTrail sets the initial stop price for a freshly admitted trailing
// stop from the trail distance and the current reference price.
func (tb *triggerBook) seedTrail(o *coretypes.Order, reference coretypes.Price) {
	trail := tb.trailDistance(o, reference)
	if o.Side == coretypes.Sell {
		o.StopPrice = reference.Sub(trail)
	} else {
		o.StopPrice = reference.Add(trail)
	}
}

func (tb *triggerBook) trailDistance(o *coretypes.Order, reference coretypes.Price) coretypes.Price {
	if !o.TrailAmount.IsZero() {
		return o.TrailAmount
	}
	return coretypes.FromFloat64(coretypes.ToFloat64(reference) * o.TrailPercent)
}

// cancelPending removes a not-yet-triggered order, returning true if it
// was found.
func (tb *triggerBook) cancelPending(id string) bool {
	if _, ok := tb.pending[id]; !ok {
		return false
	}
	delete(tb.pending, id)
	return true
}

// onReferenceChange re-evaluates every pending stop/trailing order
// against whichever of lastTrade/markPrice its WorkingType names,
// ratcheting each trailing stop (the stop only ever moves with the trend,
// never back against it), then returns every order now triggered,
// ordered by admission time so two runs over the same stream trigger in
// the same sequence. Triggered orders are removed from pending; the
// caller converts each into a live market/limit order and admits it.
func (tb *triggerBook) onReferenceChange(lastTrade, markPrice coretypes.Price) []*coretypes.Order {
	var triggered []*coretypes.Order
	for id, o := range tb.pending {
		reference := lastTrade
		if o.WorkingType == coretypes.WorkingMark && !markPrice.IsZero() {
			reference = markPrice
		}
		if reference.IsZero() {
			continue
		}
		if o.Type == coretypes.TrailingStop {
			trail := tb.trailDistance(o, reference)
			if o.Side == coretypes.Sell {
				candidate := reference.Sub(trail)
				if candidate.GreaterThan(o.StopPrice) {
					o.StopPrice = candidate
				}
			} else {
				candidate := reference.Add(trail)
				if candidate.LessThan(o.StopPrice) {
					o.StopPrice = candidate
				}
			}
		}
		if stopReady(o, reference) {
			delete(tb.pending, id)
			triggered = append(triggered, o)
		}
	}
	sort.Slice(triggered, func(i, j int) bool {
		if !triggered[i].AdmittedAt.Equal(triggered[j].AdmittedAt) {
			return triggered[i].AdmittedAt.Before(triggered[j].AdmittedAt)
		}
		return triggered[i].ID < triggered[j].ID
	})
	return triggered
}

// materialize converts a triggered stop/stop-limit shell into the live
// primitive it shadows: a market order for a stop or trailing stop, a
// limit order at the stop-limit's price otherwise.
func materialize(o *coretypes.Order) *coretypes.Order {
	if o.Type == coretypes.Stop || o.Type == coretypes.TrailingStop {
		o.Type = coretypes.Market
	} else {
		o.Type = coretypes.Limit
	}
	o.Status = coretypes.StatusOpen
	return o
}

// registerOCO links two sibling orders: a fill or cancel on either
// cancels the other.
func (tb *triggerBook) registerOCO(a, b *coretypes.Order) {
	tb.ocoSibling[a.ID] = b.ID
	tb.ocoSibling[b.ID] = a.ID
	a.ChildIDs = append(a.ChildIDs, b.ID)
	b.ChildIDs = append(b.ChildIDs, a.ID)
}

// registerBracket records a parent's stop-loss/take-profit pair, to be
// admitted once the parent has a non-zero fill.
func (tb *triggerBook) registerBracket(parent, stopLoss, takeProfit *coretypes.Order) {
	parent.ChildIDs = append(parent.ChildIDs, stopLoss.ID, takeProfit.ID)
	stopLoss.ParentID = parent.ID
	takeProfit.ParentID = parent.ID
	tb.bracketChildren[parent.ID] = &bracketLink{stopLoss: stopLoss, takeProfit: takeProfit}
	tb.bracketParent[stopLoss.ID] = parent.ID
	tb.bracketParent[takeProfit.ID] = parent.ID
	tb.ocoSibling[stopLoss.ID] = takeProfit.ID
	tb.ocoSibling[takeProfit.ID] = stopLoss.ID
}

// unregisterBracket tears a bracket registration back down when the
// parent's admission was rejected and its children will never exist.
func (tb *triggerBook) unregisterBracket(parentID string) {
	link, ok := tb.bracketChildren[parentID]
	if !ok {
		return
	}
	delete(tb.bracketChildren, parentID)
	delete(tb.bracketParent, link.stopLoss.ID)
	delete(tb.bracketParent, link.takeProfit.ID)
	delete(tb.ocoSibling, link.stopLoss.ID)
	delete(tb.ocoSibling, link.takeProfit.ID)
}

// onParentFill is called every time a bracket parent's Filled quantity
// increases. The first call admits the two children sized to the
// parent's current fill; later calls resize them. Returns the children
// so Book can (re)admit or resize them.
func (tb *triggerBook) onParentFill(parent *coretypes.Order) (sl, tp *coretypes.Order, firstAdmission bool) {
	link, ok := tb.bracketChildren[parent.ID]
	if !ok {
		return nil, nil, false
	}
	if link.stopLoss.Status.IsTerminal() || link.takeProfit.Status.IsTerminal() {
		return nil, nil, false
	}
	link.stopLoss.Quantity = parent.Filled
	link.takeProfit.Quantity = parent.Filled
	if !link.admitted {
		link.admitted = true
		return link.stopLoss, link.takeProfit, true
	}
	return link.stopLoss, link.takeProfit, false
}

// siblingOf returns the order id linked to id via OCO or bracket-child
// linkage, if any.
func (tb *triggerBook) siblingOf(id string) (string, bool) {
	sib, ok := tb.ocoSibling[id]
	return sib, ok
}

// clearSibling drops the OCO/bracket-child link once one side is final.
func (tb *triggerBook) clearSibling(id string) {
	if sib, ok := tb.ocoSibling[id]; ok {
		delete(tb.ocoSibling, id)
		delete(tb.ocoSibling, sib)
	}
}
