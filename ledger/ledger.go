// Package ledger implements per (owner, asset) free/reserved balances,
// mutated from inside a book's single-threaded critical section so that
// trade emission and balance change are observed atomically.
package ledger

import (
	"fmt"
	"sync"

	"github.com/lattice-exchange/matchcore/coretypes"
)

// Balance is one (owner, asset) pair's free and reserved amounts.
// Invariant: Free >= 0 and Reserved >= 0 at every observable point, with
// the single exception of Credit, which settles signed funding/P&L
// amounts and may leave Free negative for an underwater account.
type Balance struct {
	Free     coretypes.Price
	Reserved coretypes.Price
}

// ownerBook holds one owner's balances across every asset, guarded by its
// own mutex so a fill only ever touches the two owners involved instead
// of an engine-wide lock.
type ownerBook struct {
	mu       sync.Mutex
	balances map[string]*Balance
}

func newOwnerBook() *ownerBook {
	return &ownerBook{balances: make(map[string]*Balance)}
}

func (ob *ownerBook) balance(asset string) *Balance {
	b, ok := ob.balances[asset]
	if !ok {
		b = &Balance{Free: coretypes.Zero, Reserved: coretypes.Zero}
		ob.balances[asset] = b
	}
	return b
}

// AccountLedger is the concrete book.Ledger implementation: a sync.Map of
// owner to ownerBook. It is also the administrative entry point for
// deposits (out of scope for the matching core itself, but needed to make
// any of this testable).
type AccountLedger struct {
	owners sync.Map // string -> *ownerBook
}

func NewAccountLedger() *AccountLedger {
	return &AccountLedger{}
}

func (l *AccountLedger) ownerBookFor(owner string) *ownerBook {
	if ob, ok := l.owners.Load(owner); ok {
		return ob.(*ownerBook)
	}
	ob := newOwnerBook()
	actual, _ := l.owners.LoadOrStore(owner, ob)
	return actual.(*ownerBook)
}

// Deposit credits owner's free balance of asset. Administrative: never
// called from inside the matching critical section.
func (l *AccountLedger) Deposit(owner, asset string, amount coretypes.Price) {
	ob := l.ownerBookFor(owner)
	ob.mu.Lock()
	defer ob.mu.Unlock()
	bal := ob.balance(asset)
	bal.Free = bal.Free.Add(amount)
}

// Balance returns a snapshot of owner's free/reserved for asset.
func (l *AccountLedger) Balance(owner, asset string) Balance {
	ob := l.ownerBookFor(owner)
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return *ob.balance(asset)
}

// Reserve moves amount from free to reserved, rejecting if free is
// insufficient. Over-reservation at admission is how an order with no
// backing balance gets rejected before it can touch the book.
func (l *AccountLedger) Reserve(owner, asset string, amount coretypes.Price) *coretypes.Rejection {
	if amount.IsZero() {
		return nil
	}
	ob := l.ownerBookFor(owner)
	ob.mu.Lock()
	defer ob.mu.Unlock()
	bal := ob.balance(asset)
	if bal.Free.LessThan(amount) {
		return coretypes.NewRejection(coretypes.RejectInsufficientBalance, fmt.Sprintf("insufficient free %s balance", asset))
	}
	bal.Free = bal.Free.Sub(amount)
	bal.Reserved = bal.Reserved.Add(amount)
	return nil
}

// Release returns amount from reserved to free, clamping at the owner's
// actual reserved balance so a rounding mismatch never drives Reserved
// negative.
func (l *AccountLedger) Release(owner, asset string, amount coretypes.Price) {
	if amount.IsZero() {
		return
	}
	ob := l.ownerBookFor(owner)
	ob.mu.Lock()
	defer ob.mu.Unlock()
	bal := ob.balance(asset)
	if amount.GreaterThan(bal.Reserved) {
		amount = bal.Reserved
	}
	bal.Reserved = bal.Reserved.Sub(amount)
	bal.Free = bal.Free.Add(amount)
}

// Credit applies a signed amount to owner's free balance: realized P&L,
// funding payments, and fee debits on margin markets. Unlike Deposit it
// may drive Free negative; an underwater wallet is the liquidation
// engine's problem, not the ledger's.
func (l *AccountLedger) Credit(owner, asset string, amount coretypes.Price) {
	if amount.IsZero() {
		return
	}
	ob := l.ownerBookFor(owner)
	ob.mu.Lock()
	defer ob.mu.Unlock()
	bal := ob.balance(asset)
	bal.Free = bal.Free.Add(amount)
}

// SettleFill moves the buyer's reserved quote into the seller's free
// quote (net of seller fee), and the seller's reserved base into the
// buyer's free base (net of buyer fee): the two legs of one spot trade.
// The debit side draws from reserved first and overflows into free, which
// covers a market buy whose admission-time reservation undershot the
// realized fill price. Acquires both owners' locks in a fixed
// (lexicographic) order to stay deadlock-free against the symmetric call
// for some other concurrent trade.
func (l *AccountLedger) SettleFill(buyerOwner, sellerOwner, base, quote string, price, qty, buyerFee, sellerFee coretypes.Price) error {
	buyerOB := l.ownerBookFor(buyerOwner)
	sellerOB := l.ownerBookFor(sellerOwner)

	first, second := buyerOB, sellerOB
	if sellerOwner < buyerOwner {
		first, second = sellerOB, buyerOB
	}
	if first == second {
		first.mu.Lock()
		defer first.mu.Unlock()
	} else {
		first.mu.Lock()
		defer first.mu.Unlock()
		second.mu.Lock()
		defer second.mu.Unlock()
	}

	notional := price.Mul(qty)

	buyerQuote := buyerOB.balance(quote)
	if err := debit(buyerQuote, notional); err != nil {
		return fmt.Errorf("ledger: buyer %s %s: %w", buyerOwner, quote, err)
	}
	sellerBase := sellerOB.balance(base)
	if err := debit(sellerBase, qty); err != nil {
		return fmt.Errorf("ledger: seller %s %s: %w", sellerOwner, base, err)
	}

	sellerQuote := sellerOB.balance(quote)
	sellerQuote.Free = sellerQuote.Free.Add(notional.Sub(sellerFee))

	buyerBase := buyerOB.balance(base)
	buyerBase.Free = buyerBase.Free.Add(qty.Sub(buyerFee))

	return nil
}

// debit removes amount from bal, reserved first, overflow from free.
func debit(bal *Balance, amount coretypes.Price) error {
	fromReserved := amount
	if fromReserved.GreaterThan(bal.Reserved) {
		fromReserved = bal.Reserved
	}
	overflow := amount.Sub(fromReserved)
	if overflow.GreaterThan(bal.Free) {
		return fmt.Errorf("debit of %s exceeds reserved+free", amount.String())
	}
	bal.Reserved = bal.Reserved.Sub(fromReserved)
	bal.Free = bal.Free.Sub(overflow)
	return nil
}
