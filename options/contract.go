package options

import (
	"context"
	"sync"
	"time"
)

// Style names the exercise style of a listed contract. Only European
// contracts are priced; the other styles exist so listings imported from
// upstream venues keep their classification.
type Style int8

const (
	StyleEuropean Style = iota
	StyleAmerican
	StyleAsian
	StyleBarrier
	StyleBinary
	StyleLookback
	StyleRainbow
)

// Contract is one listed option: fixed strike/expiry/type/style, with a
// price and Greeks snapshot refreshed periodically from the current
// underlying mark. Options are not crossed by the matching engine; this
// is a standalone pricing/listing service, not an order book.
type Contract struct {
	ID         string
	Underlying string
	Strike     float64
	ExpiresAt  time.Time
	Type       Type
	Style      Style
	Rate       float64
	Volatility float64 // implied, used as the pricing input

	mu     sync.RWMutex
	last   Result
	listed time.Time
	frozen bool // set once the contract expires; the snapshot stops moving
}

// Snapshot returns the most recently computed price and Greeks.
func (c *Contract) Snapshot() Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Active reports whether the contract is still alive (not yet expired
// and deactivated by the recompute loop).
func (c *Contract) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.frozen
}

// timeToExpiry returns years remaining at asOf, floored at zero.
func (c *Contract) timeToExpiry(asOf time.Time) float64 {
	d := c.ExpiresAt.Sub(asOf)
	if d <= 0 {
		return 0
	}
	return d.Hours() / (24 * 365)
}

// Recompute reprices the contract from the current underlying mark. A
// contract at or past expiry is deactivated: its snapshot drops to the
// zero Result and stays there.
func (c *Contract) Recompute(spot float64, asOf time.Time) Result {
	expired := c.timeToExpiry(asOf) == 0
	res := Price(Inputs{
		Spot:       spot,
		Strike:     c.Strike,
		Expiry:     c.timeToExpiry(asOf),
		Rate:       c.Rate,
		Volatility: c.Volatility,
		Type:       c.Type,
	})
	c.mu.Lock()
	c.last = res
	if expired {
		c.frozen = true
	}
	c.mu.Unlock()
	return res
}

// MarkSource supplies the current mark price for an underlying symbol,
// implemented by the derivatives mark-price loop or a spot last-trade
// feed.
type MarkSource interface {
	Mark(symbol string) (float64, bool)
}

// Listing manages every contract for a set of underlyings and runs the
// periodic repricing task over them.
type Listing struct {
	mu        sync.RWMutex
	contracts map[string]*Contract
	marks     MarkSource
}

func NewListing(marks MarkSource) *Listing {
	return &Listing{contracts: make(map[string]*Contract), marks: marks}
}

func (l *Listing) Add(c *Contract) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c.listed = time.Now().UTC()
	l.contracts[c.ID] = c
}

func (l *Listing) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.contracts, id)
}

func (l *Listing) Get(id string) (*Contract, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.contracts[id]
	return c, ok
}

// RecomputeAll reprices every listed active contract whose underlying
// has a fresh mark, skipping (and leaving stale) any whose mark is
// unavailable. Contracts past expiry are deactivated on the tick that
// observes them.
func (l *Listing) RecomputeAll(asOf time.Time) {
	l.mu.RLock()
	contracts := make([]*Contract, 0, len(l.contracts))
	for _, c := range l.contracts {
		contracts = append(contracts, c)
	}
	l.mu.RUnlock()

	for _, c := range contracts {
		if !c.Active() {
			continue
		}
		spot, ok := l.marks.Mark(c.Underlying)
		if !ok {
			continue
		}
		c.Recompute(spot, asOf)
	}
}

// Run starts the periodic recompute loop on interval until ctx is done.
func (l *Listing) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.RecomputeAll(now)
		}
	}
}
