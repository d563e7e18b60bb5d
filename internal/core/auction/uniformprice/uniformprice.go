// Package uniformprice implements the reference batch auction module: every
// filled bid clears at one fixed price set by the seller at lot creation.
// Bids fill in arrival order until capacity runs out; the bid straddling the
// boundary is partially filled. It exists to exercise every settlement path
// (full, none, partial) deterministically, not to discover prices.
package uniformprice

import (
	"context"
	"sync"

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/aucterr"
	"github.com/openclear/auctiond/internal/core/auction"
	"github.com/openclear/auctiond/internal/core/token"
)

// KeycodeUP is the registry keycode of this module.
const KeycodeUP auction.Keycode = "UPBA"

// oneBase is one whole base token at the internal scale.
const oneBase = 1_000_000_000_000_000_000

// Params configures a uniform-price lot.
type Params struct {
	// Price is the clearing price: internal-scale quote units per whole
	// base token.
	Price uint64

	// MinRaise is the minimum cleared quote amount (native decimals, net of
	// the partial-fill refund) for the lot to settle at all.
	MinRaise amount.Amount
}

type bidState uint8

const (
	bidActive bidState = iota
	bidRefunded
	bidFilled
	bidUnfilled
	bidPartial // resolved directly at settlement
)

type bid struct {
	id     uint64
	bidder token.Address
	amt    amount.Amount
	state  bidState
	payout amount.Amount
}

type lot struct {
	params  auction.LotParams
	price   uint64
	minRaise amount.Amount
	order   []*bid
	byID    map[uint64]*bid
	settled bool
}

// Module is the uniform-price batch module.
type Module struct {
	mu   sync.Mutex
	lots map[uint64]*lot
}

func New() *Module {
	return &Module{lots: make(map[uint64]*lot)}
}

func (m *Module) Keycode() auction.Keycode { return KeycodeUP }
func (m *Module) Type() auction.Type       { return auction.TypeBatch }

func (m *Module) Register(lotID uint64, p auction.LotParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lots[lotID]; ok {
		return aucterr.New(aucterr.KindInvalidParams, "uniformprice", "lot %d already registered", lotID)
	}
	up, ok := p.Params.(Params)
	if !ok {
		return aucterr.New(aucterr.KindInvalidParams, "uniformprice", "lot %d: params are not uniformprice.Params", lotID)
	}
	if up.Price == 0 {
		return aucterr.New(aucterr.KindInvalidParams, "uniformprice", "lot %d: zero price", lotID)
	}
	m.lots[lotID] = &lot{
		params:   p,
		price:    up.Price,
		minRaise: up.MinRaise,
		byID:     make(map[uint64]*bid),
	}
	return nil
}

func (m *Module) Cancel(lotID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, err := m.lot(lotID)
	if err != nil {
		return err
	}
	if l.settled {
		return aucterr.New(aucterr.KindInvalidState, "uniformprice", "lot %d already settled", lotID)
	}
	delete(m.lots, lotID)
	return nil
}

func (m *Module) Bid(lotID, bidID uint64, bidder token.Address, amt amount.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, err := m.lot(lotID)
	if err != nil {
		return err
	}
	if l.settled {
		return aucterr.New(aucterr.KindInvalidState, "uniformprice", "lot %d already settled", lotID)
	}
	if amt.IsZero() {
		return aucterr.New(aucterr.KindInvalidParams, "uniformprice", "zero bid amount")
	}
	if _, ok := l.byID[bidID]; ok {
		return aucterr.New(aucterr.KindInvalidParams, "uniformprice", "bid %d already placed", bidID)
	}
	b := &bid{id: bidID, bidder: bidder, amt: amt}
	l.order = append(l.order, b)
	l.byID[bidID] = b
	return nil
}

func (m *Module) RefundBid(lotID, bidID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, err := m.lot(lotID)
	if err != nil {
		return err
	}
	if l.settled {
		return aucterr.New(aucterr.KindInvalidState, "uniformprice", "lot %d already settled", lotID)
	}
	b, ok := l.byID[bidID]
	if !ok || b.state != bidActive {
		return aucterr.New(aucterr.KindInvalidBidID, "uniformprice", "bid %d not refundable", bidID)
	}
	b.state = bidRefunded
	return nil
}

// Settle clears the lot: fills active bids in arrival order at the fixed
// price until capacity is exhausted. Returns TotalOut zero when the cleared
// quote falls short of MinRaise.
func (m *Module) Settle(ctx context.Context, lotID uint64) (*auction.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, err := m.lot(lotID)
	if err != nil {
		return nil, err
	}
	if l.settled {
		return nil, aucterr.New(aucterr.KindInvalidState, "uniformprice", "lot %d already settled", lotID)
	}

	bd := l.params.BaseDecimals
	qd := l.params.QuoteDecimals
	remaining := l.params.Capacity
	totalIn := amount.Zero
	totalOut := amount.Zero
	var pf *auction.PartialFill

	for _, b := range l.order {
		if b.state != bidActive {
			continue
		}
		if remaining.IsZero() || pf != nil {
			b.state = bidUnfilled
			continue
		}

		payout, err := m.payoutFor(l, b.amt, bd, qd)
		if err != nil {
			return nil, err
		}
		if payout.IsZero() {
			// Dust bid below one base unit at this price.
			b.state = bidUnfilled
			continue
		}

		if payout.Cmp(remaining) <= 0 {
			b.state = bidFilled
			b.payout = payout
			if totalIn, err = totalIn.Add(b.amt); err != nil {
				return nil, err
			}
			if totalOut, err = totalOut.Add(payout); err != nil {
				return nil, err
			}
			if remaining, err = remaining.Sub(payout); err != nil {
				return nil, err
			}
			continue
		}

		// Marginal bid: accept only the remaining capacity. The quote spent
		// on it rounds down so the refund never shorts the bidder.
		used, err := m.quoteFor(l, remaining, bd, qd)
		if err != nil {
			return nil, err
		}
		refund, err := b.amt.Sub(used)
		if err != nil {
			return nil, err
		}
		b.state = bidPartial
		b.payout = remaining
		if totalIn, err = totalIn.Add(b.amt); err != nil {
			return nil, err
		}
		if totalOut, err = totalOut.Add(remaining); err != nil {
			return nil, err
		}
		pf = &auction.PartialFill{
			Bidder: b.bidder,
			Refund: refund,
			Payout: remaining,
		}
		remaining = amount.Zero
	}

	raised := totalIn
	if pf != nil {
		if raised, err = totalIn.Sub(pf.Refund); err != nil {
			return nil, err
		}
	}
	if raised.LessThan(l.minRaise) {
		// Did not clear: every bid becomes refundable through the claim flow.
		for _, b := range l.order {
			if b.state != bidRefunded {
				b.state = bidUnfilled
				b.payout = amount.Zero
			}
		}
		l.settled = true
		return &auction.Settlement{}, nil
	}

	l.settled = true
	return &auction.Settlement{
		TotalIn:     totalIn,
		TotalOut:    totalOut,
		PartialFill: pf,
	}, nil
}

// Claim reports a bid's outcome after settlement. Read-only; the house
// enforces claim-once.
func (m *Module) Claim(lotID, bidID uint64) (auction.BidClaim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, err := m.lot(lotID)
	if err != nil {
		return auction.BidClaim{}, err
	}
	if !l.settled {
		return auction.BidClaim{}, aucterr.New(aucterr.KindInvalidState, "uniformprice", "lot %d not settled", lotID)
	}
	b, ok := l.byID[bidID]
	if !ok {
		return auction.BidClaim{}, aucterr.New(aucterr.KindInvalidBidID, "uniformprice", "bid %d unknown", bidID)
	}
	switch b.state {
	case bidFilled:
		return auction.BidClaim{Bidder: b.bidder, Paid: b.amt, Payout: b.payout, Filled: true}, nil
	case bidUnfilled:
		return auction.BidClaim{Bidder: b.bidder, Paid: b.amt}, nil
	case bidPartial:
		return auction.BidClaim{}, aucterr.New(aucterr.KindInvalidBidID, "uniformprice", "bid %d was resolved at settlement", bidID)
	default:
		return auction.BidClaim{}, aucterr.New(aucterr.KindInvalidBidID, "uniformprice", "bid %d already refunded", bidID)
	}
}

func (m *Module) Purchase(lotID uint64, amt amount.Amount) (amount.Amount, error) {
	return amount.Zero, aucterr.New(aucterr.KindNotImplemented, "uniformprice", "batch module has no purchase")
}

func (m *Module) lot(lotID uint64) (*lot, error) {
	l, ok := m.lots[lotID]
	if !ok {
		return nil, aucterr.New(aucterr.KindInvalidLotID, "uniformprice", "lot %d unknown", lotID)
	}
	return l, nil
}

// payoutFor converts a quote bid into the base payout at the lot price,
// rounding down.
func (m *Module) payoutFor(l *lot, quote amount.Amount, bd, qd uint8) (amount.Amount, error) {
	qInt, err := amount.ScaleToInternal(quote, qd, amount.RoundDown)
	if err != nil {
		return amount.Zero, err
	}
	pInt, err := amount.MulDiv(qInt, oneBase, l.price, amount.RoundDown)
	if err != nil {
		return amount.Zero, err
	}
	return amount.ScaleFromInternal(pInt, bd, amount.RoundDown)
}

// quoteFor converts a base fill back into the quote it costs, rounding down.
func (m *Module) quoteFor(l *lot, base amount.Amount, bd, qd uint8) (amount.Amount, error) {
	bInt, err := amount.ScaleToInternal(base, bd, amount.RoundDown)
	if err != nil {
		return amount.Zero, err
	}
	qInt, err := amount.MulDiv(bInt, l.price, oneBase, amount.RoundDown)
	if err != nil {
		return amount.Zero, err
	}
	return amount.ScaleFromInternal(qInt, qd, amount.RoundDown)
}
