// Package instant implements the reference atomic auction module: a fixed
// price sale where every purchase settles immediately against remaining
// capacity. Batch-only operations return NotImplemented.
package instant

import (
	"context"
	"sync"

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/aucterr"
	"github.com/openclear/auctiond/internal/core/auction"
	"github.com/openclear/auctiond/internal/core/token"
)

// KeycodeIN is the registry keycode of this module.
const KeycodeIN auction.Keycode = "INST"

const oneBase = 1_000_000_000_000_000_000

// Params configures an instant-sale lot.
type Params struct {
	// Price is internal-scale quote units per whole base token.
	Price uint64
}

type lot struct {
	params    auction.LotParams
	price     uint64
	remaining amount.Amount
}

// Module is the instant-sale atomic module.
type Module struct {
	mu   sync.Mutex
	lots map[uint64]*lot
}

func New() *Module {
	return &Module{lots: make(map[uint64]*lot)}
}

func (m *Module) Keycode() auction.Keycode { return KeycodeIN }
func (m *Module) Type() auction.Type       { return auction.TypeAtomic }

func (m *Module) Register(lotID uint64, p auction.LotParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lots[lotID]; ok {
		return aucterr.New(aucterr.KindInvalidParams, "instant", "lot %d already registered", lotID)
	}
	ip, ok := p.Params.(Params)
	if !ok {
		return aucterr.New(aucterr.KindInvalidParams, "instant", "lot %d: params are not instant.Params", lotID)
	}
	if ip.Price == 0 {
		return aucterr.New(aucterr.KindInvalidParams, "instant", "lot %d: zero price", lotID)
	}
	m.lots[lotID] = &lot{params: p, price: ip.Price, remaining: p.Capacity}
	return nil
}

func (m *Module) Cancel(lotID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lots[lotID]; !ok {
		return aucterr.New(aucterr.KindInvalidLotID, "instant", "lot %d unknown", lotID)
	}
	delete(m.lots, lotID)
	return nil
}

// Purchase converts amt of quote into base at the fixed price and deducts
// the payout from remaining capacity.
func (m *Module) Purchase(lotID uint64, amt amount.Amount) (amount.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lots[lotID]
	if !ok {
		return amount.Zero, aucterr.New(aucterr.KindInvalidLotID, "instant", "lot %d unknown", lotID)
	}
	qInt, err := amount.ScaleToInternal(amt, l.params.QuoteDecimals, amount.RoundDown)
	if err != nil {
		return amount.Zero, err
	}
	pInt, err := amount.MulDiv(qInt, oneBase, l.price, amount.RoundDown)
	if err != nil {
		return amount.Zero, err
	}
	payout, err := amount.ScaleFromInternal(pInt, l.params.BaseDecimals, amount.RoundDown)
	if err != nil {
		return amount.Zero, err
	}
	if payout.IsZero() {
		return amount.Zero, aucterr.New(aucterr.KindInvalidParams, "instant", "amount below one base unit")
	}
	if l.remaining.LessThan(payout) {
		return amount.Zero, aucterr.New(aucterr.KindInvalidParams, "instant", "payout %s exceeds remaining capacity %s", payout, l.remaining)
	}
	l.remaining, err = l.remaining.Sub(payout)
	if err != nil {
		return amount.Zero, err
	}
	return payout, nil
}

func (m *Module) Bid(lotID, bidID uint64, bidder token.Address, amt amount.Amount) error {
	return aucterr.New(aucterr.KindNotImplemented, "instant", "atomic module has no bids")
}

func (m *Module) RefundBid(lotID, bidID uint64) error {
	return aucterr.New(aucterr.KindNotImplemented, "instant", "atomic module has no bids")
}

func (m *Module) Settle(ctx context.Context, lotID uint64) (*auction.Settlement, error) {
	return nil, aucterr.New(aucterr.KindNotImplemented, "instant", "atomic module settles on purchase")
}

func (m *Module) Claim(lotID, bidID uint64) (auction.BidClaim, error) {
	return auction.BidClaim{}, aucterr.New(aucterr.KindNotImplemented, "instant", "atomic module has no bids")
}
