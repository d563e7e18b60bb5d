package house

import (
	"time"

	"github.com/openclear/auctiond/internal/core/aucterr"
	"github.com/openclear/auctiond/internal/core/curation"
	"github.com/openclear/auctiond/internal/core/token"
)

// LotSnapshot is the persisted / served form of a lot. Amounts are decimal
// strings so the snapshot survives any storage or wire encoding unchanged.
type LotSnapshot struct {
	ID            uint64        `json:"id"`
	Seller        token.Address `json:"seller"`
	Referrer      token.Address `json:"referrer,omitempty"`
	BaseToken     token.Token   `json:"base_token"`
	QuoteToken    token.Token   `json:"quote_token"`
	BaseDecimals  uint8         `json:"base_decimals"`
	QuoteDecimals uint8         `json:"quote_decimals"`
	Keycode       string        `json:"auction_type"`
	Capacity      string        `json:"capacity"`
	Start         time.Time     `json:"start"`
	Conclusion    time.Time     `json:"conclusion"`
	Prefunded     bool          `json:"prefunded"`
	Status        string        `json:"status"`
	Lifecycle     string        `json:"lifecycle"`
	Funding       string        `json:"funding"`
	Purchased     string        `json:"purchased"`
	Sold          string        `json:"sold"`

	Curator        token.Address `json:"curator,omitempty"`
	Curated        bool          `json:"curated"`
	CuratorPercent uint32        `json:"curator_fee_percent"`
	ProtocolFee    uint32        `json:"protocol_fee_percent"`
	ReferrerFee    uint32        `json:"referrer_fee_percent"`
	FeesLocked     bool          `json:"fees_locked"`
}

// BidSnapshot is the persisted / served form of a bid.
type BidSnapshot struct {
	ID     uint64        `json:"id"`
	LotID  uint64        `json:"lot_id"`
	Bidder token.Address `json:"bidder"`
	Amount string        `json:"amount"`
	Status string        `json:"status"`
}

// SettlementRecord is the audit-trail row written after a settlement.
type SettlementRecord struct {
	LotID       uint64
	TotalIn     string
	TotalOut    string
	ProtocolFee string
	ReferrerFee string
	CuratorFee  string
	SellerNet   string
	PartialFill bool
	SettledAt   time.Time
}

// snapshotLot reads the lot under e.mu: flows commit their field mutations
// under the same mutex, so a snapshot never observes a half-written lot.
func (e *Engine) snapshotLot(l *Lot) LotSnapshot {
	now := e.clock()
	cur := e.curation.Lot(l.ID)

	e.mu.Lock()
	defer e.mu.Unlock()
	lf := e.lotFees[l.ID]

	snap := LotSnapshot{
		ID:            l.ID,
		Seller:        l.Seller,
		Referrer:      l.Referrer,
		BaseToken:     l.BaseToken,
		QuoteToken:    l.QuoteToken,
		BaseDecimals:  l.BaseDecimals,
		QuoteDecimals: l.QuoteDecimals,
		Keycode:       string(l.Keycode),
		Capacity:      l.Capacity.String(),
		Start:         l.Start,
		Conclusion:    l.Conclusion,
		Prefunded:     l.Prefunded,
		Status:        l.Status.String(),
		Lifecycle:     string(l.LifecycleAt(now)),
		Funding:       e.funding.Balance(l.ID).String(),
		Purchased:     l.Purchased.String(),
		Sold:          l.Sold.String(),
		Curator:       cur.Curator,
		Curated:       cur.State == curation.Approved,
	}
	if snap.Curated {
		snap.CuratorPercent = cur.Percent
	}
	if lf != nil {
		snap.ProtocolFee = lf.Protocol
		snap.ReferrerFee = lf.Referrer
		snap.FeesLocked = lf.Locked
	}
	return snap
}

// LotView returns the read-only snapshot of a lot.
func (e *Engine) LotView(lotID uint64) (LotSnapshot, error) {
	e.mu.Lock()
	l, ok := e.lots[lotID]
	e.mu.Unlock()
	if !ok {
		return LotSnapshot{}, aucterr.New(aucterr.KindInvalidLotID, "lotView", "lot %d does not exist", lotID)
	}
	return e.snapshotLot(l), nil
}

// BidView returns the read-only snapshot of a bid.
func (e *Engine) BidView(lotID, bidID uint64) (BidSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.lots[lotID]
	if !ok {
		return BidSnapshot{}, aucterr.New(aucterr.KindInvalidLotID, "bidView", "lot %d does not exist", lotID)
	}
	b, ok := l.bids[bidID]
	if !ok {
		return BidSnapshot{}, aucterr.New(aucterr.KindInvalidBidID, "bidView", "bid %d does not exist", bidID)
	}
	return BidSnapshot{
		ID:     b.ID,
		LotID:  b.LotID,
		Bidder: b.Bidder,
		Amount: b.Amount.String(),
		Status: b.Status.String(),
	}, nil
}

// LotIDs lists all known lot ids in ascending order of creation.
func (e *Engine) LotIDs() []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]uint64, 0, len(e.lots))
	for id := uint64(1); id < e.nextLot; id++ {
		if _, ok := e.lots[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// RewardsBalance returns a recipient's accrued, unclaimed fee balance.
func (e *Engine) RewardsBalance(recipient token.Address, tkn token.Token) string {
	return e.rewards.Balance(recipient, tkn).String()
}
