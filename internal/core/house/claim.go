package house

import (
	"context"

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/aucterr"
	"github.com/openclear/auctiond/internal/core/auction"
	"github.com/openclear/auctiond/internal/core/token"
)

// ClaimProceeds lets the seller pull what settlement left in the lot's
// escrow: unsold capacity plus the unused curator reserve. Quote proceeds
// were already pushed at settlement. The second call fails with no balance
// change.
func (e *Engine) ClaimProceeds(ctx context.Context, caller token.Address, lotID uint64) (amount.Amount, error) {
	const op = "claimProceeds"

	if err := e.lockLot(op, lotID); err != nil {
		return amount.Zero, err
	}
	defer e.unlockLot(lotID)

	l, err := e.lot(op, lotID)
	if err != nil {
		return amount.Zero, err
	}
	if caller != l.Seller {
		return amount.Zero, aucterr.New(aucterr.KindNotPermitted, op, "caller %s is not the seller of lot %d", caller, lotID)
	}
	switch l.Status {
	case StatusSettled:
	case StatusCreated:
		// Atomic lots never pass through settled; once concluded the
		// seller recovers leftover escrow here.
		if l.module.Type() != auction.TypeAtomic {
			return amount.Zero, aucterr.New(aucterr.KindInvalidState, op, "lot %d is not settled", lotID)
		}
		if e.clock().Before(l.Conclusion) {
			return amount.Zero, aucterr.New(aucterr.KindInvalidState, op, "lot %d has not concluded", lotID)
		}
	case StatusClaimed:
		return amount.Zero, aucterr.New(aucterr.KindInvalidState, op, "lot %d proceeds already claimed", lotID)
	default:
		return amount.Zero, aucterr.New(aucterr.KindInvalidState, op, "lot %d is %s, not settled", lotID, l.Status)
	}

	cur := e.curation.Lot(lotID)
	unsold, err := l.Capacity.Sub(l.Sold)
	if err != nil {
		return amount.Zero, err
	}
	reserve := cur.MaxReserve
	// What is actually pullable is whatever settlement left in escrow; for
	// lazily funded lots that is nothing, the seller never parted with the
	// unsold base.
	claim := e.funding.Balance(lotID)

	if l.hooks != nil {
		if err := l.hooks.OnClaimProceeds(ctx, lotID, unsold, reserve); err != nil {
			return amount.Zero, aucterr.Wrap(aucterr.KindInvalidParams, op, err)
		}
	}

	if !claim.IsZero() {
		if err := e.mover.Disburse(ctx, []token.Movement{{
			Token:  l.BaseToken,
			From:   e.cfg.HouseAddress,
			To:     l.Seller,
			Amount: claim,
		}}); err != nil {
			return amount.Zero, aucterr.Wrap(aucterr.KindInvalidParams, op, err)
		}
	}

	if err := e.funding.Disburse(lotID, claim); err != nil {
		return amount.Zero, err
	}
	e.mu.Lock()
	l.Status = StatusClaimed
	e.mu.Unlock()

	e.log.WithFields(map[string]any{"lot": lotID, "claim": claim.String()}).Info("proceeds claimed")
	e.persistLot(l)
	e.publish(Event{Type: "proceeds_claimed", LotID: lotID, Actor: caller, Amount: claim.String()})
	return claim, nil
}

// BidOutcome reports how one bid resolved in a ClaimBids call.
type BidOutcome struct {
	BidID  uint64
	Filled bool
	Amount amount.Amount // base payout when filled, quote refund otherwise
}

// ClaimBids resolves settled bids for their owner: filled bids pay out base
// at the clearing outcome, unfilled bids refund their quote escrow. The
// whole batch is validated before any token moves, so one bad bid id fails
// the call without paying the others.
func (e *Engine) ClaimBids(ctx context.Context, caller token.Address, lotID uint64, bidIDs []uint64) ([]BidOutcome, error) {
	const op = "claimBids"

	if len(bidIDs) == 0 {
		return nil, aucterr.New(aucterr.KindInvalidParams, op, "no bid ids")
	}

	if err := e.lockLot(op, lotID); err != nil {
		return nil, err
	}
	defer e.unlockLot(lotID)

	l, err := e.lot(op, lotID)
	if err != nil {
		return nil, err
	}
	if l.module.Type() != auction.TypeBatch {
		return nil, aucterr.New(aucterr.KindNotImplemented, op, "lot %d is not a batch auction", lotID)
	}
	if l.Status != StatusSettled && l.Status != StatusClaimed {
		return nil, aucterr.New(aucterr.KindInvalidState, op, "lot %d is not settled", lotID)
	}

	type resolved struct {
		bid     *Bid
		outcome BidOutcome
		move    token.Movement
	}
	var (
		rs          []resolved
		payoutTotal = amount.Zero
	)
	seen := make(map[uint64]bool, len(bidIDs))
	for _, bidID := range bidIDs {
		if seen[bidID] {
			return nil, aucterr.New(aucterr.KindInvalidBidID, op, "bid %d listed twice", bidID)
		}
		seen[bidID] = true

		b, ok := l.bids[bidID]
		if !ok {
			return nil, aucterr.New(aucterr.KindInvalidBidID, op, "bid %d does not exist on lot %d", bidID, lotID)
		}
		if caller != b.Bidder {
			return nil, aucterr.New(aucterr.KindNotBidder, op, "caller %s did not place bid %d", caller, bidID)
		}
		if b.Status != BidUnclaimed {
			return nil, aucterr.New(aucterr.KindInvalidBidID, op, "bid %d already %s", bidID, b.Status)
		}

		bc, err := l.module.Claim(lotID, bidID)
		if err != nil {
			return nil, err
		}
		r := resolved{bid: b}
		if bc.Filled {
			if payoutTotal, err = payoutTotal.Add(bc.Payout); err != nil {
				return nil, err
			}
			r.outcome = BidOutcome{BidID: bidID, Filled: true, Amount: bc.Payout}
			r.move = token.Movement{Token: l.BaseToken, From: e.cfg.HouseAddress, To: b.Bidder, Amount: bc.Payout}
		} else {
			r.outcome = BidOutcome{BidID: bidID, Amount: b.Amount}
			r.move = token.Movement{Token: l.QuoteToken, From: e.cfg.HouseAddress, To: b.Bidder, Amount: b.Amount}
		}
		rs = append(rs, r)
	}

	// Paying out more base than settlement committed for bidders means the
	// accounting is broken somewhere; this is not a user error.
	if l.BaseOwed.LessThan(payoutTotal) {
		return nil, aucterr.New(aucterr.KindInsufficientFunding, op,
			"lot %d: bid payouts %s exceed owed base %s", lotID, payoutTotal, l.BaseOwed)
	}

	moves := make([]token.Movement, 0, len(rs))
	for _, r := range rs {
		if !r.move.Amount.IsZero() {
			moves = append(moves, r.move)
		}
	}
	if len(moves) > 0 {
		if err := e.mover.Disburse(ctx, moves); err != nil {
			return nil, aucterr.Wrap(aucterr.KindInvalidParams, op, err)
		}
	}

	remaining, err := l.BaseOwed.Sub(payoutTotal)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	l.BaseOwed = remaining
	for _, r := range rs {
		if r.outcome.Filled {
			r.bid.Status = BidClaimed
		} else {
			r.bid.Status = BidRefunded
		}
	}
	e.mu.Unlock()

	outcomes := make([]BidOutcome, 0, len(rs))
	for _, r := range rs {
		outcomes = append(outcomes, r.outcome)
		e.persistBid(r.bid)
		e.publish(Event{Type: "bid_claimed", LotID: lotID, BidID: r.bid.ID, Actor: caller, Amount: r.outcome.Amount.String()})
	}
	return outcomes, nil
}

// ClaimRewards withdraws the caller's accrued protocol or referrer fees in
// one token. Returns the amount withdrawn; zero with no error when nothing
// is accrued. Unlike the lot claim paths there is no per-claim record whose
// second use must be rejected, so an empty balance is simply an empty
// withdrawal, not an error.
func (e *Engine) ClaimRewards(ctx context.Context, caller token.Address, tkn token.Token) (amount.Amount, error) {
	const op = "claimRewards"

	amt := e.rewards.take(caller, tkn)
	if amt.IsZero() {
		return amount.Zero, nil
	}
	if err := e.mover.Disburse(ctx, []token.Movement{{
		Token:  tkn,
		From:   e.cfg.HouseAddress,
		To:     caller,
		Amount: amt,
	}}); err != nil {
		e.rewards.restore(caller, tkn, amt)
		return amount.Zero, aucterr.Wrap(aucterr.KindInvalidParams, op, err)
	}

	e.persistReward(caller, tkn)
	if e.history != nil {
		if err := e.history.RecordReward(caller, tkn, amt, "withdraw"); err != nil {
			e.log.WithError(err).WithField("recipient", caller).Warn("reward withdrawal not recorded")
		}
	}
	e.publish(Event{Type: "rewards_claimed", Actor: caller, Amount: amt.String()})
	return amt, nil
}
