package house

import (
	"context"

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/aucterr"
	"github.com/openclear/auctiond/internal/core/auction"
	"github.com/openclear/auctiond/internal/core/token"
)

// PlaceBid escrows a quote-token commitment against a live batch lot and
// registers it with the auction module. The bid is credited with the amount
// actually received, so fee-on-transfer quote tokens bid what they deliver.
func (e *Engine) PlaceBid(ctx context.Context, bidder token.Address, lotID uint64, amt amount.Amount) (uint64, error) {
	const op = "bid"

	if err := e.lockLot(op, lotID); err != nil {
		return 0, err
	}
	defer e.unlockLot(lotID)

	l, err := e.lot(op, lotID)
	if err != nil {
		return 0, err
	}
	if l.module.Type() != auction.TypeBatch {
		return 0, aucterr.New(aucterr.KindNotImplemented, op, "lot %d is not a batch auction", lotID)
	}
	if bidder == token.ZeroAddress {
		return 0, aucterr.New(aucterr.KindInvalidParams, op, "bidder is required")
	}
	if amt.IsZero() {
		return 0, aucterr.New(aucterr.KindInvalidParams, op, "zero bid amount")
	}
	if !l.liveAt(e.clock()) {
		return 0, aucterr.New(aucterr.KindInvalidState, op, "lot %d is not accepting bids", lotID)
	}

	e.mu.Lock()
	bidID := l.nextBid
	l.nextBid++
	e.mu.Unlock()

	if l.hooks != nil {
		if err := l.hooks.OnBid(ctx, lotID, bidID, bidder, amt); err != nil {
			return 0, aucterr.Wrap(aucterr.KindInvalidParams, op, err)
		}
	}

	received, err := e.mover.Transfer(ctx, token.Movement{
		Token:  l.QuoteToken,
		From:   bidder,
		To:     e.cfg.HouseAddress,
		Amount: amt,
	})
	if err != nil {
		return 0, aucterr.Wrap(aucterr.KindInvalidParams, op, err)
	}

	if err := l.module.Bid(lotID, bidID, bidder, received); err != nil {
		// The escrow just taken belongs to the bidder; hand it back before
		// failing the call.
		if dErr := e.mover.Disburse(ctx, []token.Movement{{
			Token:  l.QuoteToken,
			From:   e.cfg.HouseAddress,
			To:     bidder,
			Amount: received,
		}}); dErr != nil {
			e.log.WithError(dErr).WithField("lot", lotID).Error("bid escrow stranded after module rejection")
		}
		return 0, err
	}

	b := &Bid{ID: bidID, LotID: lotID, Bidder: bidder, Amount: received, Status: BidUnclaimed}
	e.mu.Lock()
	l.bids[bidID] = b
	e.mu.Unlock()

	e.persistBid(b)
	e.publish(Event{Type: "bid", LotID: lotID, BidID: bidID, Actor: bidder, Amount: received.String()})
	return bidID, nil
}

// RefundBid cancels a live bid before conclusion and releases its escrow.
// The bid is excluded from the module's eventual clearing computation. Bids
// on a cancelled lot stay refundable here with no time limit; the cancel
// froze their escrow, it did not forfeit it.
func (e *Engine) RefundBid(ctx context.Context, caller token.Address, lotID, bidID uint64) error {
	const op = "refundBid"

	if err := e.lockLot(op, lotID); err != nil {
		return err
	}
	defer e.unlockLot(lotID)

	l, err := e.lot(op, lotID)
	if err != nil {
		return err
	}
	if l.module.Type() != auction.TypeBatch {
		return aucterr.New(aucterr.KindNotImplemented, op, "lot %d is not a batch auction", lotID)
	}
	b, ok := l.bids[bidID]
	if !ok {
		return aucterr.New(aucterr.KindInvalidBidID, op, "bid %d does not exist on lot %d", bidID, lotID)
	}
	if caller != b.Bidder {
		return aucterr.New(aucterr.KindNotBidder, op, "caller %s did not place bid %d", caller, bidID)
	}
	if b.Status != BidUnclaimed {
		return aucterr.New(aucterr.KindInvalidBidID, op, "bid %d already %s", bidID, b.Status)
	}
	now := e.clock()
	switch {
	case l.Status == StatusCancelled:
		// The module already dropped every bid when the lot cancelled;
		// only the escrow release remains.
		b.moduleRefunded = true
	case l.Status != StatusCreated || !now.Before(l.Conclusion):
		return aucterr.New(aucterr.KindInvalidState, op, "lot %d is no longer active", lotID)
	}

	// Exclude from clearing first; if the disbursement below fails the flag
	// lets a retry skip the module call.
	if !b.moduleRefunded {
		if err := l.module.RefundBid(lotID, bidID); err != nil {
			return err
		}
		b.moduleRefunded = true
	}

	if err := e.mover.Disburse(ctx, []token.Movement{{
		Token:  l.QuoteToken,
		From:   e.cfg.HouseAddress,
		To:     b.Bidder,
		Amount: b.Amount,
	}}); err != nil {
		return aucterr.Wrap(aucterr.KindInvalidParams, op, err)
	}

	e.mu.Lock()
	b.Status = BidRefunded
	e.mu.Unlock()
	e.persistBid(b)
	e.publish(Event{Type: "bid_refunded", LotID: lotID, BidID: bidID, Actor: caller, Amount: b.Amount.String()})
	return nil
}
