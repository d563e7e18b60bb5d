package house

import (
	"context"

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/aucterr"
	"github.com/openclear/auctiond/internal/core/auction"
	"github.com/openclear/auctiond/internal/core/token"
)

// PurchaseReceipt reports an atomic purchase.
type PurchaseReceipt struct {
	LotID       uint64
	Paid        amount.Amount // quote received into escrow
	Payout      amount.Amount // base delivered to the buyer
	ProtocolFee amount.Amount
	ReferrerFee amount.Amount
	CuratorFee  amount.Amount
	SellerNet   amount.Amount
}

// Purchase executes an immediate buy on an atomic lot. Fees lock at the
// first purchase, the fee split applies to the quote actually received, and
// the module converts the net amount into a base payout. Everything settles
// in this one call; atomic lots never pass through Settled.
func (e *Engine) Purchase(ctx context.Context, buyer token.Address, lotID uint64, amt amount.Amount) (*PurchaseReceipt, error) {
	const op = "purchase"

	if err := e.lockLot(op, lotID); err != nil {
		return nil, err
	}
	defer e.unlockLot(lotID)

	l, err := e.lot(op, lotID)
	if err != nil {
		return nil, err
	}
	if l.module.Type() != auction.TypeAtomic {
		return nil, aucterr.New(aucterr.KindNotImplemented, op, "lot %d is not an atomic auction", lotID)
	}
	if buyer == token.ZeroAddress {
		return nil, aucterr.New(aucterr.KindInvalidParams, op, "buyer is required")
	}
	if amt.IsZero() {
		return nil, aucterr.New(aucterr.KindInvalidParams, op, "zero purchase amount")
	}
	if !l.liveAt(e.clock()) {
		return nil, aucterr.New(aucterr.KindInvalidState, op, "lot %d is not accepting purchases", lotID)
	}

	e.mu.Lock()
	lf := e.lotFees[lotID]
	e.fees.LockIn(lf, l.Keycode)
	e.mu.Unlock()

	received, err := e.mover.Transfer(ctx, token.Movement{
		Token:  l.QuoteToken,
		From:   buyer,
		To:     e.cfg.HouseAddress,
		Amount: amt,
	})
	if err != nil {
		return nil, aucterr.Wrap(aucterr.KindInvalidParams, op, err)
	}
	refundEscrow := func() {
		if dErr := e.mover.Disburse(ctx, []token.Movement{{
			Token: l.QuoteToken, From: e.cfg.HouseAddress, To: buyer, Amount: received,
		}}); dErr != nil {
			e.log.WithError(dErr).WithField("lot", lotID).Error("purchase escrow stranded")
		}
	}

	split, err := computeLotSplit(received, lf, l.Referrer)
	if err != nil {
		refundEscrow()
		return nil, err
	}

	payout, err := l.module.Purchase(lotID, split.Net)
	if err != nil {
		refundEscrow()
		return nil, err
	}
	curatorFee, err := e.curation.Fee(lotID, payout)
	if err != nil {
		refundEscrow()
		return nil, err
	}

	// Lazily funded lots pull exactly what this purchase disburses.
	baseNeed, err := payout.Add(curatorFee)
	if err != nil {
		refundEscrow()
		return nil, err
	}
	if !l.Prefunded {
		pulled, err := e.mover.Transfer(ctx, token.Movement{
			Token:  l.BaseToken,
			From:   l.Seller,
			To:     e.cfg.HouseAddress,
			Amount: baseNeed,
		})
		if err != nil {
			refundEscrow()
			return nil, aucterr.Wrap(aucterr.KindInvalidParams, op, err)
		}
		if pulled.LessThan(baseNeed) {
			refundEscrow()
			return nil, aucterr.New(aucterr.KindInvalidParams, op,
				"base token delivered %s of %s required", pulled, baseNeed)
		}
		if err := e.funding.Escrow(lotID, pulled); err != nil {
			return nil, err
		}
	}

	if l.hooks != nil {
		if err := l.hooks.OnPurchase(ctx, lotID, buyer, received, payout); err != nil {
			refundEscrow()
			return nil, aucterr.Wrap(aucterr.KindInvalidParams, op, err)
		}
	}

	cur := e.curation.Lot(lotID)
	proceedsTo := l.Seller
	if l.hooks != nil && l.hooks.Capabilities().ReceiveQuoteTokens {
		proceedsTo = l.hooks.Address()
	}

	moves := []token.Movement{
		{Token: l.BaseToken, From: e.cfg.HouseAddress, To: buyer, Amount: payout},
	}
	if !split.Net.IsZero() {
		moves = append(moves, token.Movement{
			Token: l.QuoteToken, From: e.cfg.HouseAddress, To: proceedsTo, Amount: split.Net,
		})
	}
	if !curatorFee.IsZero() {
		moves = append(moves, token.Movement{
			Token: l.BaseToken, From: e.cfg.HouseAddress, To: cur.Curator, Amount: curatorFee,
		})
	}
	if err := e.mover.Disburse(ctx, moves); err != nil {
		refundEscrow()
		return nil, aucterr.Wrap(aucterr.KindInvalidParams, op, err)
	}

	if err := e.funding.Disburse(lotID, baseNeed); err != nil {
		return nil, err
	}
	if err := e.rewards.Accrue(e.cfg.Governance, l.QuoteToken, split.Protocol); err != nil {
		return nil, err
	}
	if err := e.rewards.Accrue(l.Referrer, l.QuoteToken, split.Referrer); err != nil {
		return nil, err
	}
	purchased, err := l.Purchased.Add(received)
	if err != nil {
		return nil, err
	}
	sold, err := l.Sold.Add(payout)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	l.Purchased = purchased
	l.Sold = sold
	e.mu.Unlock()

	e.persistLot(l)
	e.persistReward(e.cfg.Governance, l.QuoteToken)
	e.persistReward(l.Referrer, l.QuoteToken)
	e.publish(Event{Type: "purchase", LotID: lotID, Actor: buyer, Amount: received.String()})
	return &PurchaseReceipt{
		LotID:       lotID,
		Paid:        received,
		Payout:      payout,
		ProtocolFee: split.Protocol,
		ReferrerFee: split.Referrer,
		CuratorFee:  curatorFee,
		SellerNet:   split.Net,
	}, nil
}
