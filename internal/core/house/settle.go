package house

import (
	"context"

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/aucterr"
	"github.com/openclear/auctiond/internal/core/auction"
	"github.com/openclear/auctiond/internal/core/fees"
	"github.com/openclear/auctiond/internal/core/token"
)

// computeLotSplit applies the locked fee snapshot to the retained quote.
// A lot without a referrer folds the referrer share back into the seller's
// net.
func computeLotSplit(effectiveIn amount.Amount, lf *fees.LotFees, referrer token.Address) (fees.Split, error) {
	return fees.ComputeSplit(effectiveIn, lf.Protocol, lf.Referrer, referrer != token.ZeroAddress)
}

// SettleReceipt reports the outcome of a settlement.
type SettleReceipt struct {
	LotID       uint64
	Settled     bool // false when the lot did not clear
	TotalIn     amount.Amount
	TotalOut    amount.Amount
	ProtocolFee amount.Amount
	ReferrerFee amount.Amount
	CuratorFee  amount.Amount
	SellerNet   amount.Amount
	PartialFill *auction.PartialFill
}

// Settle runs the settlement for a concluded batch lot.
//
// The module's clearing output is consumed as-is; module errors propagate
// unchanged. Fees are locked at this first accrual point, computed on the
// quote actually retained (totalIn minus the partial-fill refund, which is
// never fee-bearing), and the curator fee is computed on the sold amount.
// The seller's net proceeds, the curator fee and the partial-fill resolution
// are pushed in one all-or-nothing disbursement; protocol and referrer fees
// accrue to the pull-based rewards ledger. Unsold capacity and the unused
// curator reserve stay in the lot's escrow for claimProceeds.
//
// If the disbursement fails, no state is committed and the module output is
// cached so a retry resumes without re-running the clearing computation.
func (e *Engine) Settle(ctx context.Context, lotID uint64) (*SettleReceipt, error) {
	const op = "settle"

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
	switch l.Status {
	case StatusCreated:
	case StatusSettled, StatusClaimed:
		return nil, aucterr.New(aucterr.KindInvalidState, op, "lot %d already settled", lotID)
	default:
		return nil, aucterr.New(aucterr.KindInvalidState, op, "lot %d is %s", lotID, l.Status)
	}
	if e.clock().Before(l.Conclusion) {
		return nil, aucterr.New(aucterr.KindInvalidState, op, "lot %d has not concluded", lotID)
	}

	if l.pending == nil {
		s, err := l.module.Settle(ctx, lotID)
		if err != nil {
			// Module reverts are the module's own; pass them through.
			return nil, err
		}
		l.pending = s
	}
	s := l.pending

	if l.Capacity.LessThan(s.TotalOut) {
		return nil, aucterr.New(aucterr.KindInvalidParams, op,
			"module sold %s beyond capacity %s", s.TotalOut, l.Capacity)
	}

	if s.TotalOut.IsZero() {
		return e.settleNone(ctx, l)
	}
	return e.settleFilled(ctx, l, s)
}

// settleNone unwinds a lot that did not clear: the full escrow (capacity
// plus any curator reserve) returns to the seller. Bidders keep their right
// to a refund through the claim flow; the engine does not proactively pay
// every bidder here.
func (e *Engine) settleNone(ctx context.Context, l *Lot) (*SettleReceipt, error) {
	const op = "settle"

	refund := e.funding.Balance(l.ID)
	if !refund.IsZero() {
		if err := e.mover.Disburse(ctx, []token.Movement{{
			Token:  l.BaseToken,
			From:   e.cfg.HouseAddress,
			To:     l.Seller,
			Amount: refund,
		}}); err != nil {
			return nil, aucterr.Wrap(aucterr.KindInvalidParams, op, err)
		}
	}

	if err := e.funding.Disburse(l.ID, refund); err != nil {
		return nil, err
	}
	// Everything the seller could ever claim went back in one step, so the
	// lot lands directly in claimed.
	e.mu.Lock()
	l.Status = StatusClaimed
	l.Sold = amount.Zero
	l.Purchased = amount.Zero
	e.mu.Unlock()

	e.log.WithField("lot", l.ID).Info("lot did not clear, escrow returned")
	e.persistLot(l)
	e.recordSettlement(l, &SettleReceipt{LotID: l.ID})
	e.publish(Event{Type: "settled_none", LotID: l.ID, Amount: refund.String()})
	return &SettleReceipt{LotID: l.ID}, nil
}

func (e *Engine) settleFilled(ctx context.Context, l *Lot, s *auction.Settlement) (*SettleReceipt, error) {
	const op = "settle"

	e.mu.Lock()
	lf := e.lotFees[l.ID]
	e.fees.LockIn(lf, l.Keycode)
	e.mu.Unlock()

	pfRefund := amount.Zero
	pfPayout := amount.Zero
	if s.PartialFill != nil {
		pfRefund = s.PartialFill.Refund
		pfPayout = s.PartialFill.Payout
	}

	// The refund never bears fees: only quote the protocol retains does.
	effectiveIn, err := s.TotalIn.Sub(pfRefund)
	if err != nil {
		return nil, aucterr.New(aucterr.KindInvalidParams, op,
			"module refund %s exceeds totalIn %s", pfRefund, s.TotalIn)
	}

	split, err := computeLotSplit(effectiveIn, lf, l.Referrer)
	if err != nil {
		return nil, err
	}
	curatorFee, err := e.curation.Fee(l.ID, s.TotalOut)
	if err != nil {
		return nil, err
	}

	// Lazily funded lots escrow the base they owe only now: sold amount
	// plus the curator's fee. The seller must deliver in full; a token that
	// shorts the transfer cannot back a lazy lot.
	if !l.Prefunded && !l.lazyPulled {
		need, err := s.TotalOut.Add(curatorFee)
		if err != nil {
			return nil, err
		}
		received, err := e.mover.Transfer(ctx, token.Movement{
			Token:  l.BaseToken,
			From:   l.Seller,
			To:     e.cfg.HouseAddress,
			Amount: need,
		})
		if err != nil {
			return nil, aucterr.Wrap(aucterr.KindInvalidParams, op, err)
		}
		if received.LessThan(need) {
			if dErr := e.mover.Disburse(ctx, []token.Movement{{
				Token:  l.BaseToken,
				From:   e.cfg.HouseAddress,
				To:     l.Seller,
				Amount: received,
			}}); dErr != nil {
				e.log.WithError(dErr).WithField("lot", l.ID).Error("under-delivered escrow stranded")
			}
			return nil, aucterr.New(aucterr.KindInvalidParams, op,
				"base token delivered %s of %s required at settlement", received, need)
		}
		if err := e.funding.Escrow(l.ID, received); err != nil {
			return nil, err
		}
		l.lazyPulled = true
	}

	cur := e.curation.Lot(l.ID)

	proceedsTo := l.Seller
	if l.hooks != nil && l.hooks.Capabilities().ReceiveQuoteTokens {
		proceedsTo = l.hooks.Address()
	}

	var moves []token.Movement
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
	if s.PartialFill != nil {
		if !pfRefund.IsZero() {
			moves = append(moves, token.Movement{
				Token: l.QuoteToken, From: e.cfg.HouseAddress, To: s.PartialFill.Bidder, Amount: pfRefund,
			})
		}
		if !pfPayout.IsZero() {
			moves = append(moves, token.Movement{
				Token: l.BaseToken, From: e.cfg.HouseAddress, To: s.PartialFill.Bidder, Amount: pfPayout,
			})
		}
	}
	if len(moves) > 0 {
		if err := e.mover.Disburse(ctx, moves); err != nil {
			return nil, aucterr.Wrap(aucterr.KindInvalidParams, op, err)
		}
	}

	// Commit. The funding decrement covers the sold base (the partial-fill
	// payout pushed above plus what bidders will claim) and the curator
	// fee; unsold capacity and unused reserve stay for claimProceeds. An
	// underflow here is a fatal accounting bug and aborts the settlement.
	committed, err := s.TotalOut.Add(curatorFee)
	if err != nil {
		return nil, err
	}
	if err := e.funding.Disburse(l.ID, committed); err != nil {
		return nil, err
	}
	if err := e.rewards.Accrue(e.cfg.Governance, l.QuoteToken, split.Protocol); err != nil {
		return nil, err
	}
	if err := e.rewards.Accrue(l.Referrer, l.QuoteToken, split.Referrer); err != nil {
		return nil, err
	}

	baseOwed, err := s.TotalOut.Sub(pfPayout)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	l.Purchased = effectiveIn
	l.Sold = s.TotalOut
	l.BaseOwed = baseOwed
	l.Status = StatusSettled
	e.mu.Unlock()

	receipt := &SettleReceipt{
		LotID:       l.ID,
		Settled:     true,
		TotalIn:     s.TotalIn,
		TotalOut:    s.TotalOut,
		ProtocolFee: split.Protocol,
		ReferrerFee: split.Referrer,
		CuratorFee:  curatorFee,
		SellerNet:   split.Net,
		PartialFill: s.PartialFill,
	}

	e.log.WithFields(map[string]any{
		"lot":      l.ID,
		"totalIn":  s.TotalIn.String(),
		"totalOut": s.TotalOut.String(),
		"partial":  s.PartialFill != nil,
	}).Info("lot settled")
	e.persistLot(l)
	e.persistReward(e.cfg.Governance, l.QuoteToken)
	e.persistReward(l.Referrer, l.QuoteToken)
	e.recordSettlement(l, receipt)
	e.publish(Event{Type: "settled", LotID: l.ID, Amount: s.TotalOut.String()})
	return receipt, nil
}

func (e *Engine) recordSettlement(l *Lot, r *SettleReceipt) {
	if e.history == nil {
		return
	}
	rec := SettlementRecord{
		LotID:       l.ID,
		TotalIn:     r.TotalIn.String(),
		TotalOut:    r.TotalOut.String(),
		ProtocolFee: r.ProtocolFee.String(),
		ReferrerFee: r.ReferrerFee.String(),
		CuratorFee:  r.CuratorFee.String(),
		SellerNet:   r.SellerNet.String(),
		PartialFill: r.PartialFill != nil,
		SettledAt:   e.clock(),
	}
	if err := e.history.RecordSettlement(rec); err != nil {
		e.log.WithError(err).WithField("lot", l.ID).Warn("settlement history not recorded")
	}
}
