package house

import (
	"context"

	"github.com/openclear/auctiond/internal/core/aucterr"
	"github.com/openclear/auctiond/internal/core/token"
)

// CancelLot aborts a lot before its conclusion. Only the seller may cancel.
// Escrowed base tokens (capacity plus any curator reserve, both of which
// came from the seller) are returned in full. Bidder escrow is untouched:
// every open bid stays refundable through RefundBid after the cancel.
func (e *Engine) CancelLot(ctx context.Context, caller token.Address, lotID uint64) error {
	const op = "cancel"

	if err := e.lockLot(op, lotID); err != nil {
		return err
	}
	defer e.unlockLot(lotID)

	l, err := e.lot(op, lotID)
	if err != nil {
		return err
	}
	if caller != l.Seller {
		return aucterr.New(aucterr.KindNotPermitted, op, "caller %s is not the seller of lot %d", caller, lotID)
	}
	if l.Status != StatusCreated {
		return aucterr.New(aucterr.KindInvalidState, op, "lot %d is %s", lotID, l.Status)
	}
	now := e.clock()
	if !now.Before(l.Conclusion) {
		return aucterr.New(aucterr.KindInvalidState, op, "lot %d already concluded", lotID)
	}

	if l.hooks != nil {
		if err := l.hooks.OnCancel(ctx, lotID); err != nil {
			return aucterr.Wrap(aucterr.KindInvalidParams, op, err)
		}
	}

	refund := e.funding.Balance(lotID)
	if !refund.IsZero() {
		if err := e.mover.Disburse(ctx, []token.Movement{{
			Token:  l.BaseToken,
			From:   e.cfg.HouseAddress,
			To:     l.Seller,
			Amount: refund,
		}}); err != nil {
			return aucterr.Wrap(aucterr.KindInvalidParams, op, err)
		}
	}

	if err := l.module.Cancel(lotID); err != nil {
		e.log.WithError(err).WithField("lot", lotID).Warn("module cancel after refund")
	}
	if err := e.funding.Disburse(lotID, refund); err != nil {
		return err
	}
	e.mu.Lock()
	l.Status = StatusCancelled
	e.mu.Unlock()

	e.log.WithField("lot", lotID).Info("lot cancelled")
	e.persistLot(l)
	e.publish(Event{Type: "cancelled", LotID: lotID, Actor: caller, Amount: refund.String()})
	return nil
}
