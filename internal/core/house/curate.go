package house

import (
	"context"

	"github.com/openclear/auctiond/internal/core/aucterr"
	"github.com/openclear/auctiond/internal/core/token"
)

// Curate approves a lot on behalf of its designated curator, locking the
// curator's fee rate for this lot. On a pre-funded lot the maximum potential
// fee is escrowed from the seller right here: collecting it eagerly
// guarantees it is available at settlement regardless of later governance
// changes.
func (e *Engine) Curate(ctx context.Context, caller token.Address, lotID uint64) error {
	const op = "curate"

	if err := e.lockLot(op, lotID); err != nil {
		return err
	}
	defer e.unlockLot(lotID)

	l, err := e.lot(op, lotID)
	if err != nil {
		return err
	}
	if l.Status != StatusCreated {
		return aucterr.New(aucterr.KindInvalidState, op, "lot %d is %s", lotID, l.Status)
	}
	if !e.clock().Before(l.Conclusion) {
		return aucterr.New(aucterr.KindInvalidState, op, "lot %d already concluded", lotID)
	}

	pct, reserve, err := e.curation.Preview(caller, lotID, l.Keycode, l.Capacity)
	if err != nil {
		return err
	}

	if l.hooks != nil {
		if err := l.hooks.OnCurate(ctx, lotID, caller); err != nil {
			return aucterr.Wrap(aucterr.KindInvalidParams, op, err)
		}
	}

	escrowed := reserve
	if l.Prefunded && !reserve.IsZero() {
		source := l.Seller
		if l.hooks != nil && l.hooks.Capabilities().SendBaseTokens {
			source = l.hooks.Address()
		}
		received, err := e.mover.Transfer(ctx, token.Movement{
			Token:  l.BaseToken,
			From:   source,
			To:     e.cfg.HouseAddress,
			Amount: reserve,
		})
		if err != nil {
			return aucterr.Wrap(aucterr.KindInvalidParams, op, err)
		}
		escrowed = received
		if err := e.funding.Escrow(lotID, received); err != nil {
			return err
		}
	}

	e.curation.Commit(lotID, pct, escrowed)
	e.mu.Lock()
	if lf := e.lotFees[lotID]; lf != nil {
		lf.Curated = true
		lf.CuratorPercent = pct
	}
	e.mu.Unlock()

	e.log.WithFields(map[string]any{
		"lot":     lotID,
		"curator": caller,
		"percent": pct,
		"reserve": escrowed.String(),
	}).Info("lot curated")
	e.persistLot(l)
	e.publish(Event{Type: "curated", LotID: lotID, Actor: caller, Amount: escrowed.String()})
	return nil
}
