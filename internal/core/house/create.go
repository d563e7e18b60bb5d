package house

import (
	"context"
	"time"

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/aucterr"
	"github.com/openclear/auctiond/internal/core/auction"
	"github.com/openclear/auctiond/internal/core/callback"
	"github.com/openclear/auctiond/internal/core/fees"
	"github.com/openclear/auctiond/internal/core/token"
)

// CreateParams describes a new lot.
type CreateParams struct {
	Seller        token.Address
	Referrer      token.Address // optional; absent referrer's fee share folds to the seller
	Curator       token.Address // optional
	BaseToken     token.Token
	QuoteToken    token.Token
	BaseDecimals  uint8
	QuoteDecimals uint8
	Keycode       auction.Keycode
	Capacity      amount.Amount // base token, native decimals
	Start         time.Time     // zero means "now"
	Conclusion    time.Time
	Prefund       bool
	ModuleParams  any
	Hooks         callback.Hooks // optional
}

// CreateLot registers a new lot: resolves the auction-type module once,
// escrows the capacity when pre-funded, and assigns the next monotonic lot
// id. Ids are never reused, including for lots that later cancel.
func (e *Engine) CreateLot(ctx context.Context, p CreateParams) (uint64, error) {
	const op = "createLot"

	if p.Seller == token.ZeroAddress {
		return 0, aucterr.New(aucterr.KindInvalidParams, op, "seller is required")
	}
	if p.Capacity.IsZero() {
		return 0, aucterr.New(aucterr.KindInvalidParams, op, "zero capacity")
	}
	if p.BaseToken == "" || p.QuoteToken == "" {
		return 0, aucterr.New(aucterr.KindInvalidParams, op, "base and quote tokens are required")
	}
	if p.BaseDecimals > amount.MaxTokenDecimals || p.QuoteDecimals > amount.MaxTokenDecimals {
		return 0, aucterr.New(aucterr.KindInvalidParams, op, "token decimals out of range")
	}
	now := e.clock()
	start := p.Start
	if start.IsZero() {
		start = now
	}
	if !p.Conclusion.After(start) {
		return 0, aucterr.New(aucterr.KindInvalidParams, op, "conclusion must be after start")
	}
	if !p.Conclusion.After(now) {
		return 0, aucterr.New(aucterr.KindInvalidParams, op, "conclusion is already past")
	}

	mod, err := e.registry.Resolve(p.Keycode)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	lotID := e.nextLot
	e.nextLot++
	e.mu.Unlock()

	if err := e.lockLot(op, lotID); err != nil {
		return 0, err
	}
	defer e.unlockLot(lotID)

	if p.Hooks != nil {
		if err := p.Hooks.OnCreate(ctx, lotID, p.Seller, p.BaseToken, p.QuoteToken, p.Capacity); err != nil {
			return 0, aucterr.Wrap(aucterr.KindInvalidParams, op, err)
		}
	}

	// Pre-funding escrows the capacity before module registration. Escrow
	// is credited with what actually arrived, so a fee-on-transfer base
	// token shrinks the capacity rather than leaving the lot under-backed,
	// and the module registers with the received amount so it can never
	// clear more than the escrow holds.
	capacity := p.Capacity
	escrowed := amount.Zero
	source := p.Seller
	if p.Prefund {
		if p.Hooks != nil && p.Hooks.Capabilities().SendBaseTokens {
			source = p.Hooks.Address()
		}
		received, err := e.mover.Transfer(ctx, token.Movement{
			Token:  p.BaseToken,
			From:   source,
			To:     e.cfg.HouseAddress,
			Amount: p.Capacity,
		})
		if err != nil {
			return 0, aucterr.Wrap(aucterr.KindInvalidParams, op, err)
		}
		capacity = received
		escrowed = received
	}

	if err := mod.Register(lotID, auction.LotParams{
		Capacity:      capacity,
		BaseDecimals:  p.BaseDecimals,
		QuoteDecimals: p.QuoteDecimals,
		Start:         start,
		Conclusion:    p.Conclusion,
		Params:        p.ModuleParams,
	}); err != nil {
		// The escrow just taken belongs to the seller; hand it back before
		// failing the call.
		if !escrowed.IsZero() {
			if dErr := e.mover.Disburse(ctx, []token.Movement{{
				Token:  p.BaseToken,
				From:   e.cfg.HouseAddress,
				To:     source,
				Amount: escrowed,
			}}); dErr != nil {
				e.log.WithError(dErr).WithField("lot", lotID).Error("prefund escrow stranded after module rejection")
			}
		}
		return 0, err
	}

	lot := &Lot{
		ID:            lotID,
		Seller:        p.Seller,
		Referrer:      p.Referrer,
		BaseToken:     p.BaseToken,
		QuoteToken:    p.QuoteToken,
		BaseDecimals:  p.BaseDecimals,
		QuoteDecimals: p.QuoteDecimals,
		Keycode:       p.Keycode,
		Capacity:      capacity,
		Start:         start,
		Conclusion:    p.Conclusion,
		Prefunded:     p.Prefund,
		Status:        StatusCreated,
		module:        mod,
		hooks:         p.Hooks,
		nextBid:       1,
		bids:          make(map[uint64]*Bid),
	}

	e.mu.Lock()
	e.lots[lotID] = lot
	e.lotFees[lotID] = &fees.LotFees{Curator: p.Curator}
	e.mu.Unlock()

	if err := e.funding.Init(lotID, escrowed); err != nil {
		return 0, err
	}
	e.curation.Assign(lotID, p.Curator)

	e.log.WithFields(map[string]any{
		"lot":      lotID,
		"seller":   p.Seller,
		"type":     p.Keycode,
		"capacity": capacity.String(),
		"prefund":  p.Prefund,
	}).Info("lot created")
	e.persistLot(lot)
	e.publish(Event{Type: "created", LotID: lotID, Actor: p.Seller, Amount: capacity.String()})
	return lotID, nil
}
