// Package callback defines the optional per-lot hook collaborator. Hooks
// are notified at defined lifecycle points; a hook error aborts the
// triggering operation. Capability flags let the hook hold token custody
// instead of the auction house at specific points.
package callback

import (
	"context"

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/token"
)

// Capabilities declares which custody roles the hook takes over.
type Capabilities struct {
	// SendBaseTokens: base tokens for pre-funding and curator reserves are
	// pulled from the hook's address rather than the seller's.
	SendBaseTokens bool

	// ReceiveQuoteTokens: quote proceeds are delivered to the hook's
	// address rather than the seller's.
	ReceiveQuoteTokens bool
}

// Hooks is notified at lot lifecycle points. Implementations run inside the
// triggering call while the lot's reentrancy lock is held; calling back into
// the engine for the same lot fails.
type Hooks interface {
	Address() token.Address
	Capabilities() Capabilities

	OnCreate(ctx context.Context, lotID uint64, seller token.Address, base, quote token.Token, capacity amount.Amount) error
	OnCancel(ctx context.Context, lotID uint64) error
	OnCurate(ctx context.Context, lotID uint64, curator token.Address) error
	OnBid(ctx context.Context, lotID, bidID uint64, bidder token.Address, amt amount.Amount) error
	OnPurchase(ctx context.Context, lotID uint64, buyer token.Address, amt, payout amount.Amount) error
	OnClaimProceeds(ctx context.Context, lotID uint64, unsold, reserve amount.Amount) error
}
