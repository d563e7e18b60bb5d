package auction

import (
	"context"
	"time"

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/token"
)

// Keycode identifies an auction-type module in the registry.
type Keycode string

// Type distinguishes the two settlement models.
type Type uint8

const (
	// TypeAtomic settles every purchase immediately; the lot never passes
	// through an explicit settle step.
	TypeAtomic Type = iota + 1

	// TypeBatch accumulates bids and settles once after conclusion.
	TypeBatch
)

// LotParams is the house-side view of a lot handed to the module at
// registration. Params carries module-specific configuration opaquely.
type LotParams struct {
	Capacity      amount.Amount // base token, native decimals
	BaseDecimals  uint8
	QuoteDecimals uint8
	Start         time.Time
	Conclusion    time.Time
	Params        any
}

// Settlement is the module's output for a batch lot: how much quote cleared,
// how much base sold, and the resolution of the single marginal bid that was
// only fractionally accepted, if any.
type Settlement struct {
	// TotalIn is the quote amount cleared, including the partially filled
	// bid's full paid amount. Fees are never charged on PartialFill.Refund.
	TotalIn amount.Amount

	// TotalOut is the base amount sold. Never exceeds capacity. Zero means
	// the lot did not settle.
	TotalOut amount.Amount

	// PartialFill, when present, must be resolved atomically with
	// settlement: the bidder straddling the clearing boundary receives its
	// payout and refund pushed directly rather than through the claim flow.
	PartialFill *PartialFill

	// AuctionOutput is opaque module output passed through to callers.
	AuctionOutput []byte
}

// PartialFill describes the marginal bid's resolution.
type PartialFill struct {
	Bidder   token.Address
	Referrer token.Address
	Refund   amount.Amount // quote returned to the bidder
	Payout   amount.Amount // base delivered to the bidder
}

// BidClaim is the post-settlement outcome of one bid.
type BidClaim struct {
	Bidder token.Address
	Paid   amount.Amount // quote escrowed for the bid
	Payout amount.Amount // base owed if filled
	Filled bool
}

// Module is the auction-type collaborator. Price discovery lives here; the
// settlement core only consumes its output. Batch-only operations return
// NotImplemented on atomic modules and vice versa.
type Module interface {
	Keycode() Keycode
	Type() Type

	// Register installs a new lot with the module. Called once at lot
	// creation, after the house resolved the module from the registry.
	Register(lotID uint64, p LotParams) error

	// Cancel discards the module's lot state before conclusion.
	Cancel(lotID uint64) error

	// Bid records a live bid. Batch modules only.
	Bid(lotID, bidID uint64, bidder token.Address, amt amount.Amount) error

	// RefundBid excludes a bid from the eventual clearing computation.
	// Batch modules only, pre-settlement.
	RefundBid(lotID, bidID uint64) error

	// Settle runs the clearing computation. Batch modules only; called once.
	Settle(ctx context.Context, lotID uint64) (*Settlement, error)

	// Claim reports a bid's outcome after settlement. A bid resolved
	// directly at settlement (the partial fill) is not claimable again.
	Claim(lotID, bidID uint64) (BidClaim, error)

	// Purchase executes an immediate buy and returns the base payout.
	// Atomic modules only.
	Purchase(lotID uint64, amt amount.Amount) (amount.Amount, error)
}
