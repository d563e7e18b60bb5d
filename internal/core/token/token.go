package token

import (
	"context"

	"github.com/openclear/auctiond/internal/core/amount"
)

// Token identifies an asset. The engine never inspects it; it is an opaque
// handle passed through to the movement collaborator.
type Token string

// Address identifies a principal holding token balances.
type Address string

// ZeroAddress is the absent principal, e.g. "no referrer".
const ZeroAddress Address = ""

// Movement is one value transfer instruction.
type Movement struct {
	Token  Token
	From   Address
	To     Address
	Amount amount.Amount
}

// Mover is the token-movement collaborator consumed by the settlement core.
// Implementations may be arbitrarily hostile: they can fail, deliver less
// than requested, or call back into the engine. The engine defends itself
// with per-lot reentrancy locks and treats any error as an abort.
type Mover interface {
	// Transfer executes a single inbound movement and returns the amount
	// actually received by m.To. Fee-on-transfer tokens deliver less than
	// requested; escrow is always credited with the returned value, never
	// the nominal one.
	Transfer(ctx context.Context, m Movement) (amount.Amount, error)

	// Disburse executes a set of outbound movements with all-or-nothing
	// semantics: either every movement lands or none does. Settlement and
	// claim flows rely on this to stay atomic.
	Disburse(ctx context.Context, ms []Movement) error
}
