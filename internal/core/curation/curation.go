// Package curation tracks curator approval per lot. A curator is assigned at
// lot creation, locks a fee rate bounded by the governance max, and then
// approves the lot. Approval of a pre-funded lot eagerly reserves the
// maximum potential fee so it is guaranteed available at settlement no
// matter what governance does afterwards.
package curation

import (
	"sync"

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/aucterr"
	"github.com/openclear/auctiond/internal/core/auction"
	"github.com/openclear/auctiond/internal/core/fees"
	"github.com/openclear/auctiond/internal/core/token"
)

// State is the per-lot curation state machine.
type State uint8

const (
	NoCurator State = iota
	CuratorSet
	FeeLocked
	Approved
)

// Curation is one lot's curation record.
type Curation struct {
	Curator    token.Address
	State      State
	Percent    uint32        // locked at approval from the curator's rate
	MaxReserve amount.Amount // base tokens reserved at approval, native decimals
}

// Engine manages curator fee rates and per-lot approvals.
type Engine struct {
	mu    sync.Mutex
	fees  *fees.Ledger
	rates map[token.Address]map[auction.Keycode]uint32
	byLot map[uint64]*Curation
}

func NewEngine(feeLedger *fees.Ledger) *Engine {
	return &Engine{
		fees:  feeLedger,
		rates: make(map[token.Address]map[auction.Keycode]uint32),
		byLot: make(map[uint64]*Curation),
	}
}

// Assign records the seller-designated curator at lot creation. A zero
// curator leaves the lot in NoCurator permanently.
func (e *Engine) Assign(lotID uint64, curator token.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := &Curation{Curator: curator}
	if curator != token.ZeroAddress {
		c.State = CuratorSet
	}
	e.byLot[lotID] = c
}

// SetCuratorFee locks in the rate the caller charges for lots of the given
// auction type. The rate is bounded by the governance MaxCurator percent at
// call time.
func (e *Engine) SetCuratorFee(caller token.Address, kc auction.Keycode, percent uint32) error {
	maxPct := e.fees.Config(kc).MaxCurator
	if percent > maxPct {
		return aucterr.New(aucterr.KindInvalidFee, "setCuratorFee",
			"percent %d exceeds max curator fee %d", percent, maxPct)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	per := e.rates[caller]
	if per == nil {
		per = make(map[auction.Keycode]uint32)
		e.rates[caller] = per
	}
	per[kc] = percent
	return nil
}

// Rate returns the caller's locked rate for an auction type and whether one
// was ever set.
func (e *Engine) Rate(curator token.Address, kc auction.Keycode) (uint32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pct, ok := e.rates[curator][kc]
	return pct, ok
}

// Preview validates an approval attempt and returns the rate that would be
// locked and the max potential fee that must be reserved for a pre-funded
// lot: capacity x rate / 100000, rounded down. No state changes; the caller
// escrows the reserve and then calls Commit, so a failed token movement
// never leaves a half-approved lot behind.
func (e *Engine) Preview(caller token.Address, lotID uint64, kc auction.Keycode, capacity amount.Amount) (uint32, amount.Amount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.byLot[lotID]
	if !ok || c.State == NoCurator {
		return 0, amount.Zero, aucterr.New(aucterr.KindInvalidState, "curate", "lot %d has no curator", lotID)
	}
	if caller != c.Curator {
		return 0, amount.Zero, aucterr.New(aucterr.KindNotPermitted, "curate", "caller %s is not the designated curator", caller)
	}
	if c.State == Approved {
		return 0, amount.Zero, aucterr.New(aucterr.KindInvalidState, "curate", "lot %d already curated", lotID)
	}
	pct, ok := e.rates[caller][kc]
	if !ok {
		return 0, amount.Zero, aucterr.New(aucterr.KindInvalidState, "curate", "no curator fee set for %q", kc)
	}

	reserve, err := amount.MulDiv(capacity, uint64(pct), fees.Denominator, amount.RoundDown)
	if err != nil {
		return 0, amount.Zero, err
	}
	return pct, reserve, nil
}

// Commit transitions the lot to Approved with the rate from Preview and the
// reserve that was actually escrowed. The rate snapshot taken here is what
// settlement uses; later SetCuratorFee calls do not affect this lot.
func (e *Engine) Commit(lotID uint64, pct uint32, reserve amount.Amount) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.byLot[lotID]
	if !ok {
		return
	}
	c.State = Approved
	c.Percent = pct
	c.MaxReserve = reserve
}

// StateFor reports the lot's effective curation state for its auction type:
// a lot whose curator has locked a rate for kc reads FeeLocked until
// approval.
func (e *Engine) StateFor(lotID uint64, kc auction.Keycode) State {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.byLot[lotID]
	if !ok {
		return NoCurator
	}
	if c.State == CuratorSet {
		if _, ok := e.rates[c.Curator][kc]; ok {
			return FeeLocked
		}
	}
	return c.State
}

// Lot returns the curation record for a lot. Lots created without a curator
// read as a NoCurator record.
func (e *Engine) Lot(lotID uint64) Curation {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.byLot[lotID]; ok {
		return *c
	}
	return Curation{}
}

// Fee computes the curator's earned fee on the sold amount: always the sold
// amount, never the original capacity, on every settlement path.
func (e *Engine) Fee(lotID uint64, sold amount.Amount) (amount.Amount, error) {
	e.mu.Lock()
	c, ok := e.byLot[lotID]
	e.mu.Unlock()

	if !ok || c.State != Approved {
		return amount.Zero, nil
	}
	fee, err := amount.MulDiv(sold, uint64(c.Percent), fees.Denominator, amount.RoundDown)
	if err != nil {
		return amount.Zero, err
	}
	// The reserve is the ceiling: rounding must never let the fee outgrow
	// what was escrowed for it.
	return amount.Min(fee, c.MaxReserve), nil
}
