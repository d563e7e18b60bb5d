// Package funding tracks the payout-token value escrowed for each lot. The
// balance is a safety ceiling on disbursements: it only ever decreases after
// the lot goes live, and an attempted decrement below zero is reported as a
// fatal accounting bug, never applied partially.
package funding

import (
	"sync"

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/aucterr"
)

// Tracker holds per-lot escrowed balances.
type Tracker struct {
	mu    sync.Mutex
	byLot map[uint64]amount.Amount
}

func NewTracker() *Tracker {
	return &Tracker{byLot: make(map[uint64]amount.Amount)}
}

// Init sets a lot's starting escrow. Zero for lazily-funded lots. Called
// exactly once per lot.
func (t *Tracker) Init(lotID uint64, amt amount.Amount) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byLot[lotID]; ok {
		return aucterr.New(aucterr.KindInvalidParams, "funding", "lot %d already tracked", lotID)
	}
	t.byLot[lotID] = amt
	return nil
}

// Escrow credits additional escrow to a lot. The only legitimate caller is
// curation approval, which reserves the curator's max potential fee before
// the lot can settle.
func (t *Tracker) Escrow(lotID uint64, amt amount.Amount) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	bal, ok := t.byLot[lotID]
	if !ok {
		return aucterr.New(aucterr.KindInvalidLotID, "funding", "lot %d not tracked", lotID)
	}
	sum, err := bal.Add(amt)
	if err != nil {
		return err
	}
	t.byLot[lotID] = sum
	return nil
}

// Disburse decrements a lot's escrow by amt. A decrement below zero means
// the engine is about to pay out more than it holds for the lot; the call
// fails without touching the balance and the caller must abort its whole
// operation.
func (t *Tracker) Disburse(lotID uint64, amt amount.Amount) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	bal, ok := t.byLot[lotID]
	if !ok {
		return aucterr.New(aucterr.KindInvalidLotID, "funding", "lot %d not tracked", lotID)
	}
	rest, err := bal.Sub(amt)
	if err != nil {
		return aucterr.New(aucterr.KindInsufficientFunding, "funding",
			"lot %d: disburse %s exceeds escrow %s", lotID, amt, bal)
	}
	t.byLot[lotID] = rest
	return nil
}

// Balance returns a lot's current escrow. Unknown lots read as zero.
func (t *Tracker) Balance(lotID uint64) amount.Amount {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byLot[lotID]
}

// Restore overwrites a lot's balance. Used only to roll back a failed
// settlement to its pre-call snapshot.
func (t *Tracker) Restore(lotID uint64, amt amount.Amount) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byLot[lotID] = amt
}
