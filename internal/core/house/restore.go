package house

import (
	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/token"
)

// Restore primes a fresh engine from persisted snapshots at startup. The lot
// id sequence resumes past the highest persisted id so ids are never reused
// across restarts, and unclaimed reward balances reload into the rewards
// ledger. The rewards map is keyed recipient then token, balances as decimal
// strings, matching the lot store's read-back shape.
//
// Live lot state is not rehydrated; the in-memory auction modules hold no
// persisted clearing state to resume from. Concluded lots remain readable
// from the store.
//
// TODO: snapshot module clearing state so open lots survive a restart.
func (e *Engine) Restore(lots []LotSnapshot, rewards map[string]map[string]string) error {
	e.mu.Lock()
	for _, snap := range lots {
		if snap.ID >= e.nextLot {
			e.nextLot = snap.ID + 1
		}
	}
	nextLot := e.nextLot
	e.mu.Unlock()

	for recipient, byToken := range rewards {
		for tkn, bal := range byToken {
			amt, err := amount.Parse(bal)
			if err != nil {
				return err
			}
			if err := e.rewards.Accrue(token.Address(recipient), token.Token(tkn), amt); err != nil {
				return err
			}
		}
	}

	e.log.WithFields(map[string]any{
		"lots":    len(lots),
		"nextLot": nextLot,
	}).Info("state restored")
	return nil
}
