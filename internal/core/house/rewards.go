package house

import (
	"sync"

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/token"
)

// Rewards is the pull-based fee ledger: protocol and referrer fees accrue
// here at settlement and are withdrawn separately. Curator fees never pass
// through it; they are pushed as base-token transfers.
type Rewards struct {
	mu    sync.Mutex
	byKey map[token.Address]map[token.Token]amount.Amount
}

func NewRewards() *Rewards {
	return &Rewards{byKey: make(map[token.Address]map[token.Token]amount.Amount)}
}

// Accrue credits a fee balance.
func (r *Rewards) Accrue(recipient token.Address, tkn token.Token, amt amount.Amount) error {
	if amt.IsZero() || recipient == token.ZeroAddress {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	per := r.byKey[recipient]
	if per == nil {
		per = make(map[token.Token]amount.Amount)
		r.byKey[recipient] = per
	}
	sum, err := per[tkn].Add(amt)
	if err != nil {
		return err
	}
	per[tkn] = sum
	return nil
}

// Balance returns the accrued, unclaimed balance.
func (r *Rewards) Balance(recipient token.Address, tkn token.Token) amount.Amount {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byKey[recipient][tkn]
}

// take zeroes and returns the balance; restore puts it back after a failed
// withdrawal transfer.
func (r *Rewards) take(recipient token.Address, tkn token.Token) amount.Amount {
	r.mu.Lock()
	defer r.mu.Unlock()
	amt := r.byKey[recipient][tkn]
	if per := r.byKey[recipient]; per != nil {
		delete(per, tkn)
	}
	return amt
}

func (r *Rewards) restore(recipient token.Address, tkn token.Token, amt amount.Amount) {
	r.mu.Lock()
	defer r.mu.Unlock()
	per := r.byKey[recipient]
	if per == nil {
		per = make(map[token.Token]amount.Amount)
		r.byKey[recipient] = per
	}
	per[tkn] = amt
}
