package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/openclear/auctiond/internal/core/amount"
)

// Bank is an in-memory Mover. The daemon uses it as the custody backend in
// standalone mode and the core tests use it to observe every balance.
type Bank struct {
	mu       sync.Mutex
	balances map[Token]map[Address]amount.Amount

	// transferFee, if set for a token, is the parts-per-100000 haircut the
	// token takes on every transfer, emulating fee-on-transfer assets.
	transferFee map[Token]uint64
}

// NewBank returns an empty bank.
func NewBank() *Bank {
	return &Bank{
		balances:    make(map[Token]map[Address]amount.Amount),
		transferFee: make(map[Token]uint64),
	}
}

// Mint credits a balance out of thin air. Test and bootstrap helper.
func (b *Bank) Mint(tkn Token, to Address, amt amount.Amount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(tkn, to, amt)
}

// SetTransferFee makes tkn behave as a fee-on-transfer token: every transfer
// delivers amount minus floor(amount*ppm/100000).
func (b *Bank) SetTransferFee(tkn Token, ppm uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transferFee[tkn] = ppm
}

// Balance returns the current holding of addr in tkn.
func (b *Bank) Balance(tkn Token, addr Address) amount.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[tkn][addr]
}

func (b *Bank) credit(tkn Token, to Address, amt amount.Amount) {
	held := b.balances[tkn]
	if held == nil {
		held = make(map[Address]amount.Amount)
		b.balances[tkn] = held
	}
	sum, err := held[to].Add(amt)
	if err != nil {
		// A balance beyond the amount cap cannot be reached through the
		// engine; treat it as corruption.
		panic(fmt.Sprintf("bank: balance overflow for %s/%s", tkn, to))
	}
	held[to] = sum
}

func (b *Bank) debit(tkn Token, from Address, amt amount.Amount) error {
	held := b.balances[tkn][from]
	rest, err := held.Sub(amt)
	if err != nil {
		return fmt.Errorf("bank: %s has %s of %s, needs %s", from, held, tkn, amt)
	}
	b.balances[tkn][from] = rest
	return nil
}

// Transfer implements Mover. The returned amount reflects any configured
// fee-on-transfer haircut.
func (b *Bank) Transfer(ctx context.Context, m Movement) (amount.Amount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.debit(m.Token, m.From, m.Amount); err != nil {
		return amount.Zero, err
	}
	received := m.Amount
	if ppm := b.transferFee[m.Token]; ppm > 0 {
		fee, err := amount.MulDiv(m.Amount, ppm, 100_000, amount.RoundDown)
		if err != nil {
			return amount.Zero, err
		}
		received, err = m.Amount.Sub(fee)
		if err != nil {
			return amount.Zero, err
		}
	}
	b.credit(m.Token, m.To, received)
	return received, nil
}

// Disburse implements Mover. All movements are validated against current
// balances before any is applied, so a failure leaves every balance intact.
func (b *Bank) Disburse(ctx context.Context, ms []Movement) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	need := make(map[Token]map[Address]amount.Amount)
	for _, m := range ms {
		per := need[m.Token]
		if per == nil {
			per = make(map[Address]amount.Amount)
			need[m.Token] = per
		}
		sum, err := per[m.From].Add(m.Amount)
		if err != nil {
			return err
		}
		per[m.From] = sum
	}
	for tkn, per := range need {
		for from, total := range per {
			if b.balances[tkn][from].LessThan(total) {
				return fmt.Errorf("bank: %s holds %s of %s, disbursement needs %s",
					from, b.balances[tkn][from], tkn, total)
			}
		}
	}
	for _, m := range ms {
		if err := b.debit(m.Token, m.From, m.Amount); err != nil {
			return err
		}
		b.credit(m.Token, m.To, m.Amount)
	}
	return nil
}
