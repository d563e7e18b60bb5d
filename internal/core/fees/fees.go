// Package fees stores and computes protocol, referrer and curator fee
// percentages. Percentages are parts-per-100000 integers; splits always
// round down so the protocol never over-charges.
package fees

import (
	"sync"

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/aucterr"
	"github.com/openclear/auctiond/internal/core/auction"
	"github.com/openclear/auctiond/internal/core/token"
)

// Denominator is the fee scale: 100000 == 100%.
const Denominator = 100_000

// FeeType selects which percentage SetFee mutates.
type FeeType uint8

const (
	Protocol FeeType = iota + 1
	Referrer
	MaxCurator
)

// Config is the governance-set fee schedule for one auction type.
type Config struct {
	Protocol   uint32
	Referrer   uint32
	MaxCurator uint32
}

// LotFees is the per-lot fee snapshot. Protocol and referrer percents are
// copied from the live Config at the first fee-accruing event and never
// change afterwards, so later governance changes cannot touch in-flight
// lots. The curator rate is locked separately at curation time.
type LotFees struct {
	Curator        token.Address
	Curated        bool
	CuratorPercent uint32
	Protocol       uint32
	Referrer       uint32
	Locked         bool
}

// Ledger holds fee configuration per auction type, mutable only by the
// governance principal.
type Ledger struct {
	mu         sync.RWMutex
	governance token.Address
	byType     map[auction.Keycode]Config
}

func NewLedger(governance token.Address) *Ledger {
	return &Ledger{
		governance: governance,
		byType:     make(map[auction.Keycode]Config),
	}
}

// SetFee overwrites one percentage for an auction type. Only governance may
// call it. A percent above 100%, or a protocol+referrer combination above
// 100%, is rejected here so ComputeSplit can never produce a negative net.
func (l *Ledger) SetFee(caller token.Address, kc auction.Keycode, ft FeeType, percent uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.governance {
		return aucterr.New(aucterr.KindNotPermitted, "setFee", "caller %s is not governance", caller)
	}
	if percent > Denominator {
		return aucterr.New(aucterr.KindInvalidFee, "setFee", "percent %d exceeds %d", percent, Denominator)
	}

	cfg := l.byType[kc]
	switch ft {
	case Protocol:
		if uint64(percent)+uint64(cfg.Referrer) > Denominator {
			return aucterr.New(aucterr.KindInvalidFee, "setFee", "protocol %d + referrer %d exceeds %d", percent, cfg.Referrer, Denominator)
		}
		cfg.Protocol = percent
	case Referrer:
		if uint64(percent)+uint64(cfg.Protocol) > Denominator {
			return aucterr.New(aucterr.KindInvalidFee, "setFee", "referrer %d + protocol %d exceeds %d", percent, cfg.Protocol, Denominator)
		}
		cfg.Referrer = percent
	case MaxCurator:
		cfg.MaxCurator = percent
	default:
		return aucterr.New(aucterr.KindInvalidParams, "setFee", "unknown fee type %d", ft)
	}
	l.byType[kc] = cfg
	return nil
}

// Config returns the live fee schedule for an auction type.
func (l *Ledger) Config(kc auction.Keycode) Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.byType[kc]
}

// LockIn copies the live protocol and referrer percents into lf at the first
// fee-accruing event. Calling it on an already-locked snapshot is a no-op:
// the snapshot must stay exactly as first taken.
func (l *Ledger) LockIn(lf *LotFees, kc auction.Keycode) {
	if lf.Locked {
		return
	}
	cfg := l.Config(kc)
	lf.Protocol = cfg.Protocol
	lf.Referrer = cfg.Referrer
	lf.Locked = true
}

// Split is the result of dividing a gross quote amount.
type Split struct {
	Protocol amount.Amount
	Referrer amount.Amount
	Net      amount.Amount
}

// ComputeSplit divides gross between protocol, referrer and seller. Both fee
// legs round down. When there is no referrer the referrer share folds back
// into the seller's net, never into the protocol's.
func ComputeSplit(gross amount.Amount, protocolPercent, referrerPercent uint32, hasReferrer bool) (Split, error) {
	protocolFee, err := amount.MulDiv(gross, uint64(protocolPercent), Denominator, amount.RoundDown)
	if err != nil {
		return Split{}, err
	}
	referrerFee := amount.Zero
	if hasReferrer {
		referrerFee, err = amount.MulDiv(gross, uint64(referrerPercent), Denominator, amount.RoundDown)
		if err != nil {
			return Split{}, err
		}
	}
	net, err := gross.Sub(protocolFee)
	if err != nil {
		return Split{}, err
	}
	net, err = net.Sub(referrerFee)
	if err != nil {
		return Split{}, err
	}
	return Split{Protocol: protocolFee, Referrer: referrerFee, Net: net}, nil
}
