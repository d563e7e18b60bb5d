// Package house is the auction house aggregate: it owns the lot and bid
// registries, the rewards ledger and the per-lot escrow, and orchestrates
// the auction-type modules, fee ledger, curation engine and token movement
// collaborator through the lot lifecycle.
//
// Every state-mutating entry point holds a per-lot reentrancy lock for its
// whole duration, including external token movements and hook callbacks. A
// collaborator that calls back into the engine for the same lot is rejected
// instead of observing or corrupting in-flight state.
package house

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/aucterr"
	"github.com/openclear/auctiond/internal/core/auction"
	"github.com/openclear/auctiond/internal/core/callback"
	"github.com/openclear/auctiond/internal/core/curation"
	"github.com/openclear/auctiond/internal/core/fees"
	"github.com/openclear/auctiond/internal/core/funding"
	"github.com/openclear/auctiond/internal/core/token"
)

// Status is a lot's stored lifecycle state. Started and Concluded are
// derived from the clock, not stored; see Lot.LifecycleAt.
type Status uint8

const (
	StatusCreated Status = iota + 1
	StatusCancelled
	StatusSettled
	StatusClaimed
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusCancelled:
		return "cancelled"
	case StatusSettled:
		return "settled"
	case StatusClaimed:
		return "claimed"
	default:
		return "unknown"
	}
}

// Lifecycle is the externally visible lifecycle value, including the
// clock-derived states.
type Lifecycle string

const (
	LifecycleCreated   Lifecycle = "created"
	LifecycleStarted   Lifecycle = "started"
	LifecycleConcluded Lifecycle = "concluded"
	LifecycleCancelled Lifecycle = "cancelled"
	LifecycleSettled   Lifecycle = "settled"
	LifecycleClaimed   Lifecycle = "claimed"
)

// BidStatus is a bid's tri-state claim status.
type BidStatus uint8

const (
	BidUnclaimed BidStatus = iota + 1
	BidClaimed
	BidRefunded
)

func (s BidStatus) String() string {
	switch s {
	case BidUnclaimed:
		return "unclaimed"
	case BidClaimed:
		return "claimed"
	case BidRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// Lot is one auction instance. Capacity and token identity are immutable
// after creation; only status, funding and fee lock-ins mutate.
type Lot struct {
	ID            uint64
	Seller        token.Address
	Referrer      token.Address
	BaseToken     token.Token
	QuoteToken    token.Token
	BaseDecimals  uint8
	QuoteDecimals uint8
	Keycode       auction.Keycode
	Capacity      amount.Amount
	Start         time.Time
	Conclusion    time.Time
	Prefunded     bool
	Status        Status

	// Purchased and Sold are the settled totals: quote retained by the
	// protocol and base sold, both in native decimals.
	Purchased amount.Amount
	Sold      amount.Amount

	// BaseOwed is the sold base still claimable by bidders after
	// settlement. Aggregate bid payouts beyond it are a fatal bug.
	BaseOwed amount.Amount

	module auction.Module
	hooks  callback.Hooks

	nextBid uint64
	bids    map[uint64]*Bid

	// pending caches the module's settlement output so a settle retried
	// after a failed disbursement does not re-run the clearing computation.
	pending *auction.Settlement

	// lazyPulled marks that a lazily-funded lot's base tokens were already
	// pulled during a settle attempt.
	lazyPulled bool
}

// LifecycleAt derives the externally visible lifecycle state at time now.
func (l *Lot) LifecycleAt(now time.Time) Lifecycle {
	switch l.Status {
	case StatusCancelled:
		return LifecycleCancelled
	case StatusSettled:
		return LifecycleSettled
	case StatusClaimed:
		return LifecycleClaimed
	}
	if !now.Before(l.Conclusion) {
		return LifecycleConcluded
	}
	if !now.Before(l.Start) {
		return LifecycleStarted
	}
	return LifecycleCreated
}

// liveAt reports whether the lot accepts bids/purchases at time now.
func (l *Lot) liveAt(now time.Time) bool {
	return l.Status == StatusCreated && !now.Before(l.Start) && now.Before(l.Conclusion)
}

// Bid is one escrowed quote-token commitment against a batch lot.
type Bid struct {
	ID     uint64
	LotID  uint64
	Bidder token.Address
	Amount amount.Amount // quote actually received into escrow
	Status BidStatus

	// moduleRefunded marks that the auction module already excluded this
	// bid from clearing while the refund disbursement is still pending.
	moduleRefunded bool
}

// Event is a lifecycle notification published to the event sink.
type Event struct {
	Type   string        `json:"type"`
	LotID  uint64        `json:"lot_id"`
	BidID  uint64        `json:"bid_id,omitempty"`
	Amount string        `json:"amount,omitempty"`
	At     time.Time     `json:"at"`
	Actor  token.Address `json:"actor,omitempty"`
}

// Sink receives lifecycle events. Implementations must not call back into
// the engine synchronously.
type Sink interface {
	Publish(Event)
}

// Store persists lot and bid snapshots after each committed mutation.
// Persistence failures are logged, never rolled back into the core.
type Store interface {
	SaveLot(LotSnapshot) error
	SaveBid(BidSnapshot) error
	SaveReward(recipient token.Address, tkn token.Token, balance amount.Amount) error
}

// History records settlement outcomes and reward movements for audit
// queries, outside the atomic core mutation.
type History interface {
	RecordSettlement(rec SettlementRecord) error
	RecordReward(recipient token.Address, tkn token.Token, delta amount.Amount, kind string) error
}

// Config is the house's protocol configuration.
type Config struct {
	// HouseAddress is the custody principal all escrow moves through.
	HouseAddress token.Address

	// Governance may mutate fee configuration and receives protocol fees.
	Governance token.Address
}

// Engine is the auction house.
type Engine struct {
	cfg      Config
	registry *auction.Registry
	fees     *fees.Ledger
	curation *curation.Engine
	funding  *funding.Tracker
	rewards  *Rewards
	mover    token.Mover

	// mu guards the registries below and every lot, bid and fee-snapshot
	// field write; view snapshots read under it.
	mu      sync.Mutex
	lots    map[uint64]*Lot
	lotFees map[uint64]*fees.LotFees
	busy    map[uint64]bool
	nextLot uint64

	clock   func() time.Time
	log     logrus.FieldLogger
	events  Sink
	store   Store
	history History
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock. Tests use it to cross lifecycle
// boundaries deterministically.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLogger attaches a structured logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = log }
}

// WithEvents attaches a lifecycle event sink.
func WithEvents(sink Sink) Option {
	return func(e *Engine) { e.events = sink }
}

// SetEvents attaches a lifecycle event sink after construction, for sinks
// that themselves need the engine to build. Call before serving traffic.
func (e *Engine) SetEvents(sink Sink) { e.events = sink }

// WithStore attaches a persistence store.
func WithStore(store Store) Option {
	return func(e *Engine) { e.store = store }
}

// WithHistory attaches a settlement history recorder.
func WithHistory(h History) Option {
	return func(e *Engine) { e.history = h }
}

// New builds an auction house over the given collaborators.
func New(cfg Config, registry *auction.Registry, feeLedger *fees.Ledger, mover token.Mover, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		registry: registry,
		fees:     feeLedger,
		curation: curation.NewEngine(feeLedger),
		funding:  funding.NewTracker(),
		rewards:  NewRewards(),
		mover:    mover,
		lots:     make(map[uint64]*Lot),
		lotFees:  make(map[uint64]*fees.LotFees),
		busy:     make(map[uint64]bool),
		nextLot:  1,
		clock:    time.Now,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Curation exposes the curation engine for rate management.
func (e *Engine) Curation() *curation.Engine { return e.curation }

// Fees exposes the fee ledger for governance calls.
func (e *Engine) Fees() *fees.Ledger { return e.fees }

// Funding returns a lot's current escrowed balance.
func (e *Engine) Funding(lotID uint64) amount.Amount { return e.funding.Balance(lotID) }

// lockLot acquires the per-lot reentrancy lock. It fails instead of
// blocking: a second entry for the same lot while one is in flight can only
// be a reentrant call from a collaborator.
func (e *Engine) lockLot(op string, lotID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy[lotID] {
		return aucterr.New(aucterr.KindInvalidState, op, "lot %d: reentrant call rejected", lotID)
	}
	e.busy[lotID] = true
	return nil
}

func (e *Engine) unlockLot(lotID uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.busy, lotID)
}

// lot fetches a lot by id; the busy lock must already be held.
func (e *Engine) lot(op string, lotID uint64) (*Lot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.lots[lotID]
	if !ok {
		return nil, aucterr.New(aucterr.KindInvalidLotID, op, "lot %d does not exist", lotID)
	}
	return l, nil
}

func (e *Engine) publish(ev Event) {
	if e.events != nil {
		ev.At = e.clock()
		e.events.Publish(ev)
	}
}

func (e *Engine) persistLot(l *Lot) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveLot(e.snapshotLot(l)); err != nil {
		e.log.WithError(err).WithField("lot", l.ID).Warn("lot snapshot not persisted")
	}
}

func (e *Engine) persistBid(b *Bid) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveBid(BidSnapshot{
		ID:     b.ID,
		LotID:  b.LotID,
		Bidder: b.Bidder,
		Amount: b.Amount.String(),
		Status: b.Status.String(),
	}); err != nil {
		e.log.WithError(err).WithField("lot", b.LotID).WithField("bid", b.ID).Warn("bid snapshot not persisted")
	}
}

func (e *Engine) persistReward(recipient token.Address, tkn token.Token) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveReward(recipient, tkn, e.rewards.Balance(recipient, tkn)); err != nil {
		e.log.WithError(err).WithField("recipient", recipient).Warn("reward snapshot not persisted")
	}
}
