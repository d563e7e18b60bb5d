package house_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/aucterr"
	"github.com/openclear/auctiond/internal/core/auction/instant"
	"github.com/openclear/auctiond/internal/core/fees"
	"github.com/openclear/auctiond/internal/core/token"
)

func (f *fixture) createAtomicLot(t *testing.T, capacity uint64) uint64 {
	t.Helper()
	f.mint(baseToken, alice, capacity)
	lotID, err := f.eng.CreateLot(context.Background(), f.atomicParams(capacity))
	require.NoError(t, err)
	return lotID
}

func TestPurchase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lotID := f.createAtomicLot(t, 1_000_000)
	f.mint(quoteToken, dave, 1_000_000)

	r, err := f.eng.Purchase(ctx, dave, lotID, amount.New(1_000_000))
	require.NoError(t, err)

	// Fees come off the quote first; the net converts at 2 quote per base.
	assert.Equal(t, "1000000", r.Paid.String())
	assert.Equal(t, "10000", r.ProtocolFee.String())
	assert.Equal(t, "5000", r.ReferrerFee.String())
	assert.Equal(t, "985000", r.SellerNet.String())
	assert.Equal(t, "492500", r.Payout.String())
	assert.Equal(t, "0", r.CuratorFee.String())

	// Everything moves in the one call: payout to the buyer, net to the
	// seller, fees to the rewards ledger.
	assert.Equal(t, "492500", f.balance(baseToken, dave))
	assert.Equal(t, "985000", f.balance(quoteToken, alice))
	assert.Equal(t, "10000", f.eng.RewardsBalance(governance, quoteToken))
	assert.Equal(t, "5000", f.eng.RewardsBalance(referrer, quoteToken))
	assert.Equal(t, "507500", f.eng.Funding(lotID).String())

	view, err := f.eng.LotView(lotID)
	require.NoError(t, err)
	assert.Equal(t, "1000000", view.Purchased)
	assert.Equal(t, "492500", view.Sold)
	assert.True(t, view.FeesLocked)
}

func TestPurchaseFeesLockAtFirstPurchase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lotID := f.createAtomicLot(t, 1_000_000)
	f.mint(quoteToken, dave, 2_000_000)

	_, err := f.eng.Purchase(ctx, dave, lotID, amount.New(1_000_000))
	require.NoError(t, err)

	// A governance fee change between purchases does not touch this lot.
	require.NoError(t, f.eng.Fees().SetFee(governance, instant.KeycodeIN, fees.Protocol, 2000))

	r, err := f.eng.Purchase(ctx, dave, lotID, amount.New(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, "10000", r.ProtocolFee.String())
}

func TestPurchaseSellsOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lotID := f.createAtomicLot(t, 500_000)
	f.mint(quoteToken, dave, 3_000_000)

	r, err := f.eng.Purchase(ctx, dave, lotID, amount.New(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, "492500", r.Payout.String())

	// 7500 base units remain; a purchase that needs more fails whole and
	// returns the buyer's escrow.
	before := f.balance(quoteToken, dave)
	_, err = f.eng.Purchase(ctx, dave, lotID, amount.New(1_000_000))
	require.Error(t, err)
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidParams))
	assert.Equal(t, before, f.balance(quoteToken, dave))
}

func TestPurchaseRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lotID := f.createAtomicLot(t, 1_000_000)
	f.mint(quoteToken, dave, 2_000_000)

	_, err := f.eng.Purchase(ctx, dave, 99, amount.New(1))
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidLotID))

	_, err = f.eng.Purchase(ctx, token.ZeroAddress, lotID, amount.New(1_000_000))
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidParams))

	_, err = f.eng.Purchase(ctx, dave, lotID, amount.Zero)
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidParams))

	// Batch lots take bids, not purchases.
	batchID := f.createBatchLot(t, 1_000_000)
	_, err = f.eng.Purchase(ctx, dave, batchID, amount.New(1_000_000))
	assert.True(t, aucterr.IsKind(err, aucterr.KindNotImplemented))

	f.clock.Advance(2 * time.Hour)
	_, err = f.eng.Purchase(ctx, dave, lotID, amount.New(1_000_000))
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidState))
}

func TestPurchaseLazilyFundedLot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.atomicParams(1_000_000)
	p.Prefund = false
	lotID, err := f.eng.CreateLot(ctx, p)
	require.NoError(t, err)

	f.mint(quoteToken, dave, 1_000_000)

	// Seller holds no base: the just-in-time pull fails and the buyer's
	// escrow comes back.
	_, err = f.eng.Purchase(ctx, dave, lotID, amount.New(1_000_000))
	require.Error(t, err)
	assert.Equal(t, "1000000", f.balance(quoteToken, dave))

	// With the seller funded, the purchase pulls exactly the payout.
	f.mint(baseToken, alice, 492_500)
	r, err := f.eng.Purchase(ctx, dave, lotID, amount.New(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, "492500", r.Payout.String())
	assert.Equal(t, "0", f.balance(baseToken, alice))
	assert.Equal(t, "492500", f.balance(baseToken, dave))
	assert.Equal(t, "0", f.eng.Funding(lotID).String())
}

func TestPurchaseCuratedLot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.eng.Curation().SetCuratorFee(curator, instant.KeycodeIN, 2000))
	f.mint(baseToken, alice, 1_020_000)
	p := f.atomicParams(1_000_000)
	p.Curator = curator
	lotID, err := f.eng.CreateLot(ctx, p)
	require.NoError(t, err)
	require.NoError(t, f.eng.Curate(ctx, curator, lotID))
	assert.Equal(t, "1020000", f.eng.Funding(lotID).String())

	f.mint(quoteToken, dave, 1_000_000)
	r, err := f.eng.Purchase(ctx, dave, lotID, amount.New(1_000_000))
	require.NoError(t, err)

	// 2% of the payout goes to the curator in base, pushed immediately.
	assert.Equal(t, "492500", r.Payout.String())
	assert.Equal(t, "9850", r.CuratorFee.String())
	assert.Equal(t, "9850", f.balance(baseToken, curator))
	assert.Equal(t, "517650", f.eng.Funding(lotID).String())
}

func TestClaimProceedsAtomicLot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lotID := f.createAtomicLot(t, 1_000_000)
	f.mint(quoteToken, dave, 1_000_000)
	_, err := f.eng.Purchase(ctx, dave, lotID, amount.New(1_000_000))
	require.NoError(t, err)

	// Atomic lots never settle; the seller recovers leftovers only after
	// conclusion.
	_, err = f.eng.ClaimProceeds(ctx, alice, lotID)
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidState))

	f.clock.Advance(2 * time.Hour)
	claim, err := f.eng.ClaimProceeds(ctx, alice, lotID)
	require.NoError(t, err)
	assert.Equal(t, "507500", claim.String())
	assert.Equal(t, "507500", f.balance(baseToken, alice))

	view, err := f.eng.LotView(lotID)
	require.NoError(t, err)
	assert.Equal(t, "claimed", view.Status)
}
