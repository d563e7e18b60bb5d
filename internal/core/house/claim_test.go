package house_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/aucterr"
)

func TestClaimBids(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Capacity 1.0 base at 2 quote per base: bob's first bid fills it
	// whole, his second bid goes home unfilled.
	lotID := f.createBatchLot(t, 1_000_000)
	f.mint(quoteToken, bob, 4_000_000)
	first, err := f.eng.PlaceBid(ctx, bob, lotID, amount.New(2_000_000))
	require.NoError(t, err)
	second, err := f.eng.PlaceBid(ctx, bob, lotID, amount.New(2_000_000))
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	_, err = f.eng.Settle(ctx, lotID)
	require.NoError(t, err)

	outcomes, err := f.eng.ClaimBids(ctx, bob, lotID, []uint64{first, second})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Filled)
	assert.Equal(t, "1000000", outcomes[0].Amount.String())
	assert.False(t, outcomes[1].Filled)
	assert.Equal(t, "2000000", outcomes[1].Amount.String())

	assert.Equal(t, "1000000", f.balance(baseToken, bob))
	assert.Equal(t, "2000000", f.balance(quoteToken, bob))

	bid, err := f.eng.BidView(lotID, first)
	require.NoError(t, err)
	assert.Equal(t, "claimed", bid.Status)
	bid, err = f.eng.BidView(lotID, second)
	require.NoError(t, err)
	assert.Equal(t, "refunded", bid.Status)

	// Resolved bids cannot be claimed again.
	_, err = f.eng.ClaimBids(ctx, bob, lotID, []uint64{first})
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidBidID))
}

func TestClaimBidsValidatesWholeBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lotID := f.createBatchLot(t, 2_000_000)
	f.mint(quoteToken, bob, 2_000_000)
	bidID, err := f.eng.PlaceBid(ctx, bob, lotID, amount.New(2_000_000))
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	_, err = f.eng.Settle(ctx, lotID)
	require.NoError(t, err)

	// One bad id fails the whole batch before any token moves.
	_, err = f.eng.ClaimBids(ctx, bob, lotID, []uint64{bidID, 99})
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidBidID))
	assert.Equal(t, "0", f.balance(baseToken, bob))

	_, err = f.eng.ClaimBids(ctx, bob, lotID, []uint64{bidID, bidID})
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidBidID))
	assert.Equal(t, "0", f.balance(baseToken, bob))

	// The good bid is untouched and still claimable.
	outcomes, err := f.eng.ClaimBids(ctx, bob, lotID, []uint64{bidID})
	require.NoError(t, err)
	assert.True(t, outcomes[0].Filled)
	assert.Equal(t, "1000000", f.balance(baseToken, bob))
}

func TestClaimBidsRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lotID := f.createBatchLot(t, 2_000_000)
	f.mint(quoteToken, bob, 2_000_000)
	bidID, err := f.eng.PlaceBid(ctx, bob, lotID, amount.New(2_000_000))
	require.NoError(t, err)

	_, err = f.eng.ClaimBids(ctx, bob, lotID, nil)
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidParams))

	// Not settled yet.
	_, err = f.eng.ClaimBids(ctx, bob, lotID, []uint64{bidID})
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidState))

	f.clock.Advance(2 * time.Hour)
	_, err = f.eng.Settle(ctx, lotID)
	require.NoError(t, err)

	// Only the bid's owner may claim it.
	_, err = f.eng.ClaimBids(ctx, carol, lotID, []uint64{bidID})
	assert.True(t, aucterr.IsKind(err, aucterr.KindNotBidder))
}

func TestClaimProceedsUnsoldCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Capacity 2.0 base, only 1.0 sells; the unsold half stays in escrow
	// for the seller.
	lotID := f.createBatchLot(t, 2_000_000)
	f.mint(quoteToken, bob, 2_000_000)
	_, err := f.eng.PlaceBid(ctx, bob, lotID, amount.New(2_000_000))
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	_, err = f.eng.Settle(ctx, lotID)
	require.NoError(t, err)
	assert.Equal(t, "1000000", f.eng.Funding(lotID).String())

	claim, err := f.eng.ClaimProceeds(ctx, alice, lotID)
	require.NoError(t, err)
	assert.Equal(t, "1000000", claim.String())
	assert.Equal(t, "1000000", f.balance(baseToken, alice))

	view, err := f.eng.LotView(lotID)
	require.NoError(t, err)
	assert.Equal(t, "claimed", view.Status)

	// The second claim finds nothing.
	_, err = f.eng.ClaimProceeds(ctx, alice, lotID)
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidState))
}

func TestClaimProceedsRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lotID := f.createBatchLot(t, 2_000_000)

	_, err := f.eng.ClaimProceeds(ctx, bob, lotID)
	assert.True(t, aucterr.IsKind(err, aucterr.KindNotPermitted))

	// Batch lots must settle before the seller claims.
	_, err = f.eng.ClaimProceeds(ctx, alice, lotID)
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidState))

	_, err = f.eng.ClaimProceeds(ctx, alice, 99)
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidLotID))
}

func TestClaimRewards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lotID := f.createBatchLot(t, 2_000_000)
	f.mint(quoteToken, bob, 4_000_000)
	_, err := f.eng.PlaceBid(ctx, bob, lotID, amount.New(4_000_000))
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	_, err = f.eng.Settle(ctx, lotID)
	require.NoError(t, err)

	amt, err := f.eng.ClaimRewards(ctx, governance, quoteToken)
	require.NoError(t, err)
	assert.Equal(t, "40000", amt.String())
	assert.Equal(t, "40000", f.balance(quoteToken, governance))
	assert.Equal(t, "0", f.eng.RewardsBalance(governance, quoteToken))

	// Nothing accrued reads as a zero withdrawal, not an error.
	amt, err = f.eng.ClaimRewards(ctx, governance, quoteToken)
	require.NoError(t, err)
	assert.Equal(t, "0", amt.String())
	amt, err = f.eng.ClaimRewards(ctx, dave, quoteToken)
	require.NoError(t, err)
	assert.Equal(t, "0", amt.String())
}

func TestClaimRewardsRestoredAfterFailedTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mover := &failingMover{Bank: f.bank}
	eng := newEngineWithMover(t, f, mover)

	f.mint(baseToken, alice, 2_000_000)
	lotID, err := eng.CreateLot(ctx, f.batchParams(2_000_000))
	require.NoError(t, err)
	f.mint(quoteToken, bob, 4_000_000)
	_, err = eng.PlaceBid(ctx, bob, lotID, amount.New(4_000_000))
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)
	_, err = eng.Settle(ctx, lotID)
	require.NoError(t, err)

	mover.failures = 1
	_, err = eng.ClaimRewards(ctx, governance, quoteToken)
	require.Error(t, err)

	// The balance survives the failed withdrawal and pays out on retry.
	assert.Equal(t, "40000", eng.RewardsBalance(governance, quoteToken))
	amt, err := eng.ClaimRewards(ctx, governance, quoteToken)
	require.NoError(t, err)
	assert.Equal(t, "40000", amt.String())
}
