package house_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/aucterr"
	"github.com/openclear/auctiond/internal/core/auction/uniformprice"
)

// createCuratedLot sets the curator's rate, mints capacity plus the
// maximum reserve to the seller and creates a prefunded curated lot.
func createCuratedLot(t *testing.T, f *fixture, capacity uint64, ratePct uint32) uint64 {
	t.Helper()

	require.NoError(t, f.eng.Curation().SetCuratorFee(curator, uniformprice.KeycodeUP, ratePct))
	reserve := capacity * uint64(ratePct) / 100_000
	f.mint(baseToken, alice, capacity+reserve)

	p := f.batchParams(capacity)
	p.Curator = curator
	lotID, err := f.eng.CreateLot(context.Background(), p)
	require.NoError(t, err)
	return lotID
}

func TestCurateEscrowsReserve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lotID := createCuratedLot(t, f, 2_000_000, 2500)

	require.NoError(t, f.eng.Curate(ctx, curator, lotID))

	// 2.5% of the 2.0 capacity came out of the seller as the reserve.
	assert.Equal(t, "0", f.balance(baseToken, alice))
	assert.Equal(t, "2050000", f.eng.Funding(lotID).String())

	view, err := f.eng.LotView(lotID)
	require.NoError(t, err)
	assert.True(t, view.Curated)
	assert.Equal(t, uint32(2500), view.CuratorPercent)
	assert.Equal(t, curator, view.Curator)
}

func TestCurateRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lotID := createCuratedLot(t, f, 2_000_000, 2500)

	// Only the designated curator, and only once.
	err := f.eng.Curate(ctx, bob, lotID)
	assert.True(t, aucterr.IsKind(err, aucterr.KindNotPermitted))

	require.NoError(t, f.eng.Curate(ctx, curator, lotID))
	err = f.eng.Curate(ctx, curator, lotID)
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidState))
}

func TestCurateWithoutRate(t *testing.T) {
	f := newFixture(t)
	lotID := f.createBatchLot(t, 2_000_000)

	// No curator was assigned at creation.
	err := f.eng.Curate(context.Background(), curator, lotID)
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidState))
}

func TestCurateAfterConclusion(t *testing.T) {
	f := newFixture(t)
	lotID := createCuratedLot(t, f, 2_000_000, 2500)
	f.clock.Advance(2 * time.Hour)

	err := f.eng.Curate(context.Background(), curator, lotID)
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidState))
}

func TestSettleCuratedLotPaysFeeOnSold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lotID := createCuratedLot(t, f, 2_000_000, 2500)
	require.NoError(t, f.eng.Curate(ctx, curator, lotID))

	// Only half the capacity sells: the curator's fee is 2.5% of sold,
	// not of the full reserve.
	f.mint(quoteToken, bob, 2_000_000)
	_, err := f.eng.PlaceBid(ctx, bob, lotID, amount.New(2_000_000))
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	r, err := f.eng.Settle(ctx, lotID)
	require.NoError(t, err)

	assert.Equal(t, "1000000", r.TotalOut.String())
	assert.Equal(t, "25000", r.CuratorFee.String())
	assert.Equal(t, "25000", f.balance(baseToken, curator))

	// Unsold capacity plus the unused half of the reserve stay claimable.
	assert.Equal(t, "1025000", f.eng.Funding(lotID).String())
	claim, err := f.eng.ClaimProceeds(ctx, alice, lotID)
	require.NoError(t, err)
	assert.Equal(t, "1025000", claim.String())
}

func TestCuratorFeeCappedByReserve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lotID := createCuratedLot(t, f, 2_000_000, 2500)
	require.NoError(t, f.eng.Curate(ctx, curator, lotID))

	// The curator raises their rate after approval. The lot keeps the
	// locked 2.5%, and the fee can never exceed the escrowed reserve.
	require.NoError(t, f.eng.Curation().SetCuratorFee(curator, uniformprice.KeycodeUP, 5000))

	f.mint(quoteToken, bob, 4_000_000)
	_, err := f.eng.PlaceBid(ctx, bob, lotID, amount.New(4_000_000))
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	r, err := f.eng.Settle(ctx, lotID)
	require.NoError(t, err)
	assert.Equal(t, "50000", r.CuratorFee.String())
	assert.Equal(t, "50000", f.balance(baseToken, curator))
	assert.Equal(t, "0", f.eng.Funding(lotID).String())
}

func TestCancelCuratedLotRefundsReserve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lotID := createCuratedLot(t, f, 2_000_000, 2500)
	require.NoError(t, f.eng.Curate(ctx, curator, lotID))

	require.NoError(t, f.eng.CancelLot(ctx, alice, lotID))

	// Capacity and reserve both return to the seller.
	assert.Equal(t, "2050000", f.balance(baseToken, alice))
	assert.Equal(t, "0", f.eng.Funding(lotID).String())
	assert.Equal(t, "0", f.balance(baseToken, curator))
}
