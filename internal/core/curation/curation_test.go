package curation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/aucterr"
	"github.com/openclear/auctiond/internal/core/auction"
	"github.com/openclear/auctiond/internal/core/fees"
	"github.com/openclear/auctiond/internal/core/token"
)

const kc auction.Keycode = "TEST"

var (
	governance = token.Address("governance")
	curator    = token.Address("curator")
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	ledger := fees.NewLedger(governance)
	require.NoError(t, ledger.SetFee(governance, kc, fees.MaxCurator, 5000))
	return NewEngine(ledger)
}

func TestAssign(t *testing.T) {
	e := newEngine(t)

	e.Assign(1, curator)
	assert.Equal(t, CuratorSet, e.StateFor(1, kc))

	e.Assign(2, token.ZeroAddress)
	assert.Equal(t, NoCurator, e.StateFor(2, kc))
}

func TestSetCuratorFeeBounded(t *testing.T) {
	e := newEngine(t)

	require.NoError(t, e.SetCuratorFee(curator, kc, 2500))
	pct, ok := e.Rate(curator, kc)
	assert.True(t, ok)
	assert.Equal(t, uint32(2500), pct)

	err := e.SetCuratorFee(curator, kc, 5001)
	require.Error(t, err)
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidFee))
}

func TestStateMachine(t *testing.T) {
	e := newEngine(t)
	e.Assign(1, curator)

	assert.Equal(t, CuratorSet, e.StateFor(1, kc))

	require.NoError(t, e.SetCuratorFee(curator, kc, 2500))
	assert.Equal(t, FeeLocked, e.StateFor(1, kc))

	pct, reserve, err := e.Preview(curator, 1, kc, amount.New(1000))
	require.NoError(t, err)
	assert.Equal(t, uint32(2500), pct)
	assert.Equal(t, "25", reserve.String())

	e.Commit(1, pct, reserve)
	assert.Equal(t, Approved, e.StateFor(1, kc))

	rec := e.Lot(1)
	assert.Equal(t, curator, rec.Curator)
	assert.Equal(t, uint32(2500), rec.Percent)
	assert.Equal(t, "25", rec.MaxReserve.String())
}

func TestPreviewRejections(t *testing.T) {
	e := newEngine(t)

	// Lot without curator.
	e.Assign(1, token.ZeroAddress)
	_, _, err := e.Preview(curator, 1, kc, amount.New(1000))
	require.Error(t, err)
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidState))

	// Wrong caller.
	e.Assign(2, curator)
	require.NoError(t, e.SetCuratorFee(curator, kc, 1000))
	_, _, err = e.Preview("mallory", 2, kc, amount.New(1000))
	require.Error(t, err)
	assert.True(t, aucterr.IsKind(err, aucterr.KindNotPermitted))

	// No rate set for the auction type.
	other := token.Address("other-curator")
	e.Assign(3, other)
	_, _, err = e.Preview(other, 3, kc, amount.New(1000))
	require.Error(t, err)
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidState))

	// Double approval.
	pct, reserve, err := e.Preview(curator, 2, kc, amount.New(1000))
	require.NoError(t, err)
	e.Commit(2, pct, reserve)
	_, _, err = e.Preview(curator, 2, kc, amount.New(1000))
	require.Error(t, err)
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidState))
}

func TestRateSnapshotAtApproval(t *testing.T) {
	e := newEngine(t)
	e.Assign(1, curator)
	require.NoError(t, e.SetCuratorFee(curator, kc, 2000))

	pct, reserve, err := e.Preview(curator, 1, kc, amount.New(10_000))
	require.NoError(t, err)
	e.Commit(1, pct, reserve)

	// A later rate change must not reach the approved lot.
	require.NoError(t, e.SetCuratorFee(curator, kc, 4000))

	fee, err := e.Fee(1, amount.New(10_000))
	require.NoError(t, err)
	assert.Equal(t, "200", fee.String())
}

func TestFee(t *testing.T) {
	e := newEngine(t)
	e.Assign(1, curator)
	require.NoError(t, e.SetCuratorFee(curator, kc, 2500))

	pct, reserve, err := e.Preview(curator, 1, kc, amount.New(1000))
	require.NoError(t, err)
	e.Commit(1, pct, reserve)

	// Fee is computed on the sold amount, not capacity.
	fee, err := e.Fee(1, amount.New(400))
	require.NoError(t, err)
	assert.Equal(t, "10", fee.String())

	// The reserve caps the fee.
	fee, err = e.Fee(1, amount.New(100_000))
	require.NoError(t, err)
	assert.Equal(t, reserve.String(), fee.String())
}

func TestFeeUnapproved(t *testing.T) {
	e := newEngine(t)
	e.Assign(1, curator)

	fee, err := e.Fee(1, amount.New(1000))
	require.NoError(t, err)
	assert.True(t, fee.IsZero())

	fee, err = e.Fee(99, amount.New(1000))
	require.NoError(t, err)
	assert.True(t, fee.IsZero())
}
