package amount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclear/auctiond/internal/core/aucterr"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr aucterr.Kind
	}{
		{name: "zero", in: "0", want: "0"},
		{name: "plain", in: "123456789", want: "123456789"},
		{name: "above uint64", in: "18446744073709551616", want: "18446744073709551616"},
		{name: "cap", in: "79228162514264337593543950335", want: "79228162514264337593543950335"},
		{name: "over cap", in: "79228162514264337593543950336", wantErr: aucterr.KindOverflow},
		{name: "negative", in: "-1", wantErr: aucterr.KindInvalidParams},
		{name: "garbage", in: "12x", wantErr: aucterr.KindInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Parse(tt.in)
			if tt.wantErr != 0 {
				require.Error(t, err)
				assert.True(t, aucterr.IsKind(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.String())
		})
	}
}

func TestAddSub(t *testing.T) {
	a := MustParse("18446744073709551615") // 2^64-1
	b := New(1)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, "18446744073709551616", sum.String())

	back, err := sum.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, 0, back.Cmp(a))

	_, err = Max.Add(New(1))
	require.Error(t, err)
	assert.True(t, aucterr.IsKind(err, aucterr.KindOverflow))

	_, err = New(1).Sub(New(2))
	require.Error(t, err)
	assert.True(t, aucterr.IsKind(err, aucterr.KindOverflow))
}

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name  string
		a     string
		num   uint64
		den   uint64
		round Rounding
		want  string
	}{
		{name: "exact", a: "100", num: 3, den: 4, round: RoundDown, want: "75"},
		{name: "truncates", a: "10", num: 1, den: 3, round: RoundDown, want: "3"},
		{name: "rounds up", a: "10", num: 1, den: 3, round: RoundUp, want: "4"},
		{name: "exact no round up", a: "9", num: 1, den: 3, round: RoundUp, want: "3"},
		{name: "wide intermediate", a: "79228162514264337593543950335", num: 1000, den: 1000, round: RoundDown, want: "79228162514264337593543950335"},
		{name: "fee split", a: "1000000", num: 1000, den: 100000, round: RoundDown, want: "10000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MulDiv(MustParse(tt.a), tt.num, tt.den, tt.round)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestMulDivErrors(t *testing.T) {
	_, err := MulDiv(New(1), 1, 0, RoundDown)
	require.Error(t, err)
	assert.True(t, aucterr.IsKind(err, aucterr.KindInvalidParams))

	_, err = MulDiv(Max, 2, 1, RoundDown)
	require.Error(t, err)
	assert.True(t, aucterr.IsKind(err, aucterr.KindOverflow))
}

func TestUint64(t *testing.T) {
	v, ok := New(42).Uint64()
	assert.True(t, ok)
	assert.Equal(t, uint64(42), v)

	_, ok = MustParse("18446744073709551616").Uint64()
	assert.False(t, ok)
}

func TestMin(t *testing.T) {
	a := New(5)
	b := New(7)
	assert.Equal(t, 0, Min(a, b).Cmp(a))
	assert.Equal(t, 0, Min(b, a).Cmp(a))
	assert.Equal(t, 0, Min(a, a).Cmp(a))
}
