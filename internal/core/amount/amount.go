package amount

import (
	"math/big"
	"math/bits"

	"github.com/openclear/auctiond/internal/core/aucterr"
)

// Amount is an unsigned token amount capped at 2^96-1, the ledger's amount
// width. All arithmetic is checked: any result above the cap (or below zero)
// is reported as an Overflow error, never silently truncated or wrapped.
//
// Internally the value is held as a 128-bit pair so that intermediate
// products in fee and scaling math never lose precision.
type Amount struct {
	hi, lo uint64
}

// maxHi is the high word of the 96-bit cap: the top 32 bits of a 96-bit
// value occupy the low 32 bits of hi.
const maxHi = uint64(1)<<32 - 1

// Max is the largest representable amount, 2^96-1.
var Max = Amount{hi: maxHi, lo: ^uint64(0)}

// Zero is the zero amount.
var Zero = Amount{}

// New returns the amount for a plain uint64 value.
func New(v uint64) Amount {
	return Amount{lo: v}
}

// Parse converts a base-10 string into an Amount. Negative values and
// values above the cap are rejected.
func Parse(s string) (Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Zero, aucterr.New(aucterr.KindInvalidParams, "amount", "malformed amount %q", s)
	}
	if v.Sign() < 0 {
		return Zero, aucterr.New(aucterr.KindInvalidParams, "amount", "negative amount %q", s)
	}
	if v.BitLen() > 96 {
		return Zero, aucterr.New(aucterr.KindOverflow, "amount", "amount %q exceeds 96 bits", s)
	}
	var a Amount
	a.lo = v.Uint64()
	a.hi = new(big.Int).Rsh(v, 64).Uint64()
	return a, nil
}

// MustParse is Parse for test fixtures and constants; it panics on error.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) overCap() bool {
	return a.hi > maxHi
}

// Add returns a+b, or an Overflow error if the sum exceeds the cap.
func (a Amount) Add(b Amount) (Amount, error) {
	lo, carry := bits.Add64(a.lo, b.lo, 0)
	hi, carry := bits.Add64(a.hi, b.hi, carry)
	sum := Amount{hi: hi, lo: lo}
	if carry != 0 || sum.overCap() {
		return Zero, aucterr.New(aucterr.KindOverflow, "amount", "add overflow: %s + %s", a, b)
	}
	return sum, nil
}

// Sub returns a-b, or an Overflow error if b > a. Amounts never go negative.
func (a Amount) Sub(b Amount) (Amount, error) {
	lo, borrow := bits.Sub64(a.lo, b.lo, 0)
	hi, borrow := bits.Sub64(a.hi, b.hi, borrow)
	if borrow != 0 {
		return Zero, aucterr.New(aucterr.KindOverflow, "amount", "sub underflow: %s - %s", a, b)
	}
	return Amount{hi: hi, lo: lo}, nil
}

// Cmp returns -1, 0 or +1 as a is less than, equal to or greater than b.
func (a Amount) Cmp(b Amount) int {
	switch {
	case a.hi < b.hi:
		return -1
	case a.hi > b.hi:
		return 1
	case a.lo < b.lo:
		return -1
	case a.lo > b.lo:
		return 1
	default:
		return 0
	}
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.hi == 0 && a.lo == 0 }

// LessThan reports a < b.
func (a Amount) LessThan(b Amount) bool { return a.Cmp(b) < 0 }

// Uint64 returns the value as a uint64 and whether it fits.
func (a Amount) Uint64() (uint64, bool) {
	return a.lo, a.hi == 0
}

// BigInt returns the amount as a fresh big.Int.
func (a Amount) BigInt() *big.Int {
	v := new(big.Int).SetUint64(a.hi)
	v.Lsh(v, 64)
	return v.Or(v, new(big.Int).SetUint64(a.lo))
}

func (a Amount) String() string {
	return a.BigInt().String()
}

// Rounding selects the direction a lossy division rounds.
type Rounding int

const (
	// RoundDown truncates toward zero. Used for fee deductions: the
	// protocol never over-charges.
	RoundDown Rounding = iota

	// RoundUp rounds away from zero. Used when converting an obligation so
	// the payer never under-delivers.
	RoundUp
)

// MulDiv returns a*num/den with the requested rounding, checked against the
// cap. The 128x64-bit intermediate product is kept at full width, so the
// result is exact up to the final rounding step.
func MulDiv(a Amount, num, den uint64, round Rounding) (Amount, error) {
	if den == 0 {
		return Zero, aucterr.New(aucterr.KindInvalidParams, "amount", "division by zero")
	}

	// 192-bit product {w2, w1, w0} = a * num.
	p1hi, w0 := bits.Mul64(a.lo, num)
	p2hi, p2lo := bits.Mul64(a.hi, num)
	w1, carry := bits.Add64(p1hi, p2lo, 0)
	w2 := p2hi + carry

	// Long division of the 192-bit product by den, top word first.
	if w2 >= den {
		// Quotient would need more than 128 bits.
		return Zero, aucterr.New(aucterr.KindOverflow, "amount", "muldiv overflow: %s * %d / %d", a, num, den)
	}
	q1, r := bits.Div64(w2, w1, den)
	q0, r := bits.Div64(r, w0, den)

	out := Amount{hi: q1, lo: q0}
	if round == RoundUp && r != 0 {
		var err error
		out, err = out.Add(Amount{lo: 1})
		if err != nil {
			return Zero, err
		}
	}
	if out.overCap() {
		return Zero, aucterr.New(aucterr.KindOverflow, "amount", "muldiv overflow: %s * %d / %d", a, num, den)
	}
	return out, nil
}

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
