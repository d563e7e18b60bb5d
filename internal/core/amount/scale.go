package amount

import "github.com/openclear/auctiond/internal/core/aucterr"

// InternalDecimals is the precision of the internal accounting scale.
// Every money computation that crosses token boundaries happens at this
// scale; token-native amounts are converted in and out at the edges.
const InternalDecimals = 18

// MaxTokenDecimals bounds the native precision a token may declare.
const MaxTokenDecimals = 18

var pow10 = [MaxTokenDecimals + 1]uint64{
	1,
	10,
	100,
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
	100_000_000_000,
	1_000_000_000_000,
	10_000_000_000_000,
	100_000_000_000_000,
	1_000_000_000_000_000,
	10_000_000_000_000_000,
	100_000_000_000_000_000,
	1_000_000_000_000_000_000,
}

// ScaleToInternal converts an amount in a token's native precision to the
// 18-decimal internal scale. Multiplying by a power of ten is exact, so the
// rounding mode only matters when tokenDecimals exceeds the internal scale,
// which is excluded by MaxTokenDecimals; it is kept in the signature so both
// directions read the same at call sites.
func ScaleToInternal(a Amount, tokenDecimals uint8, round Rounding) (Amount, error) {
	if tokenDecimals > MaxTokenDecimals {
		return Zero, aucterr.New(aucterr.KindInvalidParams, "scale", "token decimals %d out of range", tokenDecimals)
	}
	return MulDiv(a, pow10[InternalDecimals-int(tokenDecimals)], 1, round)
}

// ScaleFromInternal converts an 18-decimal internal amount back to a token's
// native precision. Callers converting an obligation (what must be delivered)
// pass RoundUp so the holder never under-delivers; callers converting a fee
// deduction pass RoundDown so the protocol never over-charges.
func ScaleFromInternal(a Amount, tokenDecimals uint8, round Rounding) (Amount, error) {
	if tokenDecimals > MaxTokenDecimals {
		return Zero, aucterr.New(aucterr.KindInvalidParams, "scale", "token decimals %d out of range", tokenDecimals)
	}
	return MulDiv(a, 1, pow10[InternalDecimals-int(tokenDecimals)], round)
}
