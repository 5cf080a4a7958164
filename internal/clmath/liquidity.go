package clmath

import "math/big"

// Amount0ForLiquidity returns the token0 amount covered by liquidity between
// two sqrt price bounds: liquidity << 96 * (sqrtB - sqrtA) / sqrtB / sqrtA.
func Amount0ForLiquidity(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	numerator := new(big.Int).Lsh(liquidity, 96)
	numerator.Mul(numerator, new(big.Int).Sub(sqrtB, sqrtA))
	numerator.Div(numerator, sqrtB)
	return numerator.Div(numerator, sqrtA)
}

// Amount1ForLiquidity returns the token1 amount covered by liquidity between
// two sqrt price bounds: liquidity * (sqrtB - sqrtA) / Q96.
func Amount1ForLiquidity(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	amount := new(big.Int).Mul(liquidity, new(big.Int).Sub(sqrtB, sqrtA))
	return amount.Div(amount, Q96)
}

// AmountsForLiquidity converts position liquidity into raw token amounts at
// the current pool price. Below the range all value sits in token0, above it
// all value sits in token1, inside it the value is split at the current
// sqrt price. Bounds passed in the wrong order are normalized, matching the
// canonical library. Division truncates toward zero, so each amount is off
// by at most one raw token unit.
func AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity *big.Int) (*big.Int, *big.Int) {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}

	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		return Amount0ForLiquidity(sqrtA, sqrtB, liquidity), big.NewInt(0)
	case sqrtP.Cmp(sqrtB) < 0:
		return Amount0ForLiquidity(sqrtP, sqrtB, liquidity), Amount1ForLiquidity(sqrtA, sqrtP, liquidity)
	default:
		return big.NewInt(0), Amount1ForLiquidity(sqrtA, sqrtB, liquidity)
	}
}

// PriceFromSqrtRatio converts a Q64.96 sqrt price into the human-scaled
// price of token0 denominated in token1.
func PriceFromSqrtRatio(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) *big.Rat {
	numerator := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	denominator := new(big.Int).Lsh(big.NewInt(1), 192)

	// Scale raw token1-per-token0 into human units.
	numerator.Mul(numerator, pow10(decimals0))
	denominator.Mul(denominator, pow10(decimals1))

	return new(big.Rat).SetFrac(numerator, denominator)
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
