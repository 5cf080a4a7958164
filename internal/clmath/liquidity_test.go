package clmath

import (
	"math/big"
	"testing"
)

func TestAmountsForLiquidityInRange(t *testing.T) {
	liquidity := big.NewInt(1_000_000)
	sqrtA := SqrtRatioAtTick(-100)
	sqrtB := SqrtRatioAtTick(100)
	sqrtP := SqrtRatioAtTick(0)

	amount0, amount1 := AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity)
	if amount0.Sign() <= 0 || amount1.Sign() <= 0 {
		t.Fatalf("in-range amounts must both be positive, got %s / %s", amount0, amount1)
	}

	// A symmetric range around the current tick splits close to evenly.
	diff := new(big.Int).Sub(amount0, amount1)
	diff.Abs(diff)
	limit := new(big.Int).Div(amount0, big.NewInt(50))
	if diff.Cmp(limit) > 0 {
		t.Fatalf("symmetric split too uneven: %s vs %s", amount0, amount1)
	}
}

func TestAmountsForLiquidityBelowRange(t *testing.T) {
	liquidity := big.NewInt(1_000_000)
	sqrtA := SqrtRatioAtTick(100)
	sqrtB := SqrtRatioAtTick(200)

	for _, tick := range []int32{0, 100} {
		amount0, amount1 := AmountsForLiquidity(SqrtRatioAtTick(tick), sqrtA, sqrtB, liquidity)
		if amount0.Sign() <= 0 {
			t.Fatalf("tick %d: amount0 = %s, want > 0", tick, amount0)
		}
		if amount1.Sign() != 0 {
			t.Fatalf("tick %d: amount1 = %s, want 0", tick, amount1)
		}
	}
}

func TestAmountsForLiquidityAboveRange(t *testing.T) {
	liquidity := big.NewInt(1_000_000)
	sqrtA := SqrtRatioAtTick(-200)
	sqrtB := SqrtRatioAtTick(-100)

	for _, tick := range []int32{-100, 0} {
		amount0, amount1 := AmountsForLiquidity(SqrtRatioAtTick(tick), sqrtA, sqrtB, liquidity)
		if amount0.Sign() != 0 {
			t.Fatalf("tick %d: amount0 = %s, want 0", tick, amount0)
		}
		if amount1.Sign() <= 0 {
			t.Fatalf("tick %d: amount1 = %s, want > 0", tick, amount1)
		}
	}
}

func TestAmountsForLiquidityZero(t *testing.T) {
	amount0, amount1 := AmountsForLiquidity(
		SqrtRatioAtTick(0), SqrtRatioAtTick(-100), SqrtRatioAtTick(100), big.NewInt(0))
	if amount0.Sign() != 0 || amount1.Sign() != 0 {
		t.Fatalf("zero liquidity yields %s / %s, want 0 / 0", amount0, amount1)
	}
}

func TestAmountsForLiquiditySwappedBounds(t *testing.T) {
	liquidity := big.NewInt(1_000_000)
	sqrtP := SqrtRatioAtTick(0)
	sqrtA := SqrtRatioAtTick(-100)
	sqrtB := SqrtRatioAtTick(100)

	a0, a1 := AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity)
	b0, b1 := AmountsForLiquidity(sqrtP, sqrtB, sqrtA, liquidity)
	if a0.Cmp(b0) != 0 || a1.Cmp(b1) != 0 {
		t.Fatalf("swapped bounds changed result: %s/%s vs %s/%s", a0, a1, b0, b1)
	}
}

func TestAmountsForLiquidityWideValues(t *testing.T) {
	// 128-bit liquidity must not overflow intermediates.
	liquidity := new(big.Int).Lsh(big.NewInt(1), 127)
	amount0, amount1 := AmountsForLiquidity(
		SqrtRatioAtTick(0), SqrtRatioAtTick(-887220), SqrtRatioAtTick(887220), liquidity)
	if amount0.Sign() <= 0 || amount1.Sign() <= 0 {
		t.Fatalf("wide liquidity amounts %s / %s, want positive", amount0, amount1)
	}
}

func TestPriceFromSqrtRatio(t *testing.T) {
	// At tick 0 with equal decimals the price is exactly 1.
	price := PriceFromSqrtRatio(SqrtRatioAtTick(0), 6, 6)
	if price.Cmp(big.NewRat(1, 1)) != 0 {
		t.Fatalf("tick 0 price = %s, want 1", price.FloatString(6))
	}

	// A decimal mismatch shifts the price by the scale difference.
	shifted := PriceFromSqrtRatio(SqrtRatioAtTick(0), 18, 6)
	want := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil))
	if shifted.Cmp(want) != 0 {
		t.Fatalf("18/6 decimal price = %s, want %s", shifted.FloatString(2), want.FloatString(2))
	}
}
