package clmath

import (
	"math"
	"math/big"
	"testing"
)

func TestSqrtRatioAtTickZero(t *testing.T) {
	got := SqrtRatioAtTick(0)
	if got.Cmp(Q96) != 0 {
		t.Fatalf("tick 0 ratio = %s, want %s", got, Q96)
	}
}

func TestSqrtRatioAtTickBounds(t *testing.T) {
	if got := SqrtRatioAtTick(MinTick); got.Cmp(MinSqrtRatio) != 0 {
		t.Fatalf("min tick ratio = %s, want %s", got, MinSqrtRatio)
	}
	if got := SqrtRatioAtTick(MaxTick); got.Cmp(MaxSqrtRatio) != 0 {
		t.Fatalf("max tick ratio = %s, want %s", got, MaxSqrtRatio)
	}
}

func TestSqrtRatioAtTickClamps(t *testing.T) {
	if got := SqrtRatioAtTick(MinTick - 5000); got.Cmp(MinSqrtRatio) != 0 {
		t.Fatalf("below-range tick = %s, want clamp to %s", got, MinSqrtRatio)
	}
	if got := SqrtRatioAtTick(MaxTick + 5000); got.Cmp(MaxSqrtRatio) != 0 {
		t.Fatalf("above-range tick = %s, want clamp to %s", got, MaxSqrtRatio)
	}
}

func TestSqrtRatioAtTickMonotonic(t *testing.T) {
	ticks := []int32{MinTick, -500000, -88727, -100, -1, 0, 1, 100, 88727, 500000, MaxTick}
	prev := SqrtRatioAtTick(ticks[0])
	for _, tick := range ticks[1:] {
		cur := SqrtRatioAtTick(tick)
		if cur.Cmp(prev) <= 0 {
			t.Fatalf("ratio not increasing at tick %d: %s <= %s", tick, cur, prev)
		}
		prev = cur
	}
}

func TestSqrtRatioAtTickMatchesPrice(t *testing.T) {
	// (ratio / 2^96)^2 must track 1.0001^tick.
	for _, tick := range []int32{-20000, -100, 1, 100, 887, 20000} {
		ratio := SqrtRatioAtTick(tick)
		sqrt, _ := new(big.Rat).SetFrac(ratio, Q96).Float64()
		got := sqrt * sqrt
		want := math.Pow(1.0001, float64(tick))
		if diff := math.Abs(got-want) / want; diff > 1e-9 {
			t.Fatalf("tick %d price = %g, want %g (rel diff %g)", tick, got, want, diff)
		}
	}
}

func TestSqrtRatioAtTickSymmetry(t *testing.T) {
	// ratio(t) * ratio(-t) ~= 2^192 up to Q96 rounding.
	for _, tick := range []int32{1, 100, 12345, 400000} {
		product := new(big.Int).Mul(SqrtRatioAtTick(tick), SqrtRatioAtTick(-tick))
		q192 := new(big.Int).Lsh(big.NewInt(1), 192)
		diff := new(big.Int).Sub(product, q192)
		diff.Abs(diff)
		// Allowed drift: one Q96 unit on either factor.
		limit := new(big.Int).Lsh(SqrtRatioAtTick(tick), 1)
		if diff.Cmp(limit) > 0 {
			t.Fatalf("tick %d inverse drift %s exceeds %s", tick, diff, limit)
		}
	}
}
