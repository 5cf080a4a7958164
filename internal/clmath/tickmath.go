package clmath

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Tick bounds of the canonical concentrated-liquidity tick space.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

var (
	// MinSqrtRatio is SqrtRatioAtTick(MinTick).
	MinSqrtRatio = big.NewInt(4295128739)
	// MaxSqrtRatio is SqrtRatioAtTick(MaxTick).
	MaxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)

	// Q96 is 2^96, the fixed-point scale of sqrt prices.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

	maxUint256  = new(uint256.Int).SetAllOne()
	oneShift32  = new(uint256.Int).Lsh(uint256.NewInt(1), 32)
	ratioAtZero = uint256.MustFromHex("0x100000000000000000000000000000000")
)

var ratioAtBit [20]*uint256.Int

func init() {
	// Q128 multipliers for sqrt(1.0001^-2^i), bit 0 through bit 19.
	for i, hex := range []string{
		"0xfffcb933bd6fad37aa2d162d1a594001",
		"0xfff97272373d413259a46990580e213a",
		"0xfff2e50f5f656932ef12357cf3c7fdcc",
		"0xffe5caca7e10e4e61c3624eaa0941cd0",
		"0xffcb9843d60f6159c9db58835c926644",
		"0xff973b41fa98c081472e6896dfb254c0",
		"0xff2ea16466c96a3843ec78b326b52861",
		"0xfe5dee046a99a2a811c461f1969c3053",
		"0xfcbe86c7900a88aedcffc83b479aa3a4",
		"0xf987a7253ac413176f2b074cf7815e54",
		"0xf3392b0822b70005940c7a398e4b70f3",
		"0xe7159475a2c29b7443b29c7fa6e889d9",
		"0xd097f3bdfd2022b8845ad8f792aa5825",
		"0xa9f746462d870fdf8a65dc1f90e061e5",
		"0x70d869a156d2a1b890bb3df62baf32f7",
		"0x31be135f97d08fd981231505542fcfa6",
		"0x9aa508b5b7a84e1c677de54f3e99bc9",
		"0x5d6af8dedb81196699c329225ee604",
		"0x2216e584f5fa1ea926041bedfe98",
		"0x48a170391f7dc42444e8fa2",
	} {
		ratioAtBit[i] = uint256.MustFromHex(hex)
	}
}

// SqrtRatioAtTick returns sqrt(1.0001^tick) as a Q64.96 fixed-point value.
// Ticks outside [MinTick, MaxTick] clamp to the nearest bound. The result is
// bit-exact against the canonical on-chain implementation.
func SqrtRatioAtTick(tick int32) *big.Int {
	if tick < MinTick {
		tick = MinTick
	}
	if tick > MaxTick {
		tick = MaxTick
	}

	absTick := uint64(tick)
	if tick < 0 {
		absTick = uint64(-int64(tick))
	}

	ratio := new(uint256.Int)
	if absTick&1 != 0 {
		ratio.Set(ratioAtBit[0])
	} else {
		ratio.Set(ratioAtZero)
	}
	for i := uint(1); i < 20; i++ {
		if absTick&(1<<i) != 0 {
			ratio.Mul(ratio, ratioAtBit[i])
			ratio.Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}

	// Q128 -> Q96, rounding up so the round trip through tick space never
	// loses the boundary value.
	var rem uint256.Int
	rem.Mod(ratio, oneShift32)
	ratio.Rsh(ratio, 32)
	if !rem.IsZero() {
		ratio.AddUint64(ratio, 1)
	}

	return ratio.ToBig()
}
