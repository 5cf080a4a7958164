package model

import "math/big"

// PoolState is the live slot0-derived pool state used for valuation.
type PoolState struct {
	SqrtPriceX96 *big.Int `json:"sqrt_price_x96"`
	Tick         int32    `json:"tick"`
	Token0       string   `json:"token0"`
	Token1       string   `json:"token1"`
}

// PositionData is the static + liquidity view of a position NFT as read from
// its manager contract.
type PositionData struct {
	Owner     string   `json:"owner"`
	Token0    string   `json:"token0"`
	Token1    string   `json:"token1"`
	Fee       uint32   `json:"fee"`
	TickLower int32    `json:"tick_lower"`
	TickUpper int32    `json:"tick_upper"`
	Liquidity *big.Int `json:"liquidity"`
	Pool      string   `json:"pool"`
}
