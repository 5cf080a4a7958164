package model

import "math/big"

// BlockContext carries the block metadata attached to every dispatched event.
type BlockContext struct {
	Number uint64 `json:"number"`
	Time   uint64 `json:"time"`
	TxHash string `json:"tx_hash"`
}

// PositionTouched is a direct liquidity event on a position NFT
// (IncreaseLiquidity, DecreaseLiquidity, Collect).
type PositionTouched struct {
	Protocol Protocol `json:"protocol"`
	TokenID  *big.Int `json:"token_id"`
	Kind     string   `json:"kind"`
}

// PoolSwapped fires on a Swap in a pool that may hold tracked positions.
type PoolSwapped struct {
	Pool string `json:"pool"`
}

// OwnershipTransferred fires on a position NFT Transfer.
type OwnershipTransferred struct {
	Protocol Protocol `json:"protocol"`
	TokenID  *big.Int `json:"token_id"`
	From     string   `json:"from"`
	To       string   `json:"to"`
}

// NativeValueMoved is native-asset movement touching the monitored account
// (SafeReceived inflow, execution payment outflow).
type NativeValueMoved struct {
	Sender    string   `json:"sender"`
	Recipient string   `json:"recipient"`
	Amount    *big.Int `json:"amount"`
}

// TokenTransferred is an ERC20 Transfer on one of the configured funding
// tokens.
type TokenTransferred struct {
	Token  string   `json:"token"`
	From   string   `json:"from"`
	To     string   `json:"to"`
	Amount *big.Int `json:"amount"`
}
