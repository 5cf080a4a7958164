package model

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Protocol tags the AMM family a position belongs to.
type Protocol string

const (
	ProtocolUniswapV3   Protocol = "uniswap-v3"
	ProtocolVelodromeCL Protocol = "velodrome-cl"
)

// Snapshot freezes a position valuation at a point in time. Entry snapshots
// are written once at creation, exit snapshots once at closure.
type Snapshot struct {
	Timestamp  uint64          `json:"timestamp"`
	TxHash     string          `json:"tx_hash"`
	Amount0    decimal.Decimal `json:"amount0"`
	Amount1    decimal.Decimal `json:"amount1"`
	Amount0USD decimal.Decimal `json:"amount0_usd"`
	Amount1USD decimal.Decimal `json:"amount1_usd"`
	AmountUSD  decimal.Decimal `json:"amount_usd"`
}

// Position is a concentrated-liquidity NFT position held by the monitored
// account. Current fields are overwritten on every refresh; the entry
// snapshot is immutable and the exit snapshot is written at most once.
type Position struct {
	Owner     string   `json:"owner"`
	Protocol  Protocol `json:"protocol"`
	TokenID   *big.Int `json:"token_id"`
	Pool      string   `json:"pool"`
	Token0    string   `json:"token0"`
	Token1    string   `json:"token1"`
	TickLower int32    `json:"tick_lower"`
	TickUpper int32    `json:"tick_upper"`

	Liquidity  *big.Int        `json:"liquidity"`
	Amount0    decimal.Decimal `json:"amount0"`
	Amount1    decimal.Decimal `json:"amount1"`
	Amount0USD decimal.Decimal `json:"amount0_usd"`
	Amount1USD decimal.Decimal `json:"amount1_usd"`
	CurrentUSD decimal.Decimal `json:"current_usd"`
	Active     bool            `json:"active"`

	Entry Snapshot  `json:"entry"`
	Exit  *Snapshot `json:"exit,omitempty"`
}

// PositionKey identifies a position by protocol and NFT token id, scoped to
// its owning account.
func PositionKey(owner string, protocol Protocol, tokenID *big.Int) string {
	return fmt.Sprintf("%s-%s-%s", CanonicalAddress(owner), protocol, tokenID.String())
}

// Key returns the store key for the position.
func (p *Position) Key() string {
	return PositionKey(p.Owner, p.Protocol, p.TokenID)
}

// Clone returns a deep copy so store reads hand out independent values.
func (p *Position) Clone() *Position {
	out := *p
	if p.TokenID != nil {
		out.TokenID = new(big.Int).Set(p.TokenID)
	}
	if p.Liquidity != nil {
		out.Liquidity = new(big.Int).Set(p.Liquidity)
	}
	if p.Exit != nil {
		exit := *p.Exit
		out.Exit = &exit
	}
	return &out
}
