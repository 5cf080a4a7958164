package model

import "github.com/shopspring/decimal"

// FundingBalance is the running external-capital ledger of the monitored
// account. Net is always recomputed from the two totals, never stored on its
// own, and the totals only grow.
type FundingBalance struct {
	Account      string          `json:"account"`
	TotalInUSD   decimal.Decimal `json:"total_in_usd"`
	TotalOutUSD  decimal.Decimal `json:"total_out_usd"`
	NetUSD       decimal.Decimal `json:"net_usd"`
	FirstInTs    uint64          `json:"first_in_ts"`
	LastChangeTs uint64          `json:"last_change_ts"`
}

// AddressClassification caches the contract-or-not status of an address.
type AddressClassification struct {
	Address    string `json:"address"`
	IsContract bool   `json:"is_contract"`
	CheckedAt  uint64 `json:"checked_at_block"`
}
