// Package store owns entity persistence. Every entity is loaded as a fresh
// copy, mutated by the caller, and written back as an upsert keyed by its
// identifier. A load of a missing entity returns (nil, nil).
package store

import (
	"context"

	"safeScope/internal/model"
)

// Store is the durable entity store the engine and ledger write through.
type Store interface {
	Position(ctx context.Context, key string) (*model.Position, error)
	SavePosition(ctx context.Context, position *model.Position) error
	ActivePositions(ctx context.Context) ([]*model.Position, error)

	FundingBalance(ctx context.Context, account string) (*model.FundingBalance, error)
	SaveFundingBalance(ctx context.Context, balance *model.FundingBalance) error

	Classification(ctx context.Context, address string) (*model.AddressClassification, error)
	SaveClassification(ctx context.Context, classification *model.AddressClassification) error
}
