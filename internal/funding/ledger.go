package funding

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"safeScope/internal/model"
	"safeScope/internal/store"
)

// Ledger accumulates USD funding flows for an account. Flows are additive;
// the caller is responsible for invoking RecordFlow exactly once per
// economically distinct transfer.
type Ledger struct {
	store  store.Store
	logger *zap.Logger
}

func NewLedger(entityStore store.Store, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: entityStore, logger: logger}
}

// RecordFlow adds a USD inflow or outflow to the account's balance,
// recomputes the net from the two totals, and persists the result.
func (l *Ledger) RecordFlow(ctx context.Context, account string, usd decimal.Decimal, inflow bool, timestamp uint64) error {
	balance, err := l.store.FundingBalance(ctx, account)
	if err != nil {
		return fmt.Errorf("load funding balance: %w", err)
	}
	if balance == nil {
		balance = &model.FundingBalance{
			Account:   model.CanonicalAddress(account),
			FirstInTs: timestamp,
		}
	}

	if inflow {
		balance.TotalInUSD = balance.TotalInUSD.Add(usd)
	} else {
		balance.TotalOutUSD = balance.TotalOutUSD.Add(usd)
	}
	balance.NetUSD = balance.TotalInUSD.Sub(balance.TotalOutUSD)
	balance.LastChangeTs = timestamp

	if err := l.store.SaveFundingBalance(ctx, balance); err != nil {
		return fmt.Errorf("save funding balance: %w", err)
	}

	l.logger.Info("funding flow recorded",
		zap.String("account", balance.Account),
		zap.String("usd", usd.String()),
		zap.Bool("inflow", inflow),
		zap.String("net", balance.NetUSD.String()),
	)
	return nil
}
