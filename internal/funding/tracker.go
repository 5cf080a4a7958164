package funding

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"safeScope/internal/model"
)

const nativeDecimals = 18

// PriceSource resolves a token's USD price. Satisfied by price.Service.
type PriceSource interface {
	USD(ctx context.Context, token string, blockTime uint64) decimal.Decimal
}

// DecimalsSource resolves a token's decimal precision.
type DecimalsSource interface {
	TokenDecimals(ctx context.Context, token string) (uint8, error)
}

// TrackerConfig configures funding-flow attribution.
type TrackerConfig struct {
	// NativeToken is the wrapped-native address used to price raw native
	// value movement.
	NativeToken string
}

// Tracker applies the transfer classification policy: a movement counts as
// funding only when one endpoint is the monitored account and the
// counterparty qualifies as a funding source. Everything else is internal
// protocol activity and is ignored.
type Tracker struct {
	nativeToken string
	classifier  *Classifier
	ledger      *Ledger
	prices      PriceSource
	decimals    DecimalsSource
	logger      *zap.Logger
}

func NewTracker(cfg TrackerConfig, classifier *Classifier, ledger *Ledger, prices PriceSource, decimals DecimalsSource, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		nativeToken: model.CanonicalAddress(cfg.NativeToken),
		classifier:  classifier,
		ledger:      ledger,
		prices:      prices,
		decimals:    decimals,
		logger:      logger,
	}
}

// OnNativeMove handles raw native value in or out of the monitored account.
func (t *Tracker) OnNativeMove(ctx context.Context, ev model.NativeValueMoved, blk model.BlockContext) error {
	if ev.Amount == nil || ev.Amount.Sign() == 0 {
		return nil
	}
	return t.handleMove(ctx, ev.Sender, ev.Recipient, ev.Amount, t.nativeToken, nativeDecimals, blk)
}

// OnTokenTransfer handles an ERC20 transfer on a configured funding token.
func (t *Tracker) OnTokenTransfer(ctx context.Context, ev model.TokenTransferred, blk model.BlockContext) error {
	if ev.Amount == nil || ev.Amount.Sign() == 0 {
		return nil
	}
	decimals, err := t.decimals.TokenDecimals(ctx, ev.Token)
	if err != nil {
		return err
	}
	return t.handleMove(ctx, ev.From, ev.To, ev.Amount, ev.Token, decimals, blk)
}

func (t *Tracker) handleMove(ctx context.Context, from, to string, amount *big.Int, token string, decimals uint8, blk model.BlockContext) error {
	fromIsAccount := t.classifier.IsMonitoredAccount(from)
	toIsAccount := t.classifier.IsMonitoredAccount(to)

	// Fast path: transfers not touching the monitored account need no
	// classification work at all.
	if !fromIsAccount && !toIsAccount {
		return nil
	}

	var (
		counterparty string
		inflow       bool
		account      string
	)
	switch {
	case toIsAccount && !fromIsAccount:
		counterparty, inflow, account = from, true, to
	case fromIsAccount && !toIsAccount:
		counterparty, inflow, account = to, false, from
	default:
		// Self-transfer: no external movement.
		return nil
	}

	verdict, err := t.classifier.Classify(ctx, counterparty, blk.Number)
	if err != nil {
		return err
	}
	if !verdict.IsFundingSource() {
		t.logger.Debug("transfer counterparty is not a funding source",
			zap.String("counterparty", model.CanonicalAddress(counterparty)),
			zap.String("tx", blk.TxHash),
		)
		return nil
	}

	usd := humanAmount(amount, decimals).Mul(t.prices.USD(ctx, token, blk.Time))
	return t.ledger.RecordFlow(ctx, account, usd, inflow, blk.Time)
}

// humanAmount scales a raw token amount by the token's decimal precision.
func humanAmount(amount *big.Int, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(amount, -int32(decimals))
}
