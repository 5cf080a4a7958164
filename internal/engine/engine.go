// Package engine drives position lifecycle: it revalues concentrated
// liquidity positions of the monitored account on every relevant chain
// event and records funding flows. A position is absent until first seen,
// active while it holds liquidity, and closed once emptied. Closed is
// terminal.
package engine

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"safeScope/internal/clmath"
	"safeScope/internal/model"
	"safeScope/internal/poolindex"
	"safeScope/internal/store"
)

// PositionSource reads position NFT state and pool state from the chain.
type PositionSource interface {
	Position(ctx context.Context, protocol model.Protocol, tokenID *big.Int) (*model.PositionData, error)
	PoolState(ctx context.Context, pool string) (*model.PoolState, error)
}

// PriceSource resolves a token's USD price. Total: unknown tokens resolve
// to the documented fallback instead of failing.
type PriceSource interface {
	USD(ctx context.Context, token string, blockTime uint64) decimal.Decimal
}

// DecimalsSource reads ERC-20 decimals.
type DecimalsSource interface {
	TokenDecimals(ctx context.Context, token string) (uint8, error)
}

// FundingHandler receives the value movements that feed the funding ledger.
type FundingHandler interface {
	OnNativeMove(ctx context.Context, ev model.NativeValueMoved, blk model.BlockContext) error
	OnTokenTransfer(ctx context.Context, ev model.TokenTransferred, blk model.BlockContext) error
}

// Notifier is told about every saved position change. Implementations must
// not block; errors are theirs to handle.
type Notifier interface {
	PositionChanged(position *model.Position)
}

type Config struct {
	// MonitoredAccount is the Safe whose positions are tracked.
	MonitoredAccount string
}

type Engine struct {
	monitored string
	store     store.Store
	positions PositionSource
	prices    PriceSource
	decimals  DecimalsSource
	index     *poolindex.Index
	funding   FundingHandler
	notifier  Notifier
	logger    *zap.Logger
}

func New(
	cfg Config,
	entityStore store.Store,
	positions PositionSource,
	prices PriceSource,
	decimals DecimalsSource,
	index *poolindex.Index,
	funding FundingHandler,
	notifier Notifier,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		monitored: model.CanonicalAddress(cfg.MonitoredAccount),
		store:     entityStore,
		positions: positions,
		prices:    prices,
		decimals:  decimals,
		index:     index,
		funding:   funding,
		notifier:  notifier,
		logger:    logger,
	}
}

// RebuildIndex repopulates the pool index from stored active positions.
// Run once on startup before dispatching events.
func (e *Engine) RebuildIndex(ctx context.Context) error {
	active, err := e.store.ActivePositions(ctx)
	if err != nil {
		return err
	}
	for _, position := range active {
		e.index.Add(position.Pool, position.Key())
	}
	e.logger.Info("rebuilt pool index", zap.Int("positions", len(active)))
	return nil
}

// OnPositionLiquidityChanged handles a direct liquidity event
// (increase, decrease, collect) on a position NFT.
func (e *Engine) OnPositionLiquidityChanged(ctx context.Context, ev model.PositionTouched, blk model.BlockContext) error {
	key := model.PositionKey(e.monitored, ev.Protocol, ev.TokenID)
	existing, err := e.store.Position(ctx, key)
	if err != nil {
		return err
	}
	if existing != nil && !existing.Active {
		// Terminal state. Liquidity reappearing under a closed id is
		// not expected from the tracked managers.
		e.logger.Warn("liquidity event on closed position, ignoring",
			zap.String("key", key),
			zap.String("kind", ev.Kind),
			zap.Uint64("block", blk.Number))
		return nil
	}
	return e.refresh(ctx, ev.Protocol, ev.TokenID, blk)
}

// OnPoolSwap revalues every tracked position in the swapped pool.
func (e *Engine) OnPoolSwap(ctx context.Context, ev model.PoolSwapped, blk model.BlockContext) error {
	for _, key := range e.index.PositionsFor(ev.Pool) {
		position, err := e.store.Position(ctx, key)
		if err != nil {
			return err
		}
		if position == nil || !position.Active {
			continue
		}
		if err := e.refresh(ctx, position.Protocol, position.TokenID, blk); err != nil {
			return err
		}
	}
	return nil
}

// OnOwnershipTransferred handles a position NFT moving in or out of the
// monitored account. A transfer in is a first sight; a transfer out closes
// the record at its last known valuation since the chain state now reflects
// the new owner.
func (e *Engine) OnOwnershipTransferred(ctx context.Context, ev model.OwnershipTransferred, blk model.BlockContext) error {
	in := model.SameAddress(ev.To, e.monitored)
	out := model.SameAddress(ev.From, e.monitored)
	if !in && !out {
		return nil
	}
	if in {
		return e.refresh(ctx, ev.Protocol, ev.TokenID, blk)
	}

	key := model.PositionKey(e.monitored, ev.Protocol, ev.TokenID)
	position, err := e.store.Position(ctx, key)
	if err != nil {
		return err
	}
	if position == nil || !position.Active {
		return nil
	}
	e.close(position, blk)
	if err := e.store.SavePosition(ctx, position); err != nil {
		return err
	}
	e.logger.Info("position transferred out",
		zap.String("key", key),
		zap.String("to", model.CanonicalAddress(ev.To)),
		zap.Uint64("block", blk.Number))
	e.notify(position)
	// Reconcile against chain state. The record just closed, so this stays
	// a no-op unless closure handling ever changes.
	return e.refresh(ctx, ev.Protocol, ev.TokenID, blk)
}

// OnNativeValueMoved forwards native asset movement to the funding ledger.
func (e *Engine) OnNativeValueMoved(ctx context.Context, ev model.NativeValueMoved, blk model.BlockContext) error {
	return e.funding.OnNativeMove(ctx, ev, blk)
}

// OnTokenTransferred forwards a funding-token transfer to the funding ledger.
func (e *Engine) OnTokenTransferred(ctx context.Context, ev model.TokenTransferred, blk model.BlockContext) error {
	return e.funding.OnTokenTransfer(ctx, ev, blk)
}

// refresh revalues one position from current chain state. A failed chain
// read aborts without touching stored state; the next event retries.
func (e *Engine) refresh(ctx context.Context, protocol model.Protocol, tokenID *big.Int, blk model.BlockContext) error {
	key := model.PositionKey(e.monitored, protocol, tokenID)

	existing, err := e.store.Position(ctx, key)
	if err != nil {
		return err
	}
	if existing != nil && !existing.Active {
		return nil
	}

	data, err := e.positions.Position(ctx, protocol, tokenID)
	if err != nil {
		e.logger.Warn("position read failed, skipping refresh",
			zap.String("key", key), zap.Error(err))
		return nil
	}
	if existing == nil && !model.SameAddress(data.Owner, e.monitored) {
		return nil
	}

	poolState, err := e.positions.PoolState(ctx, data.Pool)
	if err != nil {
		e.logger.Warn("pool read failed, skipping refresh",
			zap.String("key", key), zap.String("pool", data.Pool), zap.Error(err))
		return nil
	}

	decimals0, err := e.decimals.TokenDecimals(ctx, data.Token0)
	if err != nil {
		e.logger.Warn("token decimals read failed, skipping refresh",
			zap.String("key", key), zap.String("token", data.Token0), zap.Error(err))
		return nil
	}
	decimals1, err := e.decimals.TokenDecimals(ctx, data.Token1)
	if err != nil {
		e.logger.Warn("token decimals read failed, skipping refresh",
			zap.String("key", key), zap.String("token", data.Token1), zap.Error(err))
		return nil
	}

	raw0, raw1 := clmath.AmountsForLiquidity(
		poolState.SqrtPriceX96,
		clmath.SqrtRatioAtTick(data.TickLower),
		clmath.SqrtRatioAtTick(data.TickUpper),
		data.Liquidity,
	)
	amount0 := decimal.NewFromBigInt(raw0, -int32(decimals0))
	amount1 := decimal.NewFromBigInt(raw1, -int32(decimals1))
	amount0USD := amount0.Mul(e.prices.USD(ctx, data.Token0, blk.Time))
	amount1USD := amount1.Mul(e.prices.USD(ctx, data.Token1, blk.Time))
	totalUSD := amount0USD.Add(amount1USD)

	position := existing
	if position == nil {
		position = &model.Position{
			Owner:    e.monitored,
			Protocol: protocol,
			TokenID:  new(big.Int).Set(tokenID),
			Pool:     data.Pool,
			Token0:   data.Token0,
			Token1:   data.Token1,
			Entry: model.Snapshot{
				Timestamp:  blk.Time,
				TxHash:     blk.TxHash,
				Amount0:    amount0,
				Amount1:    amount1,
				Amount0USD: amount0USD,
				Amount1USD: amount1USD,
				AmountUSD:  totalUSD,
			},
		}
		e.index.Add(data.Pool, key)
		e.logger.Info("tracking new position",
			zap.String("key", key),
			zap.String("pool", data.Pool),
			zap.Uint64("block", blk.Number))
	}

	position.TickLower = data.TickLower
	position.TickUpper = data.TickUpper
	position.Liquidity = data.Liquidity
	position.Amount0 = amount0
	position.Amount1 = amount1
	position.Amount0USD = amount0USD
	position.Amount1USD = amount1USD
	position.CurrentUSD = totalUSD
	position.Active = true

	if data.Liquidity.Sign() == 0 || (raw0.Sign() == 0 && raw1.Sign() == 0) {
		e.close(position, blk)
		e.logger.Info("position closed",
			zap.String("key", key),
			zap.String("exit_usd", position.Exit.AmountUSD.String()),
			zap.Uint64("block", blk.Number))
	}

	if err := e.store.SavePosition(ctx, position); err != nil {
		return err
	}
	e.notify(position)
	return nil
}

// close marks a position terminal, freezing the exit snapshot from its
// current fields and dropping it from the pool index.
func (e *Engine) close(position *model.Position, blk model.BlockContext) {
	if position.Exit != nil {
		return
	}
	position.Active = false
	position.Exit = &model.Snapshot{
		Timestamp:  blk.Time,
		TxHash:     blk.TxHash,
		Amount0:    position.Amount0,
		Amount1:    position.Amount1,
		Amount0USD: position.Amount0USD,
		Amount1USD: position.Amount1USD,
		AmountUSD:  position.CurrentUSD,
	}
	e.index.Remove(position.Pool, position.Key())
}

func (e *Engine) notify(position *model.Position) {
	if e.notifier == nil {
		return
	}
	e.notifier.PositionChanged(position.Clone())
}
