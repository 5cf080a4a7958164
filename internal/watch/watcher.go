// Package watch polls chain logs for the contracts the tracker cares
// about, decodes them into typed events and dispatches them to the engine
// in block order, one at a time. Progress is checkpointed per batch, and
// every dispatched event is journaled, so a restart resumes where the last
// batch completed and skips the part of an interrupted batch that already
// ran.
package watch

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"safeScope/internal/model"
)

// ChainSource is the log/header surface the watcher needs from the chain
// client.
type ChainSource interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// Dispatcher consumes decoded events. An error aborts the run; the
// checkpoint replays the unfinished batch on restart and the journal
// suppresses the prefix that already dispatched.
type Dispatcher interface {
	OnPositionLiquidityChanged(ctx context.Context, ev model.PositionTouched, blk model.BlockContext) error
	OnPoolSwap(ctx context.Context, ev model.PoolSwapped, blk model.BlockContext) error
	OnOwnershipTransferred(ctx context.Context, ev model.OwnershipTransferred, blk model.BlockContext) error
	OnNativeValueMoved(ctx context.Context, ev model.NativeValueMoved, blk model.BlockContext) error
	OnTokenTransferred(ctx context.Context, ev model.TokenTransferred, blk model.BlockContext) error
}

// PoolSet exposes the dynamic set of pools holding tracked positions.
type PoolSet interface {
	Pools() []string
}

// Config holds runtime settings for the watcher.
type Config struct {
	FromBlock         uint64
	ToBlock           uint64
	StaticAddresses   []common.Address
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	PollInterval      time.Duration
}

// Watcher streams logs from the chain and feeds the dispatcher.
type Watcher struct {
	cfg        Config
	chain      ChainSource
	decoder    *Decoder
	dispatcher Dispatcher
	pools      PoolSet
	journal    Journal
	logger     *zap.Logger
	seen       map[string]uint64
	checkpoint *CheckpointStore
	chainID    uint64
}

func NewWatcher(cfg Config, chainSource ChainSource, decoder *Decoder, dispatcher Dispatcher, pools PoolSet, journal Journal, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if journal == nil {
		journal = NopJournal{}
	}
	return &Watcher{
		cfg:        cfg,
		chain:      chainSource,
		decoder:    decoder,
		dispatcher: dispatcher,
		pools:      pools,
		journal:    journal,
		logger:     logger,
		seen:       make(map[string]uint64),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run catches up from the configured (or checkpointed) block and, when a
// poll interval is set, keeps following the chain head until the context
// is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if w.chain == nil {
		return fmt.Errorf("chain source is nil")
	}
	if w.dispatcher == nil {
		return fmt.Errorf("dispatcher is nil")
	}
	if w.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(w.cfg.StaticAddresses) == 0 {
		return fmt.Errorf("at least one watched address is required")
	}

	chainID, err := w.chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	w.chainID = chainID.Uint64()

	from := w.cfg.FromBlock
	to := w.cfg.ToBlock
	if to == 0 {
		latest, err := w.chain.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	if w.checkpoint != nil {
		cp, ok, err := w.checkpoint.Load()
		if err != nil {
			return err
		}
		if ok && cp.LastProcessedBlock >= from {
			from = cp.LastProcessedBlock + 1
			w.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
		}
	}

	// Events journaled past the checkpoint were dispatched before a
	// mid-batch failure. Marking them seen keeps the ledger's additive
	// counters from absorbing them twice.
	replayed, err := w.journal.RecordsFrom(from)
	if err != nil {
		return err
	}
	for _, record := range replayed {
		w.seen[logID(record.BlockNumber, record.TxHash, record.LogIndex)] = record.BlockNumber
	}
	if len(replayed) > 0 {
		w.logger.Info("suppressing journaled events", zap.Int("count", len(replayed)), zap.Uint64("from", from))
	}

	if from <= to {
		if err := w.processRange(ctx, from, to); err != nil {
			return err
		}
	} else {
		w.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
	}

	if w.cfg.PollInterval <= 0 {
		return nil
	}

	next := to + 1
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		latest, err := w.chain.LatestBlockNumber(ctx)
		if err != nil {
			w.logger.Warn("latest block fetch failed", zap.Error(err))
			continue
		}
		if latest < next {
			continue
		}
		if err := w.processRange(ctx, next, latest); err != nil {
			return err
		}
		next = latest + 1
	}
}

func (w *Watcher) processRange(ctx context.Context, from, to uint64) error {
	ranges, err := SplitRange(from, to, w.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		w.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		trackedPools := w.trackedPools()
		addresses := make([]common.Address, 0, len(w.cfg.StaticAddresses)+len(trackedPools))
		addresses = append(addresses, w.cfg.StaticAddresses...)
		for pool := range trackedPools {
			addresses = append(addresses, pool)
		}

		logs, err := w.filterLogsWithRetry(ctx, blockRange.From, blockRange.To, addresses)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}
		sort.SliceStable(logs, func(i, j int) bool {
			if logs[i].BlockNumber != logs[j].BlockNumber {
				return logs[i].BlockNumber < logs[j].BlockNumber
			}
			return logs[i].Index < logs[j].Index
		})

		dispatchedAt := time.Now().UTC().Format(time.RFC3339Nano)
		dispatched := 0
		for _, log := range logs {
			if w.isDuplicate(log) {
				continue
			}

			ts, err := w.blockTimestampWithRetry(ctx, log.BlockNumber)
			if err != nil {
				return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			blk := model.BlockContext{Number: log.BlockNumber, Time: ts, TxHash: log.TxHash.Hex()}

			event, ok, err := w.decoder.Decode(log, trackedPools)
			if err != nil {
				w.logger.Warn("undecodable log, skipping",
					zap.Uint64("block", log.BlockNumber),
					zap.String("tx", log.TxHash.Hex()),
					zap.Uint("log_index", log.Index),
					zap.Error(err))
				continue
			}
			if !ok {
				continue
			}

			if err := w.dispatch(ctx, event, blk); err != nil {
				return fmt.Errorf("dispatch %s at block %d: %w", event.Kind, log.BlockNumber, err)
			}

			// Journaled one by one so a failure later in the batch leaves an
			// exact record of what already reached the dispatcher.
			record := Record{
				ChainID:      w.chainID,
				BlockNumber:  log.BlockNumber,
				BlockTime:    ts,
				TxHash:       log.TxHash.Hex(),
				LogIndex:     uint64(log.Index),
				Address:      log.Address.Hex(),
				Kind:         event.Kind,
				DispatchedAt: dispatchedAt,
			}
			if err := w.journal.Append([]Record{record}); err != nil {
				return fmt.Errorf("journal event: %w", err)
			}
			dispatched++
		}

		if w.checkpoint != nil {
			if err := w.checkpoint.Save(blockRange.To); err != nil {
				return err
			}
		}

		// Later batches only cover higher blocks, so entries at or below the
		// checkpointed block can never match again.
		for id, block := range w.seen {
			if block <= blockRange.To {
				delete(w.seen, id)
			}
		}

		w.logger.Info("batch complete", zap.Int("events", dispatched), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}

	return nil
}

func (w *Watcher) dispatch(ctx context.Context, event Event, blk model.BlockContext) error {
	switch {
	case event.Touched != nil:
		return w.dispatcher.OnPositionLiquidityChanged(ctx, *event.Touched, blk)
	case event.Swap != nil:
		return w.dispatcher.OnPoolSwap(ctx, *event.Swap, blk)
	case event.Transfer != nil:
		return w.dispatcher.OnOwnershipTransferred(ctx, *event.Transfer, blk)
	case event.Native != nil:
		return w.dispatcher.OnNativeValueMoved(ctx, *event.Native, blk)
	case event.Token != nil:
		return w.dispatcher.OnTokenTransferred(ctx, *event.Token, blk)
	}
	return nil
}

func (w *Watcher) trackedPools() map[common.Address]struct{} {
	if w.pools == nil {
		return nil
	}
	pools := w.pools.Pools()
	set := make(map[common.Address]struct{}, len(pools))
	for _, pool := range pools {
		set[common.HexToAddress(pool)] = struct{}{}
	}
	return set
}

func (w *Watcher) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, w.cfg.MaxRetries, w.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = w.chain.FilterLogs(ctx, fromBlock, toBlock, addresses, w.decoder.Topic0())
		if err != nil {
			w.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (w *Watcher) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, w.cfg.MaxRetries, w.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = w.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			w.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

func (w *Watcher) isDuplicate(log types.Log) bool {
	id := logID(log.BlockNumber, log.TxHash.Hex(), uint64(log.Index))
	if _, ok := w.seen[id]; ok {
		return true
	}
	w.seen[id] = log.BlockNumber
	return false
}

func logID(block uint64, txHash string, index uint64) string {
	return fmt.Sprintf("%d:%s:%d", block, txHash, index)
}
