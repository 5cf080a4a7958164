package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"safeScope/internal/chain"
	"safeScope/internal/config"
	"safeScope/internal/dex"
	"safeScope/internal/engine"
	"safeScope/internal/funding"
	"safeScope/internal/model"
	"safeScope/internal/poolindex"
	"safeScope/internal/price"
	"safeScope/internal/store"
	"safeScope/internal/store/postgres"
	"safeScope/internal/watch"
)

func main() {
	root := &cobra.Command{
		Use:          "tracker",
		Short:        "Safe position and funding tracker",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the tracker",
		RunE:  runTracker,
	}

	runCmd.Flags().String("rpc", "", "chain RPC URL")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN (empty runs on the in-memory store)")
	runCmd.Flags().String("safe", "", "monitored Safe address")
	runCmd.Flags().StringSlice("whitelist", nil, "funding source whitelist (comma-separated)")
	runCmd.Flags().StringSlice("funding-token", nil, "ERC20 tokens tracked for funding flows")
	runCmd.Flags().String("native-token", "", "wrapped native token address used to price native flows")
	runCmd.Flags().StringSlice("stable-token", nil, "tokens pinned to 1 USD")
	runCmd.Flags().StringToString("feeds", nil, "token=feed oracle mappings")
	runCmd.Flags().StringToString("reference-pools", nil, "token=pool:referenceToken spot price mappings")
	runCmd.Flags().Duration("max-feed-age", time.Hour, "reject oracle rounds older than this")
	runCmd.Flags().String("uniswap-manager", "", "Uniswap V3 position manager address")
	runCmd.Flags().String("uniswap-factory", "", "Uniswap V3 factory address")
	runCmd.Flags().String("velodrome-manager", "", "Velodrome CL position manager address")
	runCmd.Flags().String("velodrome-factory", "", "Velodrome CL factory address")
	runCmd.Flags().Uint64("recheck-blocks", 0, "re-probe contract classification after this many blocks, 0 never")
	runCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	runCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	runCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	runCmd.Flags().String("journal", "./data/events.jsonl", "dispatched event journal path")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().Duration("poll-interval", 15*time.Second, "head follow interval, 0 stops after catch-up")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runTracker(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	contracts, managers, err := protocolContracts(cfg)
	if err != nil {
		return err
	}
	reader := dex.NewReader(chainClient, contracts, logger)

	var entityStore store.Store
	if cfg.PgDSN != "" {
		pgStore, err := postgres.NewStore(ctx, cfg.PgDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pgStore.Close()
		entityStore = pgStore
	} else {
		logger.Warn("no pg-dsn configured, state will not survive restarts")
		entityStore = store.NewMemory()
	}

	referencePools, err := parseReferencePools(cfg.ReferencePools)
	if err != nil {
		return err
	}
	prices := price.NewService(price.Config{
		StableTokens:   cfg.StableTokens,
		Feeds:          cfg.Feeds,
		MaxFeedAge:     uint64(cfg.MaxFeedAge.Seconds()),
		ReferencePools: referencePools,
	}, reader, reader, reader, logger)

	classifier := funding.NewClassifier(funding.ClassifierConfig{
		MonitoredAccount: cfg.SafeAddress,
		Whitelist:        cfg.Whitelist,
		RecheckBlocks:    cfg.RecheckBlocks,
	}, reader, entityStore, logger)
	ledger := funding.NewLedger(entityStore, logger)
	fundingTracker := funding.NewTracker(funding.TrackerConfig{
		NativeToken: cfg.NativeToken,
	}, classifier, ledger, prices, reader, logger)

	index := poolindex.New()
	eng := engine.New(engine.Config{
		MonitoredAccount: cfg.SafeAddress,
	}, entityStore, reader, prices, reader, index, fundingTracker, nil, logger)
	if err := eng.RebuildIndex(ctx); err != nil {
		return fmt.Errorf("rebuild pool index: %w", err)
	}

	safeAddress := common.HexToAddress(cfg.SafeAddress)
	fundingTokens, err := watch.ParseAddresses(cfg.FundingTokens)
	if err != nil {
		return err
	}
	decoder, err := watch.NewDecoder(managers, fundingTokens, safeAddress)
	if err != nil {
		return err
	}

	staticAddresses := make([]common.Address, 0, len(managers)+len(fundingTokens)+1)
	for manager := range managers {
		staticAddresses = append(staticAddresses, manager)
	}
	staticAddresses = append(staticAddresses, fundingTokens...)
	staticAddresses = append(staticAddresses, safeAddress)

	watcher := watch.NewWatcher(watch.Config{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		StaticAddresses:   staticAddresses,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		PollInterval:      cfg.PollInterval,
	}, chainClient, decoder, eng, index, watch.NewJsonlJournal(cfg.Journal), logger)

	logger.Info("tracker start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("safe", cfg.SafeAddress),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("protocols", len(managers)),
		zap.Int("funding_tokens", len(fundingTokens)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
	)

	return watcher.Run(ctx)
}

func protocolContracts(cfg config.Config) (map[model.Protocol]dex.ProtocolContracts, map[common.Address]model.Protocol, error) {
	contracts := make(map[model.Protocol]dex.ProtocolContracts)
	managers := make(map[common.Address]model.Protocol)

	add := func(protocol model.Protocol, manager, factory string) error {
		if manager == "" {
			return nil
		}
		if !common.IsHexAddress(manager) || !common.IsHexAddress(factory) {
			return fmt.Errorf("invalid %s contract addresses", protocol)
		}
		managerAddr := common.HexToAddress(manager)
		contracts[protocol] = dex.ProtocolContracts{
			Manager: managerAddr,
			Factory: common.HexToAddress(factory),
		}
		managers[managerAddr] = protocol
		return nil
	}

	if err := add(model.ProtocolUniswapV3, cfg.UniswapManager, cfg.UniswapFactory); err != nil {
		return nil, nil, err
	}
	if err := add(model.ProtocolVelodromeCL, cfg.VelodromeManager, cfg.VelodromeFactory); err != nil {
		return nil, nil, err
	}
	return contracts, managers, nil
}

func parseReferencePools(raw map[string]string) (map[string]price.ReferencePool, error) {
	pools := make(map[string]price.ReferencePool, len(raw))
	for token, spec := range raw {
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 || !common.IsHexAddress(parts[0]) || !common.IsHexAddress(parts[1]) {
			return nil, fmt.Errorf("invalid reference pool %q for token %s, want pool:referenceToken", spec, token)
		}
		pools[token] = price.ReferencePool{Pool: parts[0], ReferenceToken: parts[1]}
	}
	return pools, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
