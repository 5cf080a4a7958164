// Package funding decides which token movements count as external capital
// and maintains the monitored account's running funding ledger.
package funding

import (
	"context"

	"go.uber.org/zap"

	"safeScope/internal/model"
	"safeScope/internal/store"
)

// CodeProber answers whether an address has executable code on chain.
type CodeProber interface {
	HasCode(ctx context.Context, address string) (bool, error)
}

// Classification is the verdict for a counterparty address.
type Classification struct {
	IsWhitelisted      bool
	IsExternallyOwned  bool
	IsMonitoredAccount bool
}

// IsFundingSource reports whether transfers with this address count as
// external capital movement.
func (c Classification) IsFundingSource() bool {
	return c.IsWhitelisted || c.IsExternallyOwned
}

// ClassifierConfig configures address classification.
type ClassifierConfig struct {
	// MonitoredAccount is the custodial account being tracked.
	MonitoredAccount string
	// Whitelist lists addresses always treated as funding sources, matched
	// case-insensitively.
	Whitelist []string
	// RecheckBlocks re-probes a cached contract-or-not answer once it is
	// older than this many blocks. Zero keeps the answer permanent, which
	// matches the historical behavior but can go stale if code is later
	// deployed to the address.
	RecheckBlocks uint64
}

// Classifier classifies counterparty addresses, caching the expensive
// has-code probe through the entity store.
type Classifier struct {
	monitored string
	whitelist map[string]struct{}
	recheck   uint64
	prober    CodeProber
	store     store.Store
	logger    *zap.Logger
}

func NewClassifier(cfg ClassifierConfig, prober CodeProber, entityStore store.Store, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	whitelist := make(map[string]struct{}, len(cfg.Whitelist))
	for _, addr := range cfg.Whitelist {
		whitelist[model.CanonicalAddress(addr)] = struct{}{}
	}
	return &Classifier{
		monitored: model.CanonicalAddress(cfg.MonitoredAccount),
		whitelist: whitelist,
		recheck:   cfg.RecheckBlocks,
		prober:    prober,
		store:     entityStore,
		logger:    logger,
	}
}

// IsMonitoredAccount is a constant-time check against the configured account.
func (c *Classifier) IsMonitoredAccount(address string) bool {
	return model.CanonicalAddress(address) == c.monitored
}

// Classify resolves the address's classification. The has-code probe runs at
// most once per address until the recheck policy (if any) expires it.
func (c *Classifier) Classify(ctx context.Context, address string, block uint64) (Classification, error) {
	canonical := model.CanonicalAddress(address)

	out := Classification{
		IsMonitoredAccount: canonical == c.monitored,
	}
	if _, ok := c.whitelist[canonical]; ok {
		out.IsWhitelisted = true
	}

	isContract, err := c.isContract(ctx, canonical, block)
	if err != nil {
		return Classification{}, err
	}
	out.IsExternallyOwned = !isContract
	return out, nil
}

func (c *Classifier) isContract(ctx context.Context, address string, block uint64) (bool, error) {
	cached, err := c.store.Classification(ctx, address)
	if err != nil {
		return false, err
	}
	if cached != nil && !c.expired(cached, block) {
		return cached.IsContract, nil
	}

	hasCode, err := c.prober.HasCode(ctx, address)
	if err != nil {
		return false, err
	}

	record := &model.AddressClassification{
		Address:    address,
		IsContract: hasCode,
		CheckedAt:  block,
	}
	if err := c.store.SaveClassification(ctx, record); err != nil {
		return false, err
	}

	c.logger.Debug("address classified",
		zap.String("address", address),
		zap.Bool("is_contract", hasCode),
		zap.Uint64("block", block),
	)
	return hasCode, nil
}

func (c *Classifier) expired(cached *model.AddressClassification, block uint64) bool {
	if c.recheck == 0 {
		return false
	}
	return block > cached.CheckedAt+c.recheck
}
