// Package price resolves token USD prices through an ordered chain of
// adapters: stable-asset assumption, oracle feed, AMM spot against a
// reference asset, then a fixed fallback. Resolution is total: upstream
// failures degrade to the next adapter and are logged, never returned.
package price

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"safeScope/internal/clmath"
	"safeScope/internal/model"
)

// feedScale is the fixed 1e8 answer scale of aggregator-style feeds.
const feedScale = 8

// FeedReader reads an oracle feed's latest round.
type FeedReader interface {
	LatestRound(ctx context.Context, feed string) (answer *big.Int, updatedAt uint64, err error)
}

// PoolStateReader reads live pool state for spot pricing.
type PoolStateReader interface {
	PoolState(ctx context.Context, pool string) (*model.PoolState, error)
}

// DecimalsReader resolves a token's decimal precision.
type DecimalsReader interface {
	TokenDecimals(ctx context.Context, token string) (uint8, error)
}

// ReferencePool names the AMM pool a token can be spot-priced through and
// the asset on the other side of it.
type ReferencePool struct {
	Pool           string
	ReferenceToken string
}

// Config declares the per-token resolution inputs.
type Config struct {
	// StableTokens are priced at a fixed 1.0.
	StableTokens []string
	// Feeds maps token address to its oracle feed address.
	Feeds map[string]string
	// MaxFeedAge rejects feed rounds older than this many seconds relative
	// to the block being priced. Zero disables the staleness check.
	MaxFeedAge uint64
	// ReferencePools maps token address to the AMM pool used for spot price.
	ReferencePools map[string]ReferencePool
}

// Service resolves token prices. All lookups are keyed by canonical
// lowercase address.
type Service struct {
	stables map[string]struct{}
	feeds   map[string]string
	refs    map[string]ReferencePool
	maxAge  uint64

	feedReader FeedReader
	pools      PoolStateReader
	decimals   DecimalsReader
	logger     *zap.Logger

	fallback decimal.Decimal
}

func NewService(cfg Config, feedReader FeedReader, pools PoolStateReader, decimals DecimalsReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	stables := make(map[string]struct{}, len(cfg.StableTokens))
	for _, token := range cfg.StableTokens {
		stables[model.CanonicalAddress(token)] = struct{}{}
	}
	feeds := make(map[string]string, len(cfg.Feeds))
	for token, feed := range cfg.Feeds {
		feeds[model.CanonicalAddress(token)] = feed
	}
	refs := make(map[string]ReferencePool, len(cfg.ReferencePools))
	for token, ref := range cfg.ReferencePools {
		refs[model.CanonicalAddress(token)] = ref
	}

	return &Service{
		stables:    stables,
		feeds:      feeds,
		refs:       refs,
		maxAge:     cfg.MaxFeedAge,
		feedReader: feedReader,
		pools:      pools,
		decimals:   decimals,
		logger:     logger,
		fallback:   decimal.NewFromInt(1),
	}
}

// USD resolves the token's USD price at blockTime. It always returns a
// value; when no adapter can price the token the documented fallback of 1.0
// is used and logged, a placeholder policy rather than a guarantee.
func (s *Service) USD(ctx context.Context, token string, blockTime uint64) decimal.Decimal {
	return s.resolve(ctx, model.CanonicalAddress(token), blockTime, 0)
}

func (s *Service) resolve(ctx context.Context, token string, blockTime uint64, depth int) decimal.Decimal {
	if _, ok := s.stables[token]; ok {
		return decimal.NewFromInt(1)
	}

	if value, ok := s.fromFeed(ctx, token, blockTime); ok {
		return value
	}

	// Reference pricing recurses at most once so two pools quoting each
	// other cannot loop.
	if depth < 1 {
		if value, ok := s.fromPool(ctx, token, blockTime, depth); ok {
			return value
		}
	}

	s.logger.Warn("no price adapter matched, using fallback",
		zap.String("token", token),
		zap.String("fallback", s.fallback.String()),
	)
	return s.fallback
}

func (s *Service) fromFeed(ctx context.Context, token string, blockTime uint64) (decimal.Decimal, bool) {
	feed, ok := s.feeds[token]
	if !ok {
		return decimal.Decimal{}, false
	}

	answer, updatedAt, err := s.feedReader.LatestRound(ctx, feed)
	if err != nil {
		s.logger.Warn("feed read failed", zap.String("token", token), zap.String("feed", feed), zap.Error(err))
		return decimal.Decimal{}, false
	}
	if answer == nil || answer.Sign() <= 0 {
		s.logger.Warn("feed answer not positive", zap.String("token", token), zap.String("feed", feed))
		return decimal.Decimal{}, false
	}
	if s.maxAge > 0 && blockTime > updatedAt+s.maxAge {
		s.logger.Warn("feed round stale",
			zap.String("token", token),
			zap.String("feed", feed),
			zap.Uint64("updated_at", updatedAt),
			zap.Uint64("block_time", blockTime),
		)
		return decimal.Decimal{}, false
	}

	return decimal.NewFromBigInt(answer, -feedScale), true
}

func (s *Service) fromPool(ctx context.Context, token string, blockTime uint64, depth int) (decimal.Decimal, bool) {
	ref, ok := s.refs[token]
	if !ok {
		return decimal.Decimal{}, false
	}

	state, err := s.pools.PoolState(ctx, ref.Pool)
	if err != nil {
		s.logger.Warn("reference pool read failed", zap.String("token", token), zap.String("pool", ref.Pool), zap.Error(err))
		return decimal.Decimal{}, false
	}

	dec0, err := s.decimals.TokenDecimals(ctx, state.Token0)
	if err != nil {
		s.logger.Warn("token0 decimals read failed", zap.String("token", state.Token0), zap.Error(err))
		return decimal.Decimal{}, false
	}
	dec1, err := s.decimals.TokenDecimals(ctx, state.Token1)
	if err != nil {
		s.logger.Warn("token1 decimals read failed", zap.String("token", state.Token1), zap.Error(err))
		return decimal.Decimal{}, false
	}

	ratio := clmath.PriceFromSqrtRatio(state.SqrtPriceX96, dec0, dec1)
	var inPair decimal.Decimal
	switch {
	case model.SameAddress(token, state.Token0):
		inPair = decimalFromRat(ratio)
	case model.SameAddress(token, state.Token1):
		if ratio.Sign() == 0 {
			s.logger.Warn("reference pool ratio is zero", zap.String("pool", ref.Pool))
			return decimal.Decimal{}, false
		}
		inPair = decimalFromRat(new(big.Rat).Inv(ratio))
	default:
		s.logger.Warn("token not in reference pool",
			zap.String("token", token),
			zap.String("pool", ref.Pool),
		)
		return decimal.Decimal{}, false
	}

	referenceUSD := s.resolve(ctx, model.CanonicalAddress(ref.ReferenceToken), blockTime, depth+1)
	return inPair.Mul(referenceUSD), true
}

// decimalFromRat keeps the division inside shopspring so precision is
// bounded by decimal.DivisionPrecision instead of float rounding.
func decimalFromRat(value *big.Rat) decimal.Decimal {
	return decimal.NewFromBigInt(value.Num(), 0).Div(decimal.NewFromBigInt(value.Denom(), 0))
}
