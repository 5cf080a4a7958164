package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"safeScope/internal/model"
)

// Caller is the contract-call surface the reader needs from the chain client.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// ProtocolContracts holds the deployed addresses for one position protocol.
type ProtocolContracts struct {
	Manager common.Address
	Factory common.Address
}

// Reader answers on-chain queries: NFT position details, pool slot0 state,
// token decimals, Chainlink rounds and contract-code probes. Pool addresses
// and token decimals are immutable on chain, so both are cached.
type Reader struct {
	caller    Caller
	contracts map[model.Protocol]ProtocolContracts
	logger    *zap.Logger

	mu            sync.RWMutex
	poolCache     map[string]common.Address   // protocol+tokenID -> pool
	poolMetaCache map[common.Address][2]common.Address
	decimalsCache map[common.Address]uint8
}

func NewReader(caller Caller, contracts map[model.Protocol]ProtocolContracts, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		caller:        caller,
		contracts:     contracts,
		logger:        logger,
		poolCache:     make(map[string]common.Address),
		poolMetaCache: make(map[common.Address][2]common.Address),
		decimalsCache: make(map[common.Address]uint8),
	}
}

func (r *Reader) call(ctx context.Context, contractABI abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	output, err := r.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}
	values, err := contractABI.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func (r *Reader) managerABI(protocol model.Protocol) (abi.ABI, error) {
	switch protocol {
	case model.ProtocolUniswapV3:
		return UniV3ManagerABI()
	case model.ProtocolVelodromeCL:
		return VeloCLManagerABI()
	default:
		return abi.ABI{}, fmt.Errorf("unknown protocol %q", protocol)
	}
}

func (r *Reader) factoryABI(protocol model.Protocol) (abi.ABI, error) {
	switch protocol {
	case model.ProtocolUniswapV3:
		return UniV3FactoryABI()
	case model.ProtocolVelodromeCL:
		return VeloCLFactoryABI()
	default:
		return abi.ABI{}, fmt.Errorf("unknown protocol %q", protocol)
	}
}

// Position reads the full state of one position NFT: the positions() struct,
// the current owner and the pool address resolved through the factory.
func (r *Reader) Position(ctx context.Context, protocol model.Protocol, tokenID *big.Int) (*model.PositionData, error) {
	contracts, ok := r.contracts[protocol]
	if !ok {
		return nil, fmt.Errorf("no contracts configured for protocol %q", protocol)
	}
	mgrABI, err := r.managerABI(protocol)
	if err != nil {
		return nil, err
	}

	values, err := r.call(ctx, mgrABI, contracts.Manager, "positions", tokenID)
	if err != nil {
		return nil, err
	}
	if len(values) < 12 {
		return nil, fmt.Errorf("positions(%s): expected 12 values, got %d", tokenID, len(values))
	}

	token0, err := asAddress(values[2])
	if err != nil {
		return nil, fmt.Errorf("positions token0: %w", err)
	}
	token1, err := asAddress(values[3])
	if err != nil {
		return nil, fmt.Errorf("positions token1: %w", err)
	}
	// Slot 4 is the fee tier for Uniswap V3 and the tick spacing for
	// Velodrome CL; the same value feeds getPool either way.
	feeOrSpacing, err := asBigInt(values[4])
	if err != nil {
		return nil, fmt.Errorf("positions fee: %w", err)
	}
	tickLowerBig, err := asBigInt(values[5])
	if err != nil {
		return nil, fmt.Errorf("positions tickLower: %w", err)
	}
	tickLower, err := int24FromBig(tickLowerBig)
	if err != nil {
		return nil, err
	}
	tickUpperBig, err := asBigInt(values[6])
	if err != nil {
		return nil, fmt.Errorf("positions tickUpper: %w", err)
	}
	tickUpper, err := int24FromBig(tickUpperBig)
	if err != nil {
		return nil, err
	}
	liquidity, err := asBigInt(values[7])
	if err != nil {
		return nil, fmt.Errorf("positions liquidity: %w", err)
	}

	owner, err := r.OwnerOf(ctx, protocol, tokenID)
	if err != nil {
		return nil, err
	}

	pool, err := r.poolFor(ctx, protocol, tokenID, token0, token1, feeOrSpacing)
	if err != nil {
		return nil, err
	}

	return &model.PositionData{
		Owner:     model.CanonicalAddress(owner.Hex()),
		Token0:    model.CanonicalAddress(token0.Hex()),
		Token1:    model.CanonicalAddress(token1.Hex()),
		Fee:       uint32(feeOrSpacing.Int64()),
		TickLower: tickLower,
		TickUpper: tickUpper,
		Liquidity: liquidity,
		Pool:      model.CanonicalAddress(pool.Hex()),
	}, nil
}

// OwnerOf returns the current holder of a position NFT.
func (r *Reader) OwnerOf(ctx context.Context, protocol model.Protocol, tokenID *big.Int) (common.Address, error) {
	contracts, ok := r.contracts[protocol]
	if !ok {
		return common.Address{}, fmt.Errorf("no contracts configured for protocol %q", protocol)
	}
	mgrABI, err := r.managerABI(protocol)
	if err != nil {
		return common.Address{}, err
	}
	values, err := r.call(ctx, mgrABI, contracts.Manager, "ownerOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	if len(values) == 0 {
		return common.Address{}, fmt.Errorf("ownerOf(%s): empty result", tokenID)
	}
	return asAddress(values[0])
}

func (r *Reader) poolFor(ctx context.Context, protocol model.Protocol, tokenID *big.Int, token0, token1 common.Address, feeOrSpacing *big.Int) (common.Address, error) {
	cacheKey := fmt.Sprintf("%s:%s", protocol, tokenID.String())

	r.mu.RLock()
	pool, ok := r.poolCache[cacheKey]
	r.mu.RUnlock()
	if ok {
		return pool, nil
	}

	contracts := r.contracts[protocol]
	factoryABI, err := r.factoryABI(protocol)
	if err != nil {
		return common.Address{}, err
	}
	values, err := r.call(ctx, factoryABI, contracts.Factory, "getPool", token0, token1, feeOrSpacing)
	if err != nil {
		return common.Address{}, err
	}
	if len(values) == 0 {
		return common.Address{}, fmt.Errorf("getPool: empty result")
	}
	pool, err = asAddress(values[0])
	if err != nil {
		return common.Address{}, err
	}
	if pool == (common.Address{}) {
		return common.Address{}, fmt.Errorf("getPool(%s, %s, %s): no pool", token0.Hex(), token1.Hex(), feeOrSpacing)
	}

	r.mu.Lock()
	r.poolCache[cacheKey] = pool
	r.mu.Unlock()

	r.logger.Debug("resolved pool for position",
		zap.String("protocol", string(protocol)),
		zap.String("token_id", tokenID.String()),
		zap.String("pool", pool.Hex()))
	return pool, nil
}

// PoolState reads slot0 plus the pool's token pair. The token pair is
// immutable, so only slot0 hits the chain on repeat calls.
func (r *Reader) PoolState(ctx context.Context, pool string) (*model.PoolState, error) {
	poolAddr := common.HexToAddress(pool)
	poolABI, err := PoolABI()
	if err != nil {
		return nil, err
	}

	values, err := r.call(ctx, poolABI, poolAddr, "slot0")
	if err != nil {
		return nil, err
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("slot0 on %s: expected at least 2 values, got %d", pool, len(values))
	}
	sqrtPrice, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("slot0 sqrtPriceX96: %w", err)
	}
	tickBig, err := asBigInt(values[1])
	if err != nil {
		return nil, fmt.Errorf("slot0 tick: %w", err)
	}
	tick, err := int24FromBig(tickBig)
	if err != nil {
		return nil, err
	}

	token0, token1, err := r.poolTokens(ctx, poolABI, poolAddr)
	if err != nil {
		return nil, err
	}

	return &model.PoolState{
		SqrtPriceX96: sqrtPrice,
		Tick:         tick,
		Token0:       model.CanonicalAddress(token0.Hex()),
		Token1:       model.CanonicalAddress(token1.Hex()),
	}, nil
}

func (r *Reader) poolTokens(ctx context.Context, poolABI abi.ABI, pool common.Address) (common.Address, common.Address, error) {
	r.mu.RLock()
	pair, ok := r.poolMetaCache[pool]
	r.mu.RUnlock()
	if ok {
		return pair[0], pair[1], nil
	}

	values, err := r.call(ctx, poolABI, pool, "token0")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	values, err = r.call(ctx, poolABI, pool, "token1")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, err
	}

	r.mu.Lock()
	r.poolMetaCache[pool] = [2]common.Address{token0, token1}
	r.mu.Unlock()
	return token0, token1, nil
}

// TokenDecimals reads and caches an ERC-20 token's decimals.
func (r *Reader) TokenDecimals(ctx context.Context, token string) (uint8, error) {
	tokenAddr := common.HexToAddress(token)

	r.mu.RLock()
	decimals, ok := r.decimalsCache[tokenAddr]
	r.mu.RUnlock()
	if ok {
		return decimals, nil
	}

	erc20, err := ERC20ABI()
	if err != nil {
		return 0, err
	}
	values, err := r.call(ctx, erc20, tokenAddr, "decimals")
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("decimals on %s: empty result", token)
	}
	decimals, err = asUint8(values[0])
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	r.decimalsCache[tokenAddr] = decimals
	r.mu.Unlock()
	return decimals, nil
}

// LatestRound reads a Chainlink aggregator's latest answer and update time.
func (r *Reader) LatestRound(ctx context.Context, feed string) (*big.Int, uint64, error) {
	aggABI, err := AggregatorABI()
	if err != nil {
		return nil, 0, err
	}
	values, err := r.call(ctx, aggABI, common.HexToAddress(feed), "latestRoundData")
	if err != nil {
		return nil, 0, err
	}
	if len(values) < 5 {
		return nil, 0, fmt.Errorf("latestRoundData on %s: expected 5 values, got %d", feed, len(values))
	}
	answer, err := asBigInt(values[1])
	if err != nil {
		return nil, 0, fmt.Errorf("latestRoundData answer: %w", err)
	}
	updatedAt, err := asBigInt(values[3])
	if err != nil {
		return nil, 0, fmt.Errorf("latestRoundData updatedAt: %w", err)
	}
	return answer, updatedAt.Uint64(), nil
}

// HasCode reports whether an address carries deployed bytecode.
func (r *Reader) HasCode(ctx context.Context, address string) (bool, error) {
	code, err := r.caller.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return false, fmt.Errorf("code at %s: %w", address, err)
	}
	return len(code) > 0, nil
}
