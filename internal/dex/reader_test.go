package dex

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"safeScope/internal/model"
)

var (
	managerAddr = common.HexToAddress("0xC36442b4a4522E871399CD717aBDD847Ab11FE88")
	factoryAddr = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	poolAddr    = common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")
	ownerAddr   = common.HexToAddress("0x5a4B1C330e7C85e16F7a7Ec1f5e1C5C518aA86b2")
	usdcAddr    = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	wethAddr    = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

// stubCaller routes eth_call by contract address and method selector and
// answers with ABI-packed outputs. It counts calls per method.
type stubCaller struct {
	t        *testing.T
	handlers map[common.Address]abi.ABI
	outputs  map[string][]interface{}
	calls    map[string]int
	code     map[common.Address][]byte
}

func newStubCaller(t *testing.T) *stubCaller {
	return &stubCaller{
		t:        t,
		handlers: make(map[common.Address]abi.ABI),
		outputs:  make(map[string][]interface{}),
		calls:    make(map[string]int),
		code:     make(map[common.Address][]byte),
	}
}

func (s *stubCaller) contract(addr common.Address, contractABI abi.ABI) {
	s.handlers[addr] = contractABI
}

func (s *stubCaller) respond(method string, values ...interface{}) {
	s.outputs[method] = values
}

func (s *stubCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	contractABI, ok := s.handlers[*msg.To]
	if !ok {
		s.t.Fatalf("unexpected call target %s", msg.To.Hex())
	}
	method, err := contractABI.MethodById(msg.Data[:4])
	require.NoError(s.t, err)
	s.calls[method.Name]++
	values, ok := s.outputs[method.Name]
	if !ok {
		s.t.Fatalf("no stubbed output for method %s", method.Name)
	}
	packed, err := method.Outputs.Pack(values...)
	require.NoError(s.t, err)
	return packed, nil
}

func (s *stubCaller) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	return s.code[account], nil
}

func uniswapContracts() map[model.Protocol]ProtocolContracts {
	return map[model.Protocol]ProtocolContracts{
		model.ProtocolUniswapV3: {Manager: managerAddr, Factory: factoryAddr},
	}
}

func stubPositions(caller *stubCaller, liquidity *big.Int) {
	caller.respond("positions",
		big.NewInt(0), common.Address{}, usdcAddr, wethAddr, big.NewInt(3000),
		big.NewInt(-887220), big.NewInt(887220), liquidity,
		big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0))
	caller.respond("ownerOf", ownerAddr)
	caller.respond("getPool", poolAddr)
}

func TestReaderPosition(t *testing.T) {
	caller := newStubCaller(t)
	mgrABI, err := UniV3ManagerABI()
	require.NoError(t, err)
	factABI, err := UniV3FactoryABI()
	require.NoError(t, err)
	caller.contract(managerAddr, mgrABI)
	caller.contract(factoryAddr, factABI)
	stubPositions(caller, big.NewInt(123456))

	reader := NewReader(caller, uniswapContracts(), nil)
	data, err := reader.Position(context.Background(), model.ProtocolUniswapV3, big.NewInt(42))
	require.NoError(t, err)

	require.Equal(t, model.CanonicalAddress(ownerAddr.Hex()), data.Owner)
	require.Equal(t, model.CanonicalAddress(usdcAddr.Hex()), data.Token0)
	require.Equal(t, model.CanonicalAddress(wethAddr.Hex()), data.Token1)
	require.Equal(t, uint32(3000), data.Fee)
	require.Equal(t, int32(-887220), data.TickLower)
	require.Equal(t, int32(887220), data.TickUpper)
	require.Equal(t, "123456", data.Liquidity.String())
	require.Equal(t, model.CanonicalAddress(poolAddr.Hex()), data.Pool)
}

func TestReaderPoolCachedAcrossReads(t *testing.T) {
	caller := newStubCaller(t)
	mgrABI, err := UniV3ManagerABI()
	require.NoError(t, err)
	factABI, err := UniV3FactoryABI()
	require.NoError(t, err)
	caller.contract(managerAddr, mgrABI)
	caller.contract(factoryAddr, factABI)
	stubPositions(caller, big.NewInt(1))

	reader := NewReader(caller, uniswapContracts(), nil)
	for i := 0; i < 3; i++ {
		_, err := reader.Position(context.Background(), model.ProtocolUniswapV3, big.NewInt(42))
		require.NoError(t, err)
	}
	require.Equal(t, 1, caller.calls["getPool"])
	require.Equal(t, 3, caller.calls["positions"])
}

func TestReaderPoolState(t *testing.T) {
	caller := newStubCaller(t)
	poolABI, err := PoolABI()
	require.NoError(t, err)
	caller.contract(poolAddr, poolABI)

	sqrt := new(big.Int).Lsh(big.NewInt(1), 96)
	caller.respond("slot0", sqrt, big.NewInt(0), uint16(0), uint16(1), uint16(1), uint8(0), true)
	caller.respond("token0", usdcAddr)
	caller.respond("token1", wethAddr)

	reader := NewReader(caller, uniswapContracts(), nil)
	state, err := reader.PoolState(context.Background(), poolAddr.Hex())
	require.NoError(t, err)
	require.Equal(t, 0, state.SqrtPriceX96.Cmp(sqrt))
	require.Equal(t, int32(0), state.Tick)
	require.Equal(t, model.CanonicalAddress(usdcAddr.Hex()), state.Token0)
	require.Equal(t, model.CanonicalAddress(wethAddr.Hex()), state.Token1)

	// Token pair is cached, slot0 is not.
	_, err = reader.PoolState(context.Background(), poolAddr.Hex())
	require.NoError(t, err)
	require.Equal(t, 1, caller.calls["token0"])
	require.Equal(t, 2, caller.calls["slot0"])
}

func TestReaderTokenDecimalsCached(t *testing.T) {
	caller := newStubCaller(t)
	erc20, err := ERC20ABI()
	require.NoError(t, err)
	caller.contract(usdcAddr, erc20)
	caller.respond("decimals", uint8(6))

	reader := NewReader(caller, uniswapContracts(), nil)
	for i := 0; i < 3; i++ {
		decimals, err := reader.TokenDecimals(context.Background(), usdcAddr.Hex())
		require.NoError(t, err)
		require.Equal(t, uint8(6), decimals)
	}
	require.Equal(t, 1, caller.calls["decimals"])
}

func TestReaderLatestRound(t *testing.T) {
	caller := newStubCaller(t)
	aggABI, err := AggregatorABI()
	require.NoError(t, err)
	feed := common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")
	caller.contract(feed, aggABI)
	caller.respond("latestRoundData",
		big.NewInt(100), big.NewInt(324512345678), big.NewInt(1700000000), big.NewInt(1700000100), big.NewInt(100))

	reader := NewReader(caller, uniswapContracts(), nil)
	answer, updatedAt, err := reader.LatestRound(context.Background(), feed.Hex())
	require.NoError(t, err)
	require.Equal(t, "324512345678", answer.String())
	require.Equal(t, uint64(1700000100), updatedAt)
}

func TestReaderHasCode(t *testing.T) {
	caller := newStubCaller(t)
	caller.code[managerAddr] = []byte{0x60, 0x80}

	reader := NewReader(caller, uniswapContracts(), nil)
	yes, err := reader.HasCode(context.Background(), managerAddr.Hex())
	require.NoError(t, err)
	require.True(t, yes)

	no, err := reader.HasCode(context.Background(), ownerAddr.Hex())
	require.NoError(t, err)
	require.False(t, no)
}
