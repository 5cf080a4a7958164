package funding

import (
	"context"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"safeScope/internal/model"
	"safeScope/internal/store"
)

const (
	safeAddr      = "0x5a4B31942d37d564e5cEf4C82340E43fe66686b2"
	treasuryAddr  = "0x20274f94A2d61b04e485ACE1E03FC859Ad73789E"
	strangerEOA   = "0x1111111111111111111111111111111111111111"
	routerAddr    = "0x2222222222222222222222222222222222222222"
	usdcAddr      = "0x0b2c639c533813f4aa9d7837caf62653d097ff85"
	wethAddr      = "0x4200000000000000000000000000000000000006"
)

type countingProber struct {
	contracts map[string]bool
	calls     int
}

func (p *countingProber) HasCode(_ context.Context, address string) (bool, error) {
	p.calls++
	return p.contracts[model.CanonicalAddress(address)], nil
}

type fixedPrices map[string]decimal.Decimal

func (p fixedPrices) USD(_ context.Context, token string, _ uint64) decimal.Decimal {
	if price, ok := p[model.CanonicalAddress(token)]; ok {
		return price
	}
	return decimal.NewFromInt(1)
}

type fixedDecimals map[string]uint8

func (d fixedDecimals) TokenDecimals(_ context.Context, token string) (uint8, error) {
	return d[model.CanonicalAddress(token)], nil
}

func newTracker(t *testing.T, prober *countingProber) (*Tracker, store.Store) {
	t.Helper()
	entityStore := store.NewMemory()
	classifier := NewClassifier(ClassifierConfig{
		MonitoredAccount: safeAddr,
		Whitelist:        []string{treasuryAddr},
	}, prober, entityStore, nil)
	ledger := NewLedger(entityStore, nil)
	tracker := NewTracker(TrackerConfig{NativeToken: wethAddr}, classifier, ledger,
		fixedPrices{wethAddr: decimal.NewFromInt(3000)},
		fixedDecimals{usdcAddr: 6}, nil)
	return tracker, entityStore
}

func TestClassifyProbesOnce(t *testing.T) {
	prober := &countingProber{contracts: map[string]bool{model.CanonicalAddress(routerAddr): true}}
	entityStore := store.NewMemory()
	classifier := NewClassifier(ClassifierConfig{MonitoredAccount: safeAddr}, prober, entityStore, nil)

	first, err := classifier.Classify(context.Background(), routerAddr, 100)
	require.NoError(t, err)
	second, err := classifier.Classify(context.Background(), routerAddr, 200)
	require.NoError(t, err)

	require.False(t, first.IsExternallyOwned)
	require.Equal(t, first, second)
	require.Equal(t, 1, prober.calls, "second classify must hit the cache")
}

func TestClassifyRecheckPolicy(t *testing.T) {
	prober := &countingProber{contracts: map[string]bool{}}
	entityStore := store.NewMemory()
	classifier := NewClassifier(ClassifierConfig{
		MonitoredAccount: safeAddr,
		RecheckBlocks:    50,
	}, prober, entityStore, nil)

	_, err := classifier.Classify(context.Background(), strangerEOA, 100)
	require.NoError(t, err)
	_, err = classifier.Classify(context.Background(), strangerEOA, 140)
	require.NoError(t, err)
	require.Equal(t, 1, prober.calls, "within the recheck window the cache holds")

	// The address became a contract; an expired entry picks that up.
	prober.contracts[model.CanonicalAddress(strangerEOA)] = true
	verdict, err := classifier.Classify(context.Background(), strangerEOA, 200)
	require.NoError(t, err)
	require.Equal(t, 2, prober.calls)
	require.False(t, verdict.IsExternallyOwned)
}

func TestClassifyWhitelistCaseInsensitive(t *testing.T) {
	prober := &countingProber{contracts: map[string]bool{model.CanonicalAddress(treasuryAddr): true}}
	classifier := NewClassifier(ClassifierConfig{
		MonitoredAccount: safeAddr,
		Whitelist:        []string{treasuryAddr},
	}, prober, store.NewMemory(), nil)

	verdict, err := classifier.Classify(context.Background(), "0x20274F94A2D61B04E485ACE1E03FC859AD73789E", 10)
	require.NoError(t, err)
	require.True(t, verdict.IsWhitelisted)
	require.True(t, verdict.IsFundingSource(), "whitelisted contracts still fund")
}

func TestIsMonitoredAccount(t *testing.T) {
	classifier := NewClassifier(ClassifierConfig{MonitoredAccount: safeAddr}, &countingProber{}, store.NewMemory(), nil)
	require.True(t, classifier.IsMonitoredAccount("0x5A4B31942D37D564E5CEF4C82340E43FE66686B2"))
	require.False(t, classifier.IsMonitoredAccount(strangerEOA))
}

func TestLedgerNetInvariant(t *testing.T) {
	entityStore := store.NewMemory()
	ledger := NewLedger(entityStore, nil)
	ctx := context.Background()

	flows := []struct {
		usd    int64
		inflow bool
	}{
		{500, true}, {120, false}, {75, true}, {600, false}, {1, true},
	}
	for _, flow := range flows {
		require.NoError(t, ledger.RecordFlow(ctx, safeAddr, decimal.NewFromInt(flow.usd), flow.inflow, 1000))

		balance, err := entityStore.FundingBalance(ctx, safeAddr)
		require.NoError(t, err)
		require.True(t, balance.NetUSD.Equal(balance.TotalInUSD.Sub(balance.TotalOutUSD)),
			"net %s != in %s - out %s", balance.NetUSD, balance.TotalInUSD, balance.TotalOutUSD)
	}

	balance, err := entityStore.FundingBalance(ctx, safeAddr)
	require.NoError(t, err)
	require.Equal(t, "576", balance.TotalInUSD.String())
	require.Equal(t, "720", balance.TotalOutUSD.String())
	require.Equal(t, "-144", balance.NetUSD.String())
}

func TestLedgerFirstInTimestamp(t *testing.T) {
	entityStore := store.NewMemory()
	ledger := NewLedger(entityStore, nil)
	ctx := context.Background()

	require.NoError(t, ledger.RecordFlow(ctx, safeAddr, decimal.NewFromInt(10), true, 1000))
	require.NoError(t, ledger.RecordFlow(ctx, safeAddr, decimal.NewFromInt(10), true, 2000))

	balance, err := entityStore.FundingBalance(ctx, safeAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), balance.FirstInTs, "first-in timestamp set only at creation")
	require.Equal(t, uint64(2000), balance.LastChangeTs)
}

func TestTokenTransferFromWhitelistedSource(t *testing.T) {
	// 500 USDC (6 decimals) from the treasury to the Safe at $1.00.
	prober := &countingProber{contracts: map[string]bool{model.CanonicalAddress(treasuryAddr): true}}
	tracker, entityStore := newTracker(t, prober)
	ctx := context.Background()

	ev := model.TokenTransferred{
		Token:  usdcAddr,
		From:   treasuryAddr,
		To:     safeAddr,
		Amount: big.NewInt(500_000_000),
	}
	require.NoError(t, tracker.OnTokenTransfer(ctx, ev, model.BlockContext{Number: 10, Time: 1700000000}))

	balance, err := entityStore.FundingBalance(ctx, safeAddr)
	require.NoError(t, err)
	require.Equal(t, "500", balance.TotalInUSD.String())
	require.Equal(t, "0", balance.TotalOutUSD.String())
	require.Equal(t, "500", balance.NetUSD.String())
}

func TestTokenTransferOutflowToEOA(t *testing.T) {
	tracker, entityStore := newTracker(t, &countingProber{contracts: map[string]bool{}})
	ctx := context.Background()

	ev := model.TokenTransferred{
		Token:  usdcAddr,
		From:   safeAddr,
		To:     strangerEOA,
		Amount: big.NewInt(120_000_000),
	}
	require.NoError(t, tracker.OnTokenTransfer(ctx, ev, model.BlockContext{Number: 11, Time: 1700000100}))

	balance, err := entityStore.FundingBalance(ctx, safeAddr)
	require.NoError(t, err)
	require.Equal(t, "120", balance.TotalOutUSD.String())
	require.Equal(t, "-120", balance.NetUSD.String())
}

func TestTransferBetweenStrangersIgnored(t *testing.T) {
	prober := &countingProber{contracts: map[string]bool{}}
	tracker, entityStore := newTracker(t, prober)
	ctx := context.Background()

	ev := model.TokenTransferred{
		Token:  usdcAddr,
		From:   strangerEOA,
		To:     routerAddr,
		Amount: big.NewInt(1_000_000),
	}
	require.NoError(t, tracker.OnTokenTransfer(ctx, ev, model.BlockContext{Number: 12, Time: 1700000200}))

	balance, err := entityStore.FundingBalance(ctx, safeAddr)
	require.NoError(t, err)
	require.Nil(t, balance, "no balance record for unrelated transfers")
	require.Zero(t, prober.calls, "fast path must skip classification entirely")
}

func TestTransferFromContractIgnored(t *testing.T) {
	// A non-whitelisted contract (the pool router) paying the Safe is
	// internal protocol activity, not funding.
	prober := &countingProber{contracts: map[string]bool{model.CanonicalAddress(routerAddr): true}}
	tracker, entityStore := newTracker(t, prober)
	ctx := context.Background()

	ev := model.TokenTransferred{
		Token:  usdcAddr,
		From:   routerAddr,
		To:     safeAddr,
		Amount: big.NewInt(42_000_000),
	}
	require.NoError(t, tracker.OnTokenTransfer(ctx, ev, model.BlockContext{Number: 13, Time: 1700000300}))

	balance, err := entityStore.FundingBalance(ctx, safeAddr)
	require.NoError(t, err)
	require.Nil(t, balance)
}

func TestNativeMoveInflow(t *testing.T) {
	tracker, entityStore := newTracker(t, &countingProber{contracts: map[string]bool{}})
	ctx := context.Background()

	// 0.5 native units at $3000.
	ev := model.NativeValueMoved{
		Sender:    strangerEOA,
		Recipient: safeAddr,
		Amount:    new(big.Int).Mul(big.NewInt(5), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil)),
	}
	require.NoError(t, tracker.OnNativeMove(ctx, ev, model.BlockContext{Number: 14, Time: 1700000400}))

	balance, err := entityStore.FundingBalance(ctx, safeAddr)
	require.NoError(t, err)
	require.Equal(t, "1500", balance.TotalInUSD.String())
}

func TestNativeMoveZeroAmountIgnored(t *testing.T) {
	tracker, entityStore := newTracker(t, &countingProber{contracts: map[string]bool{}})
	ctx := context.Background()

	ev := model.NativeValueMoved{Sender: strangerEOA, Recipient: safeAddr, Amount: big.NewInt(0)}
	require.NoError(t, tracker.OnNativeMove(ctx, ev, model.BlockContext{Number: 15, Time: 1700000500}))

	balance, err := entityStore.FundingBalance(ctx, safeAddr)
	require.NoError(t, err)
	require.Nil(t, balance)
}
