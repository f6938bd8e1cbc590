package fleet

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tradefleet/fleetd/internal/domain"
)

func cfg(id int64, symbol string) domain.BotConfiguration {
	return domain.BotConfiguration{
		ID:         id,
		Symbol:     symbol,
		Strategy:   "rsi",
		Timeframe:  "15m",
		AmountUsdt: decimal.NewFromInt(100),
		Leverage:   3,
		Exchange:   "binance",
	}
}

func TestResolve_ConfigsOnly(t *testing.T) {
	rs := NewResolver(nil)
	res := rs.ResolveRaw([]domain.BotConfiguration{cfg(1, "BTC/USDT"), cfg(2, "ETH/USDT")}, nil)

	require.Len(t, res.Records, 2)
	require.Equal(t, []string{"1", "2"}, res.Order)

	rec := res.Records["1"]
	require.False(t, rec.IsRunning)
	require.Equal(t, domain.SourceConfig, rec.Source)
	require.NotNil(t, rec.ConfigID)
	require.EqualValues(t, 1, *rec.ConfigID)
}

func TestResolve_MergePrecedence(t *testing.T) {
	// runtime fields come from the report, static fields from the
	// configuration.
	rs := NewResolver(nil)
	res := rs.ResolveRaw(
		[]domain.BotConfiguration{cfg(5, "BTC/USDT")},
		[]byte(`{"5":{"is_running":true,"pnl":12.5}}`),
	)

	rec := res.Records["5"]
	require.NotNil(t, rec)
	require.True(t, rec.IsRunning)
	require.Equal(t, domain.SourceRunning, rec.Source)
	require.Equal(t, "rsi", rec.Strategy)
	require.True(t, rec.AmountUsdt.Equal(decimal.NewFromInt(100)))
	require.NotNil(t, rec.Pnl)
	require.True(t, rec.Pnl.Equal(decimal.NewFromFloat(12.5)))
}

func TestResolve_LegacySingleInstanceWithoutConfig(t *testing.T) {
	rs := NewResolver(nil)
	res := rs.ResolveRaw(nil, []byte(`{"is_running":true,"symbol":"ETH/USDT"}`))

	require.Len(t, res.Records, 1)
	rec := res.Records["legacy-ETH/USDT"]
	require.NotNil(t, rec)
	require.Equal(t, domain.SourceRunningLegacy, rec.Source)
	require.Nil(t, rec.ConfigID)
	require.False(t, rec.Deletable())
}

func TestResolve_SingleInstanceMatchesConfigBySymbol(t *testing.T) {
	rs := NewResolver(nil)
	res := rs.ResolveRaw(
		[]domain.BotConfiguration{cfg(4, "ETH/USDT")},
		[]byte(`{"is_running":true,"symbol":"ETH/USDT"}`),
	)

	require.Len(t, res.Records, 1)
	rec := res.Records["4"]
	require.NotNil(t, rec)
	require.True(t, rec.IsRunning)
	require.Equal(t, domain.SourceRunning, rec.Source)
}

func TestResolve_SingleInstanceWithConfigIDCreatesEntry(t *testing.T) {
	rs := NewResolver(nil)
	res := rs.ResolveRaw(nil, []byte(`{"is_running":true,"symbol":"SOL/USDT","config_id":7}`))

	rec := res.Records["7"]
	require.NotNil(t, rec)
	require.Equal(t, domain.SourceRunning, rec.Source)
	require.NotNil(t, rec.ConfigID)
	require.EqualValues(t, 7, *rec.ConfigID)
}

func TestResolve_SymbolKeyedLegacyMap(t *testing.T) {
	rs := NewResolver(nil)
	res := rs.ResolveRaw(
		[]domain.BotConfiguration{cfg(1, "BTC/USDT")},
		[]byte(`{"DOGE/USDT":{"is_running":true,"symbol":"DOGE/USDT"}}`),
	)

	require.Len(t, res.Records, 2)
	rec := res.Records["legacy-DOGE/USDT"]
	require.NotNil(t, rec)
	require.Equal(t, domain.SourceRunningLegacy, rec.Source)
	// legacy insertions follow the config seeds in display order
	require.Equal(t, []string{"1", "legacy-DOGE/USDT"}, res.Order)
}

func TestResolve_SymbolKeyedEntryWithoutInnerSymbol(t *testing.T) {
	// bare map values carry no symbol field; the map key is the symbol and
	// must land on the record so commands stay addressable.
	rs := NewResolver(nil)
	res := rs.ResolveRaw(nil, []byte(`{"DOGE/USDT":{"is_running":true}}`))

	require.Len(t, res.Records, 1)
	rec := res.Records["legacy-DOGE/USDT"]
	require.NotNil(t, rec)
	require.Equal(t, "DOGE/USDT", rec.Symbol)
	require.Equal(t, domain.SourceRunningLegacy, rec.Source)
	require.True(t, rec.IsRunning)
}

func TestResolve_IdentityUniqueness(t *testing.T) {
	rs := NewResolver(nil)
	res := rs.ResolveRaw(
		[]domain.BotConfiguration{cfg(1, "BTC/USDT"), cfg(2, "ETH/USDT")},
		[]byte(`{"1":{"is_running":true},"2":{"is_running":false},"XRP/USDT":{"is_running":true,"symbol":"XRP/USDT"}}`),
	)

	seen := make(map[string]bool)
	for _, id := range res.Order {
		if seen[id] {
			t.Fatalf("duplicate canonical id %q", id)
		}
		seen[id] = true
	}
	require.Len(t, res.Records, len(res.Order))
}

func TestResolve_Idempotent(t *testing.T) {
	rs := NewResolver(nil)
	configs := []domain.BotConfiguration{cfg(1, "BTC/USDT"), cfg(2, "ETH/USDT")}
	status := []byte(`{"1":{"is_running":true,"pnl":3.5},"LTC/USDT":{"is_running":true,"symbol":"LTC/USDT"}}`)

	a := rs.ResolveRaw(configs, status)
	b := rs.ResolveRaw(configs, status)

	require.Equal(t, a.Order, b.Order)
	if !reflect.DeepEqual(a.Records, b.Records) {
		t.Fatalf("resolve is not idempotent:\n a=%+v\n b=%+v", a.Records, b.Records)
	}
}

func TestResolve_MalformedStatusDegrades(t *testing.T) {
	rs := NewResolver(nil)
	res := rs.ResolveRaw([]domain.BotConfiguration{cfg(1, "BTC/USDT")}, []byte(`[not json`))

	require.True(t, res.Diagnostics.Degraded)
	require.NotEmpty(t, res.Diagnostics.Reason)
	// configs still resolve
	require.Len(t, res.Records, 1)
	require.False(t, res.Records["1"].IsRunning)
}
