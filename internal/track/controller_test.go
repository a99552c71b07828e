package track

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"poolScope/internal/chain"
	"poolScope/internal/model"
	"poolScope/internal/pricing"
	"poolScope/internal/window"
)

const (
	poolA  = "0xp001"
	tokenA = "0xaa"
	tokenB = "0xbb"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestController() *Controller {
	source := &StaticTokenSource{Tokens: map[string]chain.TokenMeta{
		tokenA: {Address: tokenA, Symbol: "ATK", Name: "Token A", Decimals: 0},
		tokenB: {Address: tokenB, Symbol: "BTK", Name: "Token B", Decimals: 0},
	}}
	windows := window.NewTracker(86400, 120, nil)
	book := pricing.NewBook(nil)
	return NewController(windows, book, source, nil)
}

func ev(t *testing.T, pool, name string, ts int64, idx uint64, payload any) model.PoolEventRecord {
	t.Helper()
	decoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return model.PoolEventRecord{
		PoolID:    pool,
		EventName: name,
		Timestamp: ts,
		TxHash:    "0xtx",
		LogIndex:  idx,
		Block:     100,
		Decoded:   decoded,
	}
}

func apply(t *testing.T, c *Controller, record model.PoolEventRecord) {
	t.Helper()
	if err := c.Apply(context.Background(), record); err != nil {
		t.Fatalf("apply %s: %v", record.EventName, err)
	}
}

// setupTwoTokenPool creates a pool holding 100 ATK and 100 BTK, both priced
// at 1, open for public swapping. Its liquidity is 200.
func setupTwoTokenPool(t *testing.T, c *Controller) {
	t.Helper()
	apply(t, c, ev(t, poolA, model.EventPoolCreated, 0, 0, model.PoolCreatedEventData{Controller: "0xc0"}))
	apply(t, c, ev(t, poolA, model.EventSetPublicSwap, 0, 1, model.SetPublicSwapEventData{Enabled: true}))
	apply(t, c, ev(t, poolA, model.EventRebind, 0, 2, model.RebindEventData{
		Token: tokenA, Balance: "100", DenormWeight: "2000000000000000000",
	}))
	apply(t, c, ev(t, poolA, model.EventRebind, 0, 3, model.RebindEventData{
		Token: tokenB, Balance: "100", DenormWeight: "2000000000000000000",
	}))
	apply(t, c, ev(t, poolA, model.EventOracleState, 0, 4, model.OracleStateEventData{
		Token: tokenA, Oracle: "0xfeed-a", Description: "ATK / USD", Price: "1", Decimals: 0,
	}))
	apply(t, c, ev(t, poolA, model.EventOracleState, 0, 5, model.OracleStateEventData{
		Token: tokenB, Oracle: "0xfeed-b", Description: "BTK / USD", Price: "1", Decimals: 0,
	}))
}

func TestPoolSetupValuation(t *testing.T) {
	c := newTestController()
	setupTwoTokenPool(t, c)

	pool, ok := c.Pool(poolA)
	if !ok {
		t.Fatalf("pool not tracked")
	}
	if !pool.Liquidity.Equal(dec("200")) {
		t.Fatalf("liquidity = %s, want 200", pool.Liquidity)
	}
	if !pool.TotalWeight.Equal(dec("4")) {
		t.Fatalf("total weight = %s, want 4", pool.TotalWeight)
	}
	if pool.TokensCount != 2 {
		t.Fatalf("tokens count = %d, want 2", pool.TokensCount)
	}
	if !pool.SwapFee.Equal(model.InitialSwapFee) {
		t.Fatalf("swap fee = %s, want initial", pool.SwapFee)
	}
	if c.Factory().PoolCount != 1 {
		t.Fatalf("factory pool count = %d, want 1", c.Factory().PoolCount)
	}
	if !c.Factory().TotalLiquidity.Equal(dec("200")) {
		t.Fatalf("factory liquidity = %s, want 200", c.Factory().TotalLiquidity)
	}

	pt, ok := c.PoolToken(poolA, tokenA)
	if !ok || pt.Symbol != "ATK" || !pt.Balance.Equal(dec("100")) {
		t.Fatalf("pool token state: %+v", pt)
	}
}

func TestSwapValuesFeesAndWindow(t *testing.T) {
	c := newTestController()
	setupTwoTokenPool(t, c)

	record := ev(t, poolA, model.EventSwap, 100, 6, model.SwapEventData{
		Caller:    "0xcaller",
		TokenIn:   tokenA,
		TokenOut:  tokenB,
		AmountIn:  "10",
		AmountOut: "10",
		PriceIn:   "1",
		PriceOut:  "1",
		Spread:    "0",
		User:      "0xuser",
	})
	apply(t, c, record)

	pool, _ := c.Pool(poolA)
	if !pool.TotalSwapVolume.Equal(dec("10")) {
		t.Fatalf("pool volume = %s, want 10", pool.TotalSwapVolume)
	}
	if !pool.TotalSwapFee.Equal(dec("0.00001")) {
		t.Fatalf("pool fee = %s, want 0.00001", pool.TotalSwapFee)
	}
	if pool.SwapsCount != 1 {
		t.Fatalf("swaps count = %d, want 1", pool.SwapsCount)
	}
	// Balances move but total value stays 200 with both prices at 1.
	if !pool.Liquidity.Equal(dec("200")) {
		t.Fatalf("liquidity = %s, want 200", pool.Liquidity)
	}

	in, _ := c.PoolToken(poolA, tokenA)
	out, _ := c.PoolToken(poolA, tokenB)
	if !in.Balance.Equal(dec("110")) || !out.Balance.Equal(dec("90")) {
		t.Fatalf("balances = %s / %s, want 110 / 90", in.Balance, out.Balance)
	}

	swap, ok := c.Swap(record.SwapID())
	if !ok {
		t.Fatalf("swap record missing")
	}
	if !swap.Value.Equal(dec("10")) || !swap.FeeValue.Equal(dec("0.00001")) {
		t.Fatalf("swap value/fee = %s / %s", swap.Value, swap.FeeValue)
	}
	if swap.TokenInSym != "ATK" || swap.TokenOutSym != "BTK" {
		t.Fatalf("swap symbols = %s / %s", swap.TokenInSym, swap.TokenOutSym)
	}
	if !swap.PoolLiquidity.Equal(dec("200")) {
		t.Fatalf("swap pool liquidity = %s, want 200", swap.PoolLiquidity)
	}

	totals, err := c.Windows().Totals(poolA, 100)
	if err != nil {
		t.Fatalf("window totals: %v", err)
	}
	if !totals.Volume.Equal(dec("10")) || totals.Count != 1 {
		t.Fatalf("window totals: %+v", totals)
	}

	if c.Factory().TxCount != 1 {
		t.Fatalf("factory tx count = %d, want 1", c.Factory().TxCount)
	}
	if !c.Factory().TotalSwapVolume.Equal(dec("10")) {
		t.Fatalf("factory volume = %s, want 10", c.Factory().TotalSwapVolume)
	}
}

func TestSwapBeforeOracleBindingIsConsumed(t *testing.T) {
	c := newTestController()
	apply(t, c, ev(t, poolA, model.EventPoolCreated, 0, 0, model.PoolCreatedEventData{Controller: "0xc0"}))
	apply(t, c, ev(t, poolA, model.EventRebind, 0, 1, model.RebindEventData{
		Token: tokenA, Balance: "100", DenormWeight: "2000000000000000000",
	}))
	apply(t, c, ev(t, poolA, model.EventRebind, 0, 2, model.RebindEventData{
		Token: tokenB, Balance: "100", DenormWeight: "2000000000000000000",
	}))

	record := ev(t, poolA, model.EventSwap, 50, 3, model.SwapEventData{
		TokenIn: tokenA, TokenOut: tokenB,
		AmountIn: "10", AmountOut: "10",
		PriceIn: "1", PriceOut: "1",
	})
	apply(t, c, record)

	if _, ok := c.Swap(record.SwapID()); ok {
		t.Fatalf("swap without oracle binding should not be recorded")
	}
	pool, _ := c.Pool(poolA)
	if pool.SwapsCount != 0 || !pool.TotalSwapVolume.IsZero() {
		t.Fatalf("unpriced swap mutated totals: %+v", pool)
	}
	// The transfer itself still happened.
	in, _ := c.PoolToken(poolA, tokenA)
	if !in.Balance.Equal(dec("110")) {
		t.Fatalf("balance = %s, want 110", in.Balance)
	}
}

func TestDuplicatePoolCreateFails(t *testing.T) {
	c := newTestController()
	apply(t, c, ev(t, poolA, model.EventPoolCreated, 0, 0, model.PoolCreatedEventData{Controller: "0xc0"}))
	err := c.Apply(context.Background(), ev(t, poolA, model.EventPoolCreated, 10, 1, model.PoolCreatedEventData{Controller: "0xc0"}))
	if err == nil {
		t.Fatalf("expected error on duplicate pool creation")
	}
}

func TestDeactivationFiresOnce(t *testing.T) {
	c := newTestController()
	setupTwoTokenPool(t, c)
	apply(t, c, ev(t, poolA, model.EventFinalize, 10, 6, struct{}{}))

	if c.Factory().PoolCount != 1 || c.Factory().FinalizedPoolCount != 1 {
		t.Fatalf("factory counts before drain: %+v", c.Factory())
	}

	// Draining one token to zero deactivates the pool and decrements the
	// factory counters exactly once.
	apply(t, c, ev(t, poolA, model.EventExit, 20, 7, model.ExitEventData{
		Caller: "0xlp", TokenOut: tokenA, AmountOut: "100",
	}))
	pool, _ := c.Pool(poolA)
	if pool.Active {
		t.Fatalf("pool should be inactive after draining a token")
	}
	if c.Factory().PoolCount != 0 || c.Factory().FinalizedPoolCount != 0 {
		t.Fatalf("factory counts after deactivation: %+v", c.Factory())
	}

	// A second zero-balance event must not decrement again.
	apply(t, c, ev(t, poolA, model.EventRebind, 30, 8, model.RebindEventData{
		Token: tokenA, Balance: "0", DenormWeight: "2000000000000000000",
	}))
	if c.Factory().PoolCount != 0 || c.Factory().FinalizedPoolCount != 0 {
		t.Fatalf("deactivation fired twice: %+v", c.Factory())
	}
}

func TestFinalizeMarksPool(t *testing.T) {
	c := newTestController()
	apply(t, c, ev(t, poolA, model.EventPoolCreated, 0, 0, model.PoolCreatedEventData{Controller: "0xc0"}))
	apply(t, c, ev(t, poolA, model.EventFinalize, 5, 1, struct{}{}))

	pool, _ := c.Pool(poolA)
	if !pool.Finalized || !pool.PublicSwap || pool.Symbol != "SPT" {
		t.Fatalf("finalize state: %+v", pool)
	}
	if c.Factory().FinalizedPoolCount != 1 {
		t.Fatalf("finalized count = %d, want 1", c.Factory().FinalizedPoolCount)
	}
}

func TestJoinExitCounters(t *testing.T) {
	c := newTestController()
	setupTwoTokenPool(t, c)

	apply(t, c, ev(t, poolA, model.EventJoin, 10, 6, model.JoinEventData{
		Caller: "0xlp", TokenIn: tokenA, AmountIn: "50",
	}))
	apply(t, c, ev(t, poolA, model.EventExit, 20, 7, model.ExitEventData{
		Caller: "0xlp", TokenOut: tokenB, AmountOut: "40",
	}))

	pool, _ := c.Pool(poolA)
	if pool.JoinsCount != 1 || pool.ExitsCount != 1 {
		t.Fatalf("join/exit counts = %d / %d", pool.JoinsCount, pool.ExitsCount)
	}
	a, _ := c.PoolToken(poolA, tokenA)
	b, _ := c.PoolToken(poolA, tokenB)
	if !a.Balance.Equal(dec("150")) || !b.Balance.Equal(dec("60")) {
		t.Fatalf("balances = %s / %s, want 150 / 60", a.Balance, b.Balance)
	}
	if !pool.Liquidity.Equal(dec("210")) {
		t.Fatalf("liquidity = %s, want 210", pool.Liquidity)
	}
}

func TestTransferHolderAccounting(t *testing.T) {
	c := newTestController()
	apply(t, c, ev(t, poolA, model.EventPoolCreated, 0, 0, model.PoolCreatedEventData{Controller: "0xc0"}))

	one := "1000000000000000000"
	apply(t, c, ev(t, poolA, model.EventTransfer, 10, 1, model.TransferEventData{
		From: ZeroAddress, To: "0xu1", Value: one,
	}))
	pool, _ := c.Pool(poolA)
	if pool.HoldersCount != 1 || !pool.TotalShares.Equal(dec("1")) {
		t.Fatalf("after mint: holders=%d shares=%s", pool.HoldersCount, pool.TotalShares)
	}

	// A full transfer moves the holder without changing the count or supply.
	apply(t, c, ev(t, poolA, model.EventTransfer, 20, 2, model.TransferEventData{
		From: "0xu1", To: "0xu2", Value: one,
	}))
	if pool.HoldersCount != 1 || !pool.TotalShares.Equal(dec("1")) {
		t.Fatalf("after transfer: holders=%d shares=%s", pool.HoldersCount, pool.TotalShares)
	}
	u1, _ := c.Share(poolA, "0xu1")
	if !u1.Balance.IsZero() {
		t.Fatalf("sender balance = %s, want 0", u1.Balance)
	}

	apply(t, c, ev(t, poolA, model.EventTransfer, 30, 3, model.TransferEventData{
		From: "0xu2", To: ZeroAddress, Value: one,
	}))
	if pool.HoldersCount != 0 || !pool.TotalShares.IsZero() {
		t.Fatalf("after burn: holders=%d shares=%s", pool.HoldersCount, pool.TotalShares)
	}
}

func TestSetSwapFeeAndController(t *testing.T) {
	c := newTestController()
	apply(t, c, ev(t, poolA, model.EventPoolCreated, 0, 0, model.PoolCreatedEventData{Controller: "0xc0"}))
	apply(t, c, ev(t, poolA, model.EventSetSwapFee, 10, 1, model.SetSwapFeeEventData{Fee: "3000000000000000"}))
	apply(t, c, ev(t, poolA, model.EventSetController, 20, 2, model.SetControllerEventData{Controller: "0xc1"}))

	pool, _ := c.Pool(poolA)
	if !pool.SwapFee.Equal(dec("0.003")) {
		t.Fatalf("swap fee = %s, want 0.003", pool.SwapFee)
	}
	if pool.Controller != "0xc1" {
		t.Fatalf("controller = %s, want 0xc1", pool.Controller)
	}
}

func TestUnbindRevalues(t *testing.T) {
	c := newTestController()
	setupTwoTokenPool(t, c)
	// 0xcc is not in the static source, so it falls back to 18 decimals.
	apply(t, c, ev(t, poolA, model.EventRebind, 5, 6, model.RebindEventData{
		Token: "0xcc", Balance: "10000000000000000000", DenormWeight: "1000000000000000000",
	}))
	apply(t, c, ev(t, poolA, model.EventOracleState, 5, 7, model.OracleStateEventData{
		Token: "0xcc", Oracle: "0xfeed-c", Price: "5", Decimals: 0,
	}))
	pool, _ := c.Pool(poolA)
	if !pool.Liquidity.Equal(dec("250")) {
		t.Fatalf("liquidity = %s, want 250", pool.Liquidity)
	}

	apply(t, c, ev(t, poolA, model.EventUnbind, 10, 8, model.UnbindEventData{Token: "0xcc"}))
	if !pool.Liquidity.Equal(dec("200")) {
		t.Fatalf("liquidity after unbind = %s, want 200", pool.Liquidity)
	}
	if pool.TokensCount != 2 || !pool.TotalWeight.Equal(dec("4")) {
		t.Fatalf("unbind bookkeeping: count=%d weight=%s", pool.TokensCount, pool.TotalWeight)
	}
	if _, ok := c.PoolToken(poolA, "0xcc"); ok {
		t.Fatalf("unbound token still tracked")
	}
}

func TestDrainResetsPending(t *testing.T) {
	c := newTestController()
	setupTwoTokenPool(t, c)
	apply(t, c, ev(t, poolA, model.EventSwap, 100, 6, model.SwapEventData{
		TokenIn: tokenA, TokenOut: tokenB,
		AmountIn: "10", AmountOut: "10",
		PriceIn: "1", PriceOut: "1",
	}))

	snap := c.Drain()
	if len(snap.Pools) != 1 || len(snap.Swaps) != 1 || len(snap.Metrics) != 1 {
		t.Fatalf("first drain: pools=%d swaps=%d metrics=%d", len(snap.Pools), len(snap.Swaps), len(snap.Metrics))
	}
	if len(snap.Samples) != 2 {
		t.Fatalf("first drain samples = %d, want 2", len(snap.Samples))
	}
	if snap.Metrics[0].WindowSecs != 86400 {
		t.Fatalf("metrics window = %d, want 86400", snap.Metrics[0].WindowSecs)
	}

	again := c.Drain()
	if len(again.Pools) != 0 || len(again.Swaps) != 0 || len(again.Metrics) != 0 {
		t.Fatalf("second drain not empty: %+v", again)
	}
	// Samples are always reported in full.
	if len(again.Samples) != 2 {
		t.Fatalf("second drain samples = %d, want 2", len(again.Samples))
	}
}
