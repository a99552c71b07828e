package pricing

import (
	"testing"

	"poolScope/internal/model"
)

func testPool(tokens ...string) *model.Pool {
	pool := model.NewPool("pool-a", "0xc0", 0)
	pool.PublicSwap = true
	for _, token := range tokens {
		pool.AddToken(token)
	}
	return pool
}

func priced(t *testing.T, book *Book, pool, token, proxy, price string) {
	t.Helper()
	book.UpsertOracleState(pool, token, proxy, "", dec(price), 0)
	if _, ok := book.ResolvePrice(pool, token, dec(price), nil); !ok {
		t.Fatalf("price for %s did not resolve", token)
	}
}

func TestEmptyPoolIsWorthZero(t *testing.T) {
	book := NewBook(nil)
	valuator := NewValuator(book, nil)
	factory := model.NewFactory()

	pool := testPool()
	pool.Liquidity = dec("50")
	factory.TotalLiquidity = dec("50")

	valuator.UpdatePoolLiquidity(pool, map[string]*model.PoolToken{}, factory)
	if !pool.Liquidity.IsZero() {
		t.Fatalf("pool liquidity = %s, want 0", pool.Liquidity)
	}
	if !factory.TotalLiquidity.IsZero() {
		t.Fatalf("factory liquidity = %s, want 0", factory.TotalLiquidity)
	}
}

func TestNascentPoolKeepsLastValue(t *testing.T) {
	book := NewBook(nil)
	valuator := NewValuator(book, nil)
	factory := model.NewFactory()

	pool := testPool("0xaa")
	pool.Liquidity = dec("7")
	tokens := map[string]*model.PoolToken{
		"0xaa": {PoolID: pool.ID, Address: "0xaa", Balance: dec("100")},
	}
	priced(t, book, pool.ID, "0xaa", "0xfeed", "2")

	valuator.UpdatePoolLiquidity(pool, tokens, factory)
	if !pool.Liquidity.Equal(dec("7")) {
		t.Fatalf("single-token pool revalued to %s", pool.Liquidity)
	}

	pool.AddToken("0xbb")
	pool.PublicSwap = false
	valuator.UpdatePoolLiquidity(pool, tokens, factory)
	if !pool.Liquidity.Equal(dec("7")) {
		t.Fatalf("private pool revalued to %s", pool.Liquidity)
	}
}

func TestLiquiditySumsPricedBalances(t *testing.T) {
	book := NewBook(nil)
	valuator := NewValuator(book, nil)
	factory := model.NewFactory()

	pool := testPool("0xaa", "0xbb", "0xcc")
	tokens := map[string]*model.PoolToken{
		"0xaa": {PoolID: pool.ID, Address: "0xaa", Balance: dec("100")},
		"0xbb": {PoolID: pool.ID, Address: "0xbb", Balance: dec("10")},
		"0xcc": {PoolID: pool.ID, Address: "0xcc", Balance: dec("999")},
	}
	priced(t, book, pool.ID, "0xaa", "0xfeed-a", "1.5")
	priced(t, book, pool.ID, "0xbb", "0xfeed-b", "20")
	// 0xcc has no oracle binding and must contribute nothing.

	valuator.UpdatePoolLiquidity(pool, tokens, factory)
	if !pool.Liquidity.Equal(dec("350")) {
		t.Fatalf("pool liquidity = %s, want 350", pool.Liquidity)
	}
	if !factory.TotalLiquidity.Equal(dec("350")) {
		t.Fatalf("factory liquidity = %s, want 350", factory.TotalLiquidity)
	}
}

func TestRevaluationMovesFactoryByDelta(t *testing.T) {
	book := NewBook(nil)
	valuator := NewValuator(book, nil)
	factory := model.NewFactory()
	factory.TotalLiquidity = dec("1000")

	pool := testPool("0xaa", "0xbb")
	pool.Liquidity = dec("200")
	tokens := map[string]*model.PoolToken{
		"0xaa": {PoolID: pool.ID, Address: "0xaa", Balance: dec("50")},
		"0xbb": {PoolID: pool.ID, Address: "0xbb", Balance: dec("50")},
	}
	priced(t, book, pool.ID, "0xaa", "0xfeed-a", "1")
	priced(t, book, pool.ID, "0xbb", "0xfeed-b", "2")

	valuator.UpdatePoolLiquidity(pool, tokens, factory)
	if !pool.Liquidity.Equal(dec("150")) {
		t.Fatalf("pool liquidity = %s, want 150", pool.Liquidity)
	}
	// 1000 - 200 + 150: other pools' contribution is untouched.
	if !factory.TotalLiquidity.Equal(dec("950")) {
		t.Fatalf("factory liquidity = %s, want 950", factory.TotalLiquidity)
	}
}

func TestNonPositiveInputsContributeNothing(t *testing.T) {
	book := NewBook(nil)
	valuator := NewValuator(book, nil)
	factory := model.NewFactory()

	pool := testPool("0xaa", "0xbb")
	tokens := map[string]*model.PoolToken{
		"0xaa": {PoolID: pool.ID, Address: "0xaa", Balance: dec("-5")},
		"0xbb": {PoolID: pool.ID, Address: "0xbb", Balance: dec("10")},
	}
	priced(t, book, pool.ID, "0xaa", "0xfeed-a", "3")
	priced(t, book, pool.ID, "0xbb", "0xfeed-b", "0")

	valuator.UpdatePoolLiquidity(pool, tokens, factory)
	if !pool.Liquidity.IsZero() {
		t.Fatalf("pool liquidity = %s, want 0", pool.Liquidity)
	}
}
