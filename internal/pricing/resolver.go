package pricing

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"poolScope/internal/model"
)

// Book is the shared price registry. Oracle states are scoped per
// (pool, token); price samples are keyed by (token, oracle proxy) and shared
// across every pool using that pair, with last-writer-wins semantics.
type Book struct {
	oracles map[string]*model.OracleState
	samples map[string]*model.PriceSample
	logger  *zap.Logger
}

func NewBook(logger *zap.Logger) *Book {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Book{
		oracles: make(map[string]*model.OracleState),
		samples: make(map[string]*model.PriceSample),
		logger:  logger,
	}
}

func oracleKey(poolID, token string) string {
	return poolID + "-" + token
}

func sampleKey(token, proxy string) string {
	return token + "-" + proxy
}

// OracleState returns the binding for a (pool, token) pair.
func (b *Book) OracleState(poolID, token string) (*model.OracleState, bool) {
	state, ok := b.oracles[oracleKey(poolID, token)]
	return state, ok
}

// Sample returns the shared price sample for a (token, proxy) pair.
func (b *Book) Sample(token, proxy string) (*model.PriceSample, bool) {
	sample, ok := b.samples[sampleKey(token, proxy)]
	return sample, ok
}

// SampleForPoolToken resolves the pool token's oracle binding and then its
// shared sample. The second return is false when either hop is missing.
func (b *Book) SampleForPoolToken(poolID, token string) (*model.PriceSample, bool) {
	state, ok := b.oracles[oracleKey(poolID, token)]
	if !ok {
		return nil, false
	}
	return b.Sample(token, state.Proxy)
}

// UpsertOracleState records how raw prices for the (pool, token) pair are to
// be interpreted. It does not touch the price sample.
func (b *Book) UpsertOracleState(poolID, token, proxy, description string, rawPrice decimal.Decimal, decimals int32) *model.OracleState {
	key := oracleKey(poolID, token)
	state, ok := b.oracles[key]
	if !ok {
		state = &model.OracleState{PoolID: poolID, Token: token}
		b.oracles[key] = state
	}
	state.Proxy = proxy
	state.Description = description
	state.FixedPointPrice = rawPrice
	state.Decimals = decimals
	return state
}

// ResolvePrice scales the raw unscaled price by the oracle's declared
// precision and upserts the shared sample. ok is false when the (pool,
// token) pair has no oracle binding, meaning a price arrived before its
// binding; the event is consumed without producing a price.
func (b *Book) ResolvePrice(poolID, token string, rawPrice decimal.Decimal, poolToken *model.PoolToken) (decimal.Decimal, bool) {
	state, ok := b.oracles[oracleKey(poolID, token)]
	if !ok {
		b.logger.Warn("no oracle state for price update",
			zap.String("pool", poolID),
			zap.String("token", token),
		)
		return decimal.Zero, false
	}

	price := rawPrice.Shift(-state.Decimals)

	key := sampleKey(token, state.Proxy)
	sample, ok := b.samples[key]
	if !ok {
		sample = &model.PriceSample{Token: token, Proxy: state.Proxy}
		b.samples[key] = sample
	}
	sample.Price = price
	sample.PoolTokenID = oracleKey(poolID, token)
	if poolToken != nil {
		sample.Symbol = poolToken.Symbol
		sample.Name = poolToken.Name
		sample.Decimals = poolToken.Decimals
	}
	return price, true
}

// RemoveOracleState drops the (pool, token) binding; shared samples survive
// since other pools may still read them.
func (b *Book) RemoveOracleState(poolID, token string) {
	delete(b.oracles, oracleKey(poolID, token))
}

// Samples returns every shared sample, for persistence.
func (b *Book) Samples() []*model.PriceSample {
	out := make([]*model.PriceSample, 0, len(b.samples))
	for _, sample := range b.samples {
		out = append(out, sample)
	}
	return out
}
