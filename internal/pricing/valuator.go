package pricing

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"poolScope/internal/model"
)

// Valuator computes pool liquidity from resolved prices and propagates the
// delta into the factory aggregate.
type Valuator struct {
	book   *Book
	logger *zap.Logger
}

func NewValuator(book *Book, logger *zap.Logger) *Valuator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Valuator{book: book, logger: logger}
}

// UpdatePoolLiquidity revalues the pool.
//
// A pool with no tokens is worth exactly zero. A nascent pool (fewer than
// two tokens) or one not open to public swapping keeps its last computed
// value. Otherwise liquidity is the sum of balance times resolved price over
// every token with a positive price; tokens with no sample, a non-positive
// price, or a zero balance contribute nothing.
func (v *Valuator) UpdatePoolLiquidity(pool *model.Pool, tokens map[string]*model.PoolToken, factory *model.Factory) {
	if pool.TokensCount == 0 {
		v.apply(pool, factory, decimal.Zero)
		return
	}
	if pool.TokensCount < 2 || !pool.PublicSwap || len(pool.TokensList) == 0 {
		v.logger.Debug("pool not valuable yet",
			zap.String("pool", pool.ID),
			zap.Int("tokens", pool.TokensCount),
			zap.Bool("public_swap", pool.PublicSwap),
		)
		return
	}

	liquidity := decimal.Zero
	for _, addr := range pool.TokensList {
		poolToken, ok := tokens[addr]
		if !ok {
			v.logger.Warn("token in list without pool token",
				zap.String("pool", pool.ID),
				zap.String("token", addr),
			)
			continue
		}
		sample, ok := v.book.SampleForPoolToken(pool.ID, addr)
		if !ok {
			v.logger.Debug("no price sample yet",
				zap.String("pool", pool.ID),
				zap.String("token", addr),
			)
			continue
		}
		if sample.Price.Sign() <= 0 || poolToken.Balance.Sign() <= 0 {
			continue
		}
		liquidity = liquidity.Add(sample.Price.Mul(poolToken.Balance))
	}

	v.apply(pool, factory, liquidity)
}

// apply moves the factory total by the pool's delta, then stores the new
// value. Both writes happen together so readers never observe a partial
// update.
func (v *Valuator) apply(pool *model.Pool, factory *model.Factory, liquidity decimal.Decimal) {
	factory.TotalLiquidity = factory.TotalLiquidity.Sub(pool.Liquidity).Add(liquidity)
	pool.Liquidity = liquidity
}
