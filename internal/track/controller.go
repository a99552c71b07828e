package track

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"poolScope/internal/chain"
	"poolScope/internal/model"
	"poolScope/internal/pricing"
	"poolScope/internal/window"
)

// ZeroAddress marks mint/burn legs on share transfers.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// TokenSource resolves token metadata and balances. A false second return
// means the value is unknown (reverted call or no client); callers
// substitute defaults and continue.
type TokenSource interface {
	TokenMeta(ctx context.Context, token string) (chain.TokenMeta, bool)
	Balance(ctx context.Context, token, owner string) (*big.Int, bool)
}

// StaticTokenSource serves fixed token metadata, for offline runs and tests.
type StaticTokenSource struct {
	Tokens map[string]chain.TokenMeta
}

func (s *StaticTokenSource) TokenMeta(_ context.Context, token string) (chain.TokenMeta, bool) {
	meta, ok := s.Tokens[token]
	if !ok {
		return chain.TokenMeta{Address: token, Decimals: chain.DefaultDecimals}, false
	}
	return meta, true
}

func (s *StaticTokenSource) Balance(context.Context, string, string) (*big.Int, bool) {
	return big.NewInt(0), false
}

// Controller sequences the window aggregator, price resolver and liquidity
// valuator in response to each decoded pool event. It owns all tracked
// entity state and the factory aggregate; events must be applied one at a
// time, in per-pool timestamp order.
type Controller struct {
	factory  *model.Factory
	pools    map[string]*model.Pool
	tokens   map[string]map[string]*model.PoolToken
	shares   map[string]*model.PoolShare
	swaps    map[string]*model.SwapRecord
	windows  *window.Tracker
	book     *pricing.Book
	valuator *pricing.Valuator
	source   TokenSource
	logger   *zap.Logger

	pending pending
}

// pending accumulates per-event outputs until the processor drains them for
// persistence.
type pending struct {
	pools   map[string]struct{}
	swaps   []model.SwapRecord
	metrics []model.DailyMetrics
}

func NewController(windows *window.Tracker, book *pricing.Book, source TokenSource, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if source == nil {
		source = &StaticTokenSource{}
	}
	return &Controller{
		factory:  model.NewFactory(),
		pools:    make(map[string]*model.Pool),
		tokens:   make(map[string]map[string]*model.PoolToken),
		shares:   make(map[string]*model.PoolShare),
		swaps:    make(map[string]*model.SwapRecord),
		windows:  windows,
		book:     book,
		valuator: pricing.NewValuator(book, logger),
		source:   source,
		logger:   logger,
		pending: pending{
			pools: make(map[string]struct{}),
		},
	}
}

// Factory exposes the aggregate for persistence and inspection.
func (c *Controller) Factory() *model.Factory {
	return c.factory
}

// Pool returns the tracked pool state.
func (c *Controller) Pool(id string) (*model.Pool, bool) {
	pool, ok := c.pools[id]
	return pool, ok
}

// PoolToken returns the pool's position in one token.
func (c *Controller) PoolToken(poolID, token string) (*model.PoolToken, bool) {
	tokens, ok := c.tokens[poolID]
	if !ok {
		return nil, false
	}
	pt, ok := tokens[token]
	return pt, ok
}

// Swap returns a recorded swap by id.
func (c *Controller) Swap(id string) (*model.SwapRecord, bool) {
	swap, ok := c.swaps[id]
	return swap, ok
}

// Share returns a holder's share balance.
func (c *Controller) Share(poolID, user string) (*model.PoolShare, bool) {
	share, ok := c.shares[shareKey(poolID, user)]
	return share, ok
}

// Book exposes the shared price registry.
func (c *Controller) Book() *pricing.Book {
	return c.book
}

// Windows exposes the rolling-window tracker.
func (c *Controller) Windows() *window.Tracker {
	return c.windows
}

// Apply processes one decoded event to completion. Missing-prerequisite
// conditions consume the event with a warning; invariant breaches (double
// pool init, uninitialized window at swap time, counter underflow) are
// returned as errors and abort the feed.
func (c *Controller) Apply(ctx context.Context, record model.PoolEventRecord) error {
	switch record.EventName {
	case model.EventPoolCreated:
		return c.handlePoolCreated(record)
	case model.EventRebind:
		return c.handleRebind(ctx, record)
	case model.EventUnbind:
		return c.handleUnbind(record)
	case model.EventOracleState:
		return c.handleOracleState(record)
	case model.EventSwap:
		return c.handleSwap(record)
	case model.EventJoin:
		return c.handleJoin(record)
	case model.EventExit:
		return c.handleExit(record)
	case model.EventTransfer:
		return c.handleTransfer(record)
	case model.EventSetSwapFee:
		return c.handleSetSwapFee(record)
	case model.EventSetPublicSwap:
		return c.handleSetPublicSwap(record)
	case model.EventFinalize:
		return c.handleFinalize(record)
	case model.EventSetController:
		return c.handleSetController(record)
	case model.EventSync:
		return c.handleSync(ctx, record)
	default:
		c.logger.Debug("ignoring event", zap.String("event", record.EventName), zap.String("pool", record.PoolID))
		return nil
	}
}

func (c *Controller) handlePoolCreated(record model.PoolEventRecord) error {
	var data model.PoolCreatedEventData
	if err := json.Unmarshal(record.Decoded, &data); err != nil {
		return fmt.Errorf("decode poolCreated: %w", err)
	}
	if _, ok := c.pools[record.PoolID]; ok {
		return fmt.Errorf("pool %s already exists", record.PoolID)
	}

	pool := model.NewPool(record.PoolID, data.Controller, record.Timestamp)
	pool.FirstSeenBlock = record.Block
	pool.Crp = data.Crp
	if data.Crp {
		pool.Symbol = data.Symbol
		pool.Name = data.Name
		c.factory.CrpCount++
	}
	c.pools[record.PoolID] = pool
	c.tokens[record.PoolID] = make(map[string]*model.PoolToken)
	c.factory.PoolCount++

	if err := c.windows.Init(record.PoolID, record.Timestamp); err != nil {
		return err
	}

	c.markPool(record.PoolID)
	c.logger.Info("pool created", zap.String("pool", record.PoolID), zap.Bool("crp", data.Crp))
	return nil
}

func (c *Controller) handleRebind(ctx context.Context, record model.PoolEventRecord) error {
	var data model.RebindEventData
	if err := json.Unmarshal(record.Decoded, &data); err != nil {
		return fmt.Errorf("decode rebind: %w", err)
	}
	pool, ok := c.pools[record.PoolID]
	if !ok {
		c.logger.Warn("rebind for unknown pool", zap.String("pool", record.PoolID))
		return nil
	}

	denormWeight, err := parseScaled(data.DenormWeight, 18)
	if err != nil {
		c.logger.Warn("rebind weight", zap.String("pool", record.PoolID), zap.Error(err))
		return nil
	}

	pool.AddToken(data.Token)

	poolToken, ok := c.tokens[record.PoolID][data.Token]
	if !ok {
		meta, found := c.source.TokenMeta(ctx, data.Token)
		if !found {
			c.logger.Warn("token metadata unknown, using defaults", zap.String("token", data.Token))
		}
		poolToken = &model.PoolToken{
			PoolID:       record.PoolID,
			Address:      data.Token,
			Symbol:       meta.Symbol,
			Name:         meta.Name,
			Decimals:     meta.Decimals,
			Balance:      decimal.Zero,
			DenormWeight: decimal.Zero,
		}
		c.tokens[record.PoolID][data.Token] = poolToken
		pool.TotalWeight = pool.TotalWeight.Add(denormWeight)
	} else {
		pool.TotalWeight = pool.TotalWeight.Add(denormWeight).Sub(poolToken.DenormWeight)
	}

	balance, err := parseScaled(data.Balance, poolToken.Decimals)
	if err != nil {
		c.logger.Warn("rebind balance", zap.String("pool", record.PoolID), zap.Error(err))
		return nil
	}
	poolToken.Balance = balance
	poolToken.DenormWeight = denormWeight

	if balance.IsZero() {
		if err := c.deactivate(pool); err != nil {
			return err
		}
	}

	// Valuation waits for the accompanying oracle-state event.
	c.markPool(record.PoolID)
	return nil
}

func (c *Controller) handleUnbind(record model.PoolEventRecord) error {
	var data model.UnbindEventData
	if err := json.Unmarshal(record.Decoded, &data); err != nil {
		return fmt.Errorf("decode unbind: %w", err)
	}
	pool, ok := c.pools[record.PoolID]
	if !ok {
		c.logger.Warn("unbind for unknown pool", zap.String("pool", record.PoolID))
		return nil
	}
	poolToken, ok := c.tokens[record.PoolID][data.Token]
	if !ok {
		c.logger.Warn("unbind for unbound token", zap.String("pool", record.PoolID), zap.String("token", data.Token))
		return nil
	}

	pool.RemoveToken(data.Token)
	pool.TotalWeight = pool.TotalWeight.Sub(poolToken.DenormWeight)
	delete(c.tokens[record.PoolID], data.Token)
	c.book.RemoveOracleState(record.PoolID, data.Token)

	c.valuator.UpdatePoolLiquidity(pool, c.tokens[record.PoolID], c.factory)
	c.markPool(record.PoolID)
	return nil
}

func (c *Controller) handleOracleState(record model.PoolEventRecord) error {
	var data model.OracleStateEventData
	if err := json.Unmarshal(record.Decoded, &data); err != nil {
		return fmt.Errorf("decode oracle state: %w", err)
	}
	pool, ok := c.pools[record.PoolID]
	if !ok {
		c.logger.Warn("oracle state for unknown pool", zap.String("pool", record.PoolID))
		return nil
	}

	rawPrice, err := decimal.NewFromString(data.Price)
	if err != nil {
		c.logger.Warn("oracle state price", zap.String("pool", record.PoolID), zap.Error(err))
		return nil
	}

	c.book.UpsertOracleState(record.PoolID, data.Token, data.Oracle, data.Description, rawPrice, data.Decimals)

	poolToken := c.tokens[record.PoolID][data.Token]
	if _, ok := c.book.ResolvePrice(record.PoolID, data.Token, rawPrice, poolToken); !ok {
		c.logger.Warn("initial price not resolved", zap.String("pool", record.PoolID), zap.String("token", data.Token))
	}

	c.valuator.UpdatePoolLiquidity(pool, c.tokens[record.PoolID], c.factory)
	c.markPool(record.PoolID)
	return nil
}

func (c *Controller) handleSwap(record model.PoolEventRecord) error {
	var data model.SwapEventData
	if err := json.Unmarshal(record.Decoded, &data); err != nil {
		return fmt.Errorf("decode swap: %w", err)
	}
	pool, ok := c.pools[record.PoolID]
	if !ok {
		c.logger.Warn("swap for unknown pool", zap.String("pool", record.PoolID))
		return nil
	}
	poolTokenIn, ok := c.tokens[record.PoolID][data.TokenIn]
	if !ok {
		c.logger.Warn("swap leg not bound", zap.String("pool", record.PoolID), zap.String("token", data.TokenIn))
		return nil
	}
	poolTokenOut, ok := c.tokens[record.PoolID][data.TokenOut]
	if !ok {
		c.logger.Warn("swap leg not bound", zap.String("pool", record.PoolID), zap.String("token", data.TokenOut))
		return nil
	}

	amountIn, err := parseScaled(data.AmountIn, poolTokenIn.Decimals)
	if err != nil {
		c.logger.Warn("swap amount in", zap.String("pool", record.PoolID), zap.Error(err))
		return nil
	}
	amountOut, err := parseScaled(data.AmountOut, poolTokenOut.Decimals)
	if err != nil {
		c.logger.Warn("swap amount out", zap.String("pool", record.PoolID), zap.Error(err))
		return nil
	}

	newAmountIn := poolTokenIn.Balance.Add(amountIn)
	poolTokenIn.Balance = newAmountIn
	newAmountOut := poolTokenOut.Balance.Sub(amountOut)
	poolTokenOut.Balance = newAmountOut

	rawPriceOut, err := decimal.NewFromString(data.PriceOut)
	if err == nil {
		c.book.ResolvePrice(record.PoolID, data.TokenOut, rawPriceOut, poolTokenOut)
	}
	rawPriceIn, err := decimal.NewFromString(data.PriceIn)
	if err != nil {
		c.logger.Warn("swap price in", zap.String("pool", record.PoolID), zap.Error(err))
		return nil
	}
	priceIn, ok := c.book.ResolvePrice(record.PoolID, data.TokenIn, rawPriceIn, poolTokenIn)
	if !ok {
		// Price arrived before its oracle binding; the swap is consumed
		// without valuation.
		c.markPool(record.PoolID)
		return nil
	}

	c.valuator.UpdatePoolLiquidity(pool, c.tokens[record.PoolID], c.factory)

	spread, err := parseScaled(data.Spread, 18)
	if err != nil {
		spread = decimal.Zero
	}
	taxBaseIn, err := parseScaled(data.TaxBaseIn, poolTokenIn.Decimals)
	if err != nil {
		taxBaseIn = decimal.Zero
	}

	swapValue := priceIn.Mul(amountIn)
	swapFeeValue := swapValue.Mul(pool.SwapFee).Add(priceIn.Mul(taxBaseIn).Mul(spread))

	pool.TotalSwapVolume = pool.TotalSwapVolume.Add(swapValue)
	pool.TotalSwapFee = pool.TotalSwapFee.Add(swapFeeValue)
	pool.SwapsCount++
	c.factory.TotalSwapVolume = c.factory.TotalSwapVolume.Add(swapValue)
	c.factory.TotalSwapFee = c.factory.TotalSwapFee.Add(swapFeeValue)
	c.factory.TxCount++

	if newAmountIn.IsZero() || newAmountOut.IsZero() {
		if err := c.deactivate(pool); err != nil {
			return err
		}
	}

	swap := &model.SwapRecord{
		ID:                  record.SwapID(),
		PoolID:              record.PoolID,
		Timestamp:           record.Timestamp,
		Caller:              data.Caller,
		UserAddress:         data.User,
		TokenIn:             data.TokenIn,
		TokenInSym:          poolTokenIn.Symbol,
		TokenOut:            data.TokenOut,
		TokenOutSym:         poolTokenOut.Symbol,
		AmountIn:            amountIn,
		AmountOut:           amountOut,
		Value:               swapValue,
		FeeValue:            swapFeeValue,
		PoolTotalSwapVolume: pool.TotalSwapVolume,
		PoolTotalSwapFee:    pool.TotalSwapFee,
		PoolLiquidity:       pool.Liquidity,
	}
	c.swaps[swap.ID] = swap

	if err := c.windows.Record(record.PoolID, window.Entry{
		Timestamp: record.Timestamp,
		Volume:    swapValue,
		Fee:       swapFeeValue,
	}); err != nil {
		return err
	}

	totals, err := c.windows.Totals(record.PoolID, record.Timestamp)
	if err != nil {
		return err
	}
	c.pending.metrics = append(c.pending.metrics, model.DailyMetrics{
		PoolID:     record.PoolID,
		WindowSecs: c.windows.WindowSecs(),
		Volume:     totals.Volume,
		Fees:       totals.Fees,
		SwapCount:  totals.Count,
		ComputedAt: record.Timestamp,
	})

	c.pending.swaps = append(c.pending.swaps, *swap)
	c.markPool(record.PoolID)
	return nil
}

func (c *Controller) handleJoin(record model.PoolEventRecord) error {
	var data model.JoinEventData
	if err := json.Unmarshal(record.Decoded, &data); err != nil {
		return fmt.Errorf("decode join: %w", err)
	}
	pool, ok := c.pools[record.PoolID]
	if !ok {
		c.logger.Warn("join for unknown pool", zap.String("pool", record.PoolID))
		return nil
	}
	poolToken, ok := c.tokens[record.PoolID][data.TokenIn]
	if !ok {
		c.logger.Warn("join for unbound token", zap.String("pool", record.PoolID), zap.String("token", data.TokenIn))
		return nil
	}

	amountIn, err := parseScaled(data.AmountIn, poolToken.Decimals)
	if err != nil {
		c.logger.Warn("join amount", zap.String("pool", record.PoolID), zap.Error(err))
		return nil
	}

	pool.JoinsCount++
	poolToken.Balance = poolToken.Balance.Add(amountIn)

	c.valuator.UpdatePoolLiquidity(pool, c.tokens[record.PoolID], c.factory)
	c.markPool(record.PoolID)
	return nil
}

func (c *Controller) handleExit(record model.PoolEventRecord) error {
	var data model.ExitEventData
	if err := json.Unmarshal(record.Decoded, &data); err != nil {
		return fmt.Errorf("decode exit: %w", err)
	}
	pool, ok := c.pools[record.PoolID]
	if !ok {
		c.logger.Warn("exit for unknown pool", zap.String("pool", record.PoolID))
		return nil
	}
	poolToken, ok := c.tokens[record.PoolID][data.TokenOut]
	if !ok {
		c.logger.Warn("exit for unbound token", zap.String("pool", record.PoolID), zap.String("token", data.TokenOut))
		return nil
	}

	amountOut, err := parseScaled(data.AmountOut, poolToken.Decimals)
	if err != nil {
		c.logger.Warn("exit amount", zap.String("pool", record.PoolID), zap.Error(err))
		return nil
	}

	newBalance := poolToken.Balance.Sub(amountOut)
	poolToken.Balance = newBalance
	pool.ExitsCount++

	if newBalance.IsZero() {
		if err := c.deactivate(pool); err != nil {
			return err
		}
	}

	c.valuator.UpdatePoolLiquidity(pool, c.tokens[record.PoolID], c.factory)
	c.markPool(record.PoolID)
	return nil
}

func (c *Controller) handleTransfer(record model.PoolEventRecord) error {
	var data model.TransferEventData
	if err := json.Unmarshal(record.Decoded, &data); err != nil {
		return fmt.Errorf("decode transfer: %w", err)
	}
	pool, ok := c.pools[record.PoolID]
	if !ok {
		c.logger.Warn("transfer for unknown pool", zap.String("pool", record.PoolID))
		return nil
	}

	value, err := parseScaled(data.Value, 18)
	if err != nil {
		c.logger.Warn("transfer value", zap.String("pool", record.PoolID), zap.Error(err))
		return nil
	}

	isMint := data.From == ZeroAddress
	isBurn := data.To == ZeroAddress

	if !isMint {
		from := c.shareFor(record.PoolID, data.From)
		before := from.Balance
		from.Balance = from.Balance.Sub(value)
		// Holder count drops only on a non-zero → zero crossing.
		if from.Balance.IsZero() && !before.IsZero() {
			pool.HoldersCount--
		}
		if isBurn {
			pool.TotalShares = pool.TotalShares.Sub(value)
		}
	}
	if !isBurn {
		to := c.shareFor(record.PoolID, data.To)
		before := to.Balance
		to.Balance = to.Balance.Add(value)
		if !to.Balance.IsZero() && before.IsZero() {
			pool.HoldersCount++
		}
		if isMint {
			pool.TotalShares = pool.TotalShares.Add(value)
		}
	}

	c.markPool(record.PoolID)
	return nil
}

func (c *Controller) handleSetSwapFee(record model.PoolEventRecord) error {
	var data model.SetSwapFeeEventData
	if err := json.Unmarshal(record.Decoded, &data); err != nil {
		return fmt.Errorf("decode setSwapFee: %w", err)
	}
	pool, ok := c.pools[record.PoolID]
	if !ok {
		c.logger.Warn("setSwapFee for unknown pool", zap.String("pool", record.PoolID))
		return nil
	}
	fee, err := parseScaled(data.Fee, 18)
	if err != nil {
		c.logger.Warn("setSwapFee value", zap.String("pool", record.PoolID), zap.Error(err))
		return nil
	}
	pool.SwapFee = fee
	c.markPool(record.PoolID)
	return nil
}

func (c *Controller) handleSetPublicSwap(record model.PoolEventRecord) error {
	var data model.SetPublicSwapEventData
	if err := json.Unmarshal(record.Decoded, &data); err != nil {
		return fmt.Errorf("decode setPublicSwap: %w", err)
	}
	pool, ok := c.pools[record.PoolID]
	if !ok {
		c.logger.Warn("setPublicSwap for unknown pool", zap.String("pool", record.PoolID))
		return nil
	}
	pool.PublicSwap = data.Enabled
	c.markPool(record.PoolID)
	return nil
}

func (c *Controller) handleFinalize(record model.PoolEventRecord) error {
	pool, ok := c.pools[record.PoolID]
	if !ok {
		c.logger.Warn("finalize for unknown pool", zap.String("pool", record.PoolID))
		return nil
	}
	pool.Finalized = true
	pool.PublicSwap = true
	pool.Symbol = "SPT"
	c.factory.FinalizedPoolCount++
	c.markPool(record.PoolID)
	return nil
}

func (c *Controller) handleSetController(record model.PoolEventRecord) error {
	var data model.SetControllerEventData
	if err := json.Unmarshal(record.Decoded, &data); err != nil {
		return fmt.Errorf("decode setController: %w", err)
	}
	pool, ok := c.pools[record.PoolID]
	if !ok {
		c.logger.Warn("setController for unknown pool", zap.String("pool", record.PoolID))
		return nil
	}
	pool.Controller = data.Controller
	c.markPool(record.PoolID)
	return nil
}

func (c *Controller) handleSync(ctx context.Context, record model.PoolEventRecord) error {
	var data model.SyncEventData
	if err := json.Unmarshal(record.Decoded, &data); err != nil {
		return fmt.Errorf("decode sync: %w", err)
	}
	pool, ok := c.pools[record.PoolID]
	if !ok {
		c.logger.Warn("sync for unknown pool", zap.String("pool", record.PoolID))
		return nil
	}
	poolToken, ok := c.tokens[record.PoolID][data.Token]
	if !ok {
		c.logger.Warn("sync for unbound token", zap.String("pool", record.PoolID), zap.String("token", data.Token))
		return nil
	}

	balance := decimal.Zero
	if raw, found := c.source.Balance(ctx, data.Token, record.PoolID); found {
		balance = decimal.NewFromBigInt(raw, 0).Shift(-poolToken.Decimals)
	}
	poolToken.Balance = balance

	c.valuator.UpdatePoolLiquidity(pool, c.tokens[record.PoolID], c.factory)
	c.markPool(record.PoolID)
	return nil
}

// Snapshots is the batch of changed entities drained for persistence.
type Snapshots struct {
	Pools   []model.Pool
	Swaps   []model.SwapRecord
	Metrics []model.DailyMetrics
	Samples []model.PriceSample
}

// Drain returns everything changed since the last drain and resets the
// pending set. Price samples are always included in full; the registry is
// small and shared.
func (c *Controller) Drain() Snapshots {
	snap := Snapshots{
		Swaps:   c.pending.swaps,
		Metrics: c.pending.metrics,
	}
	for id := range c.pending.pools {
		if pool, ok := c.pools[id]; ok {
			snap.Pools = append(snap.Pools, *pool)
		}
	}
	for _, sample := range c.book.Samples() {
		snap.Samples = append(snap.Samples, *sample)
	}

	c.pending.swaps = nil
	c.pending.metrics = nil
	c.pending.pools = make(map[string]struct{})
	return snap
}

// deactivate fires the active→inactive edge at most once per pool.
func (c *Controller) deactivate(pool *model.Pool) error {
	if !pool.Active {
		return nil
	}
	pool.Active = false
	if err := c.factory.DecrementPoolCounts(pool.Finalized, pool.Crp); err != nil {
		return err
	}
	c.logger.Info("pool deactivated", zap.String("pool", pool.ID))
	return nil
}

func (c *Controller) shareFor(poolID, user string) *model.PoolShare {
	key := shareKey(poolID, user)
	share, ok := c.shares[key]
	if !ok {
		share = &model.PoolShare{PoolID: poolID, User: user, Balance: decimal.Zero}
		c.shares[key] = share
	}
	return share
}

func (c *Controller) markPool(poolID string) {
	c.pending.pools[poolID] = struct{}{}
}

func shareKey(poolID, user string) string {
	return poolID + "-" + user
}

// parseScaled parses a raw fixed-point integer string and scales it down by
// the given decimals. An empty string is zero.
func parseScaled(value string, decimals int32) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return parsed.Shift(-decimals), nil
}
