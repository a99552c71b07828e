package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poolScope/internal/model"
)

// Store provides Postgres persistence for tracked pool state.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertPools inserts or updates pool snapshots.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				pool_id, controller, crp, public_swap, finalized, active,
				swap_fee, total_weight, total_shares, total_swap_volume, total_swap_fee,
				liquidity, tokens_count, holders_count, joins_count, exits_count, swaps_count,
				create_time, first_seen_block, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,now(),now())
			ON CONFLICT (pool_id)
			DO UPDATE SET
				controller = EXCLUDED.controller,
				crp = EXCLUDED.crp,
				public_swap = EXCLUDED.public_swap,
				finalized = EXCLUDED.finalized,
				active = EXCLUDED.active,
				swap_fee = EXCLUDED.swap_fee,
				total_weight = EXCLUDED.total_weight,
				total_shares = EXCLUDED.total_shares,
				total_swap_volume = EXCLUDED.total_swap_volume,
				total_swap_fee = EXCLUDED.total_swap_fee,
				liquidity = EXCLUDED.liquidity,
				tokens_count = EXCLUDED.tokens_count,
				holders_count = EXCLUDED.holders_count,
				joins_count = EXCLUDED.joins_count,
				exits_count = EXCLUDED.exits_count,
				swaps_count = EXCLUDED.swaps_count,
				updated_at = now()
		`,
			pool.ID,
			pool.Controller,
			pool.Crp,
			pool.PublicSwap,
			pool.Finalized,
			pool.Active,
			pool.SwapFee.String(),
			pool.TotalWeight.String(),
			pool.TotalShares.String(),
			pool.TotalSwapVolume.String(),
			pool.TotalSwapFee.String(),
			pool.Liquidity.String(),
			pool.TokensCount,
			pool.HoldersCount,
			pool.JoinsCount,
			pool.ExitsCount,
			pool.SwapsCount,
			pool.CreateTime,
			int64(pool.FirstSeenBlock),
		)
	}
	return s.sendBatch(ctx, batch, len(pools))
}

// UpsertSwaps inserts swap records; swaps are immutable so conflicts are
// ignored.
func (s *Store) UpsertSwaps(ctx context.Context, swaps []model.SwapRecord) error {
	if len(swaps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, swap := range swaps {
		batch.Queue(`
			INSERT INTO swaps (
				swap_id, pool_id, ts, caller, user_address,
				token_in, token_in_sym, token_out, token_out_sym,
				amount_in, amount_out, value, fee_value,
				pool_total_swap_volume, pool_total_swap_fee, pool_liquidity, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,now())
			ON CONFLICT (swap_id) DO NOTHING
		`,
			swap.ID,
			swap.PoolID,
			time.Unix(swap.Timestamp, 0).UTC(),
			swap.Caller,
			swap.UserAddress,
			swap.TokenIn,
			swap.TokenInSym,
			swap.TokenOut,
			swap.TokenOutSym,
			swap.AmountIn.String(),
			swap.AmountOut.String(),
			swap.Value.String(),
			swap.FeeValue.String(),
			swap.PoolTotalSwapVolume.String(),
			swap.PoolTotalSwapFee.String(),
			swap.PoolLiquidity.String(),
		)
	}
	return s.sendBatch(ctx, batch, len(swaps))
}

// UpsertPriceSamples inserts or updates shared price samples.
func (s *Store) UpsertPriceSamples(ctx context.Context, samples []model.PriceSample) error {
	if len(samples) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, sample := range samples {
		batch.Queue(`
			INSERT INTO price_samples (
				token, proxy, price, symbol, name, decimals, pool_token_id, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,now())
			ON CONFLICT (token, proxy)
			DO UPDATE SET
				price = EXCLUDED.price,
				symbol = EXCLUDED.symbol,
				name = EXCLUDED.name,
				decimals = EXCLUDED.decimals,
				pool_token_id = EXCLUDED.pool_token_id,
				updated_at = now()
		`,
			sample.Token,
			sample.Proxy,
			sample.Price.String(),
			sample.Symbol,
			sample.Name,
			sample.Decimals,
			sample.PoolTokenID,
		)
	}
	return s.sendBatch(ctx, batch, len(samples))
}

// UpsertDailyMetrics inserts or updates rolling-window snapshots.
func (s *Store) UpsertDailyMetrics(ctx context.Context, metrics []model.DailyMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_daily_metrics (
				pool_id, window_secs, volume, fees, swap_count, computed_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,now())
			ON CONFLICT (pool_id, window_secs)
			DO UPDATE SET
				volume = EXCLUDED.volume,
				fees = EXCLUDED.fees,
				swap_count = EXCLUDED.swap_count,
				computed_at = EXCLUDED.computed_at,
				updated_at = now()
		`,
			m.PoolID,
			m.WindowSecs,
			m.Volume.String(),
			m.Fees.String(),
			m.SwapCount,
			time.Unix(m.ComputedAt, 0).UTC(),
		)
	}
	return s.sendBatch(ctx, batch, len(metrics))
}

// UpsertFactory stores the protocol aggregate as a single keyed row.
func (s *Store) UpsertFactory(ctx context.Context, factory model.Factory) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO factory (
			name, pool_count, finalized_pool_count, crp_count, tx_count,
			total_liquidity, total_swap_volume, total_swap_fee, updated_at
		) VALUES ('default',$1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (name)
		DO UPDATE SET
			pool_count = EXCLUDED.pool_count,
			finalized_pool_count = EXCLUDED.finalized_pool_count,
			crp_count = EXCLUDED.crp_count,
			tx_count = EXCLUDED.tx_count,
			total_liquidity = EXCLUDED.total_liquidity,
			total_swap_volume = EXCLUDED.total_swap_volume,
			total_swap_fee = EXCLUDED.total_swap_fee,
			updated_at = now()
	`,
		factory.PoolCount,
		factory.FinalizedPoolCount,
		factory.CrpCount,
		factory.TxCount,
		factory.TotalLiquidity.String(),
		factory.TotalSwapVolume.String(),
		factory.TotalSwapFee.String(),
	)
	return err
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts uint64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM tracker_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return ts, true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tracker_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, ts)
	return err
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, size int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < size; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
