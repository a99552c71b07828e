package model

import (
	"github.com/shopspring/decimal"
)

// SwapRecord is one executed trade with its computed monetary value and fee
// value. Immutable after creation.
type SwapRecord struct {
	ID          string `json:"id"`
	PoolID      string `json:"pool_id"`
	Timestamp   int64  `json:"timestamp"`
	Caller      string `json:"caller"`
	UserAddress string `json:"user_address"`

	TokenIn     string          `json:"token_in"`
	TokenInSym  string          `json:"token_in_sym"`
	TokenOut    string          `json:"token_out"`
	TokenOutSym string          `json:"token_out_sym"`
	AmountIn    decimal.Decimal `json:"amount_in"`
	AmountOut   decimal.Decimal `json:"amount_out"`

	Value    decimal.Decimal `json:"value"`
	FeeValue decimal.Decimal `json:"fee_value"`

	PoolTotalSwapVolume decimal.Decimal `json:"pool_total_swap_volume"`
	PoolTotalSwapFee    decimal.Decimal `json:"pool_total_swap_fee"`
	PoolLiquidity       decimal.Decimal `json:"pool_liquidity"`
}

// DailyMetrics is the persisted rolling-window snapshot for one pool.
type DailyMetrics struct {
	PoolID     string          `json:"pool_id"`
	WindowSecs int64           `json:"window_secs"`
	Volume     decimal.Decimal `json:"volume"`
	Fees       decimal.Decimal `json:"fees"`
	SwapCount  int64           `json:"swap_count"`
	ComputedAt int64           `json:"computed_at"`
}
