package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InitialSwapFee is assigned to every pool at creation until a fee event arrives.
var InitialSwapFee = decimal.RequireFromString("0.000001")

// Factory is the protocol-level aggregate. A single instance is owned by the
// lifecycle controller and passed explicitly; it is never addressed through a
// global.
type Factory struct {
	PoolCount          int64           `json:"pool_count"`
	FinalizedPoolCount int64           `json:"finalized_pool_count"`
	CrpCount           int64           `json:"crp_count"`
	TxCount            int64           `json:"tx_count"`
	TotalLiquidity     decimal.Decimal `json:"total_liquidity"`
	TotalSwapVolume    decimal.Decimal `json:"total_swap_volume"`
	TotalSwapFee       decimal.Decimal `json:"total_swap_fee"`
}

func NewFactory() *Factory {
	return &Factory{
		TotalLiquidity:  decimal.Zero,
		TotalSwapVolume: decimal.Zero,
		TotalSwapFee:    decimal.Zero,
	}
}

// DecrementPoolCounts fires once per active→inactive transition. Counters
// going below zero means the edge fired twice, which is an invariant breach.
func (f *Factory) DecrementPoolCounts(finalized, crp bool) error {
	f.PoolCount--
	if finalized {
		f.FinalizedPoolCount--
	}
	if crp {
		f.CrpCount--
	}
	if f.PoolCount < 0 || f.FinalizedPoolCount < 0 || f.CrpCount < 0 {
		return fmt.Errorf("pool counters below zero: pools=%d finalized=%d crp=%d",
			f.PoolCount, f.FinalizedPoolCount, f.CrpCount)
	}
	return nil
}
