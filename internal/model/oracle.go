package model

import (
	"github.com/shopspring/decimal"
)

// OracleState is the last known oracle binding for a (pool, token) pair. It
// records how to interpret raw prices for the pair; it is overwritten in
// place on every oracle-state event and never versioned.
type OracleState struct {
	PoolID          string          `json:"pool_id"`
	Token           string          `json:"token"`
	Proxy           string          `json:"proxy"`
	Description     string          `json:"description"`
	FixedPointPrice decimal.Decimal `json:"fixed_point_price"`
	Decimals        int32           `json:"decimals"`
}

// PriceSample is the latest resolved decimal price for a (token, oracle
// proxy) pair. Samples are shared across every pool using the same pair:
// the most recent update from any pool wins.
type PriceSample struct {
	Token       string          `json:"token"`
	Proxy       string          `json:"proxy"`
	Price       decimal.Decimal `json:"price"`
	Symbol      string          `json:"symbol"`
	Name        string          `json:"name"`
	Decimals    int32           `json:"decimals"`
	PoolTokenID string          `json:"pool_token_id"`
}
