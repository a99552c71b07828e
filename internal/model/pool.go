package model

import (
	"github.com/shopspring/decimal"
)

// Pool is the tracked state of one weighted multi-token trading venue.
type Pool struct {
	ID            string `json:"id"`
	Controller    string `json:"controller"`
	CrpController string `json:"crp_controller,omitempty"`
	Symbol        string `json:"symbol,omitempty"`
	Name          string `json:"name,omitempty"`
	Crp           bool   `json:"crp"`
	PublicSwap    bool   `json:"public_swap"`
	Finalized     bool   `json:"finalized"`
	Active        bool   `json:"active"`

	SwapFee     decimal.Decimal `json:"swap_fee"`
	TotalWeight decimal.Decimal `json:"total_weight"`
	TotalShares decimal.Decimal `json:"total_shares"`

	TotalSwapVolume decimal.Decimal `json:"total_swap_volume"`
	TotalSwapFee    decimal.Decimal `json:"total_swap_fee"`
	Liquidity       decimal.Decimal `json:"liquidity"`

	TokensList   []string `json:"tokens_list"`
	TokensCount  int      `json:"tokens_count"`
	HoldersCount int64    `json:"holders_count"`
	JoinsCount   int64    `json:"joins_count"`
	ExitsCount   int64    `json:"exits_count"`
	SwapsCount   int64    `json:"swaps_count"`

	CreateTime     int64  `json:"create_time"`
	FirstSeenBlock uint64 `json:"first_seen_block"`
}

// NewPool returns a pool with zeroed counters and the initial swap fee.
func NewPool(id, controller string, createTime int64) *Pool {
	return &Pool{
		ID:              id,
		Controller:      controller,
		Active:          true,
		SwapFee:         InitialSwapFee,
		TotalWeight:     decimal.Zero,
		TotalShares:     decimal.Zero,
		TotalSwapVolume: decimal.Zero,
		TotalSwapFee:    decimal.Zero,
		Liquidity:       decimal.Zero,
		TokensList:      []string{},
		CreateTime:      createTime,
	}
}

// HasToken reports whether the token is in the pool's token list.
func (p *Pool) HasToken(token string) bool {
	for _, t := range p.TokensList {
		if t == token {
			return true
		}
	}
	return false
}

// AddToken appends the token to the list if absent and keeps TokensCount in sync.
func (p *Pool) AddToken(token string) {
	if p.HasToken(token) {
		return
	}
	p.TokensList = append(p.TokensList, token)
	p.TokensCount = len(p.TokensList)
}

// RemoveToken drops the token from the list and keeps TokensCount in sync.
func (p *Pool) RemoveToken(token string) {
	for i, t := range p.TokensList {
		if t == token {
			p.TokensList = append(p.TokensList[:i], p.TokensList[i+1:]...)
			break
		}
	}
	p.TokensCount = len(p.TokensList)
}

// PoolToken is a pool's position in one constituent token.
type PoolToken struct {
	PoolID       string          `json:"pool_id"`
	Address      string          `json:"address"`
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	Decimals     int32           `json:"decimals"`
	Balance      decimal.Decimal `json:"balance"`
	DenormWeight decimal.Decimal `json:"denorm_weight"`
}

// PoolShare is one holder's share balance in a pool.
type PoolShare struct {
	PoolID  string          `json:"pool_id"`
	User    string          `json:"user"`
	Balance decimal.Decimal `json:"balance"`
}
