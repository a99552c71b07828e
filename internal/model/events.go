package model

import (
	"encoding/json"
	"strconv"
)

// Event names carried by PoolEventRecord.
const (
	EventPoolCreated   = "poolCreated"
	EventRebind        = "rebind"
	EventUnbind        = "unbind"
	EventOracleState   = "newOracleState"
	EventSwap          = "swap"
	EventJoin          = "join"
	EventExit          = "exit"
	EventTransfer      = "transfer"
	EventSetSwapFee    = "setSwapFee"
	EventSetPublicSwap = "setPublicSwap"
	EventFinalize      = "finalize"
	EventSetController = "setController"
	EventSync          = "sync"
)

// PoolEventRecord is the JSON representation of one decoded pool event as
// delivered by the upstream decoder. Events for a pool arrive with
// non-decreasing timestamps.
type PoolEventRecord struct {
	PoolID    string          `json:"pool_id"`
	EventName string          `json:"event_name"`
	Timestamp int64           `json:"timestamp"`
	TxHash    string          `json:"tx_hash"`
	LogIndex  uint64          `json:"log_index"`
	Block     uint64          `json:"block_number"`
	Decoded   json.RawMessage `json:"decoded"`
}

// SwapID derives the swap record id from the event's transaction coordinates.
func (r PoolEventRecord) SwapID() string {
	return r.TxHash + "-" + strconv.FormatUint(r.LogIndex, 10)
}

// Amount fields below are raw fixed-point integers encoded as decimal
// strings; they are scaled by the relevant token or oracle decimals at
// processing time.

// PoolCreatedEventData is the decoded pool-creation payload.
type PoolCreatedEventData struct {
	Controller string `json:"controller"`
	Crp        bool   `json:"crp"`
	Symbol     string `json:"symbol,omitempty"`
	Name       string `json:"name,omitempty"`
}

// RebindEventData covers both the initial bind and weight/balance updates.
type RebindEventData struct {
	Token        string `json:"token"`
	Balance      string `json:"balance"`
	DenormWeight string `json:"denorm_weight"`
}

// UnbindEventData is the decoded unbind payload.
type UnbindEventData struct {
	Token string `json:"token"`
}

// OracleStateEventData binds a pool token to an oracle proxy.
type OracleStateEventData struct {
	Token       string `json:"token"`
	Oracle      string `json:"oracle"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Decimals    int32  `json:"decimals"`
}

// SwapEventData is the decoded swap payload. PriceIn/PriceOut are raw
// oracle prices, unscaled.
type SwapEventData struct {
	Caller    string `json:"caller"`
	TokenIn   string `json:"token_in"`
	TokenOut  string `json:"token_out"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
	PriceIn   string `json:"price_in"`
	PriceOut  string `json:"price_out"`
	Spread    string `json:"spread"`
	TaxBaseIn string `json:"tax_base_in"`
	User      string `json:"user"`
}

// JoinEventData is the decoded join payload.
type JoinEventData struct {
	Caller   string `json:"caller"`
	TokenIn  string `json:"token_in"`
	AmountIn string `json:"amount_in"`
}

// ExitEventData is the decoded exit payload.
type ExitEventData struct {
	Caller    string `json:"caller"`
	TokenOut  string `json:"token_out"`
	AmountOut string `json:"amount_out"`
}

// TransferEventData is a pool share transfer; the zero address marks
// mint/burn.
type TransferEventData struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
}

// SetSwapFeeEventData carries the raw 18-decimal fee.
type SetSwapFeeEventData struct {
	Fee string `json:"fee"`
}

// SetPublicSwapEventData toggles public swapping.
type SetPublicSwapEventData struct {
	Enabled bool `json:"enabled"`
}

// SetControllerEventData reassigns the pool controller.
type SetControllerEventData struct {
	Controller string `json:"controller"`
}

// SyncEventData asks for a balance resync of one token via chain read-through.
type SyncEventData struct {
	Token string `json:"token"`
}
