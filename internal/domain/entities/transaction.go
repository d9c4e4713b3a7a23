package entities

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Action is a marketplace operation a caller may perform on a token
type Action string

const (
	ActionListForSale Action = "list_for_sale"
	ActionUnlist      Action = "unlist"
	ActionPurchase    Action = "purchase"
	ActionPlaceBid    Action = "place_bid"
	ActionWithdrawBid Action = "withdraw_bid"
	ActionAcceptBid   Action = "accept_bid"
	ActionViewHistory Action = "view_history"
)

// WriteCall describes a state-changing ledger call. Value is the wei attached to the call.
type WriteCall struct {
	Target  string
	Method  string
	Args    []interface{}
	Value   *big.Int
	TokenID TokenID
	Action  Action
}

// TxState is the confirmation state of a submitted transaction
type TxState string

const (
	TxPending   TxState = "pending"
	TxConfirmed TxState = "confirmed"
	TxFailed    TxState = "failed"
)

// TxStatus is a point-in-time observation of a submitted transaction
type TxStatus struct {
	Hash        common.Hash    `json:"hash"`
	TokenID     TokenID        `json:"token_id"`
	Action      Action         `json:"action"`
	State       TxState        `json:"state"`
	BlockNumber uint64         `json:"block_number,omitempty"`
	Events      []HistoryEvent `json:"events,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	GasPrice    *big.Int       `json:"gas_price"`
	SubmittedAt time.Time      `json:"submitted_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Done reports whether the transaction reached a final state
func (s TxStatus) Done() bool {
	return s.State == TxConfirmed || s.State == TxFailed
}
