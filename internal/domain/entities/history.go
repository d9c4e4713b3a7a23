package entities

import (
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names a marketplace event emitted by the Token contract
type EventKind string

const (
	EventMint             EventKind = "Mint"
	EventPageOffered      EventKind = "PageOffered"
	EventPageNoLongerSale EventKind = "PageNoLongerForSale"
	EventPageBidEntered   EventKind = "PageBidEntered"
	EventPageBidWithdrawn EventKind = "PageBidWithdrawn"
	EventPageBought       EventKind = "PageBought"
)

// HistoryEvent is one entry of a token's transaction history
type HistoryEvent struct {
	Kind        EventKind      `json:"kind"`
	TokenID     TokenID        `json:"token_id"`
	BlockNumber uint64         `json:"block_number"`
	TxIndex     uint           `json:"tx_index"`
	LogIndex    uint           `json:"log_index"`
	TxHash      common.Hash    `json:"tx_hash"`
	From        common.Address `json:"from"`
	To          common.Address `json:"to"`
	Value       *big.Int       `json:"value,omitempty"`
	Timestamp   time.Time      `json:"timestamp,omitempty"`
}

// SortHistory orders events by (block number, transaction index, log index) ascending.
// This is the causal order; arrival order at the client is not.
func SortHistory(events []HistoryEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		if a.TxIndex != b.TxIndex {
			return a.TxIndex < b.TxIndex
		}
		return a.LogIndex < b.LogIndex
	})
}
