package repositories

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bimakw/pagemarket/internal/domain/entities"
)

// LedgerReader defines read-only access to ledger contracts
type LedgerReader interface {
	// Call performs a read-only call. Failures are reported as
	// *entities.LedgerUnavailableError or *entities.MethodRevertedError and never retried.
	Call(ctx context.Context, query entities.LedgerQuery) (entities.RawValue, error)
}

// HistoryRepository defines access to a token's on-ledger event log
type HistoryRepository interface {
	// TokenHistory returns the events for a token ordered by block and transaction index
	TokenHistory(ctx context.Context, id entities.TokenID) ([]entities.HistoryEvent, error)
}

// Wallet supplies the caller identity for write actions
type Wallet interface {
	// Address returns the account that signs transactions
	Address() common.Address
}

// GasPricePolicy yields the gas price to use for a submission
type GasPricePolicy interface {
	GasPrice(ctx context.Context) (*big.Int, error)
}

// TxTracker follows one broadcast transaction until it is final
type TxTracker interface {
	Hash() common.Hash
	Status() entities.TxStatus
	// Updates delivers the pending status followed by exactly one final status, then closes
	Updates() <-chan entities.TxStatus
	Done() <-chan struct{}
	Wait(ctx context.Context) (entities.TxStatus, error)
}

// TransactionSubmitter signs and broadcasts write calls
type TransactionSubmitter interface {
	Address() common.Address
	// Submit broadcasts call with the gas price policy quotes at submission time.
	// Pre-broadcast rejections are returned as errors; no tracker is created for them.
	Submit(ctx context.Context, call entities.WriteCall, policy GasPricePolicy) (TxTracker, error)
	Status(hash common.Hash) (entities.TxStatus, bool)
}
