package ethereum

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/bimakw/pagemarket/internal/domain/entities"
)

const executionReverted = "execution reverted"

// revertReason reports whether err is a contract revert and, if so, its reason
func revertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if raw, ok := dataErr.ErrorData().(string); ok {
			if data, decodeErr := hexutil.Decode(raw); decodeErr == nil {
				if reason := decodeRevertReason(data); reason != "" {
					return reason, true
				}
			}
		}
	}

	msg := err.Error()
	idx := strings.Index(msg, executionReverted)
	if idx < 0 {
		return "", false
	}

	reason := strings.TrimSpace(strings.TrimPrefix(msg[idx+len(executionReverted):], ":"))
	return reason, true
}

// classifyReadError maps a failed read into MethodReverted or LedgerUnavailable
func classifyReadError(method string, err error) error {
	if reason, ok := revertReason(err); ok {
		return &entities.MethodRevertedError{Method: method, Reason: reason}
	}
	return &entities.LedgerUnavailableError{Op: method, Err: err}
}

// classifyWriteError maps a failed estimate/send into the write-path taxonomy
func classifyWriteError(method string, err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "insufficient funds") {
		return entities.ErrInsufficientFunds
	}
	if reason, ok := revertReason(err); ok {
		return &entities.ContractRejectionError{Method: method, Reason: reason}
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		// JSON-RPC level refusals (nonce too low, underpriced, ...) come from the ledger itself
		return &entities.ContractRejectionError{Method: method, Reason: rpcErr.Error()}
	}
	return &entities.LedgerUnavailableError{Op: method, Err: err}
}
