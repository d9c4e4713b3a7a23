package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/bimakw/pagemarket/internal/domain/entities"
)

// ContractCaller is the slice of the node API the reader needs
type ContractCaller interface {
	CallContract(ctx context.Context, to common.Address, data []byte, block *big.Int) ([]byte, error)
	BatchCallContract(ctx context.Context, to common.Address, calls [][]byte, block *big.Int) ([]BatchResult, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Reader performs read-only contract calls and decodes their results.
// In-flight calls are bounded by a semaphore shared by all pollers.
type Reader struct {
	caller    ContractCaller
	contracts *Contracts
	sem       *semaphore.Weighted
	logger    *zap.Logger
}

// NewReader creates a new ledger reader
func NewReader(caller ContractCaller, contracts *Contracts, maxConcurrentCalls int64, logger *zap.Logger) *Reader {
	if maxConcurrentCalls < 1 {
		maxConcurrentCalls = 1
	}
	return &Reader{
		caller:    caller,
		contracts: contracts,
		sem:       semaphore.NewWeighted(maxConcurrentCalls),
		logger:    logger,
	}
}

// Call executes query and returns the decoded outputs
func (r *Reader) Call(ctx context.Context, query entities.LedgerQuery) (entities.RawValue, error) {
	contract, err := r.contracts.Get(query.Target)
	if err != nil {
		return nil, err
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, &entities.LedgerUnavailableError{Op: query.Method, Err: err}
	}
	defer r.sem.Release(1)

	if methods, ok := ViewMethods(query.Method); ok {
		return r.callView(ctx, contract, query, methods)
	}

	data, err := contract.Pack(query.Method, query.Args...)
	if err != nil {
		return nil, err
	}

	output, err := r.caller.CallContract(ctx, contract.Address, data, nil)
	if err != nil {
		return nil, classifyReadError(query.Method, err)
	}

	return contract.Unpack(query.Method, output)
}

// callView samples every method of a view at one block so the results are consistent
func (r *Reader) callView(ctx context.Context, contract *Contract, query entities.LedgerQuery, methods []string) (entities.RawValue, error) {
	block, err := r.caller.BlockNumber(ctx)
	if err != nil {
		return nil, &entities.LedgerUnavailableError{Op: query.Method, Err: err}
	}

	calls := make([][]byte, len(methods))
	for i, method := range methods {
		data, err := contract.Pack(method, query.Args...)
		if err != nil {
			return nil, err
		}
		calls[i] = data
	}

	results, err := r.caller.BatchCallContract(ctx, contract.Address, calls, new(big.Int).SetUint64(block))
	if err != nil {
		return nil, &entities.LedgerUnavailableError{Op: query.Method, Err: err}
	}
	if len(results) != len(methods) {
		return nil, &entities.LedgerUnavailableError{
			Op:  query.Method,
			Err: fmt.Errorf("expected %d batch results, got %d", len(methods), len(results)),
		}
	}

	raw := make(entities.RawValue, len(methods))
	for i, method := range methods {
		if results[i].Err != nil {
			return nil, classifyReadError(method, results[i].Err)
		}
		values, err := contract.Unpack(method, results[i].Data)
		if err != nil {
			return nil, err
		}
		raw[i] = values
	}

	r.logger.Debug("Sampled view",
		zap.String("query", query.Key()),
		zap.Uint64("block", block),
	)

	return raw, nil
}
