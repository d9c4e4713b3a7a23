package ethereum

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/bimakw/pagemarket/internal/config"
	"github.com/bimakw/pagemarket/internal/domain/entities"
	"github.com/bimakw/pagemarket/internal/domain/repositories"
)

var (
	txSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagemarket_tx_submitted_total",
		Help: "Transactions broadcast by action",
	}, []string{"action"})

	txFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagemarket_tx_finished_total",
		Help: "Transactions that reached a final state",
	}, []string{"action", "state"})
)

// TxBackend is the slice of the node API the submitter needs
type TxBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// TxSigner owns the sending account
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// TxHandle follows one broadcast transaction. Updates delivers the pending status
// followed by exactly one final status, then closes.
type TxHandle struct {
	hash    common.Hash
	updates chan entities.TxStatus
	done    chan struct{}

	mu     sync.RWMutex
	status entities.TxStatus
}

func newTxHandle(status entities.TxStatus) *TxHandle {
	h := &TxHandle{
		hash:    status.Hash,
		updates: make(chan entities.TxStatus, 2),
		done:    make(chan struct{}),
		status:  status,
	}
	h.updates <- status
	return h
}

// Hash returns the transaction hash
func (h *TxHandle) Hash() common.Hash {
	return h.hash
}

// Updates streams status changes
func (h *TxHandle) Updates() <-chan entities.TxStatus {
	return h.updates
}

// Done is closed once the handle stops tracking the transaction
func (h *TxHandle) Done() <-chan struct{} {
	return h.done
}

// Status returns the latest observed status
func (h *TxHandle) Status() entities.TxStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// Wait blocks until the transaction is final or ctx ends
func (h *TxHandle) Wait(ctx context.Context) (entities.TxStatus, error) {
	select {
	case <-h.done:
		return h.Status(), nil
	case <-ctx.Done():
		return h.Status(), ctx.Err()
	}
}

func (h *TxHandle) finish(status *entities.TxStatus) {
	if status != nil {
		h.mu.Lock()
		h.status = *status
		h.mu.Unlock()
		h.updates <- *status
	}
	close(h.updates)
	close(h.done)
}

// Submitter signs, broadcasts and follows marketplace transactions
type Submitter struct {
	backend   TxBackend
	signer    TxSigner
	contracts *Contracts
	chainID   *big.Int
	config    config.TxConfig
	logger    *zap.Logger

	// nonce allocation and broadcast are serialized so concurrent submits never collide
	nonceMu   sync.Mutex
	nextNonce uint64
	haveNonce bool

	handlesMu sync.RWMutex
	handles   map[common.Hash]*TxHandle

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSubmitter creates a new transaction submitter
func NewSubmitter(backend TxBackend, signer TxSigner, contracts *Contracts, chainID *big.Int, cfg config.TxConfig, logger *zap.Logger) *Submitter {
	ctx, cancel := context.WithCancel(context.Background())
	return &Submitter{
		backend:   backend,
		signer:    signer,
		contracts: contracts,
		chainID:   chainID,
		config:    cfg,
		logger:    logger,
		handles:   make(map[common.Hash]*TxHandle),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Address returns the sending account
func (s *Submitter) Address() common.Address {
	return s.signer.Address()
}

// Submit broadcasts call using the gas price quoted by policy at this moment
func (s *Submitter) Submit(ctx context.Context, call entities.WriteCall, policy repositories.GasPricePolicy) (repositories.TxTracker, error) {
	contract, err := s.contracts.Get(call.Target)
	if err != nil {
		return nil, err
	}

	data, err := contract.Pack(call.Method, call.Args...)
	if err != nil {
		return nil, err
	}

	gasPrice, err := policy.GasPrice(ctx)
	if err != nil {
		return nil, &entities.LedgerUnavailableError{Op: "gasPrice", Err: err}
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}

	from := s.signer.Address()
	estimate, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     from,
		To:       &contract.Address,
		GasPrice: gasPrice,
		Value:    value,
		Data:     data,
	})
	if err != nil {
		return nil, classifyWriteError(call.Method, err)
	}
	gasLimit := s.gasLimit(estimate)

	s.nonceMu.Lock()
	defer s.nonceMu.Unlock()

	nonce, err := s.allocateNonce(ctx, from)
	if err != nil {
		return nil, &entities.LedgerUnavailableError{Op: "nonce", Err: err}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &contract.Address,
		Value:    value,
		Data:     data,
	})

	signed, err := s.signer.SignTx(tx, s.chainID)
	if err != nil {
		return nil, err
	}

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		s.haveNonce = false
		return nil, classifyWriteError(call.Method, err)
	}
	s.nextNonce = nonce + 1
	s.haveNonce = true

	now := time.Now().UTC()
	handle := newTxHandle(entities.TxStatus{
		Hash:        signed.Hash(),
		TokenID:     call.TokenID,
		Action:      call.Action,
		State:       entities.TxPending,
		GasPrice:    gasPrice,
		SubmittedAt: now,
		UpdatedAt:   now,
	})

	s.handlesMu.Lock()
	s.handles[handle.hash] = handle
	s.handlesMu.Unlock()

	txSubmitted.WithLabelValues(string(call.Action)).Inc()

	s.logger.Info("Transaction broadcast",
		zap.String("tx_hash", handle.hash.Hex()),
		zap.String("method", call.Method),
		zap.Stringer("token_id", call.TokenID),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas_limit", gasLimit),
		zap.String("gas_price", gasPrice.String()),
	)

	s.wg.Add(1)
	go s.awaitConfirmation(handle, contract)

	return handle, nil
}

// Status returns the latest status of a transaction submitted by this process
func (s *Submitter) Status(hash common.Hash) (entities.TxStatus, bool) {
	s.handlesMu.RLock()
	handle, ok := s.handles[hash]
	s.handlesMu.RUnlock()
	if !ok {
		return entities.TxStatus{}, false
	}
	return handle.Status(), true
}

// Close stops every confirmation poller. Broadcast transactions are left alone.
func (s *Submitter) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Submitter) allocateNonce(ctx context.Context, from common.Address) (uint64, error) {
	pending, err := s.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return 0, err
	}
	if s.haveNonce && s.nextNonce > pending {
		return s.nextNonce, nil
	}
	return pending, nil
}

func (s *Submitter) gasLimit(estimate uint64) uint64 {
	if s.config.GasLimitMultiplierPct <= 100 {
		return estimate
	}
	return estimate * s.config.GasLimitMultiplierPct / 100
}

func (s *Submitter) awaitConfirmation(handle *TxHandle, contract *Contract) {
	defer s.wg.Done()

	ctx := s.ctx
	if s.config.ConfirmationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ConfirmationTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(s.config.ConfirmationPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.backend.TransactionReceipt(ctx, handle.hash)
		switch {
		case err == nil && receipt != nil:
			status := s.finalStatus(handle.Status(), receipt, contract)
			txFinished.WithLabelValues(string(status.Action), string(status.State)).Inc()
			s.logger.Info("Transaction final",
				zap.String("tx_hash", handle.hash.Hex()),
				zap.String("state", string(status.State)),
				zap.Uint64("block", status.BlockNumber),
			)
			handle.finish(&status)
			return
		case err != nil && !errors.Is(err, ethereum.NotFound):
			s.logger.Debug("Receipt lookup failed",
				zap.String("tx_hash", handle.hash.Hex()),
				zap.Error(err),
			)
		}

		select {
		case <-ctx.Done():
			if s.ctx.Err() != nil {
				// submitter closed, the transaction may still land
				handle.finish(nil)
				return
			}
			status := handle.Status()
			status.State = entities.TxFailed
			status.Reason = "confirmation timeout"
			status.UpdatedAt = time.Now().UTC()
			txFinished.WithLabelValues(string(status.Action), string(status.State)).Inc()
			s.logger.Warn("Transaction confirmation timed out",
				zap.String("tx_hash", handle.hash.Hex()),
				zap.Duration("timeout", s.config.ConfirmationTimeout),
			)
			handle.finish(&status)
			return
		case <-ticker.C:
		}
	}
}

func (s *Submitter) finalStatus(status entities.TxStatus, receipt *types.Receipt, contract *Contract) entities.TxStatus {
	status.UpdatedAt = time.Now().UTC()
	if receipt.BlockNumber != nil {
		status.BlockNumber = receipt.BlockNumber.Uint64()
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		status.State = entities.TxFailed
		status.Reason = "transaction reverted"
		return status
	}

	logs := make([]types.Log, 0, len(receipt.Logs))
	for _, l := range receipt.Logs {
		if l != nil && l.Address == contract.Address {
			logs = append(logs, *l)
		}
	}
	events, failed := ParseMarketLogs(contract, logs, nil)
	if len(failed) > 0 {
		s.logger.Warn("Some receipt logs could not be parsed",
			zap.String("tx_hash", status.Hash.Hex()),
			zap.Int("failed_count", len(failed)),
		)
	}

	status.State = entities.TxConfirmed
	status.Events = events
	return status
}
