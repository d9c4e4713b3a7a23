package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/pagemarket/internal/config"
	"github.com/bimakw/pagemarket/internal/domain/entities"
	"github.com/bimakw/pagemarket/internal/domain/market"
	"github.com/bimakw/pagemarket/internal/domain/repositories"
)

// ErrWalletNotConfigured is returned by Execute when the process has no signing key
var ErrWalletNotConfigured = errors.New("wallet not configured")

// ActionRequest asks the wallet to perform one marketplace action.
// Price is a decimal ether amount: the list price, the bid, or the purchase payment.
type ActionRequest struct {
	Action   entities.Action `json:"action"`
	Price    string          `json:"price,omitempty"`
	Resubmit bool            `json:"resubmit,omitempty"`
}

// Quote is the exact payment a purchase requires. Bid and BidDonation are set
// while the token carries an open bid.
type Quote struct {
	TokenID     entities.TokenID `json:"token_id"`
	MinPrice    *big.Int         `json:"min_price"`
	Donation    *big.Int         `json:"donation"`
	Total       *big.Int         `json:"total"`
	Bid         *big.Int         `json:"bid,omitempty"`
	BidDonation *big.Int         `json:"bid_donation,omitempty"`
}

// LedgerDonationQuoter asks the Token contract for the donation owed on an amount
type LedgerDonationQuoter struct {
	reader repositories.LedgerReader
}

// NewLedgerDonationQuoter creates a quoter backed by calculateDonationFromValue
func NewLedgerDonationQuoter(reader repositories.LedgerReader) *LedgerDonationQuoter {
	return &LedgerDonationQuoter{reader: reader}
}

// Donation returns the donation in wei owed on amount
func (q *LedgerDonationQuoter) Donation(ctx context.Context, amount *big.Int) (*big.Int, error) {
	raw, err := q.reader.Call(ctx, entities.DonationQuery(amount))
	if err != nil {
		return nil, err
	}
	return UintTransform(raw), nil
}

type pendingKey struct {
	id     entities.TokenID
	action entities.Action
}

type trackedToken struct {
	sub  *Subscription[entities.TokenState]
	seen lastSeen
}

func tokenSeen(t *trackedToken) *lastSeen { return &t.seen }

// MarketService tracks token state through the poller and executes marketplace
// actions with the configured wallet
type MarketService struct {
	poller    *Poller
	reader    repositories.LedgerReader
	quoter    market.DonationQuoter
	submitter repositories.TransactionSubmitter
	gas       repositories.GasPricePolicy
	config    config.PollerConfig
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	tracked map[entities.TokenID]*trackedToken

	// a nil tracker marks a submission still in progress
	pendingMu sync.Mutex
	pending   map[pendingKey]repositories.TxTracker
}

// NewMarketService creates a new market service. submitter and gas may be nil, in
// which case the service is read-only. Tokens no read touches within
// cfg.IdleTimeout stop being polled.
func NewMarketService(
	poller *Poller,
	reader repositories.LedgerReader,
	submitter repositories.TransactionSubmitter,
	gas repositories.GasPricePolicy,
	cfg config.PollerConfig,
	logger *zap.Logger,
) *MarketService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &MarketService{
		poller:    poller,
		reader:    reader,
		quoter:    NewLedgerDonationQuoter(reader),
		submitter: submitter,
		gas:       gas,
		config:    cfg,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		tracked:   make(map[entities.TokenID]*trackedToken),
		pending:   make(map[pendingKey]repositories.TxTracker),
	}

	if cfg.IdleTimeout > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sweepIdle(ctx, cfg.IdleTimeout, func(now time.Time) { s.evictIdle(now) })
		}()
	}
	return s
}

// Track starts polling the state of id. Tracking an already tracked token only
// marks it as recently used. At the MaxTracked cap the least recently used token
// is untracked to make room.
func (s *MarketService) Track(id entities.TokenID) error {
	now := time.Now()

	s.mu.Lock()
	if t, ok := s.tracked[id]; ok {
		t.seen.touch(now)
		s.mu.Unlock()
		return nil
	}

	var (
		evictedID entities.TokenID
		evicted   *trackedToken
	)
	if s.config.MaxTracked > 0 && len(s.tracked) >= s.config.MaxTracked {
		evictedID, _ = leastRecent(s.tracked, tokenSeen)
		evicted = s.tracked[evictedID]
		delete(s.tracked, evictedID)
	}

	sub, err := Watch(s.poller, entities.TokenStateQuery(id, s.config.DefaultInterval), TokenStateTransform(id), entities.EmptyTokenState(id))
	if err != nil {
		if evicted != nil {
			s.tracked[evictedID] = evicted
		}
		s.mu.Unlock()
		return fmt.Errorf("failed to track token %s: %w", id, err)
	}
	t := &trackedToken{sub: sub}
	t.seen.touch(now)
	s.tracked[id] = t

	s.wg.Add(1)
	go s.follow(id, sub)
	s.mu.Unlock()

	if evicted != nil {
		evicted.sub.Close()
		feedEvictions.WithLabelValues("token", "capacity").Inc()
		s.logger.Info("Untracked least recently used token", zap.Stringer("token_id", evictedID))
	}
	s.logger.Info("Tracking token", zap.Stringer("token_id", id))
	return nil
}

// Untrack stops polling the state of id
func (s *MarketService) Untrack(id entities.TokenID) {
	s.mu.Lock()
	t, ok := s.tracked[id]
	delete(s.tracked, id)
	s.mu.Unlock()

	if ok {
		t.sub.Close()
		s.logger.Info("Untracked token", zap.Stringer("token_id", id))
	}
}

// evictIdle untracks every token no read has touched within the idle timeout
// and returns how many were released
func (s *MarketService) evictIdle(now time.Time) int {
	if s.config.IdleTimeout <= 0 {
		return 0
	}

	s.mu.Lock()
	ids := idleKeys(s.tracked, tokenSeen, now, s.config.IdleTimeout)
	evicted := make([]*trackedToken, 0, len(ids))
	for _, id := range ids {
		evicted = append(evicted, s.tracked[id])
		delete(s.tracked, id)
	}
	s.mu.Unlock()

	for i, t := range evicted {
		t.sub.Close()
		feedEvictions.WithLabelValues("token", "idle").Inc()
		s.logger.Info("Untracked idle token", zap.Stringer("token_id", ids[i]))
	}
	return len(evicted)
}

// Tracked returns the ids currently being polled
func (s *MarketService) Tracked() []entities.TokenID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]entities.TokenID, 0, len(s.tracked))
	for id := range s.tracked {
		ids = append(ids, id)
	}
	return ids
}

// Close untracks every token and waits for followers to exit
func (s *MarketService) Close() {
	s.cancel()
	for _, id := range s.Tracked() {
		s.Untrack(id)
	}
	s.wg.Wait()
}

// State returns the latest sampled state of id. An untracked token, or one whose
// first poll has not landed yet, is read from the ledger directly.
func (s *MarketService) State(ctx context.Context, id entities.TokenID) (entities.TokenState, error) {
	s.mu.RLock()
	t, ok := s.tracked[id]
	s.mu.RUnlock()

	if ok {
		t.seen.touch(time.Now())
		if state, ready := t.sub.Latest(); ready {
			return state, nil
		}
	}

	raw, err := s.reader.Call(ctx, entities.TokenStateQuery(id, 0))
	if err != nil {
		return entities.TokenState{}, err
	}
	return TokenStateTransform(id)(raw), nil
}

// AllowedActions lists what caller may do with id in its latest state
func (s *MarketService) AllowedActions(ctx context.Context, id entities.TokenID, caller common.Address) ([]entities.Action, error) {
	state, err := s.State(ctx, id)
	if err != nil {
		return nil, err
	}
	return AllowedActionsFor(state, caller), nil
}

// AllowedActionsFor lists what caller may do with a token in state
func AllowedActionsFor(state entities.TokenState, caller common.Address) []entities.Action {
	return market.NewMachine(state).AllowedActions(caller)
}

// Quote returns the exact payment a purchase of id requires
func (s *MarketService) Quote(ctx context.Context, id entities.TokenID) (*Quote, error) {
	machine, err := s.machine(ctx, id)
	if err != nil {
		return nil, err
	}

	total, err := machine.PurchasePrice(ctx, s.quoter)
	if err != nil {
		return nil, err
	}

	minPrice := new(big.Int)
	if p := machine.State().Offer.MinPrice; p != nil {
		minPrice.Set(p)
	}
	quote := &Quote{
		TokenID:  id,
		MinPrice: minPrice,
		Donation: new(big.Int).Sub(total, minPrice),
		Total:    total,
	}

	if bid := machine.State().Bid; bid.HasBid && bid.Value != nil {
		donation, err := s.quoter.Donation(ctx, bid.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to quote bid donation: %w", err)
		}
		quote.Bid = new(big.Int).Set(bid.Value)
		quote.BidDonation = donation
	}
	return quote, nil
}

// Execute validates req against the latest state of id and submits it with the
// wallet as caller. A still pending write for the same token and action is refused
// with entities.ErrPendingTransaction unless req.Resubmit is set; a submission
// still in flight is always refused.
func (s *MarketService) Execute(ctx context.Context, id entities.TokenID, req ActionRequest) (repositories.TxTracker, error) {
	if s.submitter == nil || s.gas == nil {
		return nil, ErrWalletNotConfigured
	}

	key := pendingKey{id: id, action: req.Action}
	previous, err := s.reserve(key, req.Resubmit)
	if err != nil {
		marketActions.WithLabelValues(string(req.Action), "pending").Inc()
		return nil, err
	}

	machine, err := s.machine(ctx, id)
	if err != nil {
		s.release(key, previous)
		return nil, err
	}

	call, err := s.buildCall(ctx, machine, req)
	if err != nil {
		s.release(key, previous)
		s.recordResult(req.Action, err)
		return nil, err
	}

	tracker, err := s.submitter.Submit(ctx, call, s.gas)
	if err != nil {
		s.release(key, previous)
		s.recordResult(req.Action, err)
		s.logger.Warn("Action submission failed",
			zap.Stringer("token_id", id),
			zap.String("action", string(req.Action)),
			zap.Error(err),
		)
		return nil, err
	}
	s.recordResult(req.Action, nil)

	s.pendingMu.Lock()
	s.pending[key] = tracker
	s.pendingMu.Unlock()

	s.logger.Info("Action submitted",
		zap.Stringer("token_id", id),
		zap.String("action", string(req.Action)),
		zap.String("tx_hash", tracker.Hash().Hex()),
		zap.Bool("resubmit", req.Resubmit),
	)

	return tracker, nil
}

// Transaction returns the status of a transaction submitted by this process
func (s *MarketService) Transaction(hash common.Hash) (entities.TxStatus, bool) {
	if s.submitter == nil {
		return entities.TxStatus{}, false
	}
	return s.submitter.Status(hash)
}

func (s *MarketService) buildCall(ctx context.Context, machine *market.Machine, req ActionRequest) (entities.WriteCall, error) {
	caller := s.submitter.Address()

	switch req.Action {
	case entities.ActionListForSale:
		price, err := parseAmount(req)
		if err != nil {
			return entities.WriteCall{}, err
		}
		return machine.ListForSale(caller, price)
	case entities.ActionUnlist:
		return machine.Unlist(caller)
	case entities.ActionPurchase:
		if strings.TrimSpace(req.Price) == "" {
			// no explicit payment: pay the current quote
			price, err := machine.PurchasePrice(ctx, s.quoter)
			if err != nil {
				return entities.WriteCall{}, err
			}
			return machine.PurchaseAtQuote(caller, price)
		}
		payment, err := parseAmount(req)
		if err != nil {
			return entities.WriteCall{}, err
		}
		return machine.Purchase(ctx, caller, payment, s.quoter)
	case entities.ActionPlaceBid:
		value, err := parseAmount(req)
		if err != nil {
			return entities.WriteCall{}, err
		}
		return machine.PlaceBid(caller, value)
	case entities.ActionWithdrawBid:
		return machine.WithdrawBid(caller)
	case entities.ActionAcceptBid:
		return machine.AcceptBid(caller)
	default:
		return entities.WriteCall{}, &entities.ValidationError{Action: req.Action, Reason: "unsupported action"}
	}
}

// machine wraps the latest state of id
func (s *MarketService) machine(ctx context.Context, id entities.TokenID) (*market.Machine, error) {
	state, err := s.State(ctx, id)
	if err != nil {
		return nil, err
	}
	return market.NewMachine(state), nil
}

// reserve claims key for one submission and returns the pending transaction it
// supersedes, if any. Finished transactions free the key. An unfinished one is
// only superseded on resubmit, and a claim still in flight is never shared.
func (s *MarketService) reserve(key pendingKey, resubmit bool) (repositories.TxTracker, error) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	tracker, ok := s.pending[key]
	switch {
	case !ok:
	case tracker == nil:
		return nil, fmt.Errorf("%w: submission in progress", entities.ErrPendingTransaction)
	case isDone(tracker):
		tracker = nil
	case !resubmit:
		return nil, fmt.Errorf("%w: %s", entities.ErrPendingTransaction, tracker.Hash().Hex())
	}

	s.pending[key] = nil
	return tracker, nil
}

// release drops a claim whose submission failed, restoring the transaction it
// would have superseded
func (s *MarketService) release(key pendingKey, previous repositories.TxTracker) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	if previous != nil {
		s.pending[key] = previous
		return
	}
	delete(s.pending, key)
}

func isDone(tracker repositories.TxTracker) bool {
	select {
	case <-tracker.Done():
		return true
	default:
		return false
	}
}

func (s *MarketService) follow(id entities.TokenID, sub *Subscription[entities.TokenState]) {
	defer s.wg.Done()

	for result := range sub.C() {
		s.logger.Debug("Token state changed",
			zap.Stringer("token_id", id),
			zap.String("owner", result.Value.Owner.Hex()),
			zap.Bool("for_sale", result.Value.Offer.IsForSale),
			zap.Bool("has_bid", result.Value.Bid.HasBid),
		)
	}
}

func (s *MarketService) recordResult(action entities.Action, err error) {
	result := "submitted"
	switch {
	case err == nil:
	case entities.IsValidationError(err):
		result = "invalid"
	case entities.IsContractRejection(err), errors.Is(err, entities.ErrInsufficientFunds):
		result = "rejected"
	default:
		result = "error"
	}
	marketActions.WithLabelValues(string(action), result).Inc()
}

func parseAmount(req ActionRequest) (*big.Int, error) {
	if strings.TrimSpace(req.Price) == "" {
		return nil, &entities.ValidationError{Action: req.Action, Reason: "price is required"}
	}
	wei, err := entities.ParseEther(req.Price)
	if err != nil {
		return nil, &entities.ValidationError{Action: req.Action, Reason: err.Error()}
	}
	return wei, nil
}
