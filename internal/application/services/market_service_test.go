package services

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/pagemarket/internal/config"
	"github.com/bimakw/pagemarket/internal/domain/entities"
	"github.com/bimakw/pagemarket/internal/domain/repositories"
	"github.com/bimakw/pagemarket/internal/testutil"
)

type staticGas struct{}

func (staticGas) GasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

// onePercent registers the ledger's 1% donation quote for amount
func onePercent(reader *testutil.MockLedgerReader, amount *big.Int) {
	donation := new(big.Int).Div(amount, big.NewInt(100))
	reader.SetResult(entities.DonationQuery(amount), entities.RawValue{donation})
}

type marketFixture struct {
	service   *MarketService
	poller    *Poller
	reader    *testutil.MockLedgerReader
	submitter *testutil.MockSubmitter
}

func setupMarketServiceTest(t *testing.T, wallet *testutil.MockSubmitter) *marketFixture {
	t.Helper()
	return setupMarketServiceTestWithConfig(t, wallet, config.PollerConfig{DefaultInterval: time.Hour, SubscriberBuffer: 8})
}

func setupMarketServiceTestWithConfig(t *testing.T, wallet *testutil.MockSubmitter, cfg config.PollerConfig) *marketFixture {
	t.Helper()

	reader := testutil.NewMockLedgerReader()
	poller := NewPoller(reader, cfg, zap.NewNop())

	var submitter repositories.TransactionSubmitter
	var gas repositories.GasPricePolicy
	if wallet != nil {
		submitter = wallet
		gas = staticGas{}
	}

	service := NewMarketService(poller, reader, submitter, gas, cfg, zap.NewNop())
	t.Cleanup(func() {
		service.Close()
		poller.Stop()
	})

	return &marketFixture{service: service, poller: poller, reader: reader, submitter: wallet}
}

// waitForState blocks until the tracked state of id satisfies ok
func waitForState(t *testing.T, f *marketFixture, id entities.TokenID, ok func(entities.TokenState) bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		f.service.mu.RLock()
		tracked := f.service.tracked[id]
		f.service.mu.RUnlock()
		if tracked != nil {
			if state, ready := tracked.sub.Latest(); ready && ok(state) {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for token %s state", id)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestMarketService_Token42Scenario(t *testing.T) {
	alice := setupMarketServiceTest(t, testutil.NewMockSubmitter(testutil.AliceAddress))
	ctx := context.Background()
	query := entities.TokenStateQuery(42, time.Hour)

	alice.reader.SetResult(query, testutil.RawTokenState(entities.EmptyTokenState(42)))
	if err := alice.service.Track(42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitForState(t, alice, 42, func(s entities.TokenState) bool { return !s.IsOwned() })

	// mint observed
	alice.reader.SetResult(query, testutil.RawTokenState(testutil.CreateTestTokenState(42)))
	alice.poller.tick(ctx, query.Key())
	waitForState(t, alice, 42, func(s entities.TokenState) bool { return s.Owner == testutil.AliceAddress })

	tracker, err := alice.service.Execute(ctx, 42, ActionRequest{Action: entities.ActionListForSale, Price: "1.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	call := alice.submitter.SubmittedCalls()[0]
	if call.Method != "offerPageForSale" || call.Args[1].(*big.Int).Cmp(testutil.Ether(1)) != 0 {
		t.Errorf("unexpected list call: %+v", call)
	}
	alice.submitter.Tracker(tracker.Hash()).Finish(entities.TxConfirmed)

	listed := testutil.CreateTestTokenState(42, testutil.WithOffer(testutil.Ether(1)))
	alice.reader.SetResult(query, testutil.RawTokenState(listed))
	alice.poller.tick(ctx, query.Key())
	waitForState(t, alice, 42, func(s entities.TokenState) bool { return s.Offer.IsForSale })

	state, err := alice.service.State(ctx, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Offer.Seller != testutil.AliceAddress || state.Offer.MinPrice.Cmp(testutil.Ether(1)) != 0 {
		t.Errorf("unexpected offer: %+v", state.Offer)
	}

	// Bob buys through his own process, reading the same ledger
	bob := setupMarketServiceTest(t, testutil.NewMockSubmitter(testutil.BobAddress))
	bob.reader.SetResult(entities.TokenStateQuery(42, 0), testutil.RawTokenState(listed))
	onePercent(bob.reader, testutil.Ether(1))

	if _, err := bob.service.Execute(ctx, 42, ActionRequest{Action: entities.ActionPurchase, Price: "1.01"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	buy := bob.submitter.SubmittedCalls()[0]
	expected := new(big.Int).Add(testutil.Ether(1), big.NewInt(1e16))
	if buy.Method != "buyPage" || buy.Value.Cmp(expected) != 0 {
		t.Errorf("expected buyPage paying %s, got %s paying %s", expected, buy.Method, buy.Value)
	}

	// confirmed in the next tick
	alice.reader.SetResult(query, testutil.RawTokenState(testutil.CreateTestTokenState(42, testutil.WithOwner(testutil.BobAddress))))
	alice.poller.tick(ctx, query.Key())
	waitForState(t, alice, 42, func(s entities.TokenState) bool {
		return s.Owner == testutil.BobAddress && !s.Offer.IsForSale
	})
}

func TestMarketService_PendingActionIsNotResubmitted(t *testing.T) {
	f := setupMarketServiceTest(t, testutil.NewMockSubmitter(testutil.AliceAddress))
	ctx := context.Background()
	f.reader.SetResult(entities.TokenStateQuery(1, 0), testutil.RawTokenState(testutil.CreateTestTokenState(1)))

	req := ActionRequest{Action: entities.ActionListForSale, Price: "2"}
	first, err := f.service.Execute(ctx, 1, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.service.Execute(ctx, 1, req); !errors.Is(err, entities.ErrPendingTransaction) {
		t.Fatalf("expected ErrPendingTransaction, got %v", err)
	}

	if _, err := f.service.Execute(ctx, 1, ActionRequest{Action: entities.ActionListForSale, Price: "3", Resubmit: true}); err != nil {
		t.Fatalf("expected explicit resubmit to go through, got %v", err)
	}
	if n := len(f.submitter.SubmittedCalls()); n != 2 {
		t.Errorf("expected 2 submissions, got %d", n)
	}

	f.submitter.Tracker(first.Hash()).Finish(entities.TxFailed)
	// the resubmitted transaction is still pending
	if _, err := f.service.Execute(ctx, 1, req); !errors.Is(err, entities.ErrPendingTransaction) {
		t.Errorf("expected ErrPendingTransaction while the resubmission is pending, got %v", err)
	}
}

func TestMarketService_ConcurrentExecuteSubmitsOnce(t *testing.T) {
	wallet := testutil.NewMockSubmitter(testutil.AliceAddress)
	entered := make(chan struct{})
	release := make(chan struct{})
	wallet.SubmitFunc = func(ctx context.Context, call entities.WriteCall, policy repositories.GasPricePolicy) (repositories.TxTracker, error) {
		close(entered)
		<-release
		return testutil.NewMockTxTracker(entities.TxStatus{
			Hash:    common.HexToHash("0xabc"),
			TokenID: call.TokenID,
			Action:  call.Action,
			State:   entities.TxPending,
		}), nil
	}
	f := setupMarketServiceTest(t, wallet)
	f.reader.SetResult(entities.TokenStateQuery(1, 0), testutil.RawTokenState(testutil.CreateTestTokenState(1)))

	req := ActionRequest{Action: entities.ActionListForSale, Price: "2"}
	done := make(chan error, 1)
	go func() {
		_, err := f.service.Execute(context.Background(), 1, req)
		done <- err
	}()
	<-entered

	// the first submission has not returned yet
	if _, err := f.service.Execute(context.Background(), 1, req); !errors.Is(err, entities.ErrPendingTransaction) {
		t.Errorf("expected ErrPendingTransaction while submitting, got %v", err)
	}
	resubmit := ActionRequest{Action: entities.ActionListForSale, Price: "2", Resubmit: true}
	if _, err := f.service.Execute(context.Background(), 1, resubmit); !errors.Is(err, entities.ErrPendingTransaction) {
		t.Errorf("expected resubmit to wait for the in-flight submission, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(wallet.SubmittedCalls()); n != 1 {
		t.Errorf("expected exactly 1 submission, got %d", n)
	}
	if _, err := f.service.Execute(context.Background(), 1, req); !errors.Is(err, entities.ErrPendingTransaction) {
		t.Errorf("expected ErrPendingTransaction once submitted, got %v", err)
	}
}

func TestMarketService_FailedResubmitKeepsPendingTransaction(t *testing.T) {
	wallet := testutil.NewMockSubmitter(testutil.AliceAddress)
	f := setupMarketServiceTest(t, wallet)
	ctx := context.Background()
	f.reader.SetResult(entities.TokenStateQuery(1, 0), testutil.RawTokenState(testutil.CreateTestTokenState(1)))

	req := ActionRequest{Action: entities.ActionListForSale, Price: "2"}
	first, err := f.service.Execute(ctx, 1, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wallet.SubmitFunc = func(ctx context.Context, call entities.WriteCall, policy repositories.GasPricePolicy) (repositories.TxTracker, error) {
		return nil, entities.ErrInsufficientFunds
	}
	req.Resubmit = true
	if _, err := f.service.Execute(ctx, 1, req); !errors.Is(err, entities.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	req.Resubmit = false
	_, err = f.service.Execute(ctx, 1, req)
	if !errors.Is(err, entities.ErrPendingTransaction) {
		t.Fatalf("expected the original transaction to stay pending, got %v", err)
	}
	if !strings.Contains(err.Error(), first.Hash().Hex()) {
		t.Errorf("expected error to name %s, got %v", first.Hash().Hex(), err)
	}
}

func TestMarketService_PendingClearsWhenFinal(t *testing.T) {
	f := setupMarketServiceTest(t, testutil.NewMockSubmitter(testutil.AliceAddress))
	ctx := context.Background()
	f.reader.SetResult(entities.TokenStateQuery(1, 0), testutil.RawTokenState(testutil.CreateTestTokenState(1)))

	req := ActionRequest{Action: entities.ActionListForSale, Price: "2"}
	tracker, err := f.service.Execute(ctx, 1, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.submitter.Tracker(tracker.Hash()).Finish(entities.TxFailed)

	if _, err := f.service.Execute(ctx, 1, req); err != nil {
		t.Errorf("expected a retry after the failed transaction, got %v", err)
	}
}

func TestMarketService_Quote(t *testing.T) {
	f := setupMarketServiceTest(t, nil)
	ctx := context.Background()

	price, _ := entities.ParseEther("0.5")
	f.reader.SetResult(entities.TokenStateQuery(3, 0), testutil.RawTokenState(testutil.CreateTestTokenState(3, testutil.WithOffer(price))))
	onePercent(f.reader, price)

	quote, err := f.service.Quote(ctx, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.MinPrice.Cmp(price) != 0 {
		t.Errorf("expected min price %s, got %s", price, quote.MinPrice)
	}
	if quote.Donation.Cmp(big.NewInt(5e15)) != 0 {
		t.Errorf("expected donation 5e15, got %s", quote.Donation)
	}
	if entities.FormatEther(quote.Total) != "0.505" {
		t.Errorf("expected total 0.505, got %s", entities.FormatEther(quote.Total))
	}

	if quote.Bid != nil || quote.BidDonation != nil {
		t.Errorf("expected no bid quote without a bid, got %s / %s", quote.Bid, quote.BidDonation)
	}

	f.reader.SetResult(entities.TokenStateQuery(4, 0), testutil.RawTokenState(testutil.CreateTestTokenState(4)))
	if _, err := f.service.Quote(ctx, 4); !entities.IsValidationError(err) {
		t.Errorf("expected ValidationError for an unlisted token, got %v", err)
	}
}

func TestMarketService_QuoteIncludesBidDonation(t *testing.T) {
	f := setupMarketServiceTest(t, nil)
	ctx := context.Background()

	state := testutil.CreateTestTokenState(6,
		testutil.WithOffer(testutil.Ether(2)),
		testutil.WithBid(testutil.BobAddress, testutil.Ether(1)),
	)
	f.reader.SetResult(entities.TokenStateQuery(6, 0), testutil.RawTokenState(state))
	onePercent(f.reader, testutil.Ether(2))
	onePercent(f.reader, testutil.Ether(1))

	quote, err := f.service.Quote(ctx, 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Bid == nil || quote.Bid.Cmp(testutil.Ether(1)) != 0 {
		t.Errorf("expected bid of 1 ether, got %v", quote.Bid)
	}
	if quote.BidDonation == nil || quote.BidDonation.Cmp(big.NewInt(1e16)) != 0 {
		t.Errorf("expected bid donation 1e16, got %v", quote.BidDonation)
	}
	if quote.Donation.Cmp(big.NewInt(2e16)) != 0 {
		t.Errorf("expected offer donation 2e16, got %s", quote.Donation)
	}

	f.reader.SetError(entities.DonationQuery(testutil.Ether(1)), &entities.LedgerUnavailableError{Op: "calculateDonationFromValue", Err: errors.New("timeout")})
	if _, err := f.service.Quote(ctx, 6); !entities.IsLedgerUnavailable(err) {
		t.Errorf("expected LedgerUnavailableError, got %v", err)
	}
}

func TestMarketService_PurchaseWithoutPricePaysQuote(t *testing.T) {
	f := setupMarketServiceTest(t, testutil.NewMockSubmitter(testutil.BobAddress))
	f.reader.SetResult(entities.TokenStateQuery(5, 0), testutil.RawTokenState(testutil.CreateTestTokenState(5, testutil.WithOffer(testutil.Ether(2)))))
	onePercent(f.reader, testutil.Ether(2))

	if _, err := f.service.Execute(context.Background(), 5, ActionRequest{Action: entities.ActionPurchase}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := new(big.Int).Add(testutil.Ether(2), big.NewInt(2e16))
	if v := f.submitter.SubmittedCalls()[0].Value; v.Cmp(expected) != 0 {
		t.Errorf("expected payment %s, got %s", expected, v)
	}
	if n := f.reader.CallCount(entities.DonationQuery(testutil.Ether(2))); n != 1 {
		t.Errorf("expected the donation to be quoted once, got %d", n)
	}
}

func TestMarketService_ExecuteValidation(t *testing.T) {
	tests := []struct {
		name   string
		wallet *testutil.MockSubmitter
		state  entities.TokenState
		req    ActionRequest
	}{
		{
			name:   "malformed price",
			wallet: testutil.NewMockSubmitter(testutil.AliceAddress),
			state:  testutil.CreateTestTokenState(9),
			req:    ActionRequest{Action: entities.ActionListForSale, Price: "one ether"},
		},
		{
			name:   "missing price",
			wallet: testutil.NewMockSubmitter(testutil.BobAddress),
			state:  testutil.CreateTestTokenState(9),
			req:    ActionRequest{Action: entities.ActionPlaceBid},
		},
		{
			name:   "too many decimals",
			wallet: testutil.NewMockSubmitter(testutil.BobAddress),
			state:  testutil.CreateTestTokenState(9),
			req:    ActionRequest{Action: entities.ActionPlaceBid, Price: "0.0000000000000000001"},
		},
		{
			name:   "not owner",
			wallet: testutil.NewMockSubmitter(testutil.BobAddress),
			state:  testutil.CreateTestTokenState(9),
			req:    ActionRequest{Action: entities.ActionListForSale, Price: "1"},
		},
		{
			name:   "unknown action",
			wallet: testutil.NewMockSubmitter(testutil.AliceAddress),
			state:  testutil.CreateTestTokenState(9),
			req:    ActionRequest{Action: entities.ActionViewHistory},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupMarketServiceTest(t, tt.wallet)
			f.reader.SetResult(entities.TokenStateQuery(9, 0), testutil.RawTokenState(tt.state))

			_, err := f.service.Execute(context.Background(), 9, tt.req)
			if !entities.IsValidationError(err) {
				t.Errorf("expected ValidationError, got %v", err)
			}
			if n := len(tt.wallet.SubmittedCalls()); n != 0 {
				t.Errorf("expected nothing submitted, got %d", n)
			}
		})
	}
}

func TestMarketService_SubmissionErrorsPassThrough(t *testing.T) {
	wallet := testutil.NewMockSubmitter(testutil.AliceAddress)
	wallet.SubmitFunc = func(ctx context.Context, call entities.WriteCall, policy repositories.GasPricePolicy) (repositories.TxTracker, error) {
		return nil, entities.ErrInsufficientFunds
	}
	f := setupMarketServiceTest(t, wallet)
	f.reader.SetResult(entities.TokenStateQuery(1, 0), testutil.RawTokenState(testutil.CreateTestTokenState(1)))

	req := ActionRequest{Action: entities.ActionListForSale, Price: "1"}
	if _, err := f.service.Execute(context.Background(), 1, req); !errors.Is(err, entities.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// a failed submission leaves nothing pending
	wallet.SubmitFunc = nil
	if _, err := f.service.Execute(context.Background(), 1, req); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMarketService_ReadOnlyWithoutWallet(t *testing.T) {
	f := setupMarketServiceTest(t, nil)

	_, err := f.service.Execute(context.Background(), 1, ActionRequest{Action: entities.ActionUnlist})
	if !errors.Is(err, ErrWalletNotConfigured) {
		t.Errorf("expected ErrWalletNotConfigured, got %v", err)
	}
	if _, ok := f.service.Transaction(common.HexToHash("0x01")); ok {
		t.Error("expected no transactions without a wallet")
	}
}

func TestMarketService_StateOfUntrackedTokenReadsLedger(t *testing.T) {
	f := setupMarketServiceTest(t, nil)
	ctx := context.Background()
	query := entities.TokenStateQuery(11, 0)

	f.reader.SetResult(query, testutil.RawTokenState(testutil.CreateTestTokenState(11, testutil.WithBid(testutil.BobAddress, testutil.Ether(1)))))

	state, err := f.service.State(ctx, 11)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !state.Bid.HasBid || state.Bid.Bidder != testutil.BobAddress {
		t.Errorf("unexpected bid: %+v", state.Bid)
	}

	actions, err := f.service.AllowedActions(ctx, 11, testutil.AliceAddress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []entities.Action{entities.ActionListForSale, entities.ActionAcceptBid, entities.ActionViewHistory}
	if len(actions) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, actions)
	}
	for i := range expected {
		if actions[i] != expected[i] {
			t.Errorf("expected %v, got %v", expected, actions)
		}
	}

	f.reader.SetError(query, &entities.LedgerUnavailableError{Op: "tokenState", Err: errors.New("dial tcp: refused")})
	if _, err := f.service.State(ctx, 11); !entities.IsLedgerUnavailable(err) {
		t.Errorf("expected LedgerUnavailableError, got %v", err)
	}
}

func TestMarketService_TrackUntrack(t *testing.T) {
	f := setupMarketServiceTest(t, nil)
	f.reader.SetResult(entities.TokenStateQuery(1, time.Hour), testutil.RawTokenState(testutil.CreateTestTokenState(1)))
	f.reader.SetResult(entities.TokenStateQuery(2, time.Hour), testutil.RawTokenState(testutil.CreateTestTokenState(2)))

	for _, id := range []entities.TokenID{1, 2, 1} {
		if err := f.service.Track(id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if n := f.poller.ActiveFeeds(); n != 2 {
		t.Errorf("expected 2 feeds, got %d", n)
	}

	f.service.Untrack(1)
	f.service.Untrack(1)
	if n := f.poller.ActiveFeeds(); n != 1 {
		t.Errorf("expected 1 feed, got %d", n)
	}
	if ids := f.service.Tracked(); len(ids) != 1 || ids[0] != 2 {
		t.Errorf("expected only token 2 tracked, got %v", ids)
	}
}

func TestMarketService_EvictsIdleTokens(t *testing.T) {
	f := setupMarketServiceTestWithConfig(t, nil, config.PollerConfig{
		DefaultInterval:  time.Hour,
		SubscriberBuffer: 8,
		IdleTimeout:      time.Minute,
	})
	ctx := context.Background()
	for _, id := range []entities.TokenID{1, 2} {
		f.reader.SetResult(entities.TokenStateQuery(id, time.Hour), testutil.RawTokenState(testutil.CreateTestTokenState(id)))
		if err := f.service.Track(id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	waitForState(t, f, 2, func(s entities.TokenState) bool { return s.IsOwned() })

	f.service.mu.RLock()
	f.service.tracked[1].seen.touch(time.Now().Add(-2 * time.Minute))
	f.service.tracked[2].seen.touch(time.Now().Add(-2 * time.Minute))
	f.service.mu.RUnlock()

	// reading token 2 keeps it alive
	if _, err := f.service.State(ctx, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := f.service.evictIdle(time.Now()); n != 1 {
		t.Fatalf("expected 1 idle token released, got %d", n)
	}
	if ids := f.service.Tracked(); len(ids) != 1 || ids[0] != 2 {
		t.Errorf("expected only token 2 tracked, got %v", ids)
	}
	if n := f.poller.ActiveFeeds(); n != 1 {
		t.Errorf("expected 1 feed, got %d", n)
	}
	if n := f.service.evictIdle(time.Now()); n != 0 {
		t.Errorf("expected nothing else idle, got %d", n)
	}
}

func TestMarketService_TrackCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	f := setupMarketServiceTestWithConfig(t, nil, config.PollerConfig{
		DefaultInterval:  time.Hour,
		SubscriberBuffer: 8,
		MaxTracked:       2,
	})
	for _, id := range []entities.TokenID{1, 2} {
		if err := f.service.Track(id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	f.service.mu.RLock()
	f.service.tracked[1].seen.touch(time.Now().Add(-time.Hour))
	f.service.tracked[2].seen.touch(time.Now().Add(-time.Minute))
	f.service.mu.RUnlock()

	// tracking again refreshes token 1, leaving token 2 the oldest
	if err := f.service.Track(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.service.Track(3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := f.poller.ActiveFeeds(); n != 2 {
		t.Errorf("expected feeds capped at 2, got %d", n)
	}
	tracked := map[entities.TokenID]bool{}
	for _, id := range f.service.Tracked() {
		tracked[id] = true
	}
	if !tracked[1] || tracked[2] || !tracked[3] {
		t.Errorf("expected tokens 1 and 3 tracked, got %v", f.service.Tracked())
	}
}
