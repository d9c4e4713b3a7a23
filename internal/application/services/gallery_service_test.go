package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/pagemarket/internal/config"
	"github.com/bimakw/pagemarket/internal/domain/entities"
	"github.com/bimakw/pagemarket/internal/testutil"
)

func setupGalleryServiceTest(t *testing.T) (*GalleryService, *testutil.MockLedgerReader, *testutil.MockMetadataLookup) {
	t.Helper()
	return setupGalleryServiceTestWithConfig(t, config.PollerConfig{DefaultInterval: time.Hour, SubscriberBuffer: 8})
}

func setupGalleryServiceTestWithConfig(t *testing.T, cfg config.PollerConfig) (*GalleryService, *testutil.MockLedgerReader, *testutil.MockMetadataLookup) {
	t.Helper()

	reader := testutil.NewMockLedgerReader()
	lookup := testutil.NewMockMetadataLookup()

	poller := NewPoller(reader, cfg, zap.NewNop())
	resolver := NewMetadataResolver(lookup, nil, config.MetadataConfig{WorkerCount: 4}, zap.NewNop())
	service := NewGalleryService(poller, reader, resolver, cfg, zap.NewNop())

	t.Cleanup(func() {
		service.Close()
		poller.Stop()
	})
	return service, reader, lookup
}

func TestGalleryService_Gallery(t *testing.T) {
	service, reader, lookup := setupGalleryServiceTest(t)
	ctx := context.Background()

	reader.SetResult(entities.TokensOfQuery(testutil.AliceAddress, 0), testutil.RawTokensOf(1, 2))
	lookup.AddMetadata(testutil.CreateTestMetadata(1, "Alan Turing"), testutil.CreateTestMetadata(2, "Ada Lovelace"))

	gallery, err := service.Gallery(ctx, testutil.AliceAddress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gallery.TokenIDs) != 2 || len(gallery.Metadata) != 2 {
		t.Fatalf("expected 2 hydrated tokens, got %+v", gallery)
	}

	// the owner is now followed in the background
	deadline := time.Now().Add(time.Second)
	for {
		service.mu.RLock()
		g := service.owners[testutil.AliceAddress]
		done := g != nil && g.ready && len(g.gallery.Metadata) == 2
		service.mu.RUnlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for background hydration")
		}
		time.Sleep(time.Millisecond)
	}

	gallery, err = service.Gallery(ctx, testutil.AliceAddress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gallery.Metadata[2].Title != "Ada Lovelace" {
		t.Errorf("unexpected metadata: %+v", gallery.Metadata)
	}
	if n := lookup.FetchCount(1); n != 1 {
		t.Errorf("expected metadata to be fetched once, got %d", n)
	}
}

func TestGalleryService_EmptyOwner(t *testing.T) {
	service, reader, _ := setupGalleryServiceTest(t)
	reader.SetResult(entities.TokensOfQuery(testutil.BobAddress, 0), testutil.RawTokensOf())

	gallery, err := service.Gallery(context.Background(), testutil.BobAddress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gallery.TokenIDs == nil || len(gallery.TokenIDs) != 0 {
		t.Errorf("expected empty non-nil token list, got %v", gallery.TokenIDs)
	}
}

func TestGalleryService_LedgerFailure(t *testing.T) {
	service, reader, _ := setupGalleryServiceTest(t)
	reader.SetError(entities.TokensOfQuery(testutil.BobAddress, 0), &entities.LedgerUnavailableError{Op: "tokensOf", Err: errors.New("timeout")})

	if _, err := service.Gallery(context.Background(), testutil.BobAddress); !entities.IsLedgerUnavailable(err) {
		t.Errorf("expected LedgerUnavailableError, got %v", err)
	}
}

func TestGalleryService_StaleHydrationDiscarded(t *testing.T) {
	service, reader, lookup := setupGalleryServiceTest(t)
	ctx := context.Background()
	owner := testutil.CharlieAddr

	// keep the poller quiet so generations only move when the test publishes
	reader.SetError(entities.TokensOfQuery(owner, 0), errors.New("unreachable"))
	if err := service.Watch(owner); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lookup.AddMetadata(testutil.CreateTestMetadata(1, "Old"), testutil.CreateTestMetadata(2, "New"))

	older, _ := service.publish(owner, []entities.TokenID{1}, time.Now())
	newer, _ := service.publish(owner, []entities.TokenID{2}, time.Now())

	if !service.hydrate(ctx, owner, newer, []entities.TokenID{2}) {
		t.Error("expected the newest hydration to be published")
	}
	if service.hydrate(ctx, owner, older, []entities.TokenID{1}) {
		t.Error("expected the older hydration to be discarded")
	}

	service.mu.RLock()
	gallery := copyGallery(service.owners[owner].gallery)
	service.mu.RUnlock()

	if len(gallery.TokenIDs) != 1 || gallery.TokenIDs[0] != 2 {
		t.Errorf("expected token list [2], got %v", gallery.TokenIDs)
	}
	if _, ok := gallery.Metadata[1]; ok {
		t.Error("stale metadata leaked into the gallery")
	}
	if gallery.Metadata[2].Title != "New" {
		t.Errorf("expected metadata for token 2, got %+v", gallery.Metadata)
	}
}

func TestGalleryService_Unwatch(t *testing.T) {
	service, reader, _ := setupGalleryServiceTest(t)
	reader.SetResult(entities.TokensOfQuery(testutil.AliceAddress, 0), testutil.RawTokensOf(1))

	if err := service.Watch(testutil.AliceAddress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.Watch(testutil.AliceAddress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := service.poller.ActiveFeeds(); n != 1 {
		t.Errorf("expected 1 feed, got %d", n)
	}

	service.Unwatch(testutil.AliceAddress)
	if n := service.poller.ActiveFeeds(); n != 0 {
		t.Errorf("expected no feeds, got %d", n)
	}
	if _, ok := service.publish(testutil.AliceAddress, []entities.TokenID{1}, time.Now()); ok {
		t.Error("expected publish for an unwatched owner to be dropped")
	}
}

func TestGalleryService_EvictsIdleOwners(t *testing.T) {
	service, reader, _ := setupGalleryServiceTestWithConfig(t, config.PollerConfig{
		DefaultInterval:  time.Hour,
		SubscriberBuffer: 8,
		IdleTimeout:      time.Minute,
	})
	reader.SetResult(entities.TokensOfQuery(testutil.AliceAddress, 0), testutil.RawTokensOf(1))
	reader.SetResult(entities.TokensOfQuery(testutil.BobAddress, 0), testutil.RawTokensOf(2))

	for _, owner := range []common.Address{testutil.AliceAddress, testutil.BobAddress} {
		if _, err := service.Gallery(context.Background(), owner); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// alice was last requested two minutes ago
	service.mu.RLock()
	service.owners[testutil.AliceAddress].seen.touch(time.Now().Add(-2 * time.Minute))
	service.mu.RUnlock()

	if n := service.evictIdle(time.Now()); n != 1 {
		t.Fatalf("expected 1 idle owner released, got %d", n)
	}
	if n := service.poller.ActiveFeeds(); n != 1 {
		t.Errorf("expected 1 feed left, got %d", n)
	}
	service.mu.RLock()
	_, aliceWatched := service.owners[testutil.AliceAddress]
	_, bobWatched := service.owners[testutil.BobAddress]
	service.mu.RUnlock()
	if aliceWatched || !bobWatched {
		t.Errorf("expected only bob to stay watched, alice=%v bob=%v", aliceWatched, bobWatched)
	}

	// a later request watches the owner again
	if _, err := service.Gallery(context.Background(), testutil.AliceAddress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := service.poller.ActiveFeeds(); n != 2 {
		t.Errorf("expected 2 feeds, got %d", n)
	}
}

func TestGalleryService_CapacityEvictsLeastRecentlyUsed(t *testing.T) {
	service, _, _ := setupGalleryServiceTestWithConfig(t, config.PollerConfig{
		DefaultInterval:  time.Hour,
		SubscriberBuffer: 8,
		MaxTracked:       2,
	})

	for _, owner := range []common.Address{testutil.AliceAddress, testutil.BobAddress} {
		if err := service.Watch(owner); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	service.mu.RLock()
	service.owners[testutil.AliceAddress].seen.touch(time.Now().Add(-time.Minute))
	service.mu.RUnlock()

	if err := service.Watch(testutil.CharlieAddr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := service.poller.ActiveFeeds(); n != 2 {
		t.Errorf("expected feeds capped at 2, got %d", n)
	}
	service.mu.RLock()
	_, aliceWatched := service.owners[testutil.AliceAddress]
	service.mu.RUnlock()
	if aliceWatched {
		t.Error("expected the least recently used owner to be unwatched")
	}
}
