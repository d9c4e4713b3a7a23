package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/pagemarket/internal/config"
	"github.com/bimakw/pagemarket/internal/domain/entities"
	"github.com/bimakw/pagemarket/internal/domain/repositories"
)

// Gallery is the set of tokens an owner holds, hydrated with whatever metadata resolved
type Gallery struct {
	Owner     common.Address                              `json:"owner"`
	TokenIDs  []entities.TokenID                          `json:"token_ids"`
	Metadata  map[entities.TokenID]entities.TokenMetadata `json:"metadata"`
	UpdatedAt time.Time                                   `json:"updated_at"`
}

type ownerGallery struct {
	sub        *Subscription[[]entities.TokenID]
	generation uint64
	gallery    Gallery
	ready      bool
	seen       lastSeen
}

func ownerSeen(g *ownerGallery) *lastSeen { return &g.seen }

// GalleryService follows the token lists of owners and hydrates them with metadata
type GalleryService struct {
	poller   *Poller
	reader   repositories.LedgerReader
	resolver *MetadataResolver
	config   config.PollerConfig
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	owners map[common.Address]*ownerGallery
}

// NewGalleryService creates a new gallery service. Owners no request touches
// within cfg.IdleTimeout stop being watched.
func NewGalleryService(poller *Poller, reader repositories.LedgerReader, resolver *MetadataResolver, cfg config.PollerConfig, logger *zap.Logger) *GalleryService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &GalleryService{
		poller:   poller,
		reader:   reader,
		resolver: resolver,
		config:   cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		owners:   make(map[common.Address]*ownerGallery),
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

// Watch starts following owner's token list. At the MaxTracked cap the least
// recently requested owner is unwatched to make room.
func (s *GalleryService) Watch(owner common.Address) error {
	now := time.Now()

	s.mu.Lock()
	if g, ok := s.owners[owner]; ok {
		g.seen.touch(now)
		s.mu.Unlock()
		return nil
	}

	var (
		evictedOwner common.Address
		evicted      *ownerGallery
	)
	if s.config.MaxTracked > 0 && len(s.owners) >= s.config.MaxTracked {
		evictedOwner, _ = leastRecent(s.owners, ownerSeen)
		evicted = s.owners[evictedOwner]
		delete(s.owners, evictedOwner)
	}

	sub, err := Watch(s.poller, entities.TokensOfQuery(owner, s.config.DefaultInterval), TokenIDsTransform, []entities.TokenID{})
	if err != nil {
		if evicted != nil {
			s.owners[evictedOwner] = evicted
		}
		s.mu.Unlock()
		return fmt.Errorf("failed to watch gallery of %s: %w", owner.Hex(), err)
	}
	g := &ownerGallery{
		sub:     sub,
		gallery: Gallery{Owner: owner, TokenIDs: []entities.TokenID{}, Metadata: map[entities.TokenID]entities.TokenMetadata{}},
	}
	g.seen.touch(now)
	s.owners[owner] = g

	s.wg.Add(1)
	go s.follow(owner, sub)
	s.mu.Unlock()

	if evicted != nil {
		evicted.sub.Close()
		feedEvictions.WithLabelValues("gallery", "capacity").Inc()
		s.logger.Info("Unwatched least recently used gallery", zap.String("owner", evictedOwner.Hex()))
	}
	s.logger.Info("Watching gallery", zap.String("owner", owner.Hex()))
	return nil
}

// Unwatch stops following owner's token list
func (s *GalleryService) Unwatch(owner common.Address) {
	s.mu.Lock()
	g, ok := s.owners[owner]
	delete(s.owners, owner)
	s.mu.Unlock()

	if ok {
		g.sub.Close()
	}
}

// evictIdle unwatches every owner no request has touched within the idle timeout
// and returns how many were released
func (s *GalleryService) evictIdle(now time.Time) int {
	if s.config.IdleTimeout <= 0 {
		return 0
	}

	s.mu.Lock()
	owners := idleKeys(s.owners, ownerSeen, now, s.config.IdleTimeout)
	evicted := make([]*ownerGallery, 0, len(owners))
	for _, owner := range owners {
		evicted = append(evicted, s.owners[owner])
		delete(s.owners, owner)
	}
	s.mu.Unlock()

	for i, g := range evicted {
		g.sub.Close()
		feedEvictions.WithLabelValues("gallery", "idle").Inc()
		s.logger.Info("Unwatched idle gallery", zap.String("owner", owners[i].Hex()))
	}
	return len(evicted)
}

// Gallery returns the latest gallery of owner. The first request for an owner
// starts watching it and answers from a direct ledger read.
func (s *GalleryService) Gallery(ctx context.Context, owner common.Address) (Gallery, error) {
	s.mu.RLock()
	g, ok := s.owners[owner]
	if ok {
		g.seen.touch(time.Now())
	}
	if ok && g.ready {
		gallery := copyGallery(g.gallery)
		s.mu.RUnlock()
		return gallery, nil
	}
	s.mu.RUnlock()

	if !ok {
		if err := s.Watch(owner); err != nil {
			return Gallery{}, err
		}
	}

	raw, err := s.reader.Call(ctx, entities.TokensOfQuery(owner, 0))
	if err != nil {
		return Gallery{}, err
	}
	ids := TokenIDsTransform(raw)

	return Gallery{
		Owner:     owner,
		TokenIDs:  ids,
		Metadata:  s.resolver.Resolve(ctx, ids),
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Close stops every gallery and waits for in-flight hydration
func (s *GalleryService) Close() {
	s.cancel()

	s.mu.Lock()
	owners := s.owners
	s.owners = make(map[common.Address]*ownerGallery)
	s.mu.Unlock()

	for _, g := range owners {
		g.sub.Close()
	}
	s.wg.Wait()
}

func (s *GalleryService) follow(owner common.Address, sub *Subscription[[]entities.TokenID]) {
	defer s.wg.Done()

	for result := range sub.C() {
		gen, ok := s.publish(owner, result.Value, result.ObservedAt)
		if !ok {
			continue
		}
		s.wg.Add(1)
		go func(ids []entities.TokenID) {
			defer s.wg.Done()
			s.hydrate(s.ctx, owner, gen, ids)
		}(result.Value)
	}
}

// publish stores a new token list for owner and returns its generation. Metadata
// already resolved is attached right away.
func (s *GalleryService) publish(owner common.Address, ids []entities.TokenID, observedAt time.Time) (uint64, bool) {
	metadata := make(map[entities.TokenID]entities.TokenMetadata, len(ids))
	for _, id := range ids {
		if md, ok := s.resolver.Cached(id); ok {
			metadata[id] = md
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.owners[owner]
	if !ok {
		return 0, false
	}
	g.generation++
	g.ready = true
	g.gallery = Gallery{
		Owner:     owner,
		TokenIDs:  append(make([]entities.TokenID, 0, len(ids)), ids...),
		Metadata:  metadata,
		UpdatedAt: observedAt,
	}

	s.logger.Debug("Gallery changed",
		zap.String("owner", owner.Hex()),
		zap.Int("tokens", len(ids)),
		zap.Uint64("generation", g.generation),
	)
	return g.generation, true
}

// hydrate resolves metadata for ids and publishes it unless a newer list for owner
// arrived meanwhile. It reports whether the result was published.
func (s *GalleryService) hydrate(ctx context.Context, owner common.Address, gen uint64, ids []entities.TokenID) bool {
	resolved := s.resolver.Resolve(ctx, ids)

	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.owners[owner]
	if !ok || g.generation != gen {
		s.logger.Debug("Discarded stale gallery hydration",
			zap.String("owner", owner.Hex()),
			zap.Uint64("generation", gen),
		)
		return false
	}

	metadata := make(map[entities.TokenID]entities.TokenMetadata, len(resolved))
	for id, md := range resolved {
		metadata[id] = md
	}
	g.gallery.Metadata = metadata
	return true
}

func copyGallery(g Gallery) Gallery {
	out := g
	out.TokenIDs = append(make([]entities.TokenID, 0, len(g.TokenIDs)), g.TokenIDs...)
	out.Metadata = make(map[entities.TokenID]entities.TokenMetadata, len(g.Metadata))
	for id, md := range g.Metadata {
		out.Metadata[id] = md
	}
	return out
}
