package services

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/bimakw/pagemarket/internal/config"
	"github.com/bimakw/pagemarket/internal/domain/entities"
	"github.com/bimakw/pagemarket/internal/domain/repositories"
)

// MetadataResolver hydrates token ids with off-chain metadata. Resolved entries are
// kept for the life of the process; failed ids are simply absent and retried on the
// next Resolve.
type MetadataResolver struct {
	lookup repositories.MetadataLookup
	cache  repositories.MetadataCache
	config config.MetadataConfig
	logger *zap.Logger

	mu       sync.RWMutex
	resolved map[entities.TokenID]entities.TokenMetadata

	inflight singleflight.Group
}

// NewMetadataResolver creates a new resolver. cache may be nil.
func NewMetadataResolver(lookup repositories.MetadataLookup, cache repositories.MetadataCache, cfg config.MetadataConfig, logger *zap.Logger) *MetadataResolver {
	return &MetadataResolver{
		lookup:   lookup,
		cache:    cache,
		config:   cfg,
		logger:   logger,
		resolved: make(map[entities.TokenID]entities.TokenMetadata),
	}
}

// Resolve returns metadata for every id that resolves. Unresolved ids are fetched
// concurrently, at most once per id even across overlapping calls.
func (r *MetadataResolver) Resolve(ctx context.Context, ids []entities.TokenID) map[entities.TokenID]entities.TokenMetadata {
	result := make(map[entities.TokenID]entities.TokenMetadata, len(ids))
	missing := make([]entities.TokenID, 0, len(ids))

	r.mu.RLock()
	for _, id := range ids {
		if _, seen := result[id]; seen {
			continue
		}
		if md, ok := r.resolved[id]; ok {
			result[id] = md
			metadataCacheHits.WithLabelValues("memory").Inc()
			continue
		}
		missing = append(missing, id)
	}
	r.mu.RUnlock()

	if len(missing) == 0 {
		return result
	}

	var resultMu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	if r.config.WorkerCount > 0 {
		g.SetLimit(r.config.WorkerCount)
	}

	for _, id := range dedupe(missing) {
		id := id
		g.Go(func() error {
			md, err := r.resolveOne(gCtx, id)
			if err != nil {
				// one failure never fails the batch
				return nil
			}
			resultMu.Lock()
			result[id] = md
			resultMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Debug("Resolved metadata",
		zap.Int("requested", len(ids)),
		zap.Int("fetched", len(missing)),
		zap.Int("resolved", len(result)),
	)

	return result
}

// Cached returns metadata already resolved for id without fetching
func (r *MetadataResolver) Cached(id entities.TokenID) (entities.TokenMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	md, ok := r.resolved[id]
	return md, ok
}

// resolveOne waits for the shared fetch of id or for ctx, whichever ends first.
// The fetch itself outlives any one waiter and is bounded by the metadata timeout.
func (r *MetadataResolver) resolveOne(ctx context.Context, id entities.TokenID) (entities.TokenMetadata, error) {
	ch := r.inflight.DoChan(id.String(), func() (interface{}, error) {
		fetchCtx := context.WithoutCancel(ctx)
		if r.config.Timeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(fetchCtx, r.config.Timeout)
			defer cancel()
		}
		return r.fetch(fetchCtx, id)
	})

	select {
	case <-ctx.Done():
		return entities.TokenMetadata{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return entities.TokenMetadata{}, res.Err
		}
		return res.Val.(entities.TokenMetadata), nil
	}
}

func (r *MetadataResolver) fetch(ctx context.Context, id entities.TokenID) (entities.TokenMetadata, error) {
	if md, ok := r.Cached(id); ok {
		return md, nil
	}

	if r.cache != nil {
		if md, err := r.cache.GetMetadata(ctx, id); err == nil {
			metadataCacheHits.WithLabelValues("redis").Inc()
			r.store(*md)
			return *md, nil
		}
	}

	md, err := r.lookup.FetchMetadata(ctx, id)
	if err != nil {
		if errors.Is(err, entities.ErrMetadataNotFound) {
			metadataFetches.WithLabelValues("not_found").Inc()
			r.logger.Debug("No metadata for token", zap.Stringer("token_id", id))
		} else {
			metadataFetches.WithLabelValues("error").Inc()
			r.logger.Warn("Failed to fetch metadata",
				zap.Stringer("token_id", id),
				zap.Error(err),
			)
		}
		return entities.TokenMetadata{}, err
	}
	metadataFetches.WithLabelValues("ok").Inc()

	md.ID = id
	r.store(*md)

	if r.cache != nil {
		if err := r.cache.SetMetadata(ctx, md); err != nil {
			r.logger.Warn("Failed to cache metadata",
				zap.Stringer("token_id", id),
				zap.Error(err),
			)
		}
	}
	return *md, nil
}

func (r *MetadataResolver) store(md entities.TokenMetadata) {
	r.mu.Lock()
	r.resolved[md.ID] = md
	r.mu.Unlock()
}

func dedupe(ids []entities.TokenID) []entities.TokenID {
	seen := make(map[entities.TokenID]struct{}, len(ids))
	out := make([]entities.TokenID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
