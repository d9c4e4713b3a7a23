package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/pagemarket/internal/domain/entities"
	"github.com/bimakw/pagemarket/internal/domain/repositories"
)

// HistoryService serves the read-only transaction history of tokens
type HistoryService struct {
	repo   repositories.HistoryRepository
	logger *zap.Logger
}

// NewHistoryService creates a new history service
func NewHistoryService(repo repositories.HistoryRepository, logger *zap.Logger) *HistoryService {
	return &HistoryService{
		repo:   repo,
		logger: logger,
	}
}

// TokenHistory returns the events of id ordered by block, transaction and log index
func (s *HistoryService) TokenHistory(ctx context.Context, id entities.TokenID) ([]entities.HistoryEvent, error) {
	start := time.Now()

	events, err := s.repo.TokenHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get history of token %s: %w", id, err)
	}
	if events == nil {
		events = []entities.HistoryEvent{}
	}
	entities.SortHistory(events)

	s.logger.Debug("Loaded token history",
		zap.Stringer("token_id", id),
		zap.Int("events", len(events)),
		zap.Duration("duration", time.Since(start)),
	)

	return events, nil
}
