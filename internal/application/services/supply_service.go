package services

import (
	"context"
	"math/big"
	"sync"

	"go.uber.org/zap"

	"github.com/bimakw/pagemarket/internal/config"
	"github.com/bimakw/pagemarket/internal/domain/entities"
	"github.com/bimakw/pagemarket/internal/domain/repositories"
)

// SupplyService follows the number of minted tokens
type SupplyService struct {
	poller *Poller
	reader repositories.LedgerReader
	config config.PollerConfig
	logger *zap.Logger

	mu  sync.Mutex
	sub *Subscription[*big.Int]
}

// NewSupplyService creates a new supply service
func NewSupplyService(poller *Poller, reader repositories.LedgerReader, cfg config.PollerConfig, logger *zap.Logger) *SupplyService {
	return &SupplyService{
		poller: poller,
		reader: reader,
		config: cfg,
		logger: logger,
	}
}

// Start begins polling totalSupply
func (s *SupplyService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		return nil
	}
	sub, err := Watch(s.poller, entities.TotalSupplyQuery(s.config.DefaultInterval), UintTransform, new(big.Int))
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("Watching total supply")
	return nil
}

// Stop ends polling
func (s *SupplyService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		s.sub.Close()
		s.sub = nil
	}
}

// Supply returns the latest totalSupply sample, reading the ledger when none has landed yet
func (s *SupplyService) Supply(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()

	if sub != nil {
		if v, ready := sub.Latest(); ready {
			return new(big.Int).Set(v), nil
		}
	}

	raw, err := s.reader.Call(ctx, entities.TotalSupplyQuery(0))
	if err != nil {
		return nil, err
	}
	return UintTransform(raw), nil
}
