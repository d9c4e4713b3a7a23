package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/pagemarket/internal/domain/entities"
)

// LogSource is the slice of the node API the history fetcher needs
type LogSource interface {
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error)
}

// HistoryFetcher reads a token's marketplace events from the ledger
type HistoryFetcher struct {
	source      LogSource
	contract    *Contract
	fromBlock   uint64
	workerCount int
	logger      *zap.Logger
}

// NewHistoryFetcher creates a new history fetcher. fromBlock is usually the deploy block.
func NewHistoryFetcher(source LogSource, contract *Contract, fromBlock uint64, workerCount int, logger *zap.Logger) *HistoryFetcher {
	if workerCount < 1 {
		workerCount = 1
	}
	return &HistoryFetcher{
		source:      source,
		contract:    contract,
		fromBlock:   fromBlock,
		workerCount: workerCount,
		logger:      logger,
	}
}

// TokenHistory returns the token's events ordered by block number and transaction index
func (f *HistoryFetcher) TokenHistory(ctx context.Context, id entities.TokenID) ([]entities.HistoryEvent, error) {
	queries, err := f.buildQueries(id)
	if err != nil {
		return nil, err
	}

	var logs []types.Log
	for _, query := range queries {
		found, err := f.source.GetLogs(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch logs: %w", err)
		}
		logs = append(logs, found...)
	}

	if len(logs) == 0 {
		return []entities.HistoryEvent{}, nil
	}

	blockNumbers := make(map[uint64]struct{})
	for _, log := range logs {
		blockNumbers[log.BlockNumber] = struct{}{}
	}

	blockTimestamps, err := f.fetchBlockTimestamps(ctx, blockNumbers)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block timestamps: %w", err)
	}

	events, failedIndices := ParseMarketLogs(f.contract, logs, blockTimestamps)
	if len(failedIndices) > 0 {
		f.logger.Warn("Failed to parse some logs",
			zap.Uint64("token_id", uint64(id)),
			zap.Int("failed_count", len(failedIndices)),
			zap.Int("total_logs", len(logs)),
		)
	}

	entities.SortHistory(events)

	f.logger.Debug("Fetched token history",
		zap.Uint64("token_id", uint64(id)),
		zap.Int("event_count", len(events)),
	)

	return events, nil
}

// buildQueries returns one filter for Mint (pageId is its second indexed field)
// and one for every event keyed by pageId in the first indexed field
func (f *HistoryFetcher) buildQueries(id entities.TokenID) ([]ethereum.FilterQuery, error) {
	idTopic := common.BigToHash(id.Big())

	mintTopic, err := EventTopic(f.contract, entities.EventMint)
	if err != nil {
		return nil, err
	}

	var marketTopics []common.Hash
	for _, kind := range []entities.EventKind{
		entities.EventPageOffered,
		entities.EventPageNoLongerSale,
		entities.EventPageBidEntered,
		entities.EventPageBidWithdrawn,
		entities.EventPageBought,
	} {
		topic, err := EventTopic(f.contract, kind)
		if err != nil {
			return nil, err
		}
		marketTopics = append(marketTopics, topic)
	}

	fromBlock := new(big.Int).SetUint64(f.fromBlock)
	addresses := []common.Address{f.contract.Address}

	return []ethereum.FilterQuery{
		{
			FromBlock: fromBlock,
			Addresses: addresses,
			Topics:    [][]common.Hash{{mintTopic}, nil, {idTopic}},
		},
		{
			FromBlock: fromBlock,
			Addresses: addresses,
			Topics:    [][]common.Hash{marketTopics, {idTopic}},
		},
	}, nil
}

// fetchBlockTimestamps fetches timestamps for multiple blocks concurrently
func (f *HistoryFetcher) fetchBlockTimestamps(ctx context.Context, blockNumbers map[uint64]struct{}) (map[uint64]time.Time, error) {
	timestamps := make(map[uint64]time.Time)
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workerCount)

	for blockNum := range blockNumbers {
		blockNum := blockNum // capture
		g.Go(func() error {
			timestamp, err := f.source.GetBlockTimestamp(ctx, blockNum)
			if err != nil {
				return fmt.Errorf("failed to get timestamp for block %d: %w", blockNum, err)
			}

			mu.Lock()
			timestamps[blockNum] = timestamp
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return timestamps, nil
}
