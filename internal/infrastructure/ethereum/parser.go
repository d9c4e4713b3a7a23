package ethereum

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bimakw/pagemarket/internal/domain/entities"
)

// ParseMarketEvent parses a raw Token contract log into a HistoryEvent
func ParseMarketEvent(contract *Contract, log types.Log, blockTimestamp time.Time) (*entities.HistoryEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log has no topics")
	}
	if log.Address != contract.Address {
		return nil, fmt.Errorf("log emitted by %s, not %s", log.Address.Hex(), contract.Name)
	}

	event, err := contract.ABI.EventByID(log.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("not a %s event: %w", contract.Name, err)
	}

	fields := make(map[string]interface{})

	// Indexed parameters live in topics 1..n
	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(log.Topics)-1 != len(indexed) {
		return nil, fmt.Errorf("invalid number of topics for %s: expected %d, got %d", event.Name, len(indexed)+1, len(log.Topics))
	}
	if err := abi.ParseTopicsIntoMap(fields, indexed, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("failed to parse %s topics: %w", event.Name, err)
	}

	// Non-indexed parameters live in data
	if len(log.Data) > 0 {
		if err := contract.ABI.UnpackIntoMap(fields, event.Name, log.Data); err != nil {
			return nil, fmt.Errorf("failed to unpack %s data: %w", event.Name, err)
		}
	}

	pageID, ok := fields["pageId"].(*big.Int)
	if !ok || !pageID.IsUint64() {
		return nil, fmt.Errorf("%s event has no valid pageId", event.Name)
	}

	result := &entities.HistoryEvent{
		Kind:        entities.EventKind(event.Name),
		TokenID:     entities.TokenID(pageID.Uint64()),
		BlockNumber: log.BlockNumber,
		TxIndex:     log.TxIndex,
		LogIndex:    log.Index,
		TxHash:      log.TxHash,
		Timestamp:   blockTimestamp,
	}

	switch result.Kind {
	case entities.EventMint:
		result.To = addressField(fields, "to")
	case entities.EventPageOffered:
		result.To = addressField(fields, "toAddress")
		result.Value = bigField(fields, "minValue")
	case entities.EventPageBidEntered, entities.EventPageBidWithdrawn:
		result.From = addressField(fields, "fromAddress")
		result.Value = bigField(fields, "value")
	case entities.EventPageBought:
		result.From = addressField(fields, "fromAddress")
		result.To = addressField(fields, "toAddress")
		result.Value = bigField(fields, "value")
	}

	return result, nil
}

// ParseMarketLogs parses multiple logs into HistoryEvents.
// Returns parsed events and a list of failed log indices. A nil timestamp map skips timestamps.
func ParseMarketLogs(contract *Contract, logs []types.Log, blockTimestamps map[uint64]time.Time) ([]entities.HistoryEvent, []int) {
	events := make([]entities.HistoryEvent, 0, len(logs))
	failedIndices := make([]int, 0)

	for i, log := range logs {
		var timestamp time.Time
		if blockTimestamps != nil {
			ts, ok := blockTimestamps[log.BlockNumber]
			if !ok {
				failedIndices = append(failedIndices, i)
				continue
			}
			timestamp = ts
		}

		event, err := ParseMarketEvent(contract, log, timestamp)
		if err != nil {
			failedIndices = append(failedIndices, i)
			continue
		}

		events = append(events, *event)
	}

	return events, failedIndices
}

// EventTopic returns the topic hash of a Token contract event
func EventTopic(contract *Contract, name entities.EventKind) (common.Hash, error) {
	event, ok := contract.ABI.Events[string(name)]
	if !ok {
		return common.Hash{}, fmt.Errorf("unknown event %s", name)
	}
	return event.ID, nil
}

func addressField(fields map[string]interface{}, name string) common.Address {
	if addr, ok := fields[name].(common.Address); ok {
		return addr
	}
	return entities.NullAddress
}

func bigField(fields map[string]interface{}, name string) *big.Int {
	if v, ok := fields[name].(*big.Int); ok {
		return v
	}
	return new(big.Int)
}
