package testutil

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bimakw/pagemarket/internal/domain/entities"
	"github.com/bimakw/pagemarket/internal/domain/repositories"
)

type MockCall struct {
	Method string
	Args   []interface{}
}

// MockLedgerReader is a mock implementation of LedgerReader keyed by query identity
type MockLedgerReader struct {
	mu      sync.RWMutex
	results map[string]entities.RawValue
	errs    map[string]error

	// Function hooks for custom behavior
	CallFunc func(ctx context.Context, query entities.LedgerQuery) (entities.RawValue, error)

	// Call tracking
	Calls []MockCall
}

func NewMockLedgerReader() *MockLedgerReader {
	return &MockLedgerReader{
		results: make(map[string]entities.RawValue),
		errs:    make(map[string]error),
		Calls:   make([]MockCall, 0),
	}
}

func (m *MockLedgerReader) Call(ctx context.Context, query entities.LedgerQuery) (entities.RawValue, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Call", Args: []interface{}{query.Key()}})
	m.mu.Unlock()

	if m.CallFunc != nil {
		return m.CallFunc(ctx, query)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	key := query.Key()
	if err, ok := m.errs[key]; ok {
		return nil, err
	}
	if raw, ok := m.results[key]; ok {
		return raw, nil
	}
	return nil, &entities.LedgerUnavailableError{Op: query.Method, Err: fmt.Errorf("no result for %s", key)}
}

// SetResult makes subsequent calls for query return raw
func (m *MockLedgerReader) SetResult(query entities.LedgerQuery, raw entities.RawValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errs, query.Key())
	m.results[query.Key()] = raw
}

// SetError makes subsequent calls for query fail with err
func (m *MockLedgerReader) SetError(query entities.LedgerQuery, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[query.Key()] = err
}

// CallCount returns how many calls were made for query
func (m *MockLedgerReader) CallCount(query entities.LedgerQuery) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := query.Key()
	count := 0
	for _, c := range m.Calls {
		if c.Args[0] == key {
			count++
		}
	}
	return count
}

// MockMetadataLookup is a mock implementation of MetadataLookup
type MockMetadataLookup struct {
	mu       sync.RWMutex
	metadata map[entities.TokenID]entities.TokenMetadata
	failures map[entities.TokenID]error

	FetchMetadataFunc func(ctx context.Context, id entities.TokenID) (*entities.TokenMetadata, error)

	Calls []MockCall
}

func NewMockMetadataLookup() *MockMetadataLookup {
	return &MockMetadataLookup{
		metadata: make(map[entities.TokenID]entities.TokenMetadata),
		failures: make(map[entities.TokenID]error),
		Calls:    make([]MockCall, 0),
	}
}

func (m *MockMetadataLookup) FetchMetadata(ctx context.Context, id entities.TokenID) (*entities.TokenMetadata, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "FetchMetadata", Args: []interface{}{id}})
	m.mu.Unlock()

	if m.FetchMetadataFunc != nil {
		return m.FetchMetadataFunc(ctx, id)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, ok := m.failures[id]; ok {
		return nil, err
	}
	md, ok := m.metadata[id]
	if !ok {
		return nil, fmt.Errorf("token %s: %w", id, entities.ErrMetadataNotFound)
	}
	return &md, nil
}

// AddMetadata registers metadata served by the lookup
func (m *MockMetadataLookup) AddMetadata(metadata ...entities.TokenMetadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, md := range metadata {
		m.metadata[md.ID] = md
		delete(m.failures, md.ID)
	}
}

// SetFailure makes fetches for id fail with err until AddMetadata is called for it
func (m *MockMetadataLookup) SetFailure(id entities.TokenID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[id] = err
}

// FetchCount returns how many fetches were made for id
func (m *MockMetadataLookup) FetchCount(id entities.TokenID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, c := range m.Calls {
		if c.Args[0] == id {
			count++
		}
	}
	return count
}

// MockMetadataCache is an in-memory MetadataCache
type MockMetadataCache struct {
	mu    sync.RWMutex
	items map[entities.TokenID]entities.TokenMetadata

	GetMetadataFunc func(ctx context.Context, id entities.TokenID) (*entities.TokenMetadata, error)
	SetMetadataFunc func(ctx context.Context, metadata *entities.TokenMetadata) error

	Calls []MockCall
}

func NewMockMetadataCache() *MockMetadataCache {
	return &MockMetadataCache{
		items: make(map[entities.TokenID]entities.TokenMetadata),
		Calls: make([]MockCall, 0),
	}
}

func (m *MockMetadataCache) GetMetadata(ctx context.Context, id entities.TokenID) (*entities.TokenMetadata, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "GetMetadata", Args: []interface{}{id}})
	m.mu.Unlock()

	if m.GetMetadataFunc != nil {
		return m.GetMetadataFunc(ctx, id)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	md, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("cache miss for token %s", id)
	}
	return &md, nil
}

func (m *MockMetadataCache) SetMetadata(ctx context.Context, metadata *entities.TokenMetadata) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "SetMetadata", Args: []interface{}{metadata.ID}})
	m.mu.Unlock()

	if m.SetMetadataFunc != nil {
		return m.SetMetadataFunc(ctx, metadata)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[metadata.ID] = *metadata
	return nil
}

// Len returns the number of cached entries
func (m *MockMetadataCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// MockHistoryRepository is a mock implementation of HistoryRepository
type MockHistoryRepository struct {
	mu     sync.RWMutex
	events map[entities.TokenID][]entities.HistoryEvent

	TokenHistoryFunc func(ctx context.Context, id entities.TokenID) ([]entities.HistoryEvent, error)

	Calls []MockCall
}

func NewMockHistoryRepository() *MockHistoryRepository {
	return &MockHistoryRepository{
		events: make(map[entities.TokenID][]entities.HistoryEvent),
		Calls:  make([]MockCall, 0),
	}
}

func (m *MockHistoryRepository) TokenHistory(ctx context.Context, id entities.TokenID) ([]entities.HistoryEvent, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "TokenHistory", Args: []interface{}{id}})
	m.mu.Unlock()

	if m.TokenHistoryFunc != nil {
		return m.TokenHistoryFunc(ctx, id)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]entities.HistoryEvent, len(m.events[id]))
	copy(result, m.events[id])
	return result, nil
}

func (m *MockHistoryRepository) AddEvents(events ...entities.HistoryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range events {
		m.events[e.TokenID] = append(m.events[e.TokenID], e)
	}
}

// MockTxTracker is a TxTracker the test finishes by hand
type MockTxTracker struct {
	hash    common.Hash
	updates chan entities.TxStatus
	done    chan struct{}
	once    sync.Once

	mu     sync.RWMutex
	status entities.TxStatus
}

func NewMockTxTracker(status entities.TxStatus) *MockTxTracker {
	t := &MockTxTracker{
		hash:    status.Hash,
		updates: make(chan entities.TxStatus, 2),
		done:    make(chan struct{}),
		status:  status,
	}
	t.updates <- status
	return t
}

func (t *MockTxTracker) Hash() common.Hash { return t.hash }

func (t *MockTxTracker) Status() entities.TxStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func (t *MockTxTracker) Updates() <-chan entities.TxStatus { return t.updates }

func (t *MockTxTracker) Done() <-chan struct{} { return t.done }

func (t *MockTxTracker) Wait(ctx context.Context) (entities.TxStatus, error) {
	select {
	case <-t.done:
		return t.Status(), nil
	case <-ctx.Done():
		return t.Status(), ctx.Err()
	}
}

// Finish moves the tracker to state and closes it. Later calls are ignored.
func (t *MockTxTracker) Finish(state entities.TxState) {
	t.once.Do(func() {
		t.mu.Lock()
		t.status.State = state
		status := t.status
		t.mu.Unlock()
		t.updates <- status
		close(t.updates)
		close(t.done)
	})
}

// MockSubmitter is a mock implementation of TransactionSubmitter
type MockSubmitter struct {
	mu       sync.Mutex
	address  common.Address
	trackers map[common.Hash]*MockTxTracker
	nonce    uint64

	SubmitFunc func(ctx context.Context, call entities.WriteCall, policy repositories.GasPricePolicy) (repositories.TxTracker, error)

	Submitted []entities.WriteCall
}

func NewMockSubmitter(address common.Address) *MockSubmitter {
	return &MockSubmitter{
		address:  address,
		trackers: make(map[common.Hash]*MockTxTracker),
	}
}

func (m *MockSubmitter) Address() common.Address {
	return m.address
}

func (m *MockSubmitter) Submit(ctx context.Context, call entities.WriteCall, policy repositories.GasPricePolicy) (repositories.TxTracker, error) {
	m.mu.Lock()
	m.Submitted = append(m.Submitted, call)
	m.mu.Unlock()

	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, call, policy)
	}

	var gasPrice *big.Int
	if policy != nil {
		price, err := policy.GasPrice(ctx)
		if err != nil {
			return nil, &entities.LedgerUnavailableError{Op: "gasPrice", Err: err}
		}
		gasPrice = price
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nonce++
	tracker := NewMockTxTracker(entities.TxStatus{
		Hash:     common.BigToHash(new(big.Int).SetUint64(m.nonce)),
		TokenID:  call.TokenID,
		Action:   call.Action,
		State:    entities.TxPending,
		GasPrice: gasPrice,
	})
	m.trackers[tracker.hash] = tracker
	return tracker, nil
}

func (m *MockSubmitter) Status(hash common.Hash) (entities.TxStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tracker, ok := m.trackers[hash]
	if !ok {
		return entities.TxStatus{}, false
	}
	return tracker.Status(), true
}

// Tracker returns the tracker created for hash
func (m *MockSubmitter) Tracker(hash common.Hash) *MockTxTracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trackers[hash]
}

// SubmittedCalls returns a copy of every call passed to Submit
func (m *MockSubmitter) SubmittedCalls() []entities.WriteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]entities.WriteCall, len(m.Submitted))
	copy(result, m.Submitted)
	return result
}

// MockHealthChecker is a mock implementation of HealthChecker
type MockHealthChecker struct {
	mu sync.RWMutex

	Error error
	Calls []MockCall
}

func NewMockHealthChecker(healthy bool) *MockHealthChecker {
	m := &MockHealthChecker{Calls: make([]MockCall, 0)}
	m.SetHealthy(healthy)
	return m
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: "HealthCheck"})
	return m.Error
}

func (m *MockHealthChecker) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if healthy {
		m.Error = nil
	} else {
		m.Error = errors.New("health check failed")
	}
}
