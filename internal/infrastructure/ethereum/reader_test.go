package ethereum

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/pagemarket/internal/domain/entities"
)

type mockContractCaller struct {
	CallContractFunc      func(ctx context.Context, to common.Address, data []byte, block *big.Int) ([]byte, error)
	BatchCallContractFunc func(ctx context.Context, to common.Address, calls [][]byte, block *big.Int) ([]BatchResult, error)
	BlockNumberFunc       func(ctx context.Context) (uint64, error)
}

func (m *mockContractCaller) CallContract(ctx context.Context, to common.Address, data []byte, block *big.Int) ([]byte, error) {
	return m.CallContractFunc(ctx, to, data, block)
}

func (m *mockContractCaller) BatchCallContract(ctx context.Context, to common.Address, calls [][]byte, block *big.Int) ([]BatchResult, error) {
	return m.BatchCallContractFunc(ctx, to, calls, block)
}

func (m *mockContractCaller) BlockNumber(ctx context.Context) (uint64, error) {
	if m.BlockNumberFunc != nil {
		return m.BlockNumberFunc(ctx)
	}
	return 100, nil
}

func newTestReader(t *testing.T, caller ContractCaller, maxConcurrent int64) *Reader {
	t.Helper()
	contracts, err := NewContracts(testTokenAddress)
	if err != nil {
		t.Fatalf("failed to build contracts: %v", err)
	}
	return NewReader(caller, contracts, maxConcurrent, zap.NewNop())
}

func packOutputs(t *testing.T, contract *Contract, method string, values ...interface{}) []byte {
	t.Helper()
	data, err := contract.ABI.Methods[method].Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("failed to pack %s outputs: %v", method, err)
	}
	return data
}

func TestReader_CallTotalSupply(t *testing.T) {
	contract := testContract(t)
	caller := &mockContractCaller{
		CallContractFunc: func(ctx context.Context, to common.Address, data []byte, block *big.Int) ([]byte, error) {
			if to != testTokenAddress {
				t.Errorf("expected call to %s, got %s", testTokenAddress.Hex(), to.Hex())
			}
			if block != nil {
				t.Errorf("expected latest block, got %s", block)
			}
			return packOutputs(t, contract, "totalSupply", big.NewInt(7)), nil
		},
	}

	reader := newTestReader(t, caller, 4)
	raw, err := reader.Call(context.Background(), entities.TotalSupplyQuery(time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(raw) != 1 {
		t.Fatalf("expected 1 output, got %d", len(raw))
	}
	if supply, ok := raw[0].(*big.Int); !ok || supply.Int64() != 7 {
		t.Errorf("expected totalSupply 7, got %v", raw[0])
	}
}

func TestReader_CallTokensOf(t *testing.T) {
	contract := testContract(t)
	tokens := []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)}
	caller := &mockContractCaller{
		CallContractFunc: func(ctx context.Context, to common.Address, data []byte, block *big.Int) ([]byte, error) {
			return packOutputs(t, contract, "tokensOf", tokens, big.NewInt(3), big.NewInt(3)), nil
		},
	}

	reader := newTestReader(t, caller, 4)
	raw, err := reader.Call(context.Background(), entities.TokensOfQuery(aliceAddress, time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids, ok := raw[0].([]*big.Int)
	if !ok {
		t.Fatalf("expected []*big.Int, got %T", raw[0])
	}
	if len(ids) != 3 || ids[2].Int64() != 3 {
		t.Errorf("unexpected token ids: %v", ids)
	}
}

func TestReader_TokenStateViewIsPinnedToOneBlock(t *testing.T) {
	contract := testContract(t)
	price := big.NewInt(1e18)
	bid := big.NewInt(5e17)

	caller := &mockContractCaller{
		BlockNumberFunc: func(ctx context.Context) (uint64, error) {
			return 4242, nil
		},
		BatchCallContractFunc: func(ctx context.Context, to common.Address, calls [][]byte, block *big.Int) ([]BatchResult, error) {
			if block == nil || block.Uint64() != 4242 {
				t.Errorf("expected batch pinned to block 4242, got %v", block)
			}
			if len(calls) != 3 {
				t.Fatalf("expected 3 calls, got %d", len(calls))
			}
			return []BatchResult{
				{Data: packOutputs(t, contract, "pageIdToAddress", aliceAddress)},
				{Data: packOutputs(t, contract, "pagesOfferedForSale", true, big.NewInt(42), aliceAddress, price, entities.NullAddress)},
				{Data: packOutputs(t, contract, "pageBids", true, big.NewInt(42), bobAddress, bid)},
			}, nil
		},
	}

	reader := newTestReader(t, caller, 4)
	raw, err := reader.Call(context.Background(), entities.TokenStateQuery(42, time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(raw) != 3 {
		t.Fatalf("expected 3 nested results, got %d", len(raw))
	}
	owner := raw[0].(entities.RawValue)
	if owner[0].(common.Address) != aliceAddress {
		t.Errorf("owner mismatch: got %v", owner[0])
	}
	offer := raw[1].(entities.RawValue)
	if !offer[0].(bool) || offer[3].(*big.Int).Cmp(price) != 0 {
		t.Errorf("offer mismatch: got %v", offer)
	}
	bids := raw[2].(entities.RawValue)
	if bids[2].(common.Address) != bobAddress || bids[3].(*big.Int).Cmp(bid) != 0 {
		t.Errorf("bid mismatch: got %v", bids)
	}
}

func TestReader_Errors(t *testing.T) {
	tests := []struct {
		name   string
		query  entities.LedgerQuery
		caller *mockContractCaller
		check  func(t *testing.T, err error)
	}{
		{
			name:  "unknown method",
			query: entities.LedgerQuery{Target: entities.TokenContract, Method: "burn"},
			caller: &mockContractCaller{
				CallContractFunc: func(ctx context.Context, to common.Address, data []byte, block *big.Int) ([]byte, error) {
					t.Error("no call expected for an unknown method")
					return nil, nil
				},
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, entities.ErrUnknownMethod) {
					t.Errorf("expected ErrUnknownMethod, got %v", err)
				}
			},
		},
		{
			name:   "unknown contract",
			query:  entities.LedgerQuery{Target: "Auction", Method: "totalSupply"},
			caller: &mockContractCaller{},
			check: func(t *testing.T, err error) {
				if err == nil {
					t.Error("expected error for unknown contract")
				}
			},
		},
		{
			name:  "revert",
			query: entities.TotalSupplyQuery(time.Second),
			caller: &mockContractCaller{
				CallContractFunc: func(ctx context.Context, to common.Address, data []byte, block *big.Int) ([]byte, error) {
					return nil, errors.New("execution reverted: paused")
				},
			},
			check: func(t *testing.T, err error) {
				var reverted *entities.MethodRevertedError
				if !errors.As(err, &reverted) || reverted.Reason != "paused" {
					t.Errorf("expected MethodRevertedError(paused), got %v", err)
				}
			},
		},
		{
			name:  "transport failure",
			query: entities.TotalSupplyQuery(time.Second),
			caller: &mockContractCaller{
				CallContractFunc: func(ctx context.Context, to common.Address, data []byte, block *big.Int) ([]byte, error) {
					return nil, errors.New("connection refused")
				},
			},
			check: func(t *testing.T, err error) {
				if !entities.IsLedgerUnavailable(err) {
					t.Errorf("expected LedgerUnavailableError, got %v", err)
				}
			},
		},
		{
			name:  "view block lookup fails",
			query: entities.TokenStateQuery(1, time.Second),
			caller: &mockContractCaller{
				BlockNumberFunc: func(ctx context.Context) (uint64, error) {
					return 0, errors.New("connection refused")
				},
			},
			check: func(t *testing.T, err error) {
				if !entities.IsLedgerUnavailable(err) {
					t.Errorf("expected LedgerUnavailableError, got %v", err)
				}
			},
		},
		{
			name:  "view member reverts",
			query: entities.TokenStateQuery(1, time.Second),
			caller: &mockContractCaller{
				BatchCallContractFunc: func(ctx context.Context, to common.Address, calls [][]byte, block *big.Int) ([]BatchResult, error) {
					results := make([]BatchResult, len(calls))
					results[0].Err = errors.New("execution reverted: bad page")
					return results, nil
				},
			},
			check: func(t *testing.T, err error) {
				var reverted *entities.MethodRevertedError
				if !errors.As(err, &reverted) {
					t.Fatalf("expected MethodRevertedError, got %v", err)
				}
				if reverted.Method != "pageIdToAddress" {
					t.Errorf("unexpected method %s", reverted.Method)
				}
			},
		},
		{
			name:  "view batch short",
			query: entities.TokenStateQuery(1, time.Second),
			caller: &mockContractCaller{
				BatchCallContractFunc: func(ctx context.Context, to common.Address, calls [][]byte, block *big.Int) ([]BatchResult, error) {
					return []BatchResult{{}}, nil
				},
			},
			check: func(t *testing.T, err error) {
				if !entities.IsLedgerUnavailable(err) {
					t.Errorf("expected LedgerUnavailableError, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := newTestReader(t, tt.caller, 4)
			_, err := reader.Call(context.Background(), tt.query)
			tt.check(t, err)
		})
	}
}

func TestReader_BoundsConcurrentCalls(t *testing.T) {
	contract := testContract(t)

	var inFlight, peak int32
	caller := &mockContractCaller{
		CallContractFunc: func(ctx context.Context, to common.Address, data []byte, block *big.Int) ([]byte, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return packOutputs(t, contract, "totalSupply", big.NewInt(1)), nil
		},
	}

	reader := newTestReader(t, caller, 2)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reader.Call(context.Background(), entities.TotalSupplyQuery(time.Second)); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Errorf("expected at most 2 concurrent calls, saw %d", peak)
	}
}

func TestReader_CanceledWhileWaitingForSlot(t *testing.T) {
	release := make(chan struct{})
	contract := testContract(t)
	caller := &mockContractCaller{
		CallContractFunc: func(ctx context.Context, to common.Address, data []byte, block *big.Int) ([]byte, error) {
			<-release
			return packOutputs(t, contract, "totalSupply", big.NewInt(1)), nil
		},
	}
	reader := newTestReader(t, caller, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		reader.Call(context.Background(), entities.TotalSupplyQuery(time.Second))
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := reader.Call(ctx, entities.TotalSupplyQuery(time.Second))
	if !entities.IsLedgerUnavailable(err) {
		t.Errorf("expected LedgerUnavailableError while waiting for a slot, got %v", err)
	}

	close(release)
	<-done
}
