package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/bimakw/pagemarket/internal/config"
)

// Client wraps the Ethereum client. The underlying rpc.Client is safe for concurrent use
// and is shared read-only by every reader, submitter and oracle in the process.
type Client struct {
	client  *ethclient.Client
	config  config.EthereumConfig
	logger  *zap.Logger
	chainID *big.Int
}

// BatchResult is the outcome of one call inside a batched eth_call
type BatchResult struct {
	Data []byte
	Err  error
}

// NewClient creates a new Ethereum client
func NewClient(cfg config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	if chainID.Int64() != cfg.ChainID {
		client.Close()
		return nil, fmt.Errorf("chain ID mismatch: expected %d, got %d", cfg.ChainID, chainID.Int64())
	}

	logger.Info("Connected to Ethereum node",
		zap.String("rpc_url", cfg.RPCURL),
		zap.Int64("chain_id", chainID.Int64()),
	)

	return &Client{
		client:  client,
		config:  cfg,
		logger:  logger,
		chainID: chainID,
	}, nil
}

// Close closes the Ethereum client connection
func (c *Client) Close() {
	c.client.Close()
}

// CallContract executes a single eth_call. A nil block means latest. No retries.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte, block *big.Int) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, block)
}

// BatchCallContract executes several eth_calls against the same contract in one
// JSON-RPC batch, all pinned to block. Per-call failures are reported in the results.
func (c *Client) BatchCallContract(ctx context.Context, to common.Address, calls [][]byte, block *big.Int) ([]BatchResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	blockArg := "latest"
	if block != nil {
		blockArg = hexutil.EncodeBig(block)
	}

	outputs := make([]hexutil.Bytes, len(calls))
	elems := make([]rpc.BatchElem, len(calls))
	for i, data := range calls {
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args: []interface{}{
				map[string]interface{}{
					"to":   to,
					"data": hexutil.Bytes(data),
				},
				blockArg,
			},
			Result: &outputs[i],
		}
	}

	if err := c.client.Client().BatchCallContext(ctx, elems); err != nil {
		return nil, err
	}

	results := make([]BatchResult, len(elems))
	for i, elem := range elems {
		results[i] = BatchResult{Data: outputs[i], Err: elem.Error}
	}
	return results, nil
}

// BlockNumber returns the latest block number without retrying
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.client.BlockNumber(ctx)
}

// GetLatestBlockNumber returns the latest block number, retrying transient failures
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	var blockNumber uint64
	err := c.retry(ctx, "get latest block number", func() error {
		var err error
		blockNumber, err = c.client.BlockNumber(ctx)
		return err
	})
	return blockNumber, err
}

// GetBlockByNumber returns a block header by its number, retrying transient failures
func (c *Client) GetBlockByNumber(ctx context.Context, blockNumber *big.Int) (*types.Header, error) {
	var header *types.Header
	err := c.retry(ctx, "get block "+blockNumber.String(), func() error {
		var err error
		header, err = c.client.HeaderByNumber(ctx, blockNumber)
		return err
	})
	return header, err
}

// GetLogs retrieves logs matching the filter query, retrying transient failures
func (c *Client) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.retry(ctx, "get logs", func() error {
		var err error
		logs, err = c.client.FilterLogs(ctx, query)
		return err
	})
	return logs, err
}

// GetBlockTimestamp returns the timestamp of a block
func (c *Client) GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	header, err := c.GetBlockByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(header.Time), 0), nil
}

// SuggestGasPrice returns the node's current gas price quote
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.client.SuggestGasPrice(ctx)
}

// EstimateGas simulates msg and returns the gas it needs
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.client.EstimateGas(ctx, msg)
}

// PendingNonceAt returns the next nonce for account including pending transactions
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.client.PendingNonceAt(ctx, account)
}

// SendTransaction broadcasts a signed transaction
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.client.SendTransaction(ctx, tx)
}

// TransactionReceipt returns the receipt of a mined transaction or ethereum.NotFound
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.client.TransactionReceipt(ctx, hash)
}

// HealthCheck checks if the node is reachable
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.BlockNumber(ctx)
	return err
}

// ChainID returns the chain ID
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.config.RequestTimeout)
}

// retry runs fn up to MaxRetries+1 times. Only history queries use it; polled reads
// leave retrying to the poller's next tick.
func (c *Client) retry(ctx context.Context, op string, fn func() error) error {
	var err error

	for i := 0; i <= c.config.MaxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}

		c.logger.Warn("Ethereum request failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", i+1),
			zap.Error(err),
		)

		if i < c.config.MaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}
	}

	return fmt.Errorf("failed to %s after %d retries: %w", op, c.config.MaxRetries, err)
}
