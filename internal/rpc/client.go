package rpc

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

const defaultCallTimeout = 30 * time.Second

// Client wraps an ethclient for the log feed and contract calls.
type Client struct {
	client   *ethclient.Client
	raw      *rpc.Client
	endpoint string
	chainID  *big.Int
	logger   zerolog.Logger
}

// NewClient dials endpoint over HTTP and checks the chain id.
func NewClient(endpoint string, chainID int64, logger zerolog.Logger) (*Client, error) {
	httpClient := &http.Client{
		Timeout: defaultCallTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: 32,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	rpcClient, err := rpc.DialHTTPWithClient(endpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	client := ethclient.NewClient(rpcClient)
	logger = logger.With().Str("component", "rpc_client").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), defaultCallTimeout)
	defer cancel()

	networkID, err := client.ChainID(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to verify chain ID, continuing anyway")
		networkID = big.NewInt(chainID)
	} else if chainID != 0 && networkID.Int64() != chainID {
		rpcClient.Close()
		return nil, fmt.Errorf("chain ID mismatch: expected %d, got %d", chainID, networkID.Int64())
	}

	logger.Info().
		Str("endpoint", endpoint).
		Int64("chain_id", networkID.Int64()).
		Msg("Connected to RPC endpoint")

	return &Client{
		client:   client,
		raw:      rpcClient,
		endpoint: endpoint,
		chainID:  networkID,
		logger:   logger,
	}, nil
}

func (c *Client) Close() {
	c.client.Close()
	c.logger.Info().Msg("RPC client connection closed")
}

// Eth exposes the underlying ethclient, which is also a bind.ContractBackend.
func (c *Client) Eth() *ethclient.Client {
	return c.client
}

func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultCallTimeout)
}

// GetLatestBlockNumber returns the chain head.
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	n, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}
	return n, nil
}

// TransactionSender recovers the sender of the index-th transaction of a block.
func (c *Client) TransactionSender(ctx context.Context, blockHash common.Hash, index uint) (common.Address, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := c.client.TransactionInBlock(ctx, blockHash, index)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to get transaction %d of block %s: %w", index, blockHash.Hex(), err)
	}
	from, err := c.client.TransactionSender(ctx, tx, blockHash, index)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover sender of %s: %w", tx.Hash().Hex(), err)
	}
	return from, nil
}

// IsConnected checks if the client can reach the endpoint.
func (c *Client) IsConnected(ctx context.Context) bool {
	_, err := c.GetLatestBlockNumber(ctx)
	return err == nil
}

// Retry runs fn up to maxRetries times with linear backoff.
func (c *Client) Retry(ctx context.Context, fn func() error, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == maxRetries-1 {
			break
		}

		wait := time.Duration(i+1) * time.Second
		c.logger.Warn().
			Err(err).
			Int("attempt", i+1).
			Dur("wait", wait).
			Msg("Retrying RPC call")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("max retries exceeded: %w", err)
}
