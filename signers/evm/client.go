// Package evm wraps the go-ethereum client calls a native-token paywall needs: building and
// signing transfers, broadcasting them, waiting for receipts, and parsing signed transactions.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	// DefaultReceiptTimeout bounds WaitForReceipt when no timeout is configured.
	DefaultReceiptTimeout = 60 * time.Second
	// DefaultPollInterval is how often WaitForReceipt asks the node for a receipt.
	DefaultPollInterval = 2 * time.Second
)

// Backend is the subset of *ethclient.Client this package uses.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Client talks to one chain through a Backend.
type Client struct {
	backend        Backend
	chainID        *big.Int
	receiptTimeout time.Duration
	pollInterval   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithReceiptTimeout bounds how long WaitForReceipt polls.
func WithReceiptTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.receiptTimeout = timeout
		}
	}
}

// WithPollInterval sets the receipt polling interval.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// NewClient creates a client for the chain identified by chainID.
func NewClient(backend Backend, chainID *big.Int, opts ...Option) *Client {
	c := &Client{
		backend:        backend,
		chainID:        new(big.Int).Set(chainID),
		receiptTimeout: DefaultReceiptTimeout,
		pollInterval:   DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to an RPC endpoint and reads its chain id.
func Dial(ctx context.Context, rpcURL string, opts ...Option) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", rpcURL, err)
	}

	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	return NewClient(ec, chainID, opts...), nil
}

// ChainID returns the chain id the client was created for.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Close releases the underlying connection when the backend holds one.
func (c *Client) Close() {
	if closer, ok := c.backend.(interface{ Close() }); ok {
		closer.Close()
	}
}
