package evm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrReceiptTimeout is returned when no receipt showed up within the receipt timeout.
var ErrReceiptTimeout = errors.New("evm: timed out waiting for receipt")

// Node error messages that mean the transaction, or one with the same nonce, was already
// submitted.
var replayMessages = []string{
	"already known",
	"known transaction",
	"nonce too low",
	"replacement transaction underpriced",
}

// IsReplayError reports whether err is the node rejecting a duplicate or replayed transaction.
func IsReplayError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range replayMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// SendRawTransaction broadcasts a hex-encoded signed transaction. The hash is returned even
// when the node rejects the transaction.
func (c *Client) SendRawTransaction(ctx context.Context, rawHex string) (common.Hash, error) {
	tx, err := DecodeTransaction(rawHex)
	if err != nil {
		return common.Hash{}, err
	}

	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return tx.Hash(), fmt.Errorf("failed to send transaction: %w", err)
	}

	return tx.Hash(), nil
}

// WaitForReceipt polls for the receipt of hash until it appears or the receipt timeout
// elapses. It does not check the receipt status.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			return receipt, nil
		case ctx.Err() != nil:
			return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("failed to get receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
		case <-ticker.C:
		}
	}
}
