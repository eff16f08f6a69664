package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// TransferGasLimit is the intrinsic gas of a plain value transfer.
const TransferGasLimit = 21000

// Signer holds the private key that pays for requests.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSignerFromPrivateKey creates a signer from a hex-encoded private key
// (with or without "0x" prefix).
func NewSignerFromPrivateKey(privateKeyHex string) (*Signer, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewSigner(privateKey), nil
}

// NewSigner wraps an ECDSA key.
func NewSigner(privateKey *ecdsa.PrivateKey) *Signer {
	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// Address returns the Ethereum address of the signer.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign signs tx for chainID with replay protection.
func (s *Signer) Sign(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// BuildTransfer builds an unsigned native-token transfer using the sender's pending nonce and
// the node's suggested gas price.
func (c *Client) BuildTransfer(ctx context.Context, from, to common.Address, value *big.Int) (*types.Transaction, error) {
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int).Set(value),
		Gas:      TransferGasLimit,
		GasPrice: gasPrice,
	}), nil
}

// SignedTransfer builds and signs a transfer of value to the given address and returns the
// raw transaction as 0x-prefixed hex, ready for an X-PAYMENT payload.
func (c *Client) SignedTransfer(ctx context.Context, signer *Signer, to string, value *big.Int) (string, error) {
	if !IsValidAddress(to) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, to)
	}
	if value == nil || value.Sign() < 0 {
		return "", fmt.Errorf("invalid transfer value: %v", value)
	}

	tx, err := c.BuildTransfer(ctx, signer.Address(), common.HexToAddress(to), value)
	if err != nil {
		return "", err
	}

	signed, err := signer.Sign(tx, c.chainID)
	if err != nil {
		return "", err
	}

	return EncodeTransaction(signed)
}

// EncodeTransaction returns the canonical binary encoding of tx as 0x-prefixed hex.
func EncodeTransaction(tx *types.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to encode transaction: %w", err)
	}
	return hexutil.Encode(raw), nil
}
