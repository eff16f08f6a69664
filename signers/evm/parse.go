package evm

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrEmptyTransaction = errors.New("evm: signed transaction is empty")
	ErrContractCreation = errors.New("evm: transaction has no recipient")
)

// ParsedTransaction is the part of a signed transfer that payment verification looks at.
type ParsedTransaction struct {
	Hash    common.Hash
	From    common.Address
	To      common.Address
	Value   *big.Int
	ChainID *big.Int
	Nonce   uint64
}

// DecodeTransaction decodes a hex-encoded signed transaction. The "0x" prefix is optional.
func DecodeTransaction(rawHex string) (*types.Transaction, error) {
	rawHex = strings.TrimSpace(rawHex)
	if rawHex == "" {
		return nil, ErrEmptyTransaction
	}
	if !strings.HasPrefix(rawHex, "0x") && !strings.HasPrefix(rawHex, "0X") {
		rawHex = "0x" + rawHex
	}

	raw, err := hexutil.Decode(rawHex)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction hex: %w", err)
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("invalid transaction encoding: %w", err)
	}
	return tx, nil
}

// ParseSignedTransaction decodes a signed transaction and recovers its sender without
// touching the chain.
func ParseSignedTransaction(rawHex string) (*ParsedTransaction, error) {
	tx, err := DecodeTransaction(rawHex)
	if err != nil {
		return nil, err
	}

	if tx.To() == nil {
		return nil, ErrContractCreation
	}

	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return nil, fmt.Errorf("failed to recover sender: %w", err)
	}

	return &ParsedTransaction{
		Hash:    tx.Hash(),
		From:    from,
		To:      *tx.To(),
		Value:   tx.Value(),
		ChainID: tx.ChainId(),
		Nonce:   tx.Nonce(),
	}, nil
}
