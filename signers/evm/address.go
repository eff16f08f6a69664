package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// NativeDecimals is the number of decimals of every EVM native token (wei per ether).
const NativeDecimals = 18

var ErrInvalidAddress = errors.New("evm: invalid address")

// IsValidAddress reports whether s is a 20-byte hex address, with or without "0x".
func IsValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

// FormatAddress returns the EIP-55 checksummed form of s.
func FormatAddress(s string) (string, error) {
	if !IsValidAddress(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s).Hex(), nil
}

// SameAddress compares two addresses ignoring case. Malformed addresses never match.
func SameAddress(a, b string) bool {
	if !IsValidAddress(a) || !IsValidAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}

// BalanceOf returns the latest native balance of address in atomic units.
func (c *Client) BalanceOf(ctx context.Context, address string) (*big.Int, error) {
	if !IsValidAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	balance, err := c.backend.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// FormatUnits renders an atomic amount with the given number of decimals, e.g.
// FormatUnits(1500000000000000000, 18) == "1.5".
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}
