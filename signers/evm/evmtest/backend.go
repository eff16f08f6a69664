// Package evmtest provides an in-memory chain backend for tests.
package evmtest

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Backend is an in-memory chain satisfying evm.Backend. Sent transactions are mined
// immediately unless PendingPolls or WithholdReceipts say otherwise.
type Backend struct {
	mu sync.Mutex

	chainID  *big.Int
	gasPrice *big.Int
	balances map[common.Address]*big.Int
	nonces   map[common.Address]uint64
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
	polls    map[common.Hash]int

	// SendErr, when set, is returned by every SendTransaction call.
	SendErr error
	// ReceiptErr, when set, is returned by every TransactionReceipt call.
	ReceiptErr error
	// ReceiptStatus is the status given to receipts of sent transactions.
	ReceiptStatus uint64
	// PendingPolls is how many receipt lookups return ethereum.NotFound before the receipt appears.
	PendingPolls int
	// WithholdReceipts makes every receipt lookup return ethereum.NotFound.
	WithholdReceipts bool
}

// NewBackend creates an empty chain with the given id.
func NewBackend(chainID int64) *Backend {
	return &Backend{
		chainID:       big.NewInt(chainID),
		gasPrice:      big.NewInt(1_000_000_000),
		balances:      make(map[common.Address]*big.Int),
		nonces:        make(map[common.Address]uint64),
		receipts:      make(map[common.Hash]*types.Receipt),
		polls:         make(map[common.Hash]int),
		ReceiptStatus: types.ReceiptStatusSuccessful,
	}
}

// SetBalance funds an account.
func (b *Backend) SetBalance(account common.Address, balance *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] = new(big.Int).Set(balance)
}

// Sent returns the transactions accepted so far.
func (b *Backend) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.sent...)
}

func (b *Backend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.chainID), nil
}

func (b *Backend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

func (b *Backend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.gasPrice), nil
}

func (b *Backend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if balance, ok := b.balances[account]; ok {
		return new(big.Int).Set(balance), nil
	}
	return new(big.Int), nil
}

func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.SendErr != nil {
		return b.SendErr
	}
	if _, ok := b.receipts[tx.Hash()]; ok {
		return errors.New("already known")
	}

	from, err := types.Sender(types.LatestSignerForChainID(b.chainID), tx)
	if err != nil {
		return err
	}
	if tx.Nonce() < b.nonces[from] {
		return errors.New("nonce too low")
	}
	b.nonces[from] = tx.Nonce() + 1

	b.sent = append(b.sent, tx)
	b.receipts[tx.Hash()] = &types.Receipt{
		Type:        tx.Type(),
		Status:      b.ReceiptStatus,
		TxHash:      tx.Hash(),
		GasUsed:     tx.Gas(),
		BlockNumber: big.NewInt(int64(len(b.sent))),
	}
	return nil
}

func (b *Backend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ReceiptErr != nil {
		return nil, b.ReceiptErr
	}
	receipt, ok := b.receipts[hash]
	if !ok || b.WithholdReceipts {
		return nil, ethereum.NotFound
	}
	if b.polls[hash] < b.PendingPolls {
		b.polls[hash]++
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

// NewKey generates a fresh private key or panics.
func NewKey() *ecdsa.PrivateKey {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return key
}

// SignedTransfer signs a legacy transfer with explicit fields and returns its raw hex.
func SignedTransfer(key *ecdsa.PrivateKey, chainID *big.Int, nonce uint64, to common.Address, value *big.Int) (string, error) {
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      21000,
		GasPrice: big.NewInt(1_000_000_000),
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return "", err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return "", err
	}
	return "0x" + common.Bytes2Hex(raw), nil
}
