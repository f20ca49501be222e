package backend

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// RPC fetches state from a JSON-RPC node at a pinned block
type RPC struct {
	client *ethclient.Client
	block  *big.Int
}

var (
	_ Backend     = (*RPC)(nil)
	_ BlockPinner = (*RPC)(nil)
	_ BlockHasher = (*RPC)(nil)
)

// DialRPC connects to url. A nil block pins to the latest block at dial time.
func DialRPC(ctx context.Context, url string, block *uint64) (*RPC, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	number := uint64(0)
	if block != nil {
		number = *block
	} else {
		number, err = client.BlockNumber(ctx)
		if err != nil {
			client.Close()
			return nil, &Error{Op: "block number", Err: err}
		}
	}
	return NewRPC(client, number), nil
}

// NewRPC wraps an existing client
func NewRPC(client *ethclient.Client, block uint64) *RPC {
	return &RPC{client: client, block: new(big.Int).SetUint64(block)}
}

// Block returns the pinned block number
func (r *RPC) Block() uint64 {
	return r.block.Uint64()
}

// AtBlock implements BlockPinner
func (r *RPC) AtBlock(number uint64) Backend {
	return NewRPC(r.client, number)
}

// Header returns the header of the pinned block
func (r *RPC) Header(ctx context.Context) (*types.Header, error) {
	header, err := r.client.HeaderByNumber(ctx, r.block)
	if err != nil {
		return nil, &Error{Op: "header", Err: err}
	}
	return header, nil
}

// ChainID returns the chain id reported by the node
func (r *RPC) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := r.client.ChainID(ctx)
	if err != nil {
		return nil, &Error{Op: "chain id", Err: err}
	}
	return id, nil
}

// GetAccount implements Backend
func (r *RPC) GetAccount(ctx context.Context, addr common.Address) (*Account, error) {
	balance, err := r.client.BalanceAt(ctx, addr, r.block)
	if err != nil {
		return nil, &Error{Op: "balance", Address: addr, Err: err}
	}
	nonce, err := r.client.NonceAt(ctx, addr, r.block)
	if err != nil {
		return nil, &Error{Op: "nonce", Address: addr, Err: err}
	}
	code, err := r.client.CodeAt(ctx, addr, r.block)
	if err != nil {
		return nil, &Error{Op: "code", Address: addr, Err: err}
	}
	acc := &Account{Balance: balance, Nonce: nonce}
	if len(code) > 0 {
		acc.CodeHash = crypto.Keccak256Hash(code)
	}
	return acc, nil
}

// GetStorage implements Backend
func (r *RPC) GetStorage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	value, err := r.client.StorageAt(ctx, addr, slot, r.block)
	if err != nil {
		return common.Hash{}, &Error{Op: "storage", Address: addr, Err: err}
	}
	return common.BytesToHash(value), nil
}

// GetCode implements Backend
func (r *RPC) GetCode(ctx context.Context, addr common.Address) ([]byte, error) {
	code, err := r.client.CodeAt(ctx, addr, r.block)
	if err != nil {
		return nil, &Error{Op: "code", Address: addr, Err: err}
	}
	return code, nil
}

// BlockHash implements BlockHasher
func (r *RPC) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	header, err := r.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return common.Hash{}, &Error{Op: "block hash", Err: err}
	}
	return header.Hash(), nil
}

// Close releases the underlying client
func (r *RPC) Close() {
	r.client.Close()
}
