package backend

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type memAccount struct {
	balance *big.Int
	nonce   uint64
	code    []byte
	storage map[common.Hash]common.Hash
}

// Memory is an in-process Backend, mostly used for tests and local fixtures
type Memory struct {
	mu       sync.RWMutex
	accounts map[common.Address]*memAccount
	failures map[common.Address]error
	hashes   map[uint64]common.Hash
	reads    int
}

var (
	_ Backend     = (*Memory)(nil)
	_ BlockHasher = (*Memory)(nil)
)

// NewMemory returns an empty in-memory backend
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[common.Address]*memAccount),
		failures: make(map[common.Address]error),
		hashes:   make(map[uint64]common.Hash),
	}
}

func (m *Memory) account(addr common.Address) *memAccount {
	acc, ok := m.accounts[addr]
	if !ok {
		acc = &memAccount{balance: new(big.Int), storage: make(map[common.Hash]common.Hash)}
		m.accounts[addr] = acc
	}
	return acc
}

// SetBalance sets the balance of addr
func (m *Memory) SetBalance(addr common.Address, balance *big.Int) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account(addr).balance = new(big.Int).Set(balance)
	return m
}

// SetNonce sets the nonce of addr
func (m *Memory) SetNonce(addr common.Address, nonce uint64) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account(addr).nonce = nonce
	return m
}

// SetCode sets the code of addr
func (m *Memory) SetCode(addr common.Address, code []byte) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account(addr).code = common.CopyBytes(code)
	return m
}

// SetStorage sets one storage slot of addr
func (m *Memory) SetStorage(addr common.Address, slot, value common.Hash) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account(addr).storage[slot] = value
	return m
}

// SetBlockHash sets the hash returned for a block number
func (m *Memory) SetBlockHash(number uint64, hash common.Hash) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[number] = hash
	return m
}

// Fail makes every lookup touching addr return err
func (m *Memory) Fail(addr common.Address, err error) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[addr] = err
	return m
}

// Reads returns the number of lookups served
func (m *Memory) Reads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reads
}

func (m *Memory) lookup(op string, addr common.Address) (*memAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if err, ok := m.failures[addr]; ok {
		return nil, &Error{Op: op, Address: addr, Err: err}
	}
	return m.accounts[addr], nil
}

// GetAccount implements Backend
func (m *Memory) GetAccount(_ context.Context, addr common.Address) (*Account, error) {
	acc, err := m.lookup("account", addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return &Account{Balance: new(big.Int)}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := &Account{Balance: new(big.Int).Set(acc.balance), Nonce: acc.nonce}
	if len(acc.code) > 0 {
		out.CodeHash = crypto.Keccak256Hash(acc.code)
	}
	return out, nil
}

// GetStorage implements Backend
func (m *Memory) GetStorage(_ context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	acc, err := m.lookup("storage", addr)
	if err != nil || acc == nil {
		return common.Hash{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return acc.storage[slot], nil
}

// GetCode implements Backend
func (m *Memory) GetCode(_ context.Context, addr common.Address) ([]byte, error) {
	acc, err := m.lookup("code", addr)
	if err != nil || acc == nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return common.CopyBytes(acc.code), nil
}

// BlockHash implements BlockHasher
func (m *Memory) BlockHash(_ context.Context, number uint64) (common.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hashes[number], nil
}
