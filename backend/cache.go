package backend

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the number of entries kept per cache
const DefaultCacheSize = 1 << 16

type accountKey struct {
	block uint64
	addr  common.Address
}

type slotKey struct {
	block uint64
	addr  common.Address
	slot  common.Hash
}

// caches is shared by every block view of one Cached backend
type caches struct {
	accounts *lru.Cache[accountKey, *Account]
	storage  *lru.Cache[slotKey, common.Hash]
	code     *lru.Cache[common.Hash, []byte]
	codeHash *lru.Cache[accountKey, common.Hash]
	group    singleflight.Group
}

// Cached memoizes another Backend. It is safe for concurrent use, concurrent
// misses on the same key share a single fetch.
type Cached struct {
	inner Backend
	block uint64
	*caches
}

var (
	_ Backend     = (*Cached)(nil)
	_ BlockPinner = (*Cached)(nil)
	_ BlockHasher = (*Cached)(nil)
)

// NewCached wraps inner with LRU caches of the given size
func NewCached(inner Backend, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	accounts, err := lru.New[accountKey, *Account](size)
	if err != nil {
		return nil, err
	}
	storage, err := lru.New[slotKey, common.Hash](size)
	if err != nil {
		return nil, err
	}
	code, err := lru.New[common.Hash, []byte](size)
	if err != nil {
		return nil, err
	}
	codeHash, err := lru.New[accountKey, common.Hash](size)
	if err != nil {
		return nil, err
	}
	var block uint64
	if pinned, ok := inner.(interface{ Block() uint64 }); ok {
		block = pinned.Block()
	}
	return &Cached{
		inner: inner,
		block: block,
		caches: &caches{
			accounts: accounts,
			storage:  storage,
			code:     code,
			codeHash: codeHash,
		},
	}, nil
}

// AtBlock implements BlockPinner. The returned view shares the caches.
func (c *Cached) AtBlock(number uint64) Backend {
	pinner, ok := c.inner.(BlockPinner)
	if !ok {
		return c
	}
	return &Cached{inner: pinner.AtBlock(number), block: number, caches: c.caches}
}

// GetAccount implements Backend
func (c *Cached) GetAccount(ctx context.Context, addr common.Address) (*Account, error) {
	key := accountKey{block: c.block, addr: addr}
	if acc, ok := c.accounts.Get(key); ok {
		return copyAccount(acc), nil
	}
	v, err, _ := c.group.Do(fmt.Sprintf("account:%d:%x", c.block, addr), func() (interface{}, error) {
		acc, err := c.inner.GetAccount(ctx, addr)
		if err != nil {
			return nil, err
		}
		c.accounts.Add(key, acc)
		return acc, nil
	})
	if err != nil {
		return nil, err
	}
	return copyAccount(v.(*Account)), nil
}

// GetStorage implements Backend
func (c *Cached) GetStorage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	key := slotKey{block: c.block, addr: addr, slot: slot}
	if v, ok := c.storage.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(fmt.Sprintf("storage:%d:%x:%x", c.block, addr, slot), func() (interface{}, error) {
		value, err := c.inner.GetStorage(ctx, addr, slot)
		if err != nil {
			return nil, err
		}
		c.storage.Add(key, value)
		return value, nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	return v.(common.Hash), nil
}

// GetCode implements Backend. Code is cached by hash once the hash is known.
func (c *Cached) GetCode(ctx context.Context, addr common.Address) ([]byte, error) {
	key := accountKey{block: c.block, addr: addr}
	if hash, ok := c.codeHash.Get(key); ok {
		if code, ok := c.code.Get(hash); ok {
			return common.CopyBytes(code), nil
		}
	}
	v, err, _ := c.group.Do(fmt.Sprintf("code:%d:%x", c.block, addr), func() (interface{}, error) {
		code, err := c.inner.GetCode(ctx, addr)
		if err != nil {
			return nil, err
		}
		hash := crypto.Keccak256Hash(code)
		c.codeHash.Add(key, hash)
		c.code.Add(hash, code)
		return code, nil
	})
	if err != nil {
		return nil, err
	}
	return common.CopyBytes(v.([]byte)), nil
}

// BlockHash implements BlockHasher
func (c *Cached) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	if hasher, ok := c.inner.(BlockHasher); ok {
		return hasher.BlockHash(ctx, number)
	}
	return common.Hash{}, nil
}

// Purge drops every cached entry
func (c *Cached) Purge() {
	c.accounts.Purge()
	c.storage.Purge()
	c.code.Purge()
	c.codeHash.Purge()
}

func copyAccount(acc *Account) *Account {
	out := *acc
	if acc.Balance != nil {
		out.Balance = new(big.Int).Set(acc.Balance)
	}
	return &out
}

// Block returns the block this view is pinned to
func (c *Cached) Block() uint64 {
	return c.block
}
