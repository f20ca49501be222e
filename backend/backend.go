package backend

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNotFound is returned by backends that cannot serve a key at all
var ErrNotFound = errors.New("not found")

// Account is the remote view of an account at the pinned block
type Account struct {
	Balance  *big.Int
	Nonce    uint64
	CodeHash common.Hash
}

// Empty reports whether the account is absent under EIP-161 rules
func (a *Account) Empty() bool {
	return a == nil || (a.Nonce == 0 && (a.Balance == nil || a.Balance.Sign() == 0) &&
		(a.CodeHash == (common.Hash{}) || a.CodeHash == emptyCodeHash))
}

var emptyCodeHash = crypto.Keccak256Hash(nil)

// Backend serves chain state at a fixed block
type Backend interface {
	GetAccount(ctx context.Context, addr common.Address) (*Account, error)
	GetStorage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error)
	GetCode(ctx context.Context, addr common.Address) ([]byte, error)
}

// BlockPinner is implemented by backends that can be re-pinned to another block
type BlockPinner interface {
	AtBlock(number uint64) Backend
}

// BlockHasher is implemented by backends that can answer BLOCKHASH lookups
type BlockHasher interface {
	BlockHash(ctx context.Context, number uint64) (common.Hash, error)
}

// Error is an infrastructure failure while fetching state
type Error struct {
	Op      string
	Address common.Address
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend %s %s: %v", e.Op, e.Address.Hex(), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsBackendError reports whether err carries a backend failure
func IsBackendError(err error) bool {
	var be *Error
	return errors.As(err, &be)
}
