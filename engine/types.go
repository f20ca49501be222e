package engine

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vulcanize/go-evm-tracer/trace"
)

var (
	// ErrEmptyTrace is returned when tracing was requested but no frame was observed
	ErrEmptyTrace = errors.New("traced execution produced no call frames")
	// ErrValidation wraps failures detected before execution starts
	ErrValidation = errors.New("invalid transaction")
	// ErrReverted is returned by read-only calls that revert
	ErrReverted = errors.New("execution reverted")
	// ErrAborted marks transactions skipped after a backend fault in a stateful batch
	ErrAborted = errors.New("batch aborted after backend failure")
)

// ValidationError is a rejection raised by the interpreter before execution began.
// It matches both ErrValidation and the underlying cause under errors.Is.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// SimulationTx is one transaction to simulate
type SimulationTx struct {
	Caller common.Address
	// To is nil for contract creation
	To    *common.Address
	Value *big.Int
	Data  []byte
	// GasLimit falls back to the engine default when zero
	GasLimit uint64
	// Nonce is checked against state when set, otherwise the state nonce is used
	// and sender checks are skipped
	Nonce *uint64
}

// Hash returns a synthetic identifier for the transaction at the given nonce
func (tx *SimulationTx) Hash(nonce uint64) common.Hash {
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	unsigned := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       tx.To,
		Value:    value,
		Gas:      tx.GasLimit,
		GasPrice: new(big.Int),
		Data:     tx.Data,
	})
	return crypto.Keccak256Hash(unsigned.Hash().Bytes(), tx.Caller.Bytes())
}

// SimulationBatch is an ordered set of transactions run on one engine
type SimulationBatch struct {
	Transactions []SimulationTx
	// Stateful makes each transaction observe the effects of the previous ones
	Stateful bool
	// RetainLast keeps the state of the final transaction of a stateless batch
	RetainLast bool
	// Block overrides the engine block context for this batch only
	Block *BlockEnv
}

// TxState is the lifecycle position of one batch element
type TxState uint8

const (
	Pending TxState = iota
	Executing
	Committed
	RolledBack
	Errored
)

func (s TxState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Executing:
		return "executing"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	case Errored:
		return "errored"
	}
	return "unknown"
}

// FailureKind tells apart the ways a transaction can fail
type FailureKind uint8

const (
	KindNone FailureKind = iota
	// KindValidation is a rejection before execution began
	KindValidation
	// KindRevert is an explicit revert of the outermost call
	KindRevert
	// KindVMError is an interpreter fault of the outermost call
	KindVMError
	// KindEngine is a backend or engine fault not attributable to any frame
	KindEngine
)

func (k FailureKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindRevert:
		return "revert"
	case KindVMError:
		return "vm_error"
	case KindEngine:
		return "engine"
	}
	return "unknown"
}

// ExecResult is the raw interpreter outcome of a transaction
type ExecResult struct {
	Success      bool
	GasUsed      uint64
	ReturnData   []byte
	RevertReason string
	Err          error
	// ContractAddress is set for creations
	ContractAddress *common.Address
}

// TxResult is the outcome of one batch element, aligned with the input order
type TxResult struct {
	Index int
	Hash  common.Hash
	State TxState
	Kind  FailureKind
	Exec  *ExecResult
	Trace *trace.TraceOutput
	// StateRoot is the root after the transaction, set when its state was kept
	StateRoot common.Hash
	Err       error
}

// Ok reports whether the transaction executed and its outermost call succeeded
func (r *TxResult) Ok() bool {
	return r.Kind == KindNone && r.Exec != nil && r.Exec.Success
}
