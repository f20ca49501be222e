package trace

import (
	"errors"

	"github.com/ethereum/go-ethereum/core/vm"
)

// ErrorKind classifies interpreter faults
type ErrorKind uint8

const (
	NoError ErrorKind = iota
	OutOfGas
	CodeStoreOutOfGas
	Depth
	InsufficientBalance
	ContractAddressCollision
	InvalidJump
	InvalidOpcode
	StackUnderflow
	StackOverflow
	WriteProtection
	ReturnDataOutOfBounds
	MaxCodeSize
	GasUintOverflow
	Other
)

var errorKindNames = [...]string{
	NoError:                  "none",
	OutOfGas:                 "out of gas",
	CodeStoreOutOfGas:        "contract creation code storage out of gas",
	Depth:                    "max call depth exceeded",
	InsufficientBalance:      "insufficient balance for transfer",
	ContractAddressCollision: "contract address collision",
	InvalidJump:              "invalid jump destination",
	InvalidOpcode:            "invalid opcode",
	StackUnderflow:           "stack underflow",
	StackOverflow:            "stack limit reached",
	WriteProtection:          "write protection",
	ReturnDataOutOfBounds:    "return data out of bounds",
	MaxCodeSize:              "max code size exceeded",
	GasUintOverflow:          "gas uint64 overflow",
	Other:                    "other",
}

func (k ErrorKind) String() string {
	if int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return "unknown"
}

// ClassifyError maps an interpreter error onto an ErrorKind
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return NoError
	}
	var (
		invalidOp *vm.ErrInvalidOpCode
		underflow *vm.ErrStackUnderflow
		overflow  *vm.ErrStackOverflow
	)
	switch {
	case errors.As(err, &invalidOp):
		return InvalidOpcode
	case errors.As(err, &underflow):
		return StackUnderflow
	case errors.As(err, &overflow):
		return StackOverflow
	case errors.Is(err, vm.ErrOutOfGas):
		return OutOfGas
	case errors.Is(err, vm.ErrCodeStoreOutOfGas):
		return CodeStoreOutOfGas
	case errors.Is(err, vm.ErrDepth):
		return Depth
	case errors.Is(err, vm.ErrInsufficientBalance):
		return InsufficientBalance
	case errors.Is(err, vm.ErrContractAddressCollision):
		return ContractAddressCollision
	case errors.Is(err, vm.ErrInvalidJump):
		return InvalidJump
	case errors.Is(err, vm.ErrWriteProtection):
		return WriteProtection
	case errors.Is(err, vm.ErrReturnDataOutOfBounds):
		return ReturnDataOutOfBounds
	case errors.Is(err, vm.ErrMaxCodeSizeExceeded):
		return MaxCodeSize
	case errors.Is(err, vm.ErrGasUintOverflow):
		return GasUintOverflow
	}
	return Other
}

// StatusFromResult derives a frame status from the interpreter outcome
func StatusFromResult(output []byte, err error) Status {
	switch {
	case err == nil:
		return Status{Kind: Success}
	case errors.Is(err, vm.ErrExecutionReverted):
		return Status{Kind: Revert, Reason: DecodeRevertReason(output)}
	default:
		return Status{Kind: Error, ErrKind: ClassifyError(err), Err: err.Error()}
	}
}
