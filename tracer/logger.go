package tracer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/vulcanize/go-evm-tracer/trace"
)

// evmLogger translates interpreter callbacks into Hooks
type evmLogger struct {
	hooks Hooks
	env   *vm.EVM
}

var _ vm.EVMLogger = (*evmLogger)(nil)

// NewLogger wraps hooks in a vm.EVMLogger to be set as vm.Config.Tracer
func NewLogger(hooks Hooks) vm.EVMLogger {
	return &evmLogger{hooks: hooks}
}

func (l *evmLogger) CaptureTxStart(gasLimit uint64) {}

func (l *evmLogger) CaptureTxEnd(restGas uint64) {}

func (l *evmLogger) CaptureStart(env *vm.EVM, from common.Address, to common.Address, create bool, input []byte, gas uint64, value *big.Int) {
	l.env = env
	kind := trace.Call
	if create {
		kind = trace.Create
	}
	l.hooks.OnCallEnter(CallEnter{
		Kind:  kind,
		From:  from,
		To:    to,
		Value: value,
		Input: input,
		Gas:   gas,
	})
}

func (l *evmLogger) CaptureEnd(output []byte, gasUsed uint64, err error) {
	l.hooks.OnCallExit(CallExit{Output: output, GasUsed: gasUsed, Err: err})
}

func (l *evmLogger) CaptureEnter(typ vm.OpCode, from common.Address, to common.Address, input []byte, gas uint64, value *big.Int) {
	kind, err := trace.KindFromOpCode(typ)
	if err != nil {
		kind = trace.Call
	}
	l.hooks.OnCallEnter(CallEnter{
		Kind:  kind,
		From:  from,
		To:    to,
		Value: value,
		Input: input,
		Gas:   gas,
	})
}

func (l *evmLogger) CaptureExit(output []byte, gasUsed uint64, err error) {
	l.hooks.OnCallExit(CallExit{Output: output, GasUsed: gasUsed, Err: err})
}

func (l *evmLogger) CaptureState(pc uint64, op vm.OpCode, gas, cost uint64, scope *vm.ScopeContext, rData []byte, depth int, err error) {
	if err != nil || scope == nil {
		return
	}
	switch {
	case op == vm.SLOAD, op == vm.SSTORE:
		l.captureStorage(op, scope)
	case op >= vm.LOG0 && op <= vm.LOG4:
		l.captureLog(op, scope)
	}
}

func (l *evmLogger) CaptureFault(pc uint64, op vm.OpCode, gas, cost uint64, scope *vm.ScopeContext, depth int, err error) {
}

func (l *evmLogger) captureStorage(op vm.OpCode, scope *vm.ScopeContext) {
	stack := scope.Stack.Data()
	addr := scope.Contract.Address()
	if len(stack) < 1 || (op == vm.SSTORE && len(stack) < 2) {
		return
	}
	slot := common.Hash(stack[len(stack)-1].Bytes32())
	var prev common.Hash
	if l.env != nil {
		prev = l.env.StateDB.GetState(addr, slot)
	}
	access := StorageAccess{Address: addr, Slot: slot, Previous: prev, Kind: trace.Read}
	if op == vm.SSTORE {
		value := common.Hash(stack[len(stack)-2].Bytes32())
		access.New = &value
		access.Kind = trace.Write
	}
	l.hooks.OnStorageAccess(access)
}

func (l *evmLogger) captureLog(op vm.OpCode, scope *vm.ScopeContext) {
	size := int(op - vm.LOG0)
	stack := scope.Stack.Data()
	if len(stack) < 2+size {
		return
	}
	mStart, mSize := stack[len(stack)-1], stack[len(stack)-2]
	if !mStart.IsUint64() || !mSize.IsUint64() {
		return
	}
	topics := make([]common.Hash, size)
	for i := 0; i < size; i++ {
		topics[i] = common.Hash(stack[len(stack)-3-i].Bytes32())
	}
	l.hooks.OnLog(&types.Log{
		Address: scope.Contract.Address(),
		Topics:  topics,
		Data:    memoryCopy(scope.Memory, mStart.Uint64(), mSize.Uint64()),
	})
}

// memoryCopy reads a memory range, zero padding what lies past the current size
func memoryCopy(mem *vm.Memory, offset, size uint64) []byte {
	if size == 0 {
		return []byte{}
	}
	out := make([]byte, size)
	data := mem.Data()
	if offset < uint64(len(data)) {
		copy(out, data[offset:])
	}
	return out
}
