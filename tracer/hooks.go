package tracer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vulcanize/go-evm-tracer/trace"
)

// CallEnter describes a call or create as it begins
type CallEnter struct {
	Kind trace.CallKind
	// From is the caller as reported by the interpreter
	From common.Address
	// To is the target, or the code address for delegated kinds
	To common.Address
	// ToPending is set when a create target is only known at exit
	ToPending bool
	Value     *big.Int
	Input     []byte
	Gas       uint64
}

// CallExit describes the completion of the innermost open call
type CallExit struct {
	Output  []byte
	GasUsed uint64
	Err     error
	// Created patches the target of a create whose address was pending
	Created *common.Address
}

// StorageAccess is a storage read or write observed by the interpreter
type StorageAccess struct {
	Address  common.Address
	Slot     common.Hash
	Previous common.Hash
	New      *common.Hash
	Kind     trace.AccessKind
}

// Hooks is the callback surface the interpreter drives during execution
type Hooks interface {
	OnCallEnter(CallEnter)
	OnCallExit(CallExit)
	OnStorageAccess(StorageAccess)
	OnLog(*types.Log)
}

// Inspector is a Hooks implementation whose per-transaction state can be cleared
type Inspector interface {
	Hooks
	Reset()
}

// Outputter is implemented by inspectors that produce a trace record
type Outputter interface {
	Output() (*trace.TraceOutput, error)
}

// Noop ignores every callback
type Noop struct{}

var _ Inspector = Noop{}

func (Noop) OnCallEnter(CallEnter)         {}
func (Noop) OnCallExit(CallExit)           {}
func (Noop) OnStorageAccess(StorageAccess) {}
func (Noop) OnLog(*types.Log)              {}
func (Noop) Reset()                        {}

// IsNoop reports whether the inspector does no work, letting callers run the
// interpreter without any tracing at all
func IsNoop(i Inspector) bool {
	switch i.(type) {
	case nil, Noop, *Noop:
		return true
	}
	return false
}

// Mux fans each callback out to several inspectors in order
type Mux []Inspector

var _ Inspector = Mux(nil)

func (m Mux) OnCallEnter(c CallEnter) {
	for _, i := range m {
		i.OnCallEnter(c)
	}
}

func (m Mux) OnCallExit(c CallExit) {
	for _, i := range m {
		i.OnCallExit(c)
	}
}

func (m Mux) OnStorageAccess(s StorageAccess) {
	for _, i := range m {
		i.OnStorageAccess(s)
	}
}

func (m Mux) OnLog(l *types.Log) {
	for _, i := range m {
		i.OnLog(l)
	}
}

func (m Mux) Reset() {
	for _, i := range m {
		i.Reset()
	}
}

// Output returns the output of the first member that produces one
func (m Mux) Output() (*trace.TraceOutput, error) {
	for _, i := range m {
		if o, ok := i.(Outputter); ok {
			return o.Output()
		}
	}
	return nil, ErrNoRoot
}
