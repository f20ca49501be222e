package trace

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
)

// CallKind is the variant of call or create that opened a frame
type CallKind uint8

const (
	Call CallKind = iota
	StaticCall
	DelegateCall
	CallCode
	Create
	Create2
	SelfDestruct
)

var callKindNames = map[CallKind]string{
	Call:         "CALL",
	StaticCall:   "STATICCALL",
	DelegateCall: "DELEGATECALL",
	CallCode:     "CALLCODE",
	Create:       "CREATE",
	Create2:      "CREATE2",
	SelfDestruct: "SELFDESTRUCT",
}

func (k CallKind) String() string {
	if s, ok := callKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("CallKind(%d)", uint8(k))
}

// IsCreate reports whether the kind deploys a new contract
func (k CallKind) IsCreate() bool {
	return k == Create || k == Create2
}

// KeepsContext reports whether the kind executes foreign code in the caller's context
func (k CallKind) KeepsContext() bool {
	return k == DelegateCall || k == CallCode
}

// OpCode returns the EVM opcode that opens a frame of this kind
func (k CallKind) OpCode() vm.OpCode {
	switch k {
	case StaticCall:
		return vm.STATICCALL
	case DelegateCall:
		return vm.DELEGATECALL
	case CallCode:
		return vm.CALLCODE
	case Create:
		return vm.CREATE
	case Create2:
		return vm.CREATE2
	case SelfDestruct:
		return vm.SELFDESTRUCT
	default:
		return vm.CALL
	}
}

// KindFromOpCode maps an EVM call opcode onto a CallKind
func KindFromOpCode(op vm.OpCode) (CallKind, error) {
	switch op {
	case vm.CALL:
		return Call, nil
	case vm.STATICCALL:
		return StaticCall, nil
	case vm.DELEGATECALL:
		return DelegateCall, nil
	case vm.CALLCODE:
		return CallCode, nil
	case vm.CREATE:
		return Create, nil
	case vm.CREATE2:
		return Create2, nil
	case vm.SELFDESTRUCT:
		return SelfDestruct, nil
	}
	return 0, fmt.Errorf("opcode %s does not open a call frame", op)
}

// Path is the sequence of child indices locating a frame from the root
type Path []int

// Child returns a new path extending p by index i
func (p Path) Child(i int) Path {
	child := make(Path, len(p)+1)
	copy(child, p)
	child[len(p)] = i
	return child
}

// Equal reports whether both paths address the same frame
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether p is q or lies below q
func (p Path) HasPrefix(q Path) bool {
	return len(p) >= len(q) && p[:len(q)].Equal(q)
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, idx := range p {
		parts[i] = strconv.Itoa(idx)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// StatusKind is the coarse completion state of a frame
type StatusKind uint8

const (
	Pending StatusKind = iota
	Success
	Revert
	Error
)

func (s StatusKind) String() string {
	switch s {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Revert:
		return "revert"
	case Error:
		return "error"
	}
	return "unknown"
}

// Status is the completion state of a frame. Reason is set for reverts,
// ErrKind and Err for interpreter faults.
type Status struct {
	Kind    StatusKind
	Reason  string
	ErrKind ErrorKind
	Err     string
}

// Failed reports whether the frame reverted or faulted
func (s Status) Failed() bool {
	return s.Kind == Revert || s.Kind == Error
}

func (s Status) String() string {
	switch s.Kind {
	case Revert:
		return "revert(" + s.Reason + ")"
	case Error:
		return "error(" + s.ErrKind.String() + ")"
	}
	return s.Kind.String()
}

// AccessKind distinguishes storage reads from writes
type AccessKind uint8

const (
	Read AccessKind = iota + 1
	Write
	// All matches both kinds in queries
	All AccessKind = 0
)

func (k AccessKind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	}
	return "all"
}

// SlotAccess is one observed read or write of a storage cell
type SlotAccess struct {
	Seq      uint64
	Owner    common.Address
	Slot     common.Hash
	Previous common.Hash
	// New is nil for reads
	New       *common.Hash
	Kind      AccessKind
	FramePath Path
	// Reverted is set when the observing frame or one of its ancestors failed
	Reverted bool
}

// TokenKind classifies the asset moved by a transfer
type TokenKind uint8

const (
	Native TokenKind = iota
	Fungible
	NonFungibleUnique
	NonFungibleMultiple
)

func (k TokenKind) String() string {
	switch k {
	case Native:
		return "native"
	case Fungible:
		return "erc20"
	case NonFungibleUnique:
		return "erc721"
	case NonFungibleMultiple:
		return "erc1155"
	}
	return "unknown"
}

// AssetTransfer is one detected movement of value
type AssetTransfer struct {
	Seq  uint64
	Kind TokenKind
	// Token is nil for native transfers
	Token *common.Address
	// TokenID is set only for non-fungible kinds
	TokenID   *uint256.Int
	From      common.Address
	To        common.Address
	Amount    *uint256.Int
	FramePath Path
}

// Log is an emitted event together with the frame that emitted it
type Log struct {
	Seq       uint64
	Address   common.Address
	Topics    []common.Hash
	Data      []byte
	FramePath Path
}

// EthLog converts the record back into a go-ethereum log
func (l *Log) EthLog() *types.Log {
	return &types.Log{Address: l.Address, Topics: l.Topics, Data: l.Data}
}

// CallFrame is the record of one call or create invocation
type CallFrame struct {
	Path Path
	Kind CallKind
	// From is the caller context, To is the callee as seen by the trace:
	// the target for calls and creates, the code address for delegated calls.
	From    common.Address
	To      common.Address
	Context common.Address
	Code    common.Address
	Target  common.Address
	Input   []byte
	Output  []byte
	Value   *big.Int
	Gas     uint64
	GasUsed uint64
	Status  Status
	// ErrorOrigin marks a failed frame whose children all succeeded
	ErrorOrigin bool

	Children  []*CallFrame
	Slots     []SlotAccess
	Transfers []AssetTransfer
	Logs      []Log

	Seq uint64
}

// Walk visits the frame and its descendants in pre-order until fn returns false
func (f *CallFrame) Walk(fn func(*CallFrame) bool) bool {
	if !fn(f) {
		return false
	}
	for _, child := range f.Children {
		if !child.Walk(fn) {
			return false
		}
	}
	return true
}

// SlotAccesses returns the frame's accesses of the given kind. When recursive is
// set the accesses of all descendants are merged in observation order.
func (f *CallFrame) SlotAccesses(kind AccessKind, recursive bool) []SlotAccess {
	var out []SlotAccess
	collect := func(fr *CallFrame) {
		for _, s := range fr.Slots {
			if kind == All || s.Kind == kind {
				out = append(out, s)
			}
		}
	}
	if !recursive {
		collect(f)
		return out
	}
	f.Walk(func(fr *CallFrame) bool {
		collect(fr)
		return true
	})
	sortBySeq(out, func(i int) uint64 { return out[i].Seq })
	return out
}
