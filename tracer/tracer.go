package tracer

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/vulcanize/go-evm-tracer/trace"
	"github.com/vulcanize/go-evm-tracer/transfer"
)

var (
	// ErrNoRoot is returned when no call was observed
	ErrNoRoot = errors.New("tracer observed no root call")
	// ErrUnfinished is returned when calls are still open
	ErrUnfinished = errors.New("tracer has unfinished calls")
)

// node is the arena bookkeeping for a frame that is still open
type node struct {
	frame   *trace.CallFrame
	parent  int
	calls   int
	pending bool
}

// Tracer rebuilds the call tree of a single transaction from hook callbacks.
// It must be Reset between transactions and is not safe for concurrent use.
type Tracer struct {
	arena []node
	// open holds arena indices of the frames currently executing, innermost last
	open []int
	// addrs holds the context each open frame hands to its nested calls
	addrs []common.Address
	root  *trace.CallFrame
	seq   uint64

	logger log.Logger
}

var (
	_ Inspector = (*Tracer)(nil)
	_ Outputter = (*Tracer)(nil)
)

// New returns an empty tracer
func New() *Tracer {
	return &Tracer{logger: log.New("module", "tracer")}
}

// Reset clears all per-transaction state
func (t *Tracer) Reset() {
	for i := range t.arena {
		t.arena[i] = node{}
	}
	t.arena = t.arena[:0]
	t.open = t.open[:0]
	t.addrs = t.addrs[:0]
	t.root = nil
	t.seq = 0
}

// Depth returns the number of open frames
func (t *Tracer) Depth() int {
	return len(t.open)
}

// AddressDepth returns the height of the context address stack
func (t *Tracer) AddressDepth() int {
	return len(t.addrs)
}

func (t *Tracer) nextSeq() uint64 {
	t.seq++
	return t.seq
}

func (t *Tracer) current() *node {
	if len(t.open) == 0 {
		return nil
	}
	return &t.arena[t.open[len(t.open)-1]]
}

// resolve computes the caller, callee and context of a new frame and the context
// address its nested calls will see
func (t *Tracer) resolve(c CallEnter) (from, to, context, code common.Address, next common.Address) {
	from = c.From
	if len(t.addrs) > 0 {
		if top := t.addrs[len(t.addrs)-1]; top != (common.Address{}) {
			from = top
		}
	}
	to, code = c.To, c.To
	switch {
	case c.Kind.KeepsContext():
		context = from
		next = from
	case c.Kind == trace.SelfDestruct:
		context = from
		code = from
		next = from
	default:
		context = c.To
		next = c.To
	}
	if c.ToPending {
		to, context, code, next = common.Address{}, common.Address{}, common.Address{}, common.Address{}
	}
	return from, to, context, code, next
}

// OnCallEnter opens a frame
func (t *Tracer) OnCallEnter(c CallEnter) {
	from, to, context, code, next := t.resolve(c)

	parent := -1
	path := trace.Path{}
	if cur := t.current(); cur != nil {
		parent = t.open[len(t.open)-1]
		path = cur.frame.Path.Child(cur.calls)
		cur.calls++
	} else if t.root != nil {
		t.logger.Warn("Call entered after the root frame completed", "kind", c.Kind, "to", c.To)
	}

	value := new(big.Int)
	if c.Value != nil && c.Kind != trace.DelegateCall && c.Kind != trace.StaticCall {
		value.Set(c.Value)
	}
	frame := &trace.CallFrame{
		Path:    path,
		Kind:    c.Kind,
		From:    from,
		To:      to,
		Context: context,
		Code:    code,
		Target:  to,
		Input:   common.CopyBytes(c.Input),
		Value:   value,
		Gas:     c.Gas,
		Status:  trace.Status{Kind: trace.Pending},
		Seq:     t.nextSeq(),
	}
	switch c.Kind {
	case trace.Call, trace.Create, trace.Create2, trace.SelfDestruct:
		if tr, ok := transfer.Native(from, to, value, path, frame.Seq); ok {
			frame.Transfers = append(frame.Transfers, tr)
		}
	}

	t.arena = append(t.arena, node{frame: frame, parent: parent, pending: c.ToPending})
	t.open = append(t.open, len(t.arena)-1)
	t.addrs = append(t.addrs, next)
}

// OnCallExit finalizes the innermost open frame and attaches it to its parent
func (t *Tracer) OnCallExit(c CallExit) {
	if len(t.open) == 0 {
		t.logger.Warn("Call exit without a matching enter")
		return
	}
	idx := t.open[len(t.open)-1]
	t.open = t.open[:len(t.open)-1]
	t.addrs = t.addrs[:len(t.addrs)-1]

	n := t.arena[idx]
	frame := n.frame
	frame.Output = common.CopyBytes(c.Output)
	frame.GasUsed = c.GasUsed
	frame.Status = trace.StatusFromResult(c.Output, c.Err)
	if n.pending && c.Created != nil {
		patchCreated(frame, *c.Created)
	}
	if frame.Status.Failed() {
		frame.ErrorOrigin = true
		for _, child := range frame.Children {
			if child.Status.Failed() {
				frame.ErrorOrigin = false
				break
			}
		}
		discard(frame)
	}

	t.arena[idx] = node{}
	if n.parent < 0 {
		t.root = frame
		return
	}
	parent := t.arena[n.parent].frame
	parent.Children = append(parent.Children, frame)
}

// patchCreated fills in a create target that was unknown at enter
func patchCreated(frame *trace.CallFrame, addr common.Address) {
	frame.To, frame.Target, frame.Context, frame.Code = addr, addr, addr, addr
	for i := range frame.Transfers {
		if frame.Transfers[i].Kind == trace.Native && frame.Transfers[i].Seq == frame.Seq {
			frame.Transfers[i].To = addr
		}
	}
}

// discard drops the transfers of a failed subtree and flags its storage writes
func discard(frame *trace.CallFrame) {
	frame.Walk(func(f *trace.CallFrame) bool {
		f.Transfers = nil
		for i := range f.Slots {
			f.Slots[i].Reverted = true
		}
		return true
	})
}

// OnStorageAccess records a slot access against the executing frame
func (t *Tracer) OnStorageAccess(s StorageAccess) {
	cur := t.current()
	if cur == nil {
		return
	}
	access := trace.SlotAccess{
		Seq:       t.nextSeq(),
		Owner:     s.Address,
		Slot:      s.Slot,
		Previous:  s.Previous,
		Kind:      s.Kind,
		FramePath: cur.frame.Path,
	}
	if s.New != nil {
		v := *s.New
		access.New = &v
	}
	cur.frame.Slots = append(cur.frame.Slots, access)
}

// OnLog records an emitted event and any token transfer it describes
func (t *Tracer) OnLog(l *types.Log) {
	cur := t.current()
	if cur == nil || l == nil {
		return
	}
	rec := trace.Log{
		Seq:       t.nextSeq(),
		Address:   l.Address,
		Topics:    append([]common.Hash(nil), l.Topics...),
		Data:      common.CopyBytes(l.Data),
		FramePath: cur.frame.Path,
	}
	cur.frame.Logs = append(cur.frame.Logs, rec)
	cur.frame.Transfers = append(cur.frame.Transfers, transfer.FromLog(&rec)...)
}

// Output assembles the finished trace
func (t *Tracer) Output() (*trace.TraceOutput, error) {
	if len(t.open) != 0 {
		return nil, ErrUnfinished
	}
	if t.root == nil {
		return nil, ErrNoRoot
	}
	return trace.Build(t.root), nil
}
