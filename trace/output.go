package trace

import (
	"sort"
)

// Outcome classifies a whole transaction from its call tree
type Outcome uint8

const (
	// OutcomeSuccess means every frame completed
	OutcomeSuccess Outcome = iota
	// OutcomePartialSuccess means the root committed but some descendant failed
	OutcomePartialSuccess
	// OutcomeFailed means the root frame reverted or faulted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePartialSuccess:
		return "partial_success"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// TraceOutput is the finished record of one traced transaction
type TraceOutput struct {
	Root      *CallFrame
	Slots     []SlotAccess
	Transfers []AssetTransfer
	Logs      []Log
	// FirstError is the pre-order first frame whose own status failed, nil on success
	FirstError Path
	// ErrorOrigin is the deepest failed frame whose children all succeeded
	ErrorOrigin Path
	Outcome     Outcome
}

// Build assembles the output record from a finished root frame
func Build(root *CallFrame) *TraceOutput {
	out := &TraceOutput{Root: root}
	out.Slots, out.Transfers, out.Logs = Flatten(root)
	out.FirstError = FirstErrorPath(root)
	out.ErrorOrigin = ErrorOriginPath(root)
	out.Outcome = Classify(root)
	return out
}

// Flatten projects the tree into execution ordered slot, transfer and log lists.
// Logs of failed frames and of frames below a failed frame are left out.
func Flatten(root *CallFrame) ([]SlotAccess, []AssetTransfer, []Log) {
	if root == nil {
		return nil, nil, nil
	}
	var (
		slots     []SlotAccess
		transfers []AssetTransfer
		logs      []Log
	)
	var visit func(f *CallFrame, reverted bool)
	visit = func(f *CallFrame, reverted bool) {
		reverted = reverted || f.Status.Failed()
		slots = append(slots, f.Slots...)
		transfers = append(transfers, f.Transfers...)
		if !reverted {
			logs = append(logs, f.Logs...)
		}
		for _, child := range f.Children {
			visit(child, reverted)
		}
	}
	visit(root, false)
	sortBySeq(slots, func(i int) uint64 { return slots[i].Seq })
	sortBySeq(transfers, func(i int) uint64 { return transfers[i].Seq })
	sortBySeq(logs, func(i int) uint64 { return logs[i].Seq })
	return slots, transfers, logs
}

// FirstErrorPath returns the path of the first frame in pre-order whose own status
// is a revert or error
func FirstErrorPath(root *CallFrame) Path {
	if root == nil {
		return nil
	}
	var found Path
	root.Walk(func(f *CallFrame) bool {
		if f.Status.Failed() {
			found = append(Path{}, f.Path...)
			return false
		}
		return true
	})
	return found
}

// ErrorOriginPath returns the path of the last frame, in pre-order, that failed
// while all of its children succeeded
func ErrorOriginPath(root *CallFrame) Path {
	if root == nil {
		return nil
	}
	var found Path
	root.Walk(func(f *CallFrame) bool {
		if f.ErrorOrigin {
			found = append(Path{}, f.Path...)
		}
		return true
	})
	return found
}

// Classify derives the transaction outcome from the root frame and its descendants
func Classify(root *CallFrame) Outcome {
	if root == nil || root.Status.Failed() {
		return OutcomeFailed
	}
	outcome := OutcomeSuccess
	root.Walk(func(f *CallFrame) bool {
		if f.Status.Failed() {
			outcome = OutcomePartialSuccess
			return false
		}
		return true
	})
	return outcome
}

// Frame looks up a frame by path
func (o *TraceOutput) Frame(p Path) *CallFrame {
	if o.Root == nil {
		return nil
	}
	f := o.Root
	for _, idx := range p {
		if idx < 0 || idx >= len(f.Children) {
			return nil
		}
		f = f.Children[idx]
	}
	return f
}

// SlotAccesses returns every access in the tree of the given kind
func (o *TraceOutput) SlotAccesses(kind AccessKind) []SlotAccess {
	var out []SlotAccess
	for _, s := range o.Slots {
		if kind == All || s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// CommittedWrites returns the writes that survived, leaving out those of failed frames
func (o *TraceOutput) CommittedWrites() []SlotAccess {
	var out []SlotAccess
	for _, s := range o.Slots {
		if s.Kind == Write && !s.Reverted {
			out = append(out, s)
		}
	}
	return out
}

// TransfersOf returns the transfers attributed to the frame at p
func (o *TraceOutput) TransfersOf(p Path) []AssetTransfer {
	var out []AssetTransfer
	for _, t := range o.Transfers {
		if t.FramePath.Equal(p) {
			out = append(out, t)
		}
	}
	return out
}

// Failed reports whether any frame failed
func (o *TraceOutput) Failed() bool {
	return o.FirstError != nil
}

func sortBySeq[T any](s []T, seq func(i int) uint64) {
	sort.SliceStable(s, func(i, j int) bool { return seq(i) < seq(j) })
}
