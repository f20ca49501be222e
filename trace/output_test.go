package trace_test

import (
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vulcanize/go-evm-tracer/trace"
)

var (
	ok     = trace.Status{Kind: trace.Success}
	revert = trace.Status{Kind: trace.Revert, Reason: "nope"}
)

func slot(seq uint64, path trace.Path, kind trace.AccessKind) trace.SlotAccess {
	return trace.SlotAccess{Seq: seq, Slot: common.BigToHash(big.NewInt(int64(seq))), Kind: kind, FramePath: path}
}

// tree builds
//
//	root (seq 1)
//	├── a [0] (seq 3), reverted, with child a0 [0,0] (seq 4)
//	└── b [1] (seq 6)
//
// with slot accesses and logs interleaved between the frames.
func tree() *trace.CallFrame {
	a0 := &trace.CallFrame{
		Path:   trace.Path{0, 0},
		Status: ok,
		Slots:  []trace.SlotAccess{slot(5, trace.Path{0, 0}, trace.Write)},
		Logs:   []trace.Log{{Seq: 50, FramePath: trace.Path{0, 0}}},
		Seq:    4,
	}
	a := &trace.CallFrame{
		Path:        trace.Path{0},
		Status:      revert,
		ErrorOrigin: true,
		Children:    []*trace.CallFrame{a0},
		Seq:         3,
	}
	b := &trace.CallFrame{
		Path:   trace.Path{1},
		Status: ok,
		Slots:  []trace.SlotAccess{slot(7, trace.Path{1}, trace.Read)},
		Logs:   []trace.Log{{Seq: 8, FramePath: trace.Path{1}}},
		Seq:    6,
	}
	return &trace.CallFrame{
		Path:     trace.Path{},
		Status:   ok,
		Children: []*trace.CallFrame{a, b},
		Slots: []trace.SlotAccess{
			slot(2, trace.Path{}, trace.Read),
			slot(9, trace.Path{}, trace.Write),
		},
		Logs: []trace.Log{{Seq: 10, FramePath: trace.Path{}}},
		Seq:  1,
	}
}

func seqs[T any](items []T, seq func(T) uint64) []uint64 {
	out := make([]uint64, len(items))
	for i, item := range items {
		out[i] = seq(item)
	}
	return out
}

func TestFlattenOrder(t *testing.T) {
	slots, _, logs := trace.Flatten(tree())
	got := seqs(slots, func(s trace.SlotAccess) uint64 { return s.Seq })
	if want := []uint64{2, 5, 7, 9}; !reflect.DeepEqual(got, want) {
		t.Errorf("slot order %v, want %v", got, want)
	}
	gotLogs := seqs(logs, func(l trace.Log) uint64 { return l.Seq })
	if want := []uint64{8, 10}; !reflect.DeepEqual(gotLogs, want) {
		t.Errorf("log order %v, want %v (logs below a failed frame must be dropped)", gotLogs, want)
	}
}

func TestFlattenIdempotent(t *testing.T) {
	root := tree()
	s1, t1, l1 := trace.Flatten(root)
	s2, t2, l2 := trace.Flatten(root)
	if !reflect.DeepEqual(s1, s2) || !reflect.DeepEqual(t1, t2) || !reflect.DeepEqual(l1, l2) {
		t.Fatal("flattening the same tree twice produced different results")
	}
	if s, tr, l := trace.Flatten(nil); s != nil || tr != nil || l != nil {
		t.Fatal("flattening a nil tree should yield nothing")
	}
}

func TestErrorPaths(t *testing.T) {
	root := tree()
	if p := trace.FirstErrorPath(root); !p.Equal(trace.Path{0}) {
		t.Errorf("first error path %v, want [0]", p)
	}
	if p := trace.ErrorOriginPath(root); !p.Equal(trace.Path{0}) {
		t.Errorf("error origin path %v, want [0]", p)
	}

	root.Children[0].Status = ok
	root.Children[0].ErrorOrigin = false
	if p := trace.FirstErrorPath(root); p != nil {
		t.Errorf("first error path %v, want nil", p)
	}

	root.Status = revert
	root.ErrorOrigin = true
	p := trace.FirstErrorPath(root)
	if p == nil || len(p) != 0 {
		t.Errorf("failed root should yield the empty non-nil path, got %#v", p)
	}
}

func TestClassify(t *testing.T) {
	root := tree()
	if o := trace.Classify(root); o != trace.OutcomePartialSuccess {
		t.Errorf("outcome %s, want partial_success", o)
	}
	root.Children[0].Status = ok
	if o := trace.Classify(root); o != trace.OutcomeSuccess {
		t.Errorf("outcome %s, want success", o)
	}
	root.Status = trace.Status{Kind: trace.Error, ErrKind: trace.OutOfGas}
	if o := trace.Classify(root); o != trace.OutcomeFailed {
		t.Errorf("outcome %s, want failed", o)
	}
	if o := trace.Classify(nil); o != trace.OutcomeFailed {
		t.Errorf("nil tree outcome %s, want failed", o)
	}
}

func TestBuildAndQueries(t *testing.T) {
	root := tree()
	root.Children[0].Children[0].Slots[0].Reverted = true
	out := trace.Build(root)

	if !out.Failed() {
		t.Error("output with a reverted frame should report failure")
	}
	if f := out.Frame(trace.Path{0, 0}); f == nil || f.Seq != 4 {
		t.Errorf("frame lookup returned %+v", f)
	}
	if f := out.Frame(trace.Path{2}); f != nil {
		t.Error("lookup past the last child should return nil")
	}
	if n := len(out.SlotAccesses(trace.All)); n != 4 {
		t.Errorf("%d accesses, want 4", n)
	}
	if n := len(out.SlotAccesses(trace.Read)); n != 2 {
		t.Errorf("%d reads, want 2", n)
	}
	writes := out.CommittedWrites()
	if len(writes) != 1 || writes[0].Seq != 9 {
		t.Errorf("committed writes %+v, want only seq 9", writes)
	}

	recursive := root.Children[0].SlotAccesses(trace.All, true)
	if len(recursive) != 1 || !recursive[0].FramePath.Equal(trace.Path{0, 0}) {
		t.Errorf("recursive accesses %+v", recursive)
	}
	if own := root.Children[0].SlotAccesses(trace.All, false); len(own) != 0 {
		t.Errorf("frame [0] has no own accesses, got %+v", own)
	}
}

func TestPath(t *testing.T) {
	p := trace.Path{1}
	c := p.Child(2)
	if !c.Equal(trace.Path{1, 2}) || !p.Equal(trace.Path{1}) {
		t.Fatalf("child %v parent %v", c, p)
	}
	if !c.HasPrefix(p) || p.HasPrefix(c) || !c.HasPrefix(trace.Path{}) {
		t.Error("prefix relation broken")
	}
	if s := c.String(); s != "[1,2]" {
		t.Errorf("path string %q", s)
	}
}

func TestKindFromOpCode(t *testing.T) {
	for _, k := range []trace.CallKind{trace.Call, trace.StaticCall, trace.DelegateCall, trace.CallCode, trace.Create, trace.Create2, trace.SelfDestruct} {
		got, err := trace.KindFromOpCode(k.OpCode())
		if err != nil || got != k {
			t.Errorf("%s round trip gave %s, %v", k, got, err)
		}
	}
	if _, err := trace.KindFromOpCode(0x01); err == nil {
		t.Error("ADD should not map to a call kind")
	}
}
