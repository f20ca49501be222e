package tracer_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/vulcanize/go-evm-tracer/trace"
	"github.com/vulcanize/go-evm-tracer/tracer"
	"github.com/vulcanize/go-evm-tracer/transfer"
)

var (
	addrA = common.HexToAddress("0xaaaa")
	addrB = common.HexToAddress("0xbbbb")
	addrC = common.HexToAddress("0xcccc")
	addrD = common.HexToAddress("0xdddd")
	addrX = common.HexToAddress("0x7777")
)

func enter(tr *tracer.Tracer, kind trace.CallKind, from, to common.Address, value int64) {
	tr.OnCallEnter(tracer.CallEnter{Kind: kind, From: from, To: to, Value: big.NewInt(value), Gas: 100_000})
}

func exit(tr *tracer.Tracer, err error) {
	tr.OnCallExit(tracer.CallExit{GasUsed: 21_000, Err: err})
}

func write(tr *tracer.Tracer, owner common.Address, slot int64) {
	v := common.BigToHash(big.NewInt(slot + 100))
	tr.OnStorageAccess(tracer.StorageAccess{Address: owner, Slot: common.BigToHash(big.NewInt(slot)), New: &v, Kind: trace.Write})
}

func output(t *testing.T, tr *tracer.Tracer) *trace.TraceOutput {
	t.Helper()
	if tr.Depth() != 0 || tr.AddressDepth() != 0 {
		t.Fatalf("unbalanced stacks: %d frames, %d addresses", tr.Depth(), tr.AddressDepth())
	}
	out, err := tr.Output()
	if err != nil {
		t.Fatalf("unable to build output: %v", err)
	}
	return out
}

func TestDelegateCallAttribution(t *testing.T) {
	tr := tracer.New()
	enter(tr, trace.Call, addrA, addrB, 100)
	// the interpreter reports B as caller of the delegated frame running C's code
	enter(tr, trace.DelegateCall, addrB, addrC, 100)
	write(tr, addrB, 1)
	enter(tr, trace.Call, addrB, addrD, 0)
	exit(tr, nil)
	exit(tr, nil)
	exit(tr, nil)

	out := output(t, tr)
	root := out.Root
	if root.From != addrA || root.To != addrB || root.Context != addrB {
		t.Errorf("root from %s to %s context %s", root.From.Hex(), root.To.Hex(), root.Context.Hex())
	}
	del := out.Frame(trace.Path{0})
	if del == nil || del.Kind != trace.DelegateCall {
		t.Fatalf("delegate frame missing: %+v", del)
	}
	if del.From != addrB || del.To != addrC || del.Context != addrB || del.Code != addrC {
		t.Errorf("delegate from %s to %s context %s code %s", del.From.Hex(), del.To.Hex(), del.Context.Hex(), del.Code.Hex())
	}
	if del.Value.Sign() != 0 {
		t.Errorf("delegate frame value %s, want 0", del.Value)
	}
	inner := out.Frame(trace.Path{0, 0})
	if inner == nil || inner.From != addrB || inner.To != addrD {
		t.Fatalf("nested call attribution wrong: %+v", inner)
	}
	if len(out.Slots) != 1 || out.Slots[0].Owner != addrB || !out.Slots[0].FramePath.Equal(trace.Path{0}) {
		t.Errorf("slot attribution wrong: %+v", out.Slots)
	}
	if len(out.Transfers) != 1 || out.Transfers[0].From != addrA || out.Transfers[0].To != addrB {
		t.Errorf("expected only the root value transfer, got %+v", out.Transfers)
	}
	if out.Outcome != trace.OutcomeSuccess {
		t.Errorf("outcome %s", out.Outcome)
	}
}

func TestFailedCallsRestoreContext(t *testing.T) {
	tr := tracer.New()
	enter(tr, trace.Call, addrA, addrB, 100)
	depth, addrDepth := tr.Depth(), tr.AddressDepth()

	enter(tr, trace.DelegateCall, addrB, addrC, 0)
	write(tr, addrB, 1)
	tr.OnCallExit(tracer.CallExit{GasUsed: 5_000, Err: vm.ErrExecutionReverted})
	if tr.Depth() != depth || tr.AddressDepth() != addrDepth {
		t.Fatalf("after reverted delegate: %d frames, %d addresses, want %d and %d",
			tr.Depth(), tr.AddressDepth(), depth, addrDepth)
	}

	enter(tr, trace.Call, addrB, addrD, 0)
	exit(tr, vm.ErrOutOfGas)
	if tr.Depth() != depth || tr.AddressDepth() != addrDepth {
		t.Fatalf("after failed call: %d frames, %d addresses, want %d and %d",
			tr.Depth(), tr.AddressDepth(), depth, addrDepth)
	}

	enter(tr, trace.Call, addrB, addrX, 5)
	write(tr, addrX, 2)
	exit(tr, nil)
	exit(tr, nil)

	out := output(t, tr)
	del := out.Frame(trace.Path{0})
	if del.From != addrB || del.To != addrC || del.Context != addrB || del.Status.Kind != trace.Revert {
		t.Errorf("delegate from %s to %s context %s status %s", del.From.Hex(), del.To.Hex(), del.Context.Hex(), del.Status)
	}
	sibling := out.Frame(trace.Path{2})
	if sibling == nil {
		t.Fatal("sibling frame missing")
	}
	if sibling.From != addrB || sibling.To != addrX || sibling.Context != addrX {
		t.Errorf("sibling from %s to %s context %s", sibling.From.Hex(), sibling.To.Hex(), sibling.Context.Hex())
	}
	if sibling.Status.Kind != trace.Success {
		t.Errorf("sibling status %s", sibling.Status)
	}
	writes := out.CommittedWrites()
	if len(writes) != 1 || writes[0].Owner != addrX {
		t.Errorf("committed writes %+v, want the sibling's only", writes)
	}
	if len(out.Transfers) != 2 || out.Transfers[1].From != addrB || out.Transfers[1].To != addrX {
		t.Errorf("transfers %+v", out.Transfers)
	}
	if out.Outcome != trace.OutcomePartialSuccess {
		t.Errorf("outcome %s", out.Outcome)
	}
}

func TestPathsUnique(t *testing.T) {
	tr := tracer.New()
	enter(tr, trace.Call, addrA, addrB, 0)
	for i := 0; i < 3; i++ {
		enter(tr, trace.StaticCall, addrB, addrC, 0)
		enter(tr, trace.Call, addrC, addrD, 0)
		exit(tr, nil)
		exit(tr, nil)
	}
	exit(tr, nil)

	out := output(t, tr)
	seen := make(map[string]bool)
	count := 0
	out.Root.Walk(func(f *trace.CallFrame) bool {
		key := f.Path.String()
		if seen[key] {
			t.Errorf("duplicate path %s", key)
		}
		seen[key] = true
		count++
		return true
	})
	if count != 7 {
		t.Errorf("%d frames, want 7", count)
	}
	if f := out.Frame(trace.Path{2, 0}); f == nil || f.To != addrD {
		t.Errorf("frame [2,0] = %+v", f)
	}
}

func TestRevertDiscardsSubtree(t *testing.T) {
	tr := tracer.New()
	enter(tr, trace.Call, addrA, addrB, 50)
	write(tr, addrB, 1)
	enter(tr, trace.Call, addrB, addrC, 10)
	write(tr, addrC, 2)
	tr.OnLog(&types.Log{
		Address: addrC,
		Topics:  []common.Hash{transfer.TransferTopic, common.BytesToHash(addrC.Bytes()), common.BytesToHash(addrD.Bytes())},
		Data:    common.LeftPadBytes([]byte{5}, 32),
	})
	enter(tr, trace.Call, addrC, addrD, 1)
	exit(tr, nil)
	exit(tr, vm.ErrExecutionReverted)
	exit(tr, nil)

	out := output(t, tr)
	child := out.Frame(trace.Path{0})
	if !child.ErrorOrigin {
		t.Error("reverted frame with successful children should be the error origin")
	}
	if len(child.Transfers) != 0 || len(out.Frame(trace.Path{0, 0}).Transfers) != 0 {
		t.Error("transfers of the reverted subtree should be discarded")
	}
	if len(out.Transfers) != 1 || out.Transfers[0].Amount.Uint64() != 50 {
		t.Errorf("transfers %+v, want the root transfer only", out.Transfers)
	}
	if len(out.Logs) != 0 {
		t.Errorf("logs of reverted frames should be dropped, got %+v", out.Logs)
	}
	writes := out.CommittedWrites()
	if len(writes) != 1 || writes[0].Owner != addrB {
		t.Errorf("committed writes %+v", writes)
	}
	if out.Outcome != trace.OutcomePartialSuccess {
		t.Errorf("outcome %s, want partial_success", out.Outcome)
	}
	if !out.FirstError.Equal(trace.Path{0}) || !out.ErrorOrigin.Equal(trace.Path{0}) {
		t.Errorf("first error %v origin %v", out.FirstError, out.ErrorOrigin)
	}
}

func TestErrorOriginIsInnermost(t *testing.T) {
	tr := tracer.New()
	enter(tr, trace.Call, addrA, addrB, 0)
	enter(tr, trace.Call, addrB, addrC, 0)
	exit(tr, vm.ErrOutOfGas)
	exit(tr, vm.ErrExecutionReverted)

	out := output(t, tr)
	if out.Root.ErrorOrigin {
		t.Error("root only propagated the failure")
	}
	if !out.ErrorOrigin.Equal(trace.Path{0}) {
		t.Errorf("error origin %v, want [0]", out.ErrorOrigin)
	}
	if !out.FirstError.Equal(trace.Path{}) {
		t.Errorf("first error %v, want root", out.FirstError)
	}
	if out.Outcome != trace.OutcomeFailed {
		t.Errorf("outcome %s", out.Outcome)
	}
	if k := out.Frame(trace.Path{0}).Status.ErrKind; k != trace.OutOfGas {
		t.Errorf("error kind %s", k)
	}
}

func TestPendingCreate(t *testing.T) {
	tr := tracer.New()
	enter(tr, trace.Call, addrA, addrB, 0)
	tr.OnCallEnter(tracer.CallEnter{Kind: trace.Create2, From: addrB, ToPending: true, Value: big.NewInt(5)})
	// constructor code runs with the new address as caller
	enter(tr, trace.Call, addrX, addrD, 0)
	exit(tr, nil)
	tr.OnCallExit(tracer.CallExit{Created: &addrX})
	exit(tr, nil)

	out := output(t, tr)
	create := out.Frame(trace.Path{0})
	if create.To != addrX || create.Context != addrX || create.Target != addrX {
		t.Errorf("create target not patched: to %s context %s", create.To.Hex(), create.Context.Hex())
	}
	if len(create.Transfers) != 1 || create.Transfers[0].To != addrX || create.Transfers[0].From != addrB {
		t.Errorf("create transfer %+v", create.Transfers)
	}
	if inner := out.Frame(trace.Path{0, 0}); inner.From != addrX {
		t.Errorf("constructor call from %s, want %s", inner.From.Hex(), addrX.Hex())
	}
}

func TestSelfDestructAndCallCode(t *testing.T) {
	tr := tracer.New()
	enter(tr, trace.Call, addrA, addrB, 0)
	enter(tr, trace.CallCode, addrB, addrC, 9)
	exit(tr, nil)
	enter(tr, trace.SelfDestruct, addrB, addrD, 30)
	exit(tr, nil)
	exit(tr, nil)

	out := output(t, tr)
	if len(out.TransfersOf(trace.Path{0})) != 0 {
		t.Error("callcode moves value to itself and should record no transfer")
	}
	sd := out.TransfersOf(trace.Path{1})
	if len(sd) != 1 || sd[0].From != addrB || sd[0].To != addrD || sd[0].Amount.Uint64() != 30 {
		t.Errorf("selfdestruct transfer %+v", sd)
	}
}

func TestOutputErrorsAndReset(t *testing.T) {
	tr := tracer.New()
	if _, err := tr.Output(); !errors.Is(err, tracer.ErrNoRoot) {
		t.Errorf("empty tracer gave %v", err)
	}
	enter(tr, trace.Call, addrA, addrB, 0)
	if _, err := tr.Output(); !errors.Is(err, tracer.ErrUnfinished) {
		t.Errorf("open frame gave %v", err)
	}
	tr.Reset()
	if tr.Depth() != 0 || tr.AddressDepth() != 0 {
		t.Fatal("reset left frames open")
	}
	if _, err := tr.Output(); !errors.Is(err, tracer.ErrNoRoot) {
		t.Errorf("reset tracer gave %v", err)
	}

	// an unmatched exit is ignored
	exit(tr, nil)
	enter(tr, trace.Call, addrA, addrC, 0)
	exit(tr, nil)
	if out := output(t, tr); out.Root.To != addrC || out.Root.Seq != 1 {
		t.Errorf("tracer reused after reset produced %+v", out.Root)
	}
}

func TestMux(t *testing.T) {
	first, second := tracer.New(), tracer.New()
	mux := tracer.Mux{tracer.Noop{}, first, second}
	mux.OnCallEnter(tracer.CallEnter{Kind: trace.Call, From: addrA, To: addrB})
	mux.OnCallExit(tracer.CallExit{})
	out, err := mux.Output()
	if err != nil || out.Root.To != addrB {
		t.Fatalf("mux output %+v, %v", out, err)
	}
	if _, err := second.Output(); err != nil {
		t.Errorf("every member should observe the callbacks: %v", err)
	}
	mux.Reset()
	if _, err := first.Output(); !errors.Is(err, tracer.ErrNoRoot) {
		t.Error("mux reset should reach every member")
	}
	if !tracer.IsNoop(tracer.Noop{}) || tracer.IsNoop(first) {
		t.Error("IsNoop misclassified")
	}
}
