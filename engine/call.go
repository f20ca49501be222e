package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/vulcanize/go-evm-tracer/trace"
)

// CallRequest is a read-only call
type CallRequest struct {
	From common.Address
	To   common.Address
	Data []byte
}

// CallResult is the outcome of one read-only call
type CallResult struct {
	Success    bool
	ReturnData []byte
	Err        error
}

// Call executes a read-only call against the current state without tracing.
// Its effects are always discarded.
func (e *Engine) Call(ctx context.Context, req CallRequest) ([]byte, error) {
	e.state.SetContext(ctx)
	e.state.ClearErr()
	snap := e.state.Snapshot()
	defer e.state.RevertToSnapshot(snap)

	to := req.To
	msg, err := e.message(&SimulationTx{Caller: req.From, To: &to, Data: req.Data})
	if err != nil {
		return nil, err
	}
	result, err := e.apply(ctx, e.block, msg, false)
	if berr := e.state.BackendErr(); berr != nil {
		return nil, berr
	}
	if err != nil {
		return nil, &ValidationError{Err: err}
	}
	if result.Err != nil {
		if errors.Is(result.Err, vm.ErrExecutionReverted) {
			return result.ReturnData, fmt.Errorf("%w: %s", ErrReverted, trace.DecodeRevertReason(result.Revert()))
		}
		return result.ReturnData, result.Err
	}
	return result.ReturnData, nil
}

// CallMany runs independent read-only calls on the same state, in order. A failing
// call does not affect the others.
func (e *Engine) CallMany(ctx context.Context, reqs []CallRequest) ([]CallResult, error) {
	out := make([]CallResult, len(reqs))
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return out[:i], err
		}
		ret, err := e.Call(ctx, req)
		out[i] = CallResult{Success: err == nil, ReturnData: ret, Err: err}
	}
	return out, nil
}
