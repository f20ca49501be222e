package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vulcanize/go-evm-tracer/trace"
	"github.com/vulcanize/go-evm-tracer/tracer"
)

// Execute runs every transaction of the batch in order and returns one result per
// transaction. Transaction level failures are reported in the results; the error
// is only set when the batch stopped early, either because ctx was cancelled
// between transactions or because a stateful batch hit a backend fault.
func (e *Engine) Execute(ctx context.Context, batch SimulationBatch) ([]*TxResult, error) {
	env := e.block
	if batch.Block != nil {
		env = *batch.Block
		if env.GasLimit == 0 {
			env.GasLimit = e.cfg.GasLimit
		}
	}
	results := make([]*TxResult, len(batch.Transactions))
	for i := range results {
		results[i] = &TxResult{Index: i, State: Pending}
	}
	for i := range batch.Transactions {
		if err := ctx.Err(); err != nil {
			abort(results[i:], err)
			return results, err
		}
		last := i == len(batch.Transactions)-1
		keep := batch.Stateful || (batch.RetainLast && last)
		e.executeTx(ctx, env, &batch.Transactions[i], keep, results[i])

		if results[i].Kind == KindEngine && batch.Stateful && !last {
			err := fmt.Errorf("%w: transaction %d: %v", ErrAborted, i, results[i].Err)
			abort(results[i+1:], err)
			return results, err
		}
	}
	return results, nil
}

func abort(results []*TxResult, err error) {
	for _, r := range results {
		r.Err = err
	}
}

// executeTx runs one transaction. When keep is set its state changes are
// committed, otherwise they are rolled back once the trace is collected.
func (e *Engine) executeTx(ctx context.Context, env BlockEnv, tx *SimulationTx, keep bool, res *TxResult) {
	res.State = Executing
	e.inspector.Reset()
	e.state.SetContext(ctx)
	e.state.ClearErr()

	snap := e.state.Snapshot()
	fail := func(kind FailureKind, err error) {
		e.state.RevertToSnapshot(snap)
		res.State, res.Kind, res.Err = Errored, kind, err
		e.logger.Debug("Transaction failed", "index", res.Index, "kind", kind, "err", err)
	}

	msg, err := e.message(tx)
	if berr := e.state.BackendErr(); berr != nil {
		fail(KindEngine, berr)
		return
	}
	if err != nil {
		fail(KindValidation, err)
		return
	}
	res.Hash = tx.Hash(msg.Nonce)
	e.state.SetTxContext(res.Hash, res.Index)

	traced := !tracer.IsNoop(e.inspector)
	result, err := e.apply(ctx, env, msg, traced)
	if berr := e.state.BackendErr(); berr != nil {
		fail(KindEngine, berr)
		return
	}
	if err != nil {
		fail(KindValidation, &ValidationError{Err: err})
		return
	}

	exec := &ExecResult{
		Success:    result.Err == nil,
		GasUsed:    result.UsedGas,
		ReturnData: result.ReturnData,
		Err:        result.Err,
	}
	if msg.To == nil {
		addr := crypto.CreateAddress(msg.From, msg.Nonce)
		exec.ContractAddress = &addr
	}
	switch {
	case result.Err == nil:
		res.Kind = KindNone
	case errors.Is(result.Err, vm.ErrExecutionReverted):
		res.Kind = KindRevert
		exec.RevertReason = trace.DecodeRevertReason(result.Revert())
	default:
		res.Kind = KindVMError
	}
	res.Exec = exec

	if traced {
		out, err := e.output()
		if err != nil {
			res.Exec = nil
			fail(KindEngine, err)
			return
		}
		res.Trace = out
	}

	if keep {
		res.StateRoot = e.state.Commit()
		res.State = Committed
	} else {
		e.state.RevertToSnapshot(snap)
		res.State = RolledBack
	}
	e.logger.Debug("Executed transaction", "index", res.Index, "hash", res.Hash, "state", res.State,
		"kind", res.Kind, "gas", exec.GasUsed)
}

// output collects the trace from the inspector
func (e *Engine) output() (*trace.TraceOutput, error) {
	o, ok := e.inspector.(tracer.Outputter)
	if !ok {
		return nil, nil
	}
	out, err := o.Output()
	if errors.Is(err, tracer.ErrNoRoot) {
		return nil, ErrEmptyTrace
	}
	return out, err
}

// message builds the interpreter message for tx against the current state
func (e *Engine) message(tx *SimulationTx) (*core.Message, error) {
	value := new(big.Int)
	if tx.Value != nil {
		if tx.Value.Sign() < 0 {
			return nil, fmt.Errorf("%w: negative value %s", ErrValidation, tx.Value)
		}
		value.Set(tx.Value)
	}
	gas := tx.GasLimit
	if gas == 0 {
		gas = e.cfg.GasLimit
	}
	msg := &core.Message{
		To:        tx.To,
		From:      tx.Caller,
		Value:     value,
		GasLimit:  gas,
		GasPrice:  new(big.Int),
		GasFeeCap: new(big.Int),
		GasTipCap: new(big.Int),
		Data:      common.CopyBytes(tx.Data),
	}
	if tx.Nonce != nil {
		msg.Nonce = *tx.Nonce
	} else {
		msg.Nonce = e.state.GetNonce(tx.Caller)
		msg.SkipAccountChecks = true
	}
	return msg, nil
}

// apply executes msg on the current state, with the inspector attached when traced
func (e *Engine) apply(ctx context.Context, env BlockEnv, msg *core.Message, traced bool) (*core.ExecutionResult, error) {
	cfg := vm.Config{NoBaseFee: true}
	if traced {
		cfg.Tracer = tracer.NewLogger(e.inspector)
	}
	evm := vm.NewEVM(e.blockContext(ctx, env), core.NewEVMTxContext(msg), e.state, e.cfg.ChainConfig, cfg)
	return core.ApplyMessage(evm, msg, new(core.GasPool).AddGas(msg.GasLimit))
}
