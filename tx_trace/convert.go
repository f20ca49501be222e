package tx_trace

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ipfs/go-cid"
	"github.com/ipld/go-ipld-prime"
	"github.com/ipld/go-ipld-prime/node/basicnode"

	"github.com/vulcanize/go-evm-tracer/engine"
	"github.com/vulcanize/go-evm-tracer/shared"
	"github.com/vulcanize/go-evm-tracer/trace"
)

// FromOutput flattens a call tree into a TxTrace
func FromOutput(out *trace.TraceOutput, txHashes []common.Hash, stateRoot common.Hash, result []byte, gasUsed uint64) TxTrace {
	txTrace := TxTrace{
		TxHashes:  txHashes,
		StateRoot: stateRoot,
		Result:    common.CopyBytes(result),
		Gas:       gasUsed,
		Failed:    out.Root == nil || out.Root.Status.Failed(),
	}
	if out.Root == nil {
		return txTrace
	}
	out.Root.Walk(func(f *trace.CallFrame) bool {
		path := make([]uint64, len(f.Path))
		for i, idx := range f.Path {
			path[i] = uint64(idx)
		}
		value := f.Value
		if value == nil {
			value = new(big.Int)
		}
		txTrace.Frames = append(txTrace.Frames, Frame{
			Op:     f.Kind.OpCode(),
			Path:   path,
			From:   f.From,
			To:     f.To,
			Input:  f.Input,
			Output: f.Output,
			Gas:    f.Gas,
			Cost:   f.GasUsed,
			Value:  value,
			Status: statusCode(f.Status),
		})
		return true
	})
	return txTrace
}

// FromBatch builds the trace of results[i]. For stateful batches every preceding
// transaction whose changes were committed is listed, for stateless ones only the
// transaction itself.
func FromBatch(results []*engine.TxResult, i int, stateful bool, stateRoot common.Hash) (TxTrace, error) {
	if i < 0 || i >= len(results) {
		return TxTrace{}, fmt.Errorf("result index %d out of range", i)
	}
	res := results[i]
	if res.Trace == nil || res.Exec == nil {
		return TxTrace{}, fmt.Errorf("transaction %d has no trace: %v", i, res.Err)
	}
	var hashes []common.Hash
	if stateful {
		for _, prev := range results[:i] {
			if prev.State == engine.Committed {
				hashes = append(hashes, prev.Hash)
			}
		}
	}
	hashes = append(hashes, res.Hash)
	return FromOutput(res.Trace, hashes, stateRoot, res.Exec.ReturnData, res.Exec.GasUsed), nil
}

// NewNode assembles the IPLD form of a TxTrace
func NewNode(txTrace TxTrace) (ipld.Node, error) {
	nb := basicnode.Prototype.Map.NewBuilder()
	if err := DecodeTx(nb, txTrace); err != nil {
		return nil, err
	}
	return nb.Build(), nil
}

// Cid returns the content identifier of the rlp encoded TxTrace
func Cid(txTrace TxTrace) (cid.Cid, error) {
	enc, err := rlp.EncodeToBytes(txTrace)
	if err != nil {
		return cid.Cid{}, err
	}
	return shared.RawToCid(MultiCodecType, enc)
}

func statusCode(s trace.Status) uint8 {
	switch s.Kind {
	case trace.Revert:
		return StatusRevert
	case trace.Error:
		return StatusError
	}
	return StatusSuccess
}
