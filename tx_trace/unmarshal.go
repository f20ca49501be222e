package tx_trace

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ipfs/go-cid"
	"github.com/ipld/go-ipld-prime"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/multiformats/go-multihash"
)

const (
	traceFieldCount = 6
	frameFieldCount = 10
)

// Decode reads the rlp form of a TxTrace into na. The plugin package registers it
// for MultiCodecType.
func Decode(na ipld.NodeAssembler, in io.Reader) error {
	if buf, ok := in.(interface{ Bytes() []byte }); ok {
		return DecodeBytes(na, buf.Bytes())
	}
	src, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	return DecodeBytes(na, src)
}

// DecodeBytes is like Decode but reads from src directly
func DecodeBytes(na ipld.NodeAssembler, src []byte) error {
	var txTrace TxTrace
	if err := rlp.DecodeBytes(src, &txTrace); err != nil {
		return err
	}
	return DecodeTx(na, txTrace)
}

// DecodeTx assembles the node form of a TxTrace
func DecodeTx(na ipld.NodeAssembler, txTrace TxTrace) error {
	ma, err := na.BeginMap(traceFieldCount)
	if err != nil {
		return err
	}
	w := entries{ma: ma}
	w.list("TxCIDs", len(txTrace.TxHashes), func(la ipld.ListAssembler) error {
		for _, h := range txTrace.TxHashes {
			if err := la.AssembleValue().AssignLink(hashLink(txCodec, h)); err != nil {
				return err
			}
		}
		return nil
	})
	w.link("StateRootCID", stateTrieCodec, txTrace.StateRoot)
	w.bytes("Result", txTrace.Result)
	w.list("Frames", len(txTrace.Frames), func(la ipld.ListAssembler) error {
		for _, frame := range txTrace.Frames {
			if err := writeFrame(la.AssembleValue(), frame); err != nil {
				return err
			}
		}
		return nil
	})
	w.uint64("Gas", txTrace.Gas)
	w.bool("Failed", txTrace.Failed)
	if w.err != nil {
		return fmt.Errorf("invalid DAG-ETH TxTrace binary (%v)", w.err)
	}
	return ma.Finish()
}

func writeFrame(na ipld.NodeAssembler, frame Frame) error {
	ma, err := na.BeginMap(frameFieldCount)
	if err != nil {
		return err
	}
	w := entries{ma: ma}
	w.bytes("Op", []byte{byte(frame.Op)})
	w.list("Path", len(frame.Path), func(la ipld.ListAssembler) error {
		for _, idx := range frame.Path {
			if err := la.AssembleValue().AssignInt(int64(idx)); err != nil {
				return err
			}
		}
		return nil
	})
	w.bytes("From", frame.From.Bytes())
	w.bytes("To", frame.To.Bytes())
	w.bytes("Input", frame.Input)
	w.bytes("Output", frame.Output)
	w.uint64("Gas", frame.Gas)
	w.uint64("Cost", frame.Cost)
	var value []byte
	if frame.Value != nil {
		value = frame.Value.Bytes()
	}
	w.bytes("Value", value)
	w.int("Status", int64(frame.Status))
	if w.err != nil {
		return w.err
	}
	return ma.Finish()
}

// entries assembles map entries, keeping the first failure
type entries struct {
	ma  ipld.MapAssembler
	err error
}

func (e *entries) value(key string) ipld.NodeAssembler {
	if e.err != nil {
		return nil
	}
	if err := e.ma.AssembleKey().AssignString(key); err != nil {
		e.err = err
		return nil
	}
	return e.ma.AssembleValue()
}

func (e *entries) set(key string, assign func(ipld.NodeAssembler) error) {
	na := e.value(key)
	if na == nil {
		return
	}
	if err := assign(na); err != nil {
		e.err = fmt.Errorf("%s: %w", key, err)
	}
}

func (e *entries) bytes(key string, b []byte) {
	e.set(key, func(na ipld.NodeAssembler) error { return na.AssignBytes(b) })
}

// uint64 writes v as a big endian eight byte integer
func (e *entries) uint64(key string, v uint64) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	e.bytes(key, buf)
}

func (e *entries) int(key string, v int64) {
	e.set(key, func(na ipld.NodeAssembler) error { return na.AssignInt(v) })
}

func (e *entries) bool(key string, v bool) {
	e.set(key, func(na ipld.NodeAssembler) error { return na.AssignBool(v) })
}

func (e *entries) link(key string, codec uint64, h common.Hash) {
	e.set(key, func(na ipld.NodeAssembler) error { return na.AssignLink(hashLink(codec, h)) })
}

func (e *entries) list(key string, n int, fill func(ipld.ListAssembler) error) {
	e.set(key, func(na ipld.NodeAssembler) error {
		la, err := na.BeginList(int64(n))
		if err != nil {
			return err
		}
		if err := fill(la); err != nil {
			return err
		}
		return la.Finish()
	})
}

// hashLink wraps a keccak digest in a CIDv1 link of the given codec
func hashLink(codec uint64, h common.Hash) cidlink.Link {
	// multihash.Encode never fails
	mh, _ := multihash.Encode(h.Bytes(), MultiHashType)
	return cidlink.Link{Cid: cid.NewCidV1(codec, mh)}
}
