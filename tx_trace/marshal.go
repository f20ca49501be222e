package tx_trace

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ipld/go-ipld-prime"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/multiformats/go-multihash"

	"github.com/vulcanize/go-evm-tracer/shared"
)

// Encode writes the rlp form of a TxTrace node. The plugin package registers it
// for MultiCodecType.
func Encode(node ipld.Node, w io.Writer) error {
	enc, err := AppendEncode(make([]byte, 0, 1024), node)
	if err != nil {
		return err
	}
	_, err = w.Write(enc)
	return err
}

// AppendEncode is like Encode but appends to enc
func AppendEncode(enc []byte, node ipld.Node) ([]byte, error) {
	var txTrace TxTrace
	if err := EncodeTxTrace(&txTrace, node); err != nil {
		return nil, err
	}
	if err := rlp.Encode(shared.NewWriteableByteSlice(&enc), &txTrace); err != nil {
		return nil, err
	}
	return enc, nil
}

// EncodeTxTrace fills txTrace from a node of the TxTrace form
func EncodeTxTrace(txTrace *TxTrace, node ipld.Node) error {
	if node.Kind() != ipld.Kind_Map {
		return fmt.Errorf("invalid DAG-ETH TxTrace form (expected map, got %s)", node.Kind())
	}
	r := fields{node: node}
	txTrace.TxHashes = make([]common.Hash, 0)
	r.each("TxCIDs", func(n ipld.Node) error {
		h, err := linkDigest(n)
		txTrace.TxHashes = append(txTrace.TxHashes, h)
		return err
	})
	txTrace.StateRoot = r.digest("StateRootCID")
	txTrace.Result = r.bytes("Result")
	txTrace.Frames = make([]Frame, 0)
	r.each("Frames", func(n ipld.Node) error {
		frame, err := readFrame(n)
		txTrace.Frames = append(txTrace.Frames, frame)
		return err
	})
	txTrace.Gas = r.uint64("Gas")
	txTrace.Failed = r.bool("Failed")
	if r.err != nil {
		return fmt.Errorf("invalid DAG-ETH TxTrace form (%v)", r.err)
	}
	return nil
}

func readFrame(node ipld.Node) (Frame, error) {
	r := fields{node: node}
	var frame Frame
	op := r.bytes("Op")
	r.each("Path", func(n ipld.Node) error {
		idx, err := n.AsInt()
		if err == nil && idx < 0 {
			err = fmt.Errorf("frame Path index %d is negative", idx)
		}
		frame.Path = append(frame.Path, uint64(idx))
		return err
	})
	frame.From = common.BytesToAddress(r.bytes("From"))
	frame.To = common.BytesToAddress(r.bytes("To"))
	frame.Input = r.bytes("Input")
	frame.Output = r.bytes("Output")
	frame.Gas = r.uint64("Gas")
	frame.Cost = r.uint64("Cost")
	frame.Value = new(big.Int).SetBytes(r.bytes("Value"))
	status := r.int("Status")
	switch {
	case r.err != nil:
		return Frame{}, r.err
	case len(op) != 1:
		return Frame{}, fmt.Errorf("frame Op should be a single byte")
	case status < int64(StatusSuccess) || status > int64(StatusError):
		return Frame{}, fmt.Errorf("unknown frame Status %d", status)
	}
	if frame.Path == nil {
		frame.Path = []uint64{}
	}
	frame.Op = vm.OpCode(op[0])
	frame.Status = uint8(status)
	return frame, nil
}

// fields reads typed entries of a map node, keeping the first failure. Once a
// read fails every later read returns the zero value.
type fields struct {
	node ipld.Node
	err  error
}

func (f *fields) lookup(key string) ipld.Node {
	if f.err != nil {
		return nil
	}
	n, err := f.node.LookupByString(key)
	if err != nil {
		f.err = err
		return nil
	}
	return n
}

func (f *fields) fail(key string, err error) {
	if err != nil && f.err == nil {
		f.err = fmt.Errorf("%s: %w", key, err)
	}
}

func (f *fields) bytes(key string) []byte {
	n := f.lookup(key)
	if n == nil {
		return nil
	}
	b, err := n.AsBytes()
	f.fail(key, err)
	return b
}

// uint64 reads a big endian eight byte integer
func (f *fields) uint64(key string) uint64 {
	b := f.bytes(key)
	if f.err != nil {
		return 0
	}
	if len(b) != 8 {
		f.fail(key, fmt.Errorf("expected 8 bytes, got %d", len(b)))
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (f *fields) int(key string) int64 {
	n := f.lookup(key)
	if n == nil {
		return 0
	}
	i, err := n.AsInt()
	f.fail(key, err)
	return i
}

func (f *fields) bool(key string) bool {
	n := f.lookup(key)
	if n == nil {
		return false
	}
	b, err := n.AsBool()
	f.fail(key, err)
	return b
}

func (f *fields) digest(key string) common.Hash {
	n := f.lookup(key)
	if n == nil {
		return common.Hash{}
	}
	h, err := linkDigest(n)
	f.fail(key, err)
	return h
}

// each calls fn for every element of the list under key
func (f *fields) each(key string, fn func(ipld.Node) error) {
	n := f.lookup(key)
	if n == nil {
		return
	}
	if n.Kind() != ipld.Kind_List {
		f.fail(key, fmt.Errorf("expected list, got %s", n.Kind()))
		return
	}
	for it := n.ListIterator(); !it.Done(); {
		_, elem, err := it.Next()
		if err == nil {
			err = fn(elem)
		}
		if err != nil {
			f.fail(key, err)
			return
		}
	}
}

// linkDigest returns the keccak digest a CID link points at
func linkDigest(n ipld.Node) (common.Hash, error) {
	link, err := n.AsLink()
	if err != nil {
		return common.Hash{}, err
	}
	cl, ok := link.(cidlink.Link)
	if !ok {
		return common.Hash{}, fmt.Errorf("expected a CID link, got %T", link)
	}
	mh, err := multihash.Decode(cl.Hash())
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to decode multihash: %v", err)
	}
	return common.BytesToHash(mh.Digest), nil
}
