package tx_trace

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

const (
	// MultiCodecType is the proposed multicodec for eth transaction traces
	MultiCodecType = uint64(0x9b)
	MultiHashType  = uint64(multihash.KECCAK_256)

	txCodec        = uint64(cid.EthTx)
	stateTrieCodec = uint64(cid.EthStateTrie)
)

// Frame status codes
const (
	StatusSuccess uint8 = iota
	StatusRevert
	StatusError
)

// TxTrace is the call tree of the last transaction in TxHashes, applied on top of
// the state produced by sequentially applying the preceding ones to StateRoot
type TxTrace struct {
	TxHashes  []common.Hash
	StateRoot common.Hash
	Result    []byte
	Frames    []Frame
	Gas       uint64
	Failed    bool
}

// Frame is one call frame of the trace, in pre-order
type Frame struct {
	Op     vm.OpCode
	Path   []uint64
	From   common.Address
	To     common.Address
	Input  []byte
	Output []byte
	Gas    uint64
	Cost   uint64
	Value  *big.Int
	Status uint8
}
