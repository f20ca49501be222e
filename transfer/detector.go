package transfer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/vulcanize/go-evm-tracer/trace"
)

var (
	// TransferTopic is shared by ERC20 and ERC721 Transfer events
	TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	// TransferSingleTopic is the ERC1155 single transfer event
	TransferSingleTopic = crypto.Keccak256Hash([]byte("TransferSingle(address,address,address,uint256,uint256)"))
	// TransferBatchTopic is the ERC1155 batch transfer event
	TransferBatchTopic = crypto.Keccak256Hash([]byte("TransferBatch(address,address,address,uint256[],uint256[])"))
)

var batchArgs abi.Arguments

func init() {
	u256s, err := abi.NewType("uint256[]", "", nil)
	if err != nil {
		panic(err)
	}
	batchArgs = abi.Arguments{{Name: "ids", Type: u256s}, {Name: "values", Type: u256s}}
}

// Native returns the transfer implied by a value carrying frame, if any
func Native(from, to common.Address, value *big.Int, path trace.Path, seq uint64) (trace.AssetTransfer, bool) {
	if value == nil || value.Sign() <= 0 {
		return trace.AssetTransfer{}, false
	}
	amount, overflow := uint256.FromBig(value)
	if overflow {
		return trace.AssetTransfer{}, false
	}
	return trace.AssetTransfer{
		Seq:       seq,
		Kind:      trace.Native,
		From:      from,
		To:        to,
		Amount:    amount,
		FramePath: path,
	}, true
}

// FromLog decodes the standard token transfer events carried by a log.
// Logs that match no known shape return nil.
func FromLog(l *trace.Log) []trace.AssetTransfer {
	if l == nil || len(l.Topics) == 0 {
		return nil
	}
	switch l.Topics[0] {
	case TransferTopic:
		return transferEvent(l)
	case TransferSingleTopic:
		return transferSingle(l)
	case TransferBatchTopic:
		return transferBatch(l)
	}
	return nil
}

func transferEvent(l *trace.Log) []trace.AssetTransfer {
	token := l.Address
	switch {
	case len(l.Topics) == 3 && len(l.Data) == 32:
		return []trace.AssetTransfer{{
			Seq:       l.Seq,
			Kind:      trace.Fungible,
			Token:     &token,
			From:      topicAddress(l.Topics[1]),
			To:        topicAddress(l.Topics[2]),
			Amount:    new(uint256.Int).SetBytes(l.Data),
			FramePath: l.FramePath,
		}}
	case len(l.Topics) == 4 && len(l.Data) == 0:
		return []trace.AssetTransfer{{
			Seq:       l.Seq,
			Kind:      trace.NonFungibleUnique,
			Token:     &token,
			TokenID:   new(uint256.Int).SetBytes(l.Topics[3].Bytes()),
			From:      topicAddress(l.Topics[1]),
			To:        topicAddress(l.Topics[2]),
			Amount:    uint256.NewInt(1),
			FramePath: l.FramePath,
		}}
	}
	return nil
}

func transferSingle(l *trace.Log) []trace.AssetTransfer {
	if len(l.Topics) != 4 || len(l.Data) != 64 {
		return nil
	}
	token := l.Address
	return []trace.AssetTransfer{{
		Seq:       l.Seq,
		Kind:      trace.NonFungibleMultiple,
		Token:     &token,
		TokenID:   new(uint256.Int).SetBytes(l.Data[:32]),
		From:      topicAddress(l.Topics[2]),
		To:        topicAddress(l.Topics[3]),
		Amount:    new(uint256.Int).SetBytes(l.Data[32:]),
		FramePath: l.FramePath,
	}}
}

func transferBatch(l *trace.Log) []trace.AssetTransfer {
	if len(l.Topics) != 4 {
		return nil
	}
	values, err := batchArgs.Unpack(l.Data)
	if err != nil || len(values) != 2 {
		return nil
	}
	ids, ok := values[0].([]*big.Int)
	if !ok {
		return nil
	}
	amounts, ok := values[1].([]*big.Int)
	if !ok || len(ids) != len(amounts) {
		return nil
	}
	token := l.Address
	from, to := topicAddress(l.Topics[2]), topicAddress(l.Topics[3])
	out := make([]trace.AssetTransfer, 0, len(ids))
	for i := range ids {
		id, overflow := uint256.FromBig(ids[i])
		if overflow {
			return nil
		}
		amount, overflow := uint256.FromBig(amounts[i])
		if overflow {
			return nil
		}
		out = append(out, trace.AssetTransfer{
			Seq:       l.Seq,
			Kind:      trace.NonFungibleMultiple,
			Token:     &token,
			TokenID:   id,
			From:      from,
			To:        to,
			Amount:    amount,
			FramePath: l.FramePath,
		})
	}
	return out
}

func topicAddress(h common.Hash) common.Address {
	return common.BytesToAddress(h.Bytes()[12:])
}
