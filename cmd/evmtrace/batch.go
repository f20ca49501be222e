package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vulcanize/go-evm-tracer/engine"
)

type txJSON struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
	Data  hexutil.Bytes   `json:"data"`
	Gas   hexutil.Uint64  `json:"gas"`
	Nonce *hexutil.Uint64 `json:"nonce"`
}

type blockJSON struct {
	Number    hexutil.Uint64 `json:"number"`
	Timestamp hexutil.Uint64 `json:"timestamp"`
	BaseFee   *hexutil.Big   `json:"baseFee"`
	GasLimit  hexutil.Uint64 `json:"gasLimit"`
	Coinbase  common.Address `json:"coinbase"`
}

type batchJSON struct {
	Transactions []txJSON   `json:"transactions"`
	Stateful     bool       `json:"stateful"`
	RetainLast   bool       `json:"retainLast"`
	Block        *blockJSON `json:"block"`
}

func (b *batchJSON) batch() engine.SimulationBatch {
	batch := engine.SimulationBatch{
		Transactions: make([]engine.SimulationTx, len(b.Transactions)),
		Stateful:     b.Stateful,
		RetainLast:   b.RetainLast,
	}
	for i, tx := range b.Transactions {
		stx := engine.SimulationTx{
			Caller:   tx.From,
			To:       tx.To,
			Data:     tx.Data,
			GasLimit: uint64(tx.Gas),
		}
		if tx.Value != nil {
			stx.Value = tx.Value.ToInt()
		}
		if tx.Nonce != nil {
			nonce := uint64(*tx.Nonce)
			stx.Nonce = &nonce
		}
		batch.Transactions[i] = stx
	}
	if b.Block != nil {
		env := &engine.BlockEnv{
			Number:    uint64(b.Block.Number),
			Timestamp: uint64(b.Block.Timestamp),
			GasLimit:  uint64(b.Block.GasLimit),
			Coinbase:  b.Block.Coinbase,
		}
		if b.Block.BaseFee != nil {
			env.BaseFee = new(big.Int).Set(b.Block.BaseFee.ToInt())
		}
		batch.Block = env
	}
	return batch
}

// readBatches accepts a single batch object or a list of them
func readBatches(path string) ([]engine.SimulationBatch, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list []batchJSON
	if err := json.Unmarshal(raw, &list); err != nil {
		var single batchJSON
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		list = []batchJSON{single}
	}
	batches := make([]engine.SimulationBatch, len(list))
	for i := range list {
		if len(list[i].Transactions) == 0 {
			return nil, fmt.Errorf("batch %d has no transactions", i)
		}
		batches[i] = list[i].batch()
	}
	return batches, nil
}
