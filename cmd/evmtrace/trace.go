package main

import (
	"bufio"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ipld/go-ipld-prime/codec/dagjson"
	"github.com/spf13/cobra"

	"github.com/vulcanize/go-evm-tracer/engine"
	"github.com/vulcanize/go-evm-tracer/trace"
	"github.com/vulcanize/go-evm-tracer/tracer"
	"github.com/vulcanize/go-evm-tracer/tx_trace"
)

const (
	formatDagJSON = "dag-json"
	formatText    = "text"
)

var outputFormat string

var traceCmd = &cobra.Command{
	Use:   "trace <batch.json>",
	Short: "Execute transaction batches and print their traces as dag-json or text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputFormat != formatDagJSON && outputFormat != formatText {
			return fmt.Errorf("unknown output format %q", outputFormat)
		}
		ctx := cmd.Context()
		batches, err := readBatches(args[0])
		if err != nil {
			return err
		}
		rpc, cached, err := dial(ctx)
		if err != nil {
			return err
		}
		defer rpc.Close()

		header, err := rpc.Header(ctx)
		if err != nil {
			return err
		}
		ecfg := cfg.EngineConfig()
		ecfg.Block = engine.BlockEnv{
			Number:    header.Number.Uint64() + 1,
			Timestamp: header.Time + 12,
			BaseFee:   header.BaseFee,
			GasLimit:  header.GasLimit,
			Coinbase:  header.Coinbase,
		}
		factory := func() (*engine.Engine, error) {
			return engine.New(cached, tracer.New(), ecfg)
		}

		results, runErr := engine.RunParallel(ctx, cfg.Workers, factory, batches)
		out := bufio.NewWriter(cmd.OutOrStdout())
		defer out.Flush()
		for i, res := range results {
			if res.Err != nil {
				log.Warn("Batch stopped early", "batch", i, "err", res.Err)
			}
			if err := writeBatch(out, batches[i], res.Txs, header.Root, outputFormat); err != nil {
				return err
			}
		}
		return runErr
	},
}

func init() {
	traceCmd.Flags().StringVar(&outputFormat, "format", formatDagJSON, "output format (dag-json or text)")
}

func writeBatch(w io.Writer, batch engine.SimulationBatch, results []*engine.TxResult, root common.Hash, format string) error {
	for i, res := range results {
		if res == nil {
			continue
		}
		logger := log.New("tx", i, "hash", res.Hash)
		if res.Trace == nil {
			logger.Warn("Transaction not traced", "state", res.State, "kind", res.Kind, "err", res.Err)
			continue
		}
		if format == formatText {
			if err := writeText(w, i, res); err != nil {
				return err
			}
			continue
		}
		txTrace, err := tx_trace.FromBatch(results, i, batch.Stateful, root)
		if err != nil {
			return err
		}
		node, err := tx_trace.NewNode(txTrace)
		if err != nil {
			return err
		}
		c, err := tx_trace.Cid(txTrace)
		if err != nil {
			return err
		}
		logger.Info("Traced transaction", "cid", c, "state", res.State, "kind", res.Kind,
			"outcome", res.Trace.Outcome, "gas", res.Exec.GasUsed, "transfers", len(res.Trace.Transfers))
		if err := dagjson.Encode(node, w); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

func writeText(w io.Writer, i int, res *engine.TxResult) error {
	if _, err := fmt.Fprintf(w, "Transaction %d %s state %s\n%s", i, res.Hash.Hex(), res.State, trace.Format(res.Trace)); err != nil {
		return err
	}
	if msg := trace.FormatError(res.Trace); msg != "" {
		if _, err := io.WriteString(w, msg); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
