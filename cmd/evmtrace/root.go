package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/vulcanize/go-evm-tracer/backend"
	"github.com/vulcanize/go-evm-tracer/config"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:          "evmtrace",
	Short:        "Simulate and trace transactions against a remote chain state",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		v, err := config.NewViper(cmd.Flags())
		if err != nil {
			return err
		}
		if cfg, err = config.Load(v); err != nil {
			return err
		}
		setupLogging(cfg.Verbosity)
		return nil
	},
}

func init() {
	config.BuildFlagSet(rootCmd.PersistentFlags())
	rootCmd.AddCommand(traceCmd, implCmd, tokenCmd)
}

func setupLogging(lvl log.Lvl) {
	useColor := isatty.IsTerminal(os.Stderr.Fd()) && os.Getenv("TERM") != "dumb"
	log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, log.TerminalFormat(useColor))))
}

// dial opens the configured node and wraps it in the shared cache
func dial(ctx context.Context) (*backend.RPC, *backend.Cached, error) {
	rpc, err := backend.DialRPC(ctx, cfg.RPCURL, cfg.BlockNumber)
	if err != nil {
		return nil, nil, err
	}
	id, err := rpc.ChainID(ctx)
	if err != nil {
		rpc.Close()
		return nil, nil, err
	}
	if id.Uint64() != cfg.ChainID {
		log.Warn("Node chain id differs from configuration", "node", id, "configured", cfg.ChainID)
	}
	cached, err := backend.NewCached(rpc, cfg.CacheSize)
	if err != nil {
		rpc.Close()
		return nil, nil, fmt.Errorf("build cache: %w", err)
	}
	log.Info("Connected", "url", cfg.RPCURL, "block", rpc.Block())
	return rpc, cached, nil
}
