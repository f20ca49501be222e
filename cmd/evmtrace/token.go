package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/vulcanize/go-evm-tracer/engine"
)

var tokenCmd = &cobra.Command{
	Use:   "token <address> [holder]",
	Short: "Print ERC20 metadata and optionally the balance of a holder",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, arg := range args {
			if !common.IsHexAddress(arg) {
				return fmt.Errorf("invalid address %q", arg)
			}
		}
		ctx := cmd.Context()
		rpc, cached, err := dial(ctx)
		if err != nil {
			return err
		}
		defer rpc.Close()

		eng, err := engine.New(cached, nil, cfg.EngineConfig())
		if err != nil {
			return err
		}
		token := common.HexToAddress(args[0])
		info, err := eng.TokenInfo(ctx, token)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "symbol:   %s\ndecimals: %d\n", info.Symbol, info.Decimals)
		if info.Implementation != nil {
			fmt.Fprintf(w, "impl:     %s\n", info.Implementation.Hex())
		}
		if len(args) == 2 {
			balance, err := eng.TokenBalance(ctx, token, common.HexToAddress(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "balance:  %s\n", balance)
		}
		return nil
	},
}
