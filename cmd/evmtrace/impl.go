package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/vulcanize/go-evm-tracer/proxy"
)

var implCmd = &cobra.Command{
	Use:   "impl <address>",
	Short: "Print the implementation behind a proxy contract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("invalid address %q", args[0])
		}
		ctx := cmd.Context()
		rpc, cached, err := dial(ctx)
		if err != nil {
			return err
		}
		defer rpc.Close()

		impl, err := proxy.Resolve(ctx, cached, common.HexToAddress(args[0]))
		if err != nil {
			return err
		}
		if impl == nil {
			return fmt.Errorf("%s is not a recognised proxy", args[0])
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), impl.Hex())
		return err
	},
}
