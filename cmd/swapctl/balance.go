package main

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
)

var balanceRoot string

// BalanceCmd prints native or jetton balances from a running node.
var BalanceCmd = &cobra.Command{
	Use:   "balance [address]",
	Short: "Print the native balance of an address, or its --root jetton balance",
	Args:  cobra.ExactArgs(1),
	RunE:  balance,
}

func init() {
	BalanceCmd.Flags().StringVar(&balanceRoot, "root", "", "Jetton minter; native coin when empty")
}

func balance(cmd *cobra.Command, args []string) error {
	owner, err := parseAddress("address", args[0])
	if err != nil {
		return err
	}
	var out struct {
		Balance string `json:"balance"`
	}
	path := "/api/v1/accounts/" + owner.Hex()
	if balanceRoot != "" {
		root, err := parseAddress("root", balanceRoot)
		if err != nil {
			return err
		}
		path = "/api/v1/jettons/" + root.Hex() + "/wallets/" + owner.Hex()
	}
	if err := getJSON(path, &out); err != nil {
		return err
	}
	v, err := uint256.FromDecimal(out.Balance)
	if err != nil {
		return fmt.Errorf("node returned balance %q: %w", out.Balance, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatAmount(v))
	return nil
}
