package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/uhyunpark/hyperswap/pkg/jetton"
	"github.com/uhyunpark/hyperswap/pkg/swap"
)

var (
	addrMaster string
	addrOwner  string
	addrRoot   string
)

var AddressCmd = &cobra.Command{
	Use:   "address",
	Short: "Derive contract addresses offline",
}

var addressVaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Print the UserOrder vault of --owner under --master",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		master, err := parseAddress("master", addrMaster)
		if err != nil {
			return err
		}
		owner, err := parseAddress("owner", addrOwner)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), swap.VaultAddress(master, owner).Hex())
		return nil
	},
}

var addressWalletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Print the jetton wallet of --owner for token --root",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := parseAddress("root", addrRoot)
		if err != nil {
			return err
		}
		owner, err := parseAddress("owner", addrOwner)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), jetton.WalletAddress(root, owner).Hex())
		return nil
	},
}

func init() {
	AddressCmd.PersistentFlags().StringVar(&addrOwner, "owner", "", "Owner address")
	addressVaultCmd.Flags().StringVar(&addrMaster, "master", "", "MasterOrder address")
	addressWalletCmd.Flags().StringVar(&addrRoot, "root", "", "Jetton minter address")
	AddressCmd.AddCommand(addressVaultCmd, addressWalletCmd)
}

func parseAddress(name, v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("--%s: invalid address %q", name, v)
	}
	return common.HexToAddress(v), nil
}
