package main

import (
	"math/big"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// global flags
var (
	nodeURL string
	chainID int64
	keyHex  string
)

var RootCmd = &cobra.Command{
	Use:           "swapctl",
	Short:         "Keys, addresses and signed messages for the hyperswap protocol",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&nodeURL, "node", "http://localhost:8080", "Node API base URL")
	RootCmd.PersistentFlags().Int64Var(&chainID, "chain-id", crypto.DefaultDomain().ChainID.Int64(), "EIP-712 chain id")
	RootCmd.PersistentFlags().StringVar(&keyHex, "key", "", "Hex private key (default $SWAPCTL_KEY)")

	RootCmd.AddCommand(KeygenCmd, AddressCmd, BalanceCmd, SignCmd)
}

func domain() crypto.EIP712Domain {
	d := crypto.DefaultDomain()
	d.ChainID = big.NewInt(chainID)
	return d
}
