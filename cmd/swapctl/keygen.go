package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// KeygenCmd prints a fresh secp256k1 key and its address.
var KeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new key and print its address",
	Args:  cobra.NoArgs,
	RunE:  keygen,
}

func keygen(cmd *cobra.Command, args []string) error {
	signer, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "address: %s\n", signer.Address().Hex())
	fmt.Fprintf(out, "key:     %s\n", signer.PrivateKeyHex())
	return nil
}
