// Command swapctl generates keys, derives swap addresses and signs
// external messages for a hyperswap node.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
