package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/uhyunpark/hyperswap/pkg/chain"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/jetton"
	"github.com/uhyunpark/hyperswap/pkg/node"
	"github.com/uhyunpark/hyperswap/pkg/swap"
)

// sign flags
var (
	signNonce   uint64
	signSubmit  bool
	signValue   string
	signMaster  string
	signOrderID uint32
	signOwner   string
	signAmount  string
	signRoot    string
	signTo      string

	signWantRoot   string
	signWantAmount string
	signWantNative bool
	signForward    string
	signPayload    string
)

var SignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Build and sign an external message",
	Long: `Build and sign an external message. Amounts are decimal coins with
9 decimals. With --submit the message is posted to --node, otherwise the
signed JSON is printed.`,
}

var signCreateNativeCmd = &cobra.Command{
	Use:   "create-native",
	Short: "Escrow --amount native coins for --want-amount of token --want-root",
	Args:  cobra.NoArgs,
	RunE:  signCreateNative,
}

var signExecuteNativeCmd = &cobra.Command{
	Use:   "execute-native",
	Short: "Pay --amount native coins into order --order-id of vault owner --owner",
	Args:  cobra.NoArgs,
	RunE:  signExecuteNative,
}

var signCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close order --order-id in your own vault",
	Args:  cobra.NoArgs,
	RunE:  signClose,
}

var signJettonTransferCmd = &cobra.Command{
	Use:   "jetton-transfer",
	Short: "Send --amount of token --root, optionally creating or filling an order",
	Long: `Send --amount of token --root from your wallet.

  --payload none           plain transfer to --to
  --payload create-order   deposit into the master; the order asks for
                           --want-amount of --want-root, or of native coin
                           with --want-native
  --payload execute-order  pay into order --order-id of vault owner --owner`,
	Args: cobra.NoArgs,
	RunE: signJettonTransfer,
}

var signMintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint --amount of token --root to --to (minter admin only)",
	Args:  cobra.NoArgs,
	RunE:  signMint,
}

func init() {
	SignCmd.PersistentFlags().Uint64Var(&signNonce, "nonce", 0, "Message nonce (default: fetched from --node)")
	SignCmd.PersistentFlags().BoolVar(&signSubmit, "submit", false, "Post the signed message to --node")
	SignCmd.PersistentFlags().StringVar(&signValue, "value", "", "Attached native value (default depends on the command)")
	SignCmd.PersistentFlags().StringVar(&signMaster, "master", "", "MasterOrder address (default: fetched from --node)")
	SignCmd.PersistentFlags().Uint32Var(&signOrderID, "order-id", 0, "Order id")
	SignCmd.PersistentFlags().StringVar(&signAmount, "amount", "", "Amount")

	signCreateNativeCmd.Flags().StringVar(&signWantRoot, "want-root", "", "Token requested in exchange")
	signCreateNativeCmd.Flags().StringVar(&signWantAmount, "want-amount", "", "Amount requested in exchange")

	signExecuteNativeCmd.Flags().StringVar(&signOwner, "owner", "", "Vault owner")

	signJettonTransferCmd.Flags().StringVar(&signRoot, "root", "", "Token to send")
	signJettonTransferCmd.Flags().StringVar(&signTo, "to", "", "Recipient owner for --payload none")
	signJettonTransferCmd.Flags().StringVar(&signOwner, "owner", "", "Vault owner for --payload execute-order")
	signJettonTransferCmd.Flags().StringVar(&signPayload, "payload", "none", "none, create-order or execute-order")
	signJettonTransferCmd.Flags().StringVar(&signWantRoot, "want-root", "", "Token requested by a new order")
	signJettonTransferCmd.Flags().StringVar(&signWantAmount, "want-amount", "", "Amount requested by a new order")
	signJettonTransferCmd.Flags().BoolVar(&signWantNative, "want-native", false, "New order requests native coin")
	signJettonTransferCmd.Flags().StringVar(&signForward, "forward", "1", "Value forwarded with the notification")

	signMintCmd.Flags().StringVar(&signRoot, "root", "", "Token to mint")
	signMintCmd.Flags().StringVar(&signTo, "to", "", "Recipient owner")

	SignCmd.AddCommand(signCreateNativeCmd, signExecuteNativeCmd, signCloseCmd, signJettonTransferCmd, signMintCmd)
}

func loadSigner() (*crypto.Signer, error) {
	k := keyHex
	if k == "" {
		k = os.Getenv("SWAPCTL_KEY")
	}
	if k == "" {
		return nil, fmt.Errorf("no key: pass --key or set SWAPCTL_KEY")
	}
	return crypto.FromPrivateKeyHex(k)
}

// valueOr returns --value, or def when it is unset.
func valueOr(def *uint256.Int) (*uint256.Int, error) {
	if signValue == "" {
		return def, nil
	}
	return parseAmount("value", signValue)
}

func plus(a *uint256.Int, coins string) *uint256.Int {
	extra, _ := parseAmount("", coins)
	return new(uint256.Int).Add(a, extra)
}

// emit signs msg and prints or submits it.
func emit(cmd *cobra.Command, signer *crypto.Signer, msg chain.Message) error {
	nonce := signNonce
	if nonce == 0 {
		n, err := nextNonce(signer.Address())
		if err != nil {
			return err
		}
		nonce = n
	}
	sm, err := node.NewSignedMessage(crypto.NewEIP712Signer(domain()), signer, msg, nonce)
	if err != nil {
		return err
	}
	if signSubmit {
		raw, err := sm.Serialize()
		if err != nil {
			return err
		}
		reply, err := postMessage(raw)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	}
	out, err := json.MarshalIndent(sm, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func signCreateNative(cmd *cobra.Command, args []string) error {
	signer, err := loadSigner()
	if err != nil {
		return err
	}
	master, err := masterAddress()
	if err != nil {
		return err
	}
	amount, err := parseAmount("amount", signAmount)
	if err != nil {
		return err
	}
	wantRoot, err := parseAddress("want-root", signWantRoot)
	if err != nil {
		return err
	}
	wantAmount, err := parseAmount("want-amount", signWantAmount)
	if err != nil {
		return err
	}
	value, err := valueOr(plus(amount, "0.1"))
	if err != nil {
		return err
	}
	vault := swap.VaultAddress(master, signer.Address())
	body := swap.CreateNativeOrderBody(uint64(signOrderID), swap.CreateNativeOrder{
		OrderID:    signOrderID,
		FromAmount: amount,
		ToAddress:  jetton.WalletAddress(wantRoot, vault),
		ToAmount:   wantAmount,
		ToRoot:     wantRoot,
	})
	return emit(cmd, signer, chain.Message{To: master, Value: value, Bounce: true, Body: body})
}

func signExecuteNative(cmd *cobra.Command, args []string) error {
	signer, err := loadSigner()
	if err != nil {
		return err
	}
	master, err := masterAddress()
	if err != nil {
		return err
	}
	owner, err := parseAddress("owner", signOwner)
	if err != nil {
		return err
	}
	amount, err := parseAmount("amount", signAmount)
	if err != nil {
		return err
	}
	value, err := valueOr(plus(amount, "0.2"))
	if err != nil {
		return err
	}
	body := swap.ExecuteNativeOrderBody(uint64(signOrderID), signOrderID, amount)
	return emit(cmd, signer, chain.Message{To: swap.VaultAddress(master, owner), Value: value, Bounce: true, Body: body})
}

func signClose(cmd *cobra.Command, args []string) error {
	signer, err := loadSigner()
	if err != nil {
		return err
	}
	master, err := masterAddress()
	if err != nil {
		return err
	}
	value, err := valueOr(plus(new(uint256.Int), "0.1"))
	if err != nil {
		return err
	}
	body := swap.CloseOrderBody(uint64(signOrderID), signOrderID)
	return emit(cmd, signer, chain.Message{To: swap.VaultAddress(master, signer.Address()), Value: value, Bounce: true, Body: body})
}

func signJettonTransfer(cmd *cobra.Command, args []string) error {
	signer, err := loadSigner()
	if err != nil {
		return err
	}
	root, err := parseAddress("root", signRoot)
	if err != nil {
		return err
	}
	amount, err := parseAmount("amount", signAmount)
	if err != nil {
		return err
	}
	forward, err := parseAmount("forward", signForward)
	if err != nil {
		return err
	}

	t := jetton.Transfer{Amount: amount, ResponseDestination: signer.Address(), ForwardAmount: forward}
	switch signPayload {
	case "none":
		if t.Destination, err = parseAddress("to", signTo); err != nil {
			return err
		}
	case "create-order":
		master, err := masterAddress()
		if err != nil {
			return err
		}
		co, err := createOrderFlags(master, signer.Address(), root)
		if err != nil {
			return err
		}
		t.Destination = master
		t.ForwardPayload = swap.CreateOrderPayload(uint64(signOrderID), co)
	case "execute-order":
		master, err := masterAddress()
		if err != nil {
			return err
		}
		owner, err := parseAddress("owner", signOwner)
		if err != nil {
			return err
		}
		t.Destination = swap.VaultAddress(master, owner)
		t.ForwardPayload = swap.ExecuteOrderPayload(uint64(signOrderID), signOrderID)
	default:
		return fmt.Errorf("--payload: unknown payload %q", signPayload)
	}

	value, err := valueOr(plus(forward, "1"))
	if err != nil {
		return err
	}
	body := jetton.TransferBody(uint64(signOrderID), t)
	return emit(cmd, signer, chain.Message{To: jetton.WalletAddress(root, signer.Address()), Value: value, Bounce: true, Body: body})
}

func createOrderFlags(master, creator, fromRoot common.Address) (swap.CreateOrder, error) {
	wantAmount, err := parseAmount("want-amount", signWantAmount)
	if err != nil {
		return swap.CreateOrder{}, err
	}
	co := swap.CreateOrder{OrderID: signOrderID, FromRoot: fromRoot, ToAmount: wantAmount}
	if signWantNative {
		co.ToKind = uint8(swap.AssetNative)
		return co, nil
	}
	wantRoot, err := parseAddress("want-root", signWantRoot)
	if err != nil {
		return swap.CreateOrder{}, err
	}
	co.ToKind = uint8(swap.AssetToken)
	co.ToRoot = wantRoot
	co.ToAddress = jetton.WalletAddress(wantRoot, swap.VaultAddress(master, creator))
	return co, nil
}

func signMint(cmd *cobra.Command, args []string) error {
	signer, err := loadSigner()
	if err != nil {
		return err
	}
	root, err := parseAddress("root", signRoot)
	if err != nil {
		return err
	}
	to, err := parseAddress("to", signTo)
	if err != nil {
		return err
	}
	amount, err := parseAmount("amount", signAmount)
	if err != nil {
		return err
	}
	value, err := valueOr(plus(new(uint256.Int), "0.5"))
	if err != nil {
		return err
	}
	body := jetton.MintBody(0, jetton.Mint{To: to, Amount: amount, ResponseAddress: signer.Address()})
	return emit(cmd, signer, chain.Message{To: root, Value: value, Bounce: true, Body: body})
}
