// Package jetton is the two-tier fungible token ledger: one minter per
// token and one wallet per (minter, owner) pair. Wallet addresses are a
// pure function of minter and owner, which lets any contract check that a
// message really comes from a wallet of a given token.
package jetton

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/uhyunpark/hyperswap/pkg/chain"
)

const (
	MinterCode chain.CodeID = "jetton-minter"
	WalletCode chain.CodeID = "jetton-wallet"
)

var (
	ErrNotOwner          = errors.New("sender is not the wallet owner")
	ErrInvalidSender     = errors.New("sender is neither minter nor sibling wallet")
	ErrInsufficientFunds = errors.New("insufficient token balance")
	ErrInsufficientValue = errors.New("insufficient attached value")
	ErrUnknownOp         = errors.New("unknown op")
	ErrZeroAmount        = errors.New("zero amount")
)

type walletData struct {
	Owner  common.Address
	Minter common.Address
}

type minterData struct {
	Admin  common.Address
	Symbol string
}

// WalletInit returns the StateInit of owner's wallet for minter.
func WalletInit(minter, owner common.Address) chain.StateInit {
	data, _ := rlp.EncodeToBytes(walletData{Owner: owner, Minter: minter})
	return chain.StateInit{Code: WalletCode, Data: data}
}

// WalletAddress is getWalletAddress: the deterministic wallet of owner.
func WalletAddress(minter, owner common.Address) common.Address {
	return WalletInit(minter, owner).Address()
}

// MinterInit returns the StateInit of a minter.
func MinterInit(admin common.Address, symbol string) chain.StateInit {
	data, _ := rlp.EncodeToBytes(minterData{Admin: admin, Symbol: symbol})
	return chain.StateInit{Code: MinterCode, Data: data}
}

// Register installs the minter and wallet codes.
func Register(c *chain.Chain) {
	c.Register(MinterCode, newMinter)
	c.Register(WalletCode, newWallet)
}
