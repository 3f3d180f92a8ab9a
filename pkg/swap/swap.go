// Package swap implements the peer-to-peer swap protocol: a MasterOrder
// that derives, deploys and feeds one UserOrder vault per creator, and the
// vault that escrows assets and fills orders proportionally.
package swap

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/chain"
)

const (
	MasterCode chain.CodeID = "master-order"
	VaultCode  chain.CodeID = "user-order"
)

type Params struct {
	// JettonTransferValue is attached to every jetton transfer a swap
	// contract starts. It must cover two wallet hops.
	JettonTransferValue *uint256.Int
	// NativeCommission is kept by the vault from every native payment.
	NativeCommission *uint256.Int
}

func DefaultParams() Params {
	return Params{
		JettonTransferValue: uint256.NewInt(50_000_000),
		NativeCommission:    uint256.NewInt(10_000_000),
	}
}

// Validate checks the params against the runtime gas fee.
func (p Params) Validate(gasFee *uint256.Int) error {
	if p.JettonTransferValue == nil || p.NativeCommission == nil {
		return fmt.Errorf("swap params: missing values")
	}
	twoHops := new(uint256.Int).Lsh(gasFee, 1)
	if p.JettonTransferValue.Lt(twoHops) {
		return fmt.Errorf("swap params: jetton transfer value %s below two gas fees %s", p.JettonTransferValue.Dec(), twoHops.Dec())
	}
	return nil
}

type masterData struct {
	Admin common.Address
}

type vaultData struct {
	Master common.Address
	Owner  common.Address
}

// MasterInit returns the StateInit of the MasterOrder seeded by admin.
func MasterInit(admin common.Address) chain.StateInit {
	data, _ := rlp.EncodeToBytes(masterData{Admin: admin})
	return chain.StateInit{Code: MasterCode, Data: data}
}

// VaultInit returns the StateInit of owner's UserOrder under master.
func VaultInit(master, owner common.Address) chain.StateInit {
	data, _ := rlp.EncodeToBytes(vaultData{Master: master, Owner: owner})
	return chain.StateInit{Code: VaultCode, Data: data}
}

// VaultAddress derives owner's UserOrder address. It is a pure function
// of the master address and the owner.
func VaultAddress(master, owner common.Address) common.Address {
	return VaultInit(master, owner).Address()
}

// Register installs the MasterOrder and UserOrder codes.
func Register(c *chain.Chain, p Params) error {
	if err := p.Validate(c.GasFee()); err != nil {
		return err
	}
	c.Register(MasterCode, func(data []byte) (chain.Contract, error) { return newMaster(data, p) })
	c.Register(VaultCode, func(data []byte) (chain.Contract, error) { return newVault(data, p) })
	return nil
}
