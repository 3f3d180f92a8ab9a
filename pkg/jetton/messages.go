package jetton

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/wire"
)

const (
	OpTransfer             wire.Op = 0x0f8a7ea5
	OpTransferNotification wire.Op = 0x7362d09c
	OpInternalTransfer     wire.Op = 0x178d4519
	OpExcesses             wire.Op = 0xd53276db
	OpMint                 wire.Op = 0x00000015
)

// Transfer is sent by a wallet owner to move tokens to another owner.
type Transfer struct {
	Amount              *uint256.Int
	Destination         common.Address // owner, not wallet
	ResponseDestination common.Address // receives leftover value; zero keeps it
	ForwardAmount       *uint256.Int   // value attached to the notification
	ForwardPayload      []byte         // encoded body handed to the destination owner
}

// InternalTransfer moves tokens between sibling wallets, or from the minter.
type InternalTransfer struct {
	Amount          *uint256.Int
	From            common.Address // owner of the sending wallet
	ResponseAddress common.Address
	ForwardAmount   *uint256.Int
	ForwardPayload  []byte
}

// Notification tells a wallet owner that tokens arrived.
type Notification struct {
	Amount         *uint256.Int
	Sender         common.Address // owner of the sending wallet
	ForwardPayload []byte
}

type Mint struct {
	To              common.Address
	Amount          *uint256.Int
	ResponseAddress common.Address
}

// TransferBody encodes a transfer request for the sender's own wallet.
func TransferBody(queryID uint64, t Transfer) []byte {
	if t.ForwardAmount == nil {
		t.ForwardAmount = new(uint256.Int)
	}
	return wire.MustEncode(OpTransfer, queryID, t)
}

// MintBody encodes a mint request for the minter.
func MintBody(queryID uint64, m Mint) []byte {
	return wire.MustEncode(OpMint, queryID, m)
}

// DecodeNotification parses a transfer_notification payload.
func DecodeNotification(raw []byte) (Notification, error) {
	var n Notification
	if err := wire.DecodePayload(raw, &n); err != nil {
		return Notification{}, err
	}
	return n, nil
}
