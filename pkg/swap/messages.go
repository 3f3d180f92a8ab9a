package swap

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/wire"
)

const (
	// OpCreateOrder heads the forward payload of a token deposit, both on
	// the creator -> master leg and on the master -> vault leg.
	OpCreateOrder wire.Op = 0xc1c6ebf9
	// OpExecuteOrder heads the forward payload of a token payment.
	OpExecuteOrder       wire.Op = 0xa0cef9d9
	OpCreateNativeOrder  wire.Op = 0x2d9a7e1f
	OpVaultNativeOrder   wire.Op = 0x6b4e53a2
	OpExecuteNativeOrder wire.Op = 0x3f1c8e64
	OpCloseOrder         wire.Op = 0x8ab4b6b3
	OpDeploy             wire.Op = 0x5f6b3a1c
	// OpPayout marks native value sent out of a vault for an order.
	OpPayout wire.Op = 0x9d3c2b71
	// OpRefund marks value returned to a sender whose request was refused.
	OpRefund wire.Op = 0x4c7f0e2d
	// OpExcess returns unused attached value.
	OpExcess wire.Op = 0xd53276db
)

// CreateOrder is the payload a creator attaches to a token transfer into
// the master. ToKind selects the counter asset; for a token, ToAddress is
// the creator's vault wallet of that token and ToRoot optionally names the
// token so the vault can check ToAddress.
type CreateOrder struct {
	OrderID   uint32
	FromRoot  common.Address
	ToKind    uint8
	ToAddress common.Address
	ToAmount  *uint256.Int
	ToRoot    common.Address
}

// VaultDeposit is CreateOrder as forwarded by the master into the vault.
type VaultDeposit struct {
	Creator   common.Address
	OrderID   uint32
	FromRoot  common.Address
	ToKind    uint8
	ToAddress common.Address
	ToAmount  *uint256.Int
	ToRoot    common.Address
}

// CreateNativeOrder escrows attached native value for a token.
type CreateNativeOrder struct {
	OrderID    uint32
	FromAmount *uint256.Int
	ToAddress  common.Address
	ToAmount   *uint256.Int
	ToRoot     common.Address
}

type VaultNativeOrder struct {
	Creator    common.Address
	OrderID    uint32
	FromAmount *uint256.Int
	ToAddress  common.Address
	ToAmount   *uint256.Int
	ToRoot     common.Address
}

// ExecuteOrder is the payload of a token payment into a vault.
type ExecuteOrder struct {
	OrderID uint32
}

// ExecuteNativeOrder pays Amount of attached native value into an order.
type ExecuteNativeOrder struct {
	OrderID uint32
	Amount  *uint256.Int
}

type CloseOrder struct {
	OrderID uint32
}

// Payout is the body of native value sent out for an order.
type Payout struct {
	OrderID uint32
}

func (c CreateOrder) toAsset() Asset {
	if AssetKind(c.ToKind) == AssetNative {
		return Native()
	}
	return Token(c.ToRoot, c.ToAddress)
}

func (d VaultDeposit) toAsset() Asset {
	if AssetKind(d.ToKind) == AssetNative {
		return Native()
	}
	return Token(d.ToRoot, d.ToAddress)
}

// CreateOrderPayload is the forward payload for a token deposit into the master.
func CreateOrderPayload(queryID uint64, c CreateOrder) []byte {
	return wire.MustEncode(OpCreateOrder, queryID, c)
}

// ExecuteOrderPayload is the forward payload for a token payment into a vault.
func ExecuteOrderPayload(queryID uint64, orderID uint32) []byte {
	return wire.MustEncode(OpExecuteOrder, queryID, ExecuteOrder{OrderID: orderID})
}

// CreateNativeOrderBody is sendCreateTonJettonOrder.
func CreateNativeOrderBody(queryID uint64, c CreateNativeOrder) []byte {
	return wire.MustEncode(OpCreateNativeOrder, queryID, c)
}

// ExecuteNativeOrderBody is sendExecuteJettonTonOrder.
func ExecuteNativeOrderBody(queryID uint64, orderID uint32, amount *uint256.Int) []byte {
	return wire.MustEncode(OpExecuteNativeOrder, queryID, ExecuteNativeOrder{OrderID: orderID, Amount: amount})
}

// CloseOrderBody is sendCloseOrder.
func CloseOrderBody(queryID uint64, orderID uint32) []byte {
	return wire.MustEncode(OpCloseOrder, queryID, CloseOrder{OrderID: orderID})
}

var opNames = map[wire.Op]string{
	OpCreateOrder:        "create_order",
	OpExecuteOrder:       "execute_order",
	OpCreateNativeOrder:  "create_native_order",
	OpVaultNativeOrder:   "vault_native_order",
	OpExecuteNativeOrder: "execute_native_order",
	OpCloseOrder:         "close_order",
	OpDeploy:             "deploy",
	OpPayout:             "payout",
	OpRefund:             "refund",
}

// OpName names a swap protocol op for logs and metrics.
func OpName(op wire.Op) (string, bool) {
	name, ok := opNames[op]
	return name, ok
}
