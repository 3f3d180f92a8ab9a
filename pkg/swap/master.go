package swap

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/chain"
	"github.com/uhyunpark/hyperswap/pkg/jetton"
	"github.com/uhyunpark/hyperswap/pkg/wire"
)

// Master is the MasterOrder: a stateless router. Vault addresses are
// derived on demand, never stored.
type Master struct {
	Admin  common.Address `json:"admin"`
	self   common.Address
	params Params
}

var _ chain.Contract = (*Master)(nil)

func newMaster(data []byte, p Params) (*Master, error) {
	var d masterData
	if err := rlp.DecodeBytes(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode master data: %w", err)
	}
	self := chain.StateInit{Code: MasterCode, Data: data}.Address()
	return &Master{Admin: d.Admin, self: self, params: p}, nil
}

func (m *Master) MarshalState() ([]byte, error) { return json.Marshal(m) }

func (m *Master) UnmarshalState(data []byte) error {
	var s struct {
		Admin common.Address `json:"admin"`
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	m.Admin = s.Admin
	return nil
}

// Address is the master's own address, derived from its StateInit.
func (m *Master) Address() common.Address { return m.self }

// WalletAddress is getWalletAddress: the vault of owner under this master.
func (m *Master) WalletAddress(owner common.Address) common.Address {
	return VaultAddress(m.self, owner)
}

func (m *Master) Receive(ctx *chain.Context, msg chain.Message) error {
	if msg.Bounced {
		return m.onBounce(ctx, msg)
	}
	if len(msg.Body) == 0 {
		return nil
	}
	h, raw, err := wire.Decode(msg.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownOp, err)
	}
	switch h.Op {
	case jetton.OpTransferNotification:
		return m.onDeposit(ctx, msg, h, raw)
	case OpCreateNativeOrder:
		return m.onCreateNative(ctx, msg, h, raw)
	}
	return fmt.Errorf("%w: %s", ErrUnknownOp, h.Op)
}

// onDeposit handles a token deposit: the creator transferred tokens to the
// master with a CreateOrder forward payload.
func (m *Master) onDeposit(ctx *chain.Context, msg chain.Message, h wire.Header, raw []byte) error {
	n, err := jetton.DecodeNotification(raw)
	if err != nil {
		return err
	}
	log := ctx.Logger().With(zap.Uint64("query_id", h.QueryID), zap.String("creator", n.Sender.Hex()))

	reject := func(cause error) error {
		return returnTokens(ctx, msg.From, n.Sender, n.Amount, h.QueryID, cause)
	}

	fh, fraw, err := wire.Decode(n.ForwardPayload)
	if err != nil || fh.Op != OpCreateOrder {
		return reject(fmt.Errorf("%w: deposit without create_order payload", ErrInvalidOrder))
	}
	var co CreateOrder
	if err := wire.DecodePayload(fraw, &co); err != nil {
		return reject(fmt.Errorf("%w: %v", ErrInvalidOrder, err))
	}
	if msg.From != jetton.WalletAddress(co.FromRoot, ctx.Self()) {
		log.Warn("deposit_unauthorized", zap.String("sender", msg.From.Hex()), zap.String("from_root", co.FromRoot.Hex()))
		return reject(fmt.Errorf("%w: %s is not the master wallet of %s", ErrUnauthorized, msg.From.Hex(), co.FromRoot.Hex()))
	}
	if n.Amount == nil || n.Amount.IsZero() {
		return fmt.Errorf("%w: empty deposit", ErrZeroAmount)
	}
	if _, err := NewOrder(co.OrderID, Token(co.FromRoot, msg.From), n.Amount, co.toAsset(), co.ToAmount); err != nil {
		return reject(err)
	}

	gas := ctx.GasFee()
	jtv := m.params.JettonTransferValue
	deployValue := gas
	minForward := new(uint256.Int).Add(gas, jtv)
	need := new(uint256.Int).Add(deployValue, jtv)
	need.Add(need, minForward)
	if ctx.Value().Lt(need) {
		return reject(fmt.Errorf("%w: have %s, want %s", ErrInsufficientValue, ctx.Value().Dec(), need.Dec()))
	}
	forward := new(uint256.Int).Sub(ctx.Value(), deployValue)
	forward.Sub(forward, jtv)

	vaultInit := VaultInit(ctx.Self(), n.Sender)
	vault := vaultInit.Address()
	ctx.Send(chain.Message{To: vault, Value: deployValue, Init: &vaultInit, Body: wire.MustEncode(OpDeploy, h.QueryID, nil)})

	deposit := wire.MustEncode(OpCreateOrder, h.QueryID, VaultDeposit{
		Creator:   n.Sender,
		OrderID:   co.OrderID,
		FromRoot:  co.FromRoot,
		ToKind:    co.ToKind,
		ToAddress: co.ToAddress,
		ToAmount:  co.ToAmount,
		ToRoot:    co.ToRoot,
	})
	ctx.Send(chain.Message{
		To:     msg.From,
		Value:  new(uint256.Int).Add(jtv, forward),
		Bounce: true,
		Body: jetton.TransferBody(h.QueryID, jetton.Transfer{
			Amount:              n.Amount,
			Destination:         vault,
			ResponseDestination: n.Sender,
			ForwardAmount:       forward,
			ForwardPayload:      deposit,
		}),
	})
	log.Info("deposit_forwarded", zap.String("vault", vault.Hex()), zap.Uint32("order_id", co.OrderID), zap.String("amount", n.Amount.Dec()))
	return nil
}

// onCreateNative handles sendCreateTonJettonOrder.
func (m *Master) onCreateNative(ctx *chain.Context, msg chain.Message, h wire.Header, raw []byte) error {
	var req CreateNativeOrder
	if err := wire.DecodePayload(raw, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if req.ToAddress == (common.Address{}) {
		return fmt.Errorf("%w: missing counter-token wallet", ErrInvalidOrder)
	}
	if _, err := NewOrder(req.OrderID, Native(), req.FromAmount, Token(req.ToRoot, req.ToAddress), req.ToAmount); err != nil {
		return err
	}
	need := new(uint256.Int).Add(req.FromAmount, ctx.GasFee())
	if ctx.Value().Lt(need) {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientValue, ctx.Value().Dec(), need.Dec())
	}

	creator := msg.From
	vaultInit := VaultInit(ctx.Self(), creator)
	body, err := wire.Encode(OpVaultNativeOrder, h.QueryID, VaultNativeOrder{
		Creator:    creator,
		OrderID:    req.OrderID,
		FromAmount: req.FromAmount,
		ToAddress:  req.ToAddress,
		ToAmount:   req.ToAmount,
		ToRoot:     req.ToRoot,
	})
	if err != nil {
		return err
	}
	ctx.Send(chain.Message{To: vaultInit.Address(), Value: ctx.Value(), Bounce: true, Init: &vaultInit, Body: body})
	ctx.Logger().Info("native_order_forwarded",
		zap.Uint64("query_id", h.QueryID),
		zap.String("creator", creator.Hex()),
		zap.Uint32("order_id", req.OrderID),
		zap.String("from_amount", req.FromAmount.Dec()))
	return nil
}

// onBounce refunds the creator when its vault refused a native order.
func (m *Master) onBounce(ctx *chain.Context, msg chain.Message) error {
	orig, _ := wire.Unbounce(msg.Body)
	h, raw, err := wire.Decode(orig)
	var req VaultNativeOrder
	if err == nil && h.Op == OpVaultNativeOrder {
		err = wire.DecodePayload(raw, &req)
	}
	if err != nil || h.Op != OpVaultNativeOrder || ctx.Value().IsZero() {
		// nothing to refund against; keep the value and report it
		op, _ := wire.PeekOp(orig)
		ctx.Logger().Error("master_leg_bounced",
			zap.String("from", msg.From.Hex()),
			zap.Stringer("op", op),
			zap.String("value", ctx.Value().Dec()))
		return nil
	}
	ctx.Send(chain.Message{To: req.Creator, Value: ctx.Value(), Body: wire.MustEncode(OpRefund, h.QueryID, Payout{OrderID: req.OrderID})})
	ctx.Logger().Info("native_order_refunded", zap.String("creator", req.Creator.Hex()), zap.Uint32("order_id", req.OrderID), zap.String("value", ctx.Value().Dec()))
	return nil
}

// returnTokens sends the notified tokens back through the wallet that
// reported them and marks the message as rejected. If the sender is not a
// real wallet of ours the transfer request is harmless to it and only the
// attached value goes back. Without enough value to pay the wallet hops
// the message fails instead.
func returnTokens(ctx *chain.Context, wallet, to common.Address, amount *uint256.Int, queryID uint64, cause error) error {
	minValue := new(uint256.Int).Lsh(ctx.GasFee(), 1)
	if amount == nil || amount.IsZero() || ctx.Value().Lt(minValue) {
		return cause
	}
	ctx.Send(chain.Message{
		To:     wallet,
		Value:  ctx.Value(),
		Bounce: true,
		Body: jetton.TransferBody(queryID, jetton.Transfer{
			Amount:              amount,
			Destination:         to,
			ResponseDestination: to,
		}),
	})
	ctx.Reject(cause)
	return nil
}
