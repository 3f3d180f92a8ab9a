package jetton

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/chain"
	"github.com/uhyunpark/hyperswap/pkg/wire"
)

// Wallet holds one owner's balance of one token.
type Wallet struct {
	Owner   common.Address `json:"owner"`
	Minter  common.Address `json:"minter"`
	Balance *uint256.Int   `json:"balance"`
}

var _ chain.Contract = (*Wallet)(nil)

func newWallet(data []byte) (chain.Contract, error) {
	var d walletData
	if err := rlp.DecodeBytes(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode wallet data: %w", err)
	}
	return &Wallet{Owner: d.Owner, Minter: d.Minter, Balance: new(uint256.Int)}, nil
}

func (w *Wallet) MarshalState() ([]byte, error) { return json.Marshal(w) }

func (w *Wallet) UnmarshalState(data []byte) error {
	var s Wallet
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s.Balance == nil {
		s.Balance = new(uint256.Int)
	}
	*w = s
	return nil
}

func (w *Wallet) Receive(ctx *chain.Context, msg chain.Message) error {
	if msg.Bounced {
		return w.onBounce(ctx, msg)
	}
	if len(msg.Body) == 0 {
		return nil
	}
	h, raw, err := wire.Decode(msg.Body)
	if err != nil {
		return err
	}
	switch h.Op {
	case OpTransfer:
		return w.transfer(ctx, h, raw)
	case OpInternalTransfer:
		return w.receiveTransfer(ctx, h, raw)
	}
	return fmt.Errorf("%w: %s", ErrUnknownOp, h.Op)
}

func (w *Wallet) transfer(ctx *chain.Context, h wire.Header, raw []byte) error {
	if ctx.Sender() != w.Owner {
		return ErrNotOwner
	}
	var t Transfer
	if err := wire.DecodePayload(raw, &t); err != nil {
		return err
	}
	fwd := orZero(t.ForwardAmount)
	if t.Amount == nil || t.Amount.IsZero() {
		return ErrZeroAmount
	}
	if w.Balance.Lt(t.Amount) {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientFunds, w.Balance.Dec(), t.Amount.Dec())
	}
	need := new(uint256.Int).Add(fwd, ctx.GasFee())
	if ctx.Value().Lt(need) {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientValue, ctx.Value().Dec(), need.Dec())
	}

	w.Balance.Sub(w.Balance, t.Amount)

	init := WalletInit(w.Minter, t.Destination)
	body, err := wire.Encode(OpInternalTransfer, h.QueryID, InternalTransfer{
		Amount:          t.Amount,
		From:            w.Owner,
		ResponseAddress: t.ResponseDestination,
		ForwardAmount:   fwd,
		ForwardPayload:  t.ForwardPayload,
	})
	if err != nil {
		return err
	}
	ctx.Send(chain.Message{To: init.Address(), Value: ctx.Value(), Bounce: true, Init: &init, Body: body})
	return nil
}

func (w *Wallet) receiveTransfer(ctx *chain.Context, h wire.Header, raw []byte) error {
	var it InternalTransfer
	if err := wire.DecodePayload(raw, &it); err != nil {
		return err
	}
	sender := ctx.Sender()
	if sender != w.Minter && sender != WalletAddress(w.Minter, it.From) {
		return ErrInvalidSender
	}
	fwd := orZero(it.ForwardAmount)
	remaining := ctx.Value()
	if remaining.Lt(fwd) {
		return fmt.Errorf("%w: forward %s exceeds %s", ErrInsufficientValue, fwd.Dec(), remaining.Dec())
	}

	w.Balance.Add(w.Balance, it.Amount)

	if !fwd.IsZero() {
		body, err := wire.Encode(OpTransferNotification, h.QueryID, Notification{
			Amount:         it.Amount,
			Sender:         it.From,
			ForwardPayload: it.ForwardPayload,
		})
		if err != nil {
			return err
		}
		ctx.Send(chain.Message{To: w.Owner, Value: fwd, Body: body})
		remaining.Sub(remaining, fwd)
	}
	if it.ResponseAddress != (common.Address{}) && !remaining.IsZero() {
		ctx.Send(chain.Message{To: it.ResponseAddress, Value: remaining, Body: wire.MustEncode(OpExcesses, h.QueryID, nil)})
	}
	return nil
}

// onBounce restores tokens whose internal transfer failed downstream.
func (w *Wallet) onBounce(ctx *chain.Context, msg chain.Message) error {
	orig, ok := wire.Unbounce(msg.Body)
	if !ok {
		return nil
	}
	h, raw, err := wire.Decode(orig)
	if err != nil || h.Op != OpInternalTransfer {
		return nil
	}
	var it InternalTransfer
	if err := wire.DecodePayload(raw, &it); err != nil {
		return nil
	}
	w.Balance.Add(w.Balance, it.Amount)
	ctx.Logger().Info("jetton_transfer_bounced", zap.String("owner", w.Owner.Hex()), zap.String("amount", it.Amount.Dec()))
	return nil
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}
