package swap

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/chain"
	"github.com/uhyunpark/hyperswap/pkg/jetton"
	"github.com/uhyunpark/hyperswap/pkg/wire"
)

// Vault is the UserOrder of one creator. It owns the creator's open
// orders and custodies their escrow: native escrow in its own balance,
// token escrow in its own jetton wallets.
//
// Every handler validates first, then mutates the order map, then queues
// outbound transfers computed from the committed state.
type Vault struct {
	Owner  common.Address
	Master common.Address
	orders map[uint32]*Order
	params Params
}

var _ chain.Contract = (*Vault)(nil)

func newVault(data []byte, p Params) (*Vault, error) {
	var d vaultData
	if err := rlp.DecodeBytes(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode vault data: %w", err)
	}
	return &Vault{Owner: d.Owner, Master: d.Master, orders: make(map[uint32]*Order), params: p}, nil
}

type vaultState struct {
	Owner  common.Address `json:"owner"`
	Master common.Address `json:"master"`
	Orders []*Order       `json:"orders"`
}

func (v *Vault) MarshalState() ([]byte, error) {
	return json.Marshal(vaultState{Owner: v.Owner, Master: v.Master, Orders: v.sorted()})
}

func (v *Vault) UnmarshalState(data []byte) error {
	var s vaultState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v.Owner, v.Master = s.Owner, s.Master
	v.orders = make(map[uint32]*Order, len(s.Orders))
	for _, o := range s.Orders {
		v.orders[o.ID] = o
	}
	return nil
}

func (v *Vault) sorted() []*Order {
	out := make([]*Order, 0, len(v.orders))
	for _, o := range v.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Orders is getOrders: a copy of every open order by ascending id.
func (v *Vault) Orders() []Order {
	out := make([]Order, 0, len(v.orders))
	for _, o := range v.sorted() {
		out = append(out, *o.Clone())
	}
	return out
}

// Order returns a copy of one open order.
func (v *Vault) Order(id uint32) (Order, bool) {
	o, ok := v.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o.Clone(), true
}

// NativeEscrow sums the unfilled native escrow. The vault balance never
// drops below it.
func (v *Vault) NativeEscrow() *uint256.Int {
	total := new(uint256.Int)
	for _, o := range v.orders {
		if o.From.IsNative() {
			total.Add(total, o.FromAmountLeft)
		}
	}
	return total
}

func (v *Vault) Receive(ctx *chain.Context, msg chain.Message) error {
	if msg.Bounced {
		// Outbound legs are only sent after the order map is final, so a
		// returned leg cannot be undone here. Keep the value and report it.
		ctx.Logger().Error("vault_leg_bounced", zap.String("from", msg.From.Hex()), zap.String("value", msg.Value.Dec()))
		return nil
	}
	if len(msg.Body) == 0 {
		return nil
	}
	h, raw, err := wire.Decode(msg.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownOp, err)
	}
	switch h.Op {
	case OpDeploy:
		return nil
	case jetton.OpTransferNotification:
		return v.onTokens(ctx, msg, h, raw)
	case OpVaultNativeOrder:
		return v.onCreateNative(ctx, msg, h, raw)
	case OpExecuteNativeOrder:
		return v.onExecuteNative(ctx, msg, h, raw)
	case OpCloseOrder:
		return v.onClose(ctx, msg, h, raw)
	}
	return fmt.Errorf("%w: %s", ErrUnknownOp, h.Op)
}

// onTokens dispatches a transfer notification by its forward payload.
func (v *Vault) onTokens(ctx *chain.Context, msg chain.Message, h wire.Header, raw []byte) error {
	n, err := jetton.DecodeNotification(raw)
	if err != nil {
		return err
	}
	fh, fraw, err := wire.Decode(n.ForwardPayload)
	if err != nil {
		return returnTokens(ctx, msg.From, n.Sender, n.Amount, h.QueryID, fmt.Errorf("%w: missing forward payload", ErrUnknownOp))
	}
	switch fh.Op {
	case OpCreateOrder:
		return v.onDeposit(ctx, msg, fh, n, fraw)
	case OpExecuteOrder:
		return v.onExecute(ctx, msg, fh, n, fraw)
	}
	return returnTokens(ctx, msg.From, n.Sender, n.Amount, h.QueryID, fmt.Errorf("%w: %s", ErrUnknownOp, fh.Op))
}

// onDeposit records a token-escrow order forwarded by the master.
func (v *Vault) onDeposit(ctx *chain.Context, msg chain.Message, h wire.Header, n jetton.Notification, raw []byte) error {
	var dep VaultDeposit
	decodeErr := wire.DecodePayload(raw, &dep)
	// only a deposit routed by the master names its creator; anything
	// else goes back to whoever sent the tokens
	refundTo := n.Sender
	if n.Sender == v.Master && decodeErr == nil && dep.Creator != (common.Address{}) {
		refundTo = dep.Creator
	}
	reject := func(cause error) error {
		return returnTokens(ctx, msg.From, refundTo, n.Amount, h.QueryID, cause)
	}
	if decodeErr != nil {
		return reject(fmt.Errorf("%w: %v", ErrInvalidOrder, decodeErr))
	}
	if n.Sender != v.Master {
		return reject(fmt.Errorf("%w: deposit not routed by master", ErrUnauthorized))
	}
	if msg.From != jetton.WalletAddress(dep.FromRoot, ctx.Self()) {
		return reject(fmt.Errorf("%w: %s is not the vault wallet of %s", ErrUnauthorized, msg.From.Hex(), dep.FromRoot.Hex()))
	}
	if dep.Creator != v.Owner {
		return reject(fmt.Errorf("%w: deposit for %s reached vault of %s", ErrUnauthorized, dep.Creator.Hex(), v.Owner.Hex()))
	}
	to := dep.toAsset()
	if err := v.checkCounterWallet(ctx, to); err != nil {
		return reject(err)
	}
	if _, dup := v.orders[dep.OrderID]; dup {
		return reject(fmt.Errorf("%w: %d", ErrDuplicateOrder, dep.OrderID))
	}
	o, err := NewOrder(dep.OrderID, Token(dep.FromRoot, msg.From), n.Amount, to, dep.ToAmount)
	if err != nil {
		return reject(err)
	}

	v.orders[o.ID] = o

	if left := ctx.Value(); !left.IsZero() {
		ctx.Send(chain.Message{To: v.Owner, Value: left, Body: wire.MustEncode(OpExcess, h.QueryID, nil)})
	}
	logOrder(ctx, "order_created", o, h.QueryID)
	return nil
}

// onCreateNative records a native-escrow order forwarded by the master.
// Failures bounce back to the master, which refunds the creator.
func (v *Vault) onCreateNative(ctx *chain.Context, msg chain.Message, h wire.Header, raw []byte) error {
	if msg.From != v.Master {
		return fmt.Errorf("%w: native order not routed by master", ErrUnauthorized)
	}
	var req VaultNativeOrder
	if err := wire.DecodePayload(raw, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if req.Creator != v.Owner {
		return fmt.Errorf("%w: order for %s reached vault of %s", ErrUnauthorized, req.Creator.Hex(), v.Owner.Hex())
	}
	to := Token(req.ToRoot, req.ToAddress)
	if err := v.checkCounterWallet(ctx, to); err != nil {
		return err
	}
	if _, dup := v.orders[req.OrderID]; dup {
		return fmt.Errorf("%w: %d", ErrDuplicateOrder, req.OrderID)
	}
	o, err := NewOrder(req.OrderID, Native(), req.FromAmount, to, req.ToAmount)
	if err != nil {
		return err
	}
	if ctx.Value().Lt(o.FromAmount) {
		return fmt.Errorf("%w: escrow %s, attached %s", ErrInsufficientValue, o.FromAmount.Dec(), ctx.Value().Dec())
	}

	v.orders[o.ID] = o

	if left := new(uint256.Int).Sub(ctx.Value(), o.FromAmount); !left.IsZero() {
		ctx.Send(chain.Message{To: v.Owner, Value: left, Body: wire.MustEncode(OpExcess, h.QueryID, nil)})
	}
	logOrder(ctx, "order_created", o, h.QueryID)
	return nil
}

// checkCounterWallet verifies a named counter-token root against the
// wallet the creator supplied.
func (v *Vault) checkCounterWallet(ctx *chain.Context, to Asset) error {
	if to.IsNative() || to.Root == (common.Address{}) {
		return nil
	}
	if want := jetton.WalletAddress(to.Root, ctx.Self()); to.Wallet != want {
		return fmt.Errorf("%w: counter wallet %s is not %s", ErrAssetMismatch, to.Wallet.Hex(), want.Hex())
	}
	return nil
}

// onExecute fills an order with a token payment.
func (v *Vault) onExecute(ctx *chain.Context, msg chain.Message, h wire.Header, n jetton.Notification, raw []byte) error {
	executor := n.Sender
	reject := func(cause error) error {
		return returnTokens(ctx, msg.From, executor, n.Amount, h.QueryID, cause)
	}
	var req ExecuteOrder
	if err := wire.DecodePayload(raw, &req); err != nil {
		return reject(fmt.Errorf("%w: %v", ErrInvalidOrder, err))
	}
	o, ok := v.orders[req.OrderID]
	if !ok {
		return reject(fmt.Errorf("%w: %d", ErrUnknownOrder, req.OrderID))
	}
	if o.To.IsNative() {
		return reject(fmt.Errorf("%w: order %d asks for native", ErrAssetMismatch, o.ID))
	}
	if msg.From != o.To.Wallet {
		return reject(fmt.Errorf("%w: paid from %s, order %d expects %s", ErrAssetMismatch, msg.From.Hex(), o.ID, o.To.Wallet.Hex()))
	}
	fill, err := o.Quote(n.Amount)
	if err != nil {
		return reject(err)
	}

	// A payment worth less than one unit of escrow releases nothing now;
	// the cumulative rule pays it out with a later fill.
	tokenRelease := !o.From.IsNative() && !fill.Release.IsZero()
	jtv := v.params.JettonTransferValue
	legs := uint64(1)
	if tokenRelease {
		legs++
	}
	if !fill.Refund.IsZero() {
		legs++
	}
	need := new(uint256.Int).Mul(jtv, uint256.NewInt(legs))
	if ctx.Value().Lt(need) {
		return reject(fmt.Errorf("%w: have %s, want %s", ErrInsufficientValue, ctx.Value().Dec(), need.Dec()))
	}
	leftover := new(uint256.Int).Sub(ctx.Value(), need)

	o.Apply(fill)
	if o.Filled() {
		delete(v.orders, o.ID)
	}

	sendTokens(ctx, o.To.Wallet, fill.Accepted, v.Owner, jtv, h.QueryID)
	if !fill.Refund.IsZero() {
		sendTokens(ctx, o.To.Wallet, fill.Refund, executor, jtv, h.QueryID)
	}
	switch {
	case o.From.IsNative():
		if out := new(uint256.Int).Add(fill.Release, leftover); !out.IsZero() {
			ctx.Send(chain.Message{
				To:    executor,
				Value: out,
				Body:  wire.MustEncode(OpPayout, h.QueryID, Payout{OrderID: o.ID}),
			})
		}
	case tokenRelease:
		sendTokens(ctx, o.From.Wallet, fill.Release, executor, new(uint256.Int).Add(jtv, leftover), h.QueryID)
	case !leftover.IsZero():
		ctx.Send(chain.Message{To: executor, Value: leftover, Body: wire.MustEncode(OpExcess, h.QueryID, nil)})
	}
	logFill(ctx, o, fill, executor, h.QueryID)
	return nil
}

// onExecuteNative fills an order that asks for native value. The payment
// is attached to the message; the commission stays in the vault.
func (v *Vault) onExecuteNative(ctx *chain.Context, msg chain.Message, h wire.Header, raw []byte) error {
	var req ExecuteNativeOrder
	if err := wire.DecodePayload(raw, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	o, ok := v.orders[req.OrderID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownOrder, req.OrderID)
	}
	if !o.To.IsNative() {
		return fmt.Errorf("%w: order %d asks for a token", ErrAssetMismatch, o.ID)
	}
	if req.Amount == nil || req.Amount.IsZero() {
		return ErrZeroAmount
	}
	jtv := v.params.JettonTransferValue
	need := new(uint256.Int).Add(req.Amount, jtv)
	if ctx.Value().Lt(need) {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientValue, ctx.Value().Dec(), need.Dec())
	}
	fill, err := o.Quote(req.Amount)
	if err != nil {
		return err
	}
	commission := v.params.NativeCommission
	if !fill.Accepted.Gt(commission) {
		return fmt.Errorf("%w: payment %s does not cover commission %s", ErrFillTooSmall, fill.Accepted.Dec(), commission.Dec())
	}

	executor := msg.From
	// everything attached beyond the accepted payment goes back with the
	// escrow transfer: overpayment plus unused overhead
	back := new(uint256.Int).Sub(ctx.Value(), fill.Accepted)

	o.Apply(fill)
	if o.Filled() {
		delete(v.orders, o.ID)
	}

	ctx.Send(chain.Message{
		To:    v.Owner,
		Value: new(uint256.Int).Sub(fill.Accepted, commission),
		Body:  wire.MustEncode(OpPayout, h.QueryID, Payout{OrderID: o.ID}),
	})
	if fill.Release.IsZero() {
		ctx.Send(chain.Message{To: executor, Value: back, Body: wire.MustEncode(OpExcess, h.QueryID, nil)})
	} else {
		sendTokens(ctx, o.From.Wallet, fill.Release, executor, back, h.QueryID)
	}
	logFill(ctx, o, fill, executor, h.QueryID)
	return nil
}

// onClose refunds the unfilled escrow to the owner and drops the order.
func (v *Vault) onClose(ctx *chain.Context, msg chain.Message, h wire.Header, raw []byte) error {
	if msg.From != v.Owner {
		return fmt.Errorf("%w: only the owner may close", ErrUnauthorized)
	}
	var req CloseOrder
	if err := wire.DecodePayload(raw, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	o, ok := v.orders[req.OrderID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownOrder, req.OrderID)
	}
	if !o.From.IsNative() && ctx.Value().Lt(v.params.JettonTransferValue) {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientValue, ctx.Value().Dec(), v.params.JettonTransferValue.Dec())
	}

	delete(v.orders, o.ID)

	if o.From.IsNative() {
		ctx.Send(chain.Message{
			To:    v.Owner,
			Value: new(uint256.Int).Add(o.FromAmountLeft, ctx.Value()),
			Body:  wire.MustEncode(OpRefund, h.QueryID, Payout{OrderID: o.ID}),
		})
	} else {
		sendTokens(ctx, o.From.Wallet, o.FromAmountLeft, v.Owner, ctx.Value(), h.QueryID)
	}
	logOrder(ctx, "order_closed", o, h.QueryID)
	return nil
}

// sendTokens asks one of the vault's own wallets to transfer amount to
// owner to. Leftover value comes back to the recipient as excess.
func sendTokens(ctx *chain.Context, wallet common.Address, amount *uint256.Int, to common.Address, value *uint256.Int, queryID uint64) {
	ctx.Send(chain.Message{
		To:     wallet,
		Value:  value,
		Bounce: true,
		Body: jetton.TransferBody(queryID, jetton.Transfer{
			Amount:              amount,
			Destination:         to,
			ResponseDestination: to,
		}),
	})
}

func logOrder(ctx *chain.Context, event string, o *Order, queryID uint64) {
	ctx.Logger().Info(event,
		zap.Uint64("query_id", queryID),
		zap.Uint32("order_id", o.ID),
		zap.Stringer("from", o.From),
		zap.String("from_left", o.FromAmountLeft.Dec()),
		zap.Stringer("to", o.To),
		zap.String("to_amount", o.ToAmount.Dec()))
}

func logFill(ctx *chain.Context, o *Order, f Fill, executor common.Address, queryID uint64) {
	ctx.Logger().Info("order_filled",
		zap.Uint64("query_id", queryID),
		zap.Uint32("order_id", o.ID),
		zap.String("executor", executor.Hex()),
		zap.String("accepted", f.Accepted.Dec()),
		zap.String("released", f.Release.Dec()),
		zap.String("refund", f.Refund.Dec()),
		zap.String("from_left", o.FromAmountLeft.Dec()),
		zap.Bool("complete", f.Complete))
}
