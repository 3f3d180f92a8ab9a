package swap

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/chain"
)

// Order is a standing offer to swap FromAmount of From for ToAmount of To.
//
// ToAmountLeft tracks how much of the request is still unpaid. Releases
// are derived from the cumulative payment, so after any sequence of fills
//
//	FromAmountLeft == FromAmount - floor(FromAmount * paid / ToAmount)
//
// where paid = ToAmount - ToAmountLeft. The price never drifts and paying
// the full ToAmount always empties the escrow.
type Order struct {
	ID             uint32       `json:"id"`
	From           Asset        `json:"from"`
	FromAmount     *uint256.Int `json:"fromAmount"`
	FromAmountLeft *uint256.Int `json:"fromAmountLeft"`
	To             Asset        `json:"to"`
	ToAmount       *uint256.Int `json:"toAmount"`
	ToAmountLeft   *uint256.Int `json:"toAmountLeft"`
}

// NewOrder validates the parameters of a fresh order.
func NewOrder(id uint32, from Asset, fromAmount *uint256.Int, to Asset, toAmount *uint256.Int) (*Order, error) {
	if fromAmount == nil || fromAmount.IsZero() {
		return nil, fmt.Errorf("%w: zero fromAmount", ErrInvalidOrder)
	}
	if toAmount == nil || toAmount.IsZero() {
		return nil, fmt.Errorf("%w: zero toAmount", ErrInvalidOrder)
	}
	if from.IsNative() && to.IsNative() {
		return nil, fmt.Errorf("%w: native for native", ErrInvalidOrder)
	}
	if !to.IsNative() && to.Wallet == (common.Address{}) {
		return nil, fmt.Errorf("%w: missing counter-token wallet", ErrInvalidOrder)
	}
	if !from.IsNative() && !to.IsNative() && from.Wallet == to.Wallet {
		return nil, fmt.Errorf("%w: same token on both sides", ErrInvalidOrder)
	}
	return &Order{
		ID:             id,
		From:           from,
		FromAmount:     fromAmount.Clone(),
		FromAmountLeft: fromAmount.Clone(),
		To:             to,
		ToAmount:       toAmount.Clone(),
		ToAmountLeft:   toAmount.Clone(),
	}, nil
}

func (o *Order) Clone() *Order {
	cp := *o
	cp.FromAmount = o.FromAmount.Clone()
	cp.FromAmountLeft = o.FromAmountLeft.Clone()
	cp.ToAmount = o.ToAmount.Clone()
	cp.ToAmountLeft = o.ToAmountLeft.Clone()
	return &cp
}

// Filled reports whether nothing is left in escrow.
func (o *Order) Filled() bool { return o.FromAmountLeft.IsZero() }

// Fill is the outcome of applying one payment to an order.
type Fill struct {
	Accepted *uint256.Int // forwarded to the creator
	Release  *uint256.Int // escrow sent to the executor
	Refund   *uint256.Int // overpayment returned to the executor
	Complete bool
}

// Quote computes the fill a payment would produce without mutating the order.
func (o *Order) Quote(payment *uint256.Int) (Fill, error) {
	if payment == nil || payment.IsZero() {
		return Fill{}, ErrZeroAmount
	}
	accepted := chain.Min(payment, o.ToAmountLeft)
	paidAfter := new(uint256.Int).Sub(o.ToAmount, o.ToAmountLeft)
	paidAfter.Add(paidAfter, accepted)

	target, overflow := new(uint256.Int).MulDivOverflow(o.FromAmount, paidAfter, o.ToAmount)
	if overflow {
		return Fill{}, fmt.Errorf("%w: release overflows", ErrInvalidOrder)
	}
	releasedBefore := new(uint256.Int).Sub(o.FromAmount, o.FromAmountLeft)
	release := chain.SatSub(target, releasedBefore)

	complete := accepted.Eq(o.ToAmountLeft)
	if complete {
		release = o.FromAmountLeft.Clone()
	}
	if release.Gt(o.FromAmountLeft) {
		release = o.FromAmountLeft.Clone()
	}
	return Fill{
		Accepted: accepted,
		Release:  release,
		Refund:   new(uint256.Int).Sub(payment, accepted),
		Complete: complete,
	}, nil
}

// Apply commits a quoted fill.
func (o *Order) Apply(f Fill) {
	o.FromAmountLeft.Sub(o.FromAmountLeft, f.Release)
	o.ToAmountLeft.Sub(o.ToAmountLeft, f.Accepted)
}
