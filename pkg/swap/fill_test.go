package swap

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	tokenA = Token(common.HexToAddress("0xa0"), common.HexToAddress("0xa1"))
	tokenB = Token(common.HexToAddress("0xb0"), common.HexToAddress("0xb1"))
)

func u(n uint64) *uint256.Int { return uint256.NewInt(n) }

func mustOrder(t *testing.T, from Asset, fromAmt uint64, to Asset, toAmt uint64) *Order {
	t.Helper()
	o, err := NewOrder(1, from, u(fromAmt), to, u(toAmt))
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}
	return o
}

func fill(t *testing.T, o *Order, pay uint64) Fill {
	t.Helper()
	f, err := o.Quote(u(pay))
	if err != nil {
		t.Fatalf("Quote(%d): %v", pay, err)
	}
	o.Apply(f)
	return f
}

func TestQuarterFill(t *testing.T) {
	// 10 A for 20 B with 9 decimals; 5 B releases 2.5 A
	o := mustOrder(t, tokenA, 10e9, tokenB, 20e9)
	f := fill(t, o, 5e9)

	if f.Release.Uint64() != 2.5e9 || f.Accepted.Uint64() != 5e9 || !f.Refund.IsZero() {
		t.Fatalf("fill = release %s accepted %s refund %s", f.Release.Dec(), f.Accepted.Dec(), f.Refund.Dec())
	}
	if o.FromAmountLeft.Uint64() != 7.5e9 {
		t.Errorf("fromAmountLeft = %s, want 7.5e9", o.FromAmountLeft.Dec())
	}
	if f.Complete || o.Filled() {
		t.Error("order should stay open")
	}
}

func TestRepeatedFills(t *testing.T) {
	o := mustOrder(t, tokenA, 10e9, tokenB, 20e9)
	var released, accepted uint64
	for i := 0; i < 5; i++ {
		f := fill(t, o, 2e9)
		released += f.Release.Uint64()
		accepted += f.Accepted.Uint64()
	}
	if o.FromAmountLeft.Uint64() != 5e9 {
		t.Errorf("fromAmountLeft = %s, want 5e9", o.FromAmountLeft.Dec())
	}
	if released != 5e9 || accepted != 10e9 {
		t.Errorf("released %d accepted %d", released, accepted)
	}
}

func TestOverpaymentRefunded(t *testing.T) {
	o := mustOrder(t, tokenA, 10, tokenB, 20)
	f := fill(t, o, 25)
	if f.Accepted.Uint64() != 20 || f.Refund.Uint64() != 5 || f.Release.Uint64() != 10 {
		t.Fatalf("fill = %+v", f)
	}
	if !f.Complete || !o.Filled() || !o.ToAmountLeft.IsZero() {
		t.Error("order should be filled")
	}
}

func TestRoundingNeverDrifts(t *testing.T) {
	tests := []struct {
		name         string
		from, to     uint64
		maxPayment   uint64
		paymentCount int
	}{
		{"cheap token", 1e9, 3, 2, 10},
		{"expensive token", 3, 1e9, 1e8, 30},
		{"coprime", 7, 13, 5, 20},
		{"even", 10e9, 20e9, 3e9, 20},
	}
	rng := rand.New(rand.NewSource(42))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := mustOrder(t, tokenA, tt.from, tokenB, tt.to)
			var released, accepted uint64
			for i := 0; i < tt.paymentCount && !o.Filled(); i++ {
				f, err := o.Quote(u(1 + rng.Uint64()%tt.maxPayment))
				if err != nil {
					t.Fatal(err)
				}
				if f.Release.IsZero() {
					continue
				}
				o.Apply(f)
				released += f.Release.Uint64()
				accepted += f.Accepted.Uint64()

				paid := tt.to - o.ToAmountLeft.Uint64()
				want := new(uint256.Int).Sub(u(tt.from), new(uint256.Int).Div(new(uint256.Int).Mul(u(tt.from), u(paid)), u(tt.to)))
				if !o.FromAmountLeft.Eq(want) {
					t.Fatalf("after %d paid: fromLeft %s, want %s", paid, o.FromAmountLeft.Dec(), want.Dec())
				}
			}
			// pay the rest in one go
			if !o.Filled() {
				f := fill(t, o, o.ToAmountLeft.Uint64())
				released += f.Release.Uint64()
				accepted += f.Accepted.Uint64()
			}
			if released != tt.from || accepted != tt.to {
				t.Errorf("released %d of %d, accepted %d of %d", released, tt.from, accepted, tt.to)
			}
			if !o.ToAmountLeft.IsZero() || !o.FromAmountLeft.IsZero() {
				t.Error("order not emptied")
			}
		})
	}
}

func TestSmallPaymentReleasesNothing(t *testing.T) {
	// one unit of B is worth less than one unit of A
	o := mustOrder(t, tokenA, 3, tokenB, 1e9)
	if f := fill(t, o, 1); !f.Release.IsZero() || !f.Accepted.Eq(u(1)) {
		t.Fatalf("fill = release %s accepted %s, want 0 and 1", f.Release.Dec(), f.Accepted.Dec())
	}
	if o.FromAmountLeft.Uint64() != 3 || o.ToAmountLeft.Uint64() != 1e9-1 {
		t.Fatalf("left = %s/%s", o.FromAmountLeft.Dec(), o.ToAmountLeft.Dec())
	}
	// the withheld share is paid with the completing fill
	if f := fill(t, o, 1e9-1); f.Release.Uint64() != 3 {
		t.Errorf("release = %s, want 3", f.Release.Dec())
	}
}

func TestUnitPaymentsCatchUp(t *testing.T) {
	// 10 A for 20 B: every second unit of B releases one A
	o := mustOrder(t, tokenA, 10, tokenB, 20)
	for i := 1; i <= 20; i++ {
		f := fill(t, o, 1)
		want := uint64(1 - i%2)
		if f.Release.Uint64() != want {
			t.Fatalf("payment %d released %s, want %d", i, f.Release.Dec(), want)
		}
	}
	if !o.FromAmountLeft.IsZero() || !o.ToAmountLeft.IsZero() {
		t.Error("order not emptied")
	}
}

func TestQuoteZeroPayment(t *testing.T) {
	o := mustOrder(t, tokenA, 10, tokenB, 20)
	if _, err := o.Quote(new(uint256.Int)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("err = %v, want ErrZeroAmount", err)
	}
}

func TestNewOrderValidation(t *testing.T) {
	tests := []struct {
		name     string
		from, to Asset
		fa, ta   uint64
	}{
		{"zero from", tokenA, tokenB, 0, 1},
		{"zero to", tokenA, tokenB, 1, 0},
		{"native both sides", Native(), Native(), 1, 1},
		{"same wallet", tokenA, tokenA, 1, 1},
		{"missing counter wallet", Native(), Token(common.HexToAddress("0xb0"), common.Address{}), 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewOrder(1, tt.from, u(tt.fa), tt.to, u(tt.ta)); !errors.Is(err, ErrInvalidOrder) {
				t.Fatalf("err = %v, want ErrInvalidOrder", err)
			}
		})
	}
}
