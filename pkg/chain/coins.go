package chain

import "github.com/holiman/uint256"

// Nano is the smallest native unit; one coin is 1e9 nano.
const Nano uint64 = 1_000_000_000

// Coins returns n whole coins in nano units.
func Coins(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(Nano))
}

// Zero returns a fresh zero amount.
func Zero() *uint256.Int { return new(uint256.Int) }

// SatSub returns a-b, or zero when b > a.
func SatSub(a, b *uint256.Int) *uint256.Int {
	out, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return new(uint256.Int)
	}
	return out
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a.Clone()
	}
	return b.Clone()
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
