package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// ErrRateOutOfRange is returned for flow rates outside the int96 range used by
// the streaming protocol.
var ErrRateOutOfRange = errors.New("fixedpoint: flow rate out of int96 range")

var (
	maxRate = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 95), big.NewInt(1))
	minRate = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 95))
)

// CheckRate verifies r fits in an int96.
func CheckRate(r *big.Int) error {
	if r == nil {
		return fmt.Errorf("nil rate: %w", ErrRateOutOfRange)
	}
	if r.Cmp(maxRate) > 0 || r.Cmp(minRate) < 0 {
		return fmt.Errorf("rate %s: %w", r, ErrRateOutOfRange)
	}
	return nil
}

// Magnitude returns |r| as a 256-bit word after range-checking r.
func Magnitude(r *big.Int) (*uint256.Int, error) {
	if err := CheckRate(r); err != nil {
		return nil, err
	}
	mag, _ := uint256.FromBig(new(big.Int).Abs(r))
	return mag, nil
}

// ToRate converts an unsigned word back to a signed flow rate.
func ToRate(x *uint256.Int) (*big.Int, error) {
	r := x.ToBig()
	if err := CheckRate(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Zero returns a fresh zero rate.
func Zero() *big.Int {
	return new(big.Int)
}
