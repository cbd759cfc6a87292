// Package fixedpoint implements unsigned Q128.128 arithmetic on 256-bit words
// plus the signed/unsigned helpers used by the flow accounting.
package fixedpoint

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// Resolution is the number of fractional bits.
const Resolution = 128

var (
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
	ErrUnderflow      = errors.New("fixedpoint: unsigned underflow")
	ErrOverflow       = errors.New("fixedpoint: overflow")
)

var q128 = new(uint256.Int).Lsh(uint256.NewInt(1), Resolution)

// One returns a fresh copy of 1.0 (2^128).
func One() *uint256.Int {
	return new(uint256.Int).Set(q128)
}

// Encode lifts x into Q128.128. x must fit in 128 bits.
func Encode(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Lsh(x, Resolution)
}

// EncodeUint64 is Encode for small constants.
func EncodeUint64(x uint64) *uint256.Int {
	return Encode(uint256.NewInt(x))
}

// Div divides a fixed-point value by an unsigned integer.
func Div(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	return new(uint256.Int).Div(a, b), nil
}

// Decode projects a Q128.128 value down to its integer part.
func Decode(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Rsh(x, Resolution)
}

// HalfDecode drops half of the fractional bits. Two half-decoded Q128 values
// multiply into a Q128 value.
func HalfDecode(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Rsh(x, Resolution/2)
}

// Mul multiplies two Q128.128 values, wrapping on overflow like the
// cumulative accumulators it feeds.
func Mul(a, b *uint256.Int) *uint256.Int {
	return new(uint256.Int).Mul(HalfDecode(a), HalfDecode(b))
}

// MulDiv computes x*y/d with a 512-bit intermediate.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// UnsignedDifference returns |x - y|.
func UnsignedDifference(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return new(uint256.Int).Sub(y, x)
	}
	return new(uint256.Int).Sub(x, y)
}

// SignedDifference returns |x - y|.
func SignedDifference(x, y *big.Int) *big.Int {
	d := new(big.Int).Sub(x, y)
	return d.Abs(d)
}

// SaturatingSignedAdd applies a signed delta to an unsigned base. A negative
// delta whose magnitude exceeds base is reported as ErrUnderflow instead of
// wrapping.
func SaturatingSignedAdd(base *uint256.Int, delta *big.Int) (*uint256.Int, error) {
	mag, overflow := uint256.FromBig(new(big.Int).Abs(delta))
	if overflow {
		return nil, ErrOverflow
	}
	if delta.Sign() >= 0 {
		z, overflow := new(uint256.Int).AddOverflow(base, mag)
		if overflow {
			return nil, ErrOverflow
		}
		return z, nil
	}
	if mag.Gt(base) {
		return nil, ErrUnderflow
	}
	return new(uint256.Int).Sub(base, mag), nil
}
