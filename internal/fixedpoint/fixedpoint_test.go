package fixedpoint

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 100, 1 << 40, ^uint64(0)} {
		x := uint256.NewInt(v)
		require.Equal(t, v, Decode(Encode(x)).Uint64())
	}
	require.True(t, EncodeUint64(1).Eq(One()))
}

func TestOneIsNotShared(t *testing.T) {
	a := One()
	a.SetUint64(7)
	require.False(t, One().Eq(a))
}

func TestDiv(t *testing.T) {
	ratio, err := Div(EncodeUint64(200), uint256.NewInt(100))
	require.NoError(t, err)
	require.True(t, ratio.Eq(EncodeUint64(2)))

	_, err = Div(EncodeUint64(1), uint256.NewInt(0))
	require.True(t, errors.Is(err, ErrDivisionByZero))
}

func TestHalfDecodeAndMul(t *testing.T) {
	half, err := Div(One(), uint256.NewInt(2))
	require.NoError(t, err)

	require.True(t, HalfDecode(One()).Eq(new(uint256.Int).Lsh(uint256.NewInt(1), 64)))
	require.True(t, Mul(EncodeUint64(3), half).Eq(mustDiv(t, EncodeUint64(3), 2)))
	require.True(t, Mul(One(), One()).Eq(One()))
}

func TestMulDiv(t *testing.T) {
	big1 := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	got, err := MulDiv(big1, big1, big1)
	require.NoError(t, err)
	require.True(t, got.Eq(big1))

	_, err = MulDiv(big1, big1, uint256.NewInt(1))
	require.True(t, errors.Is(err, ErrOverflow))

	_, err = MulDiv(big1, big1, new(uint256.Int))
	require.True(t, errors.Is(err, ErrDivisionByZero))
}

func TestDifferences(t *testing.T) {
	require.Equal(t, uint64(5), UnsignedDifference(uint256.NewInt(3), uint256.NewInt(8)).Uint64())
	require.Equal(t, uint64(5), UnsignedDifference(uint256.NewInt(8), uint256.NewInt(3)).Uint64())
	require.Equal(t, int64(11), SignedDifference(big.NewInt(-3), big.NewInt(8)).Int64())
	require.Equal(t, int64(11), SignedDifference(big.NewInt(8), big.NewInt(-3)).Int64())
}

func TestSaturatingSignedAdd(t *testing.T) {
	got, err := SaturatingSignedAdd(uint256.NewInt(10), big.NewInt(5))
	require.NoError(t, err)
	require.Equal(t, uint64(15), got.Uint64())

	got, err = SaturatingSignedAdd(uint256.NewInt(10), big.NewInt(-10))
	require.NoError(t, err)
	require.True(t, got.IsZero())

	_, err = SaturatingSignedAdd(uint256.NewInt(10), big.NewInt(-11))
	require.True(t, errors.Is(err, ErrUnderflow))

	max := new(uint256.Int).Not(uint256.NewInt(0))
	_, err = SaturatingSignedAdd(max, big.NewInt(1))
	require.True(t, errors.Is(err, ErrOverflow))
}

func TestCheckRate(t *testing.T) {
	require.NoError(t, CheckRate(new(big.Int).Set(maxRate)))
	require.NoError(t, CheckRate(new(big.Int).Set(minRate)))
	require.ErrorIs(t, CheckRate(new(big.Int).Add(maxRate, big.NewInt(1))), ErrRateOutOfRange)
	require.ErrorIs(t, CheckRate(nil), ErrRateOutOfRange)

	mag, err := Magnitude(big.NewInt(-42))
	require.NoError(t, err)
	require.Equal(t, uint64(42), mag.Uint64())
}

func mustDiv(t *testing.T, x *uint256.Int, d uint64) *uint256.Int {
	t.Helper()
	z, err := Div(x, uint256.NewInt(d))
	require.NoError(t, err)
	return z
}
