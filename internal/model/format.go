package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const ratioScale = 18

var q128 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 128), 0)

// FormatAmount renders a raw token amount or rate with the token's decimals.
func FormatAmount(value *big.Int, decimals int32) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -decimals).String()
}

// FormatFixed renders a Q128.128 value as a decimal fraction.
func FormatFixed(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, 0).DivRound(q128, ratioScale).String()
}

// ParseFixed converts a decimal fraction such as "0.003" into Q128.128.
func ParseFixed(input string) (*big.Int, error) {
	d, err := decimal.NewFromString(input)
	if err != nil {
		return nil, err
	}
	return d.Mul(q128).BigInt(), nil
}
