// Package fixedpoint 链上 18 位定点整数与 decimal 之间的换算
package fixedpoint

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals 合约中价格、数量、保证金统一的定点精度
const Decimals = 18

var one = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// One 返回 1e18
func One() *big.Int {
	return new(big.Int).Set(one)
}

// ToDecimal nil 视为 0
func ToDecimal(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -Decimals)
}

// FromDecimal 超出 18 位的小数部分直接截断
func FromDecimal(d decimal.Decimal) *big.Int {
	return d.Shift(Decimals).BigInt()
}

// Parse 把 "1234.5" 这样的十进制字符串转成 wei
func Parse(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse fixed-point %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

func MustParse(s string) *big.Int {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func Format(v *big.Int, places int32) string {
	return ToDecimal(v).StringFixed(places)
}

// ScaleExpo 预言机尾数加十进制指数换算为 wei：price * 10^(18+expo)
func ScaleExpo(price *big.Int, expo int32) *big.Int {
	shift := int64(Decimals) + int64(expo)
	if shift >= 0 {
		return new(big.Int).Mul(price, new(big.Int).Exp(big.NewInt(10), big.NewInt(shift), nil))
	}
	return new(big.Int).Quo(price, new(big.Int).Exp(big.NewInt(10), big.NewInt(-shift), nil))
}

// Abs 返回新值
func Abs(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Abs(v)
}

// OrZero nil 时返回新的 0
func OrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
