package models

import (
	"database/sql/driver"
	"fmt"
	"math/big"
)

// BigInt u256 / i256 列，以十进制字符串存储（超过 DECIMAL(65) 的范围）
type BigInt struct {
	V *big.Int
}

func NewBigInt(v *big.Int) BigInt {
	if v == nil {
		return BigInt{V: new(big.Int)}
	}
	return BigInt{V: new(big.Int).Set(v)}
}

// Big 返回副本，空值为 0
func (b BigInt) Big() *big.Int {
	if b.V == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(b.V)
}

func (b BigInt) String() string {
	if b.V == nil {
		return "0"
	}
	return b.V.String()
}

func (BigInt) GormDataType() string {
	return "string"
}

// Value 实现 driver.Valuer
func (b BigInt) Value() (driver.Value, error) {
	return b.String(), nil
}

// Scan 实现 sql.Scanner
func (b *BigInt) Scan(value any) error {
	var s string
	switch v := value.(type) {
	case nil:
		b.V = new(big.Int)
		return nil
	case []byte:
		s = string(v)
	case string:
		s = v
	case int64:
		b.V = big.NewInt(v)
		return nil
	default:
		return fmt.Errorf("scan BigInt: unsupported type %T", value)
	}

	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("scan BigInt: invalid integer %q", s)
	}
	b.V = n
	return nil
}

func (b BigInt) MarshalJSON() ([]byte, error) {
	return []byte(`"` + b.String() + `"`), nil
}
