package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// BigInt wraps *big.Int so uint256 values survive JSON and YAML as decimal
// strings instead of lossy floats.
type BigInt struct {
	*big.Int
}

func NewBigInt(i *big.Int) *BigInt {
	if i == nil {
		return nil
	}
	return &BigInt{Int: new(big.Int).Set(i)}
}

func BigIntFromUint64(v uint64) *BigInt {
	return &BigInt{Int: new(big.Int).SetUint64(v)}
}

// ToBigInt returns a copy of the value, zero for nil.
func (b *BigInt) ToBigInt() *big.Int {
	if b == nil || b.Int == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(b.Int)
}

func (b *BigInt) String() string {
	if b == nil || b.Int == nil {
		return "0"
	}
	return b.Int.String()
}

func (b BigInt) MarshalJSON() ([]byte, error) {
	if b.Int == nil {
		return []byte(`"0"`), nil
	}
	return json.Marshal(b.Int.String())
}

// UnmarshalJSON accepts a decimal or 0x-hex string, or a bare JSON number.
func (b *BigInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		b.Int = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}
	return b.UnmarshalText([]byte(s))
}

func (b BigInt) MarshalText() ([]byte, error) {
	if b.Int == nil {
		return []byte("0"), nil
	}
	return []byte(b.Int.String()), nil
}

func (b *BigInt) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	i, ok := new(big.Int).SetString(s, base)
	if !ok {
		return fmt.Errorf("invalid integer %q", string(text))
	}
	if i.Sign() < 0 {
		return fmt.Errorf("negative value %q not allowed", string(text))
	}
	b.Int = i
	return nil
}

// Cmp treats nil as zero on both sides.
func (b *BigInt) Cmp(x *BigInt) int {
	return b.ToBigInt().Cmp(x.ToBigInt())
}

func (b *BigInt) Equal(x *BigInt) bool {
	return b.Cmp(x) == 0
}
