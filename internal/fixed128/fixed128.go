// Package fixed128 implements the signed fixed-point decimal type used for
// every BRC-20 amount (balances, limits, max supply). It mirrors the
// decimal semantics of the indexed token protocol: 18 fractional digits,
// integer-scale range at least [-u64::MAX, +u64::MAX].
package fixed128

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

// Decimals is the fixed number of fractional digits the internal
// representation always carries, matching the protocol's maximum `dec`.
const Decimals = 18

var pow10_18 = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// MaxUint64Scaled is u64::MAX represented at integer scale (18 fractional
// zero digits), the upper bound the protocol allows for any amount.
var MaxUint64Scaled = new(big.Int).Mul(new(big.Int).SetUint64(^uint64(0)), pow10_18)

// Fixed128 is a signed fixed-point number with exactly Decimals fractional
// digits stored internally as a big.Int mantissa (value * 10^18).
type Fixed128 struct {
	mantissa *big.Int
}

// Zero is the additive identity.
var Zero = Fixed128{mantissa: big.NewInt(0)}

// FromUint64 builds a Fixed128 representing the integer n.
func FromUint64(n uint64) Fixed128 {
	m := new(big.Int).Mul(new(big.Int).SetUint64(n), pow10_18)
	return Fixed128{mantissa: m}
}

// FromMantissa builds a Fixed128 directly from a scaled mantissa (value *
// 10^18). Used by the store codec to round-trip persisted values.
func FromMantissa(m *big.Int) Fixed128 {
	return Fixed128{mantissa: new(big.Int).Set(m)}
}

// Mantissa returns the scaled integer mantissa (value * 10^18).
func (f Fixed128) Mantissa() *big.Int {
	return new(big.Int).Set(f.mantissa)
}

// Parse validates and parses a BRC-20 decimal string under the protocol's
// strict rules: no sign prefix, no leading/trailing '.' or whitespace, at
// most 18 fractional digits, only ASCII digits and at most one '.', and the
// resulting value must not exceed u64::MAX at integer scale.
func Parse(s string) (Fixed128, error) {
	if s == "" {
		return Fixed128{}, errors.New("decimal: empty")
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Fixed128{}, errors.New("decimal: value cannot start with + or -")
	}
	if strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
		return Fixed128{}, errors.New("decimal: value cannot start or end with .")
	}
	if strings.ContainsAny(s, " \t\n\r") {
		return Fixed128{}, errors.New("decimal: value cannot contain spaces")
	}

	intPart := s
	fracPart := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart = s[:idx]
		fracPart = s[idx+1:]
		if strings.IndexByte(fracPart, '.') >= 0 {
			return Fixed128{}, errors.New("decimal: multiple '.'")
		}
	}
	if len(fracPart) > Decimals {
		return Fixed128{}, errors.New("decimal: overflow from too many digits")
	}
	if intPart == "" {
		return Fixed128{}, errors.New("decimal: empty integer part")
	}
	for _, c := range intPart + fracPart {
		if c < '0' || c > '9' {
			return Fixed128{}, errors.New("decimal: invalid digit found in string")
		}
	}

	padded := fracPart + strings.Repeat("0", Decimals-len(fracPart))
	digits := strings.TrimLeft(intPart, "0") + padded
	if digits == "" {
		digits = "0"
	}
	// Recombine as intPart.padded so the mantissa parses as a single integer.
	mantissaStr := strings.TrimLeft(intPart, "0")
	if mantissaStr == "" {
		mantissaStr = "0"
	}
	mantissaStr += padded

	m, ok := new(big.Int).SetString(mantissaStr, 10)
	if !ok {
		return Fixed128{}, errors.New("decimal: invalid digit found in string")
	}

	if m.Cmp(MaxUint64Scaled) > 0 {
		return Fixed128{}, errors.New("decimal: value is too large")
	}

	return Fixed128{mantissa: m}, nil
}

// String renders the value in canonical decimal form, trimming trailing
// fractional zeros (but keeping at least one integer digit).
func (f Fixed128) String() string {
	m := f.mantissa
	neg := m.Sign() < 0
	abs := new(big.Int).Abs(m)

	s := abs.String()
	for len(s) <= Decimals {
		s = "0" + s
	}
	intPart := s[:len(s)-Decimals]
	fracPart := strings.TrimRight(s[len(s)-Decimals:], "0")

	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	}
	if neg && abs.Sign() != 0 {
		out = "-" + out
	}
	return out
}

// Scale returns the number of significant fractional digits actually used
// by the value (trailing zeros beyond the first non-zero dropped), i.e. the
// minimal `dec` that could represent this amount exactly.
func (f Fixed128) Scale() uint8 {
	abs := new(big.Int).Abs(f.mantissa)
	if abs.Sign() == 0 {
		return 0
	}
	s := abs.String()
	for len(s) <= Decimals {
		s = "0" + s
	}
	frac := s[len(s)-Decimals:]
	trimmed := strings.TrimRight(frac, "0")
	return uint8(len(trimmed))
}

// IsZero reports whether the value is exactly zero.
func (f Fixed128) IsZero() bool {
	return f.mantissa.Sign() == 0
}

// Sign returns -1, 0, or 1.
func (f Fixed128) Sign() int {
	return f.mantissa.Sign()
}

// Add returns f + g.
func (f Fixed128) Add(g Fixed128) Fixed128 {
	return Fixed128{mantissa: new(big.Int).Add(f.mantissa, g.mantissa)}
}

// Sub returns f - g.
func (f Fixed128) Sub(g Fixed128) Fixed128 {
	return Fixed128{mantissa: new(big.Int).Sub(f.mantissa, g.mantissa)}
}

// Cmp compares f to g: -1, 0, or 1.
func (f Fixed128) Cmp(g Fixed128) int {
	return f.mantissa.Cmp(g.mantissa)
}

// GreaterThan reports whether f > g.
func (f Fixed128) GreaterThan(g Fixed128) bool { return f.Cmp(g) > 0 }

// LessThan reports whether f < g.
func (f Fixed128) LessThan(g Fixed128) bool { return f.Cmp(g) < 0 }

// Min returns the smaller of f and g.
func (f Fixed128) Min(g Fixed128) Fixed128 {
	if f.Cmp(g) <= 0 {
		return f
	}
	return g
}

// MarshalJSON renders the value as a JSON decimal string, matching the
// public History JSON shape (numbers are always quoted strings).
func (f Fixed128) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", f.String())), nil
}

// UnmarshalJSON parses a JSON decimal string.
func (f *Fixed128) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		s = string(data[1 : len(data)-1])
	} else {
		s = string(data)
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*f = v
	return nil
}
