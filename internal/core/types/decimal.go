// Package types provides common numeric types and value conversions.
package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// Hundred is the percentage base.
var Hundred = decimal.NewFromInt(100)

// One is the multiplicative identity, used for conversion rates.
var One = decimal.NewFromInt(1)

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// Flt rounds d to precision fractional digits (half away from zero).
func Flt(d decimal.Decimal, precision int32) decimal.Decimal {
	return d.Round(precision)
}

// Percent returns d × pct / 100.
func Percent(d, pct decimal.Decimal) decimal.Decimal {
	return d.Mul(pct).Div(Hundred)
}

// Fraction converts a percentage rate into a fraction (5 -> 0.05).
func Fraction(pct decimal.Decimal) decimal.Decimal {
	return pct.Div(Hundred)
}

// RoundToFraction rounds d to the nearest multiple of fraction
// (e.g. 0.05 for cash rounding, 1 for whole units).
// A zero or negative fraction leaves d unchanged.
func RoundToFraction(d, fraction decimal.Decimal) decimal.Decimal {
	if !fraction.IsPositive() {
		return d
	}
	return d.Div(fraction).Round(0).Mul(fraction)
}

// ToDecimal converts a loosely typed value (JSON number, string, Go numeric)
// into a decimal. Nil and empty strings convert to zero.
func ToDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return x, nil
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, nil
		}
		return *x, nil
	case json.Number:
		return decimal.NewFromString(x.String())
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(s)
	case float64:
		return decimal.NewFromFloat(x), nil
	case float32:
		return decimal.NewFromFloat32(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case int32:
		return decimal.NewFromInt32(x), nil
	case bool:
		if x {
			return One, nil
		}
		return decimal.Zero, nil
	}
	return decimal.Zero, fmt.Errorf("cannot convert %T to decimal", v)
}

// ToInt converts a loosely typed value into an int.
func ToInt(v any) (int, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		return int(x), nil
	case json.Number:
		i, err := x.Int64()
		return int(i), err
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, nil
		}
		return strconv.Atoi(s)
	case decimal.Decimal:
		return int(x.IntPart()), nil
	}
	return 0, fmt.Errorf("cannot convert %T to int", v)
}

// ToString converts a loosely typed value into a string.
func ToString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case fmt.Stringer:
		return x.String(), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	}
	return "", fmt.Errorf("cannot convert %T to string", v)
}

// ToBool converts frappe check values (0/1, "0"/"1", true/false) into a bool.
func ToBool(v any) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case Check:
		return bool(x), nil
	case string:
		switch strings.TrimSpace(strings.ToLower(x)) {
		case "", "0", "false", "no":
			return false, nil
		case "1", "true", "yes":
			return true, nil
		}
		return false, fmt.Errorf("invalid check value %q", x)
	}
	d, err := ToDecimal(v)
	if err != nil {
		return false, err
	}
	return !d.IsZero(), nil
}
