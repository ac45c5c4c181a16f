package entity

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Values is a loosely typed key/value map as returned by remote procedures
// (item details, price list rates, ...). It also maps to a JSONB column.
//
// Decoding uses json.Number so decimal values keep their precision.
type Values map[string]any

// DecodeValues decodes a JSON object into Values, preserving numeric precision.
func DecodeValues(data []byte) (Values, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var result map[string]any
	if err := decoder.Decode(&result); err != nil {
		return nil, fmt.Errorf("decode values: %w", err)
	}
	return result, nil
}

// Scan implements sql.Scanner for reading from PostgreSQL JSONB.
func (v *Values) Scan(src any) error {
	if src == nil {
		*v = nil
		return nil
	}

	var source []byte
	switch s := src.(type) {
	case []byte:
		source = s
	case string:
		source = []byte(s)
	default:
		return fmt.Errorf("unsupported type for Values: %T", src)
	}

	decoded, err := DecodeValues(source)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// Value implements driver.Valuer for writing to PostgreSQL JSONB.
func (v Values) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// GetString returns string value or empty string if not found/wrong type.
func (v Values) GetString(key string) string {
	if s, ok := v[key].(string); ok {
		return s
	}
	return ""
}

// GetDecimal returns decimal.Decimal value with full precision.
func (v Values) GetDecimal(key string) decimal.Decimal {
	switch x := v[key].(type) {
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case string:
		d, err := decimal.NewFromString(x)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(x)
	case decimal.Decimal:
		return x
	}
	return decimal.Zero
}

// Has checks if key exists (including nil values).
func (v Values) Has(key string) bool {
	_, ok := v[key]
	return ok
}

// Clone creates a shallow copy.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	result := make(Values, len(v))
	for k, val := range v {
		result[k] = val
	}
	return result
}
