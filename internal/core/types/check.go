package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Check is a boolean stored by the ERP framework as 0/1.
// JSON encodes as 0/1 and decodes from 0/1, "0"/"1" or true/false.
type Check bool

// MarshalJSON encodes Check as 0 or 1.
func (c Check) MarshalJSON() ([]byte, error) {
	if c {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// UnmarshalJSON accepts numbers, numeric strings and booleans.
func (c *Check) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = false
		return nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	b, err := ToBool(v)
	if err != nil {
		return err
	}
	*c = Check(b)
	return nil
}

// RowRef is a 1-based reference to another row of the same child table.
// The framework serializes it as a string ("1"); zero means unset.
type RowRef int

// MarshalJSON encodes RowRef as a string, empty when unset.
func (r RowRef) MarshalJSON() ([]byte, error) {
	if r == 0 {
		return []byte(`""`), nil
	}
	return []byte(strconv.Quote(strconv.Itoa(int(r)))), nil
}

// UnmarshalJSON accepts a number or numeric string.
func (r *RowRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = 0
		return nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	i, err := ToInt(v)
	if err != nil {
		return fmt.Errorf("invalid row reference: %w", err)
	}
	*r = RowRef(i)
	return nil
}

// RateMap maps an account (or row name) to a decimal value.
// The framework stores these maps as a JSON-encoded string inside the row
// (e.g. item_tax_rate = "{\"VAT - C\": 5}"); both that form and a plain
// JSON object are accepted. It always marshals as the string form.
type RateMap map[string]decimal.Decimal

// MarshalJSON encodes the map as a JSON string holding a JSON object.
func (m RateMap) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte(`""`), nil
	}
	plain := make(map[string]json.Number, len(m))
	for k, v := range m {
		plain[k] = json.Number(v.String())
	}
	inner, err := json.Marshal(plain)
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(inner))
}

// UnmarshalJSON accepts a JSON object or a string containing one.
func (m *RateMap) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*m = nil
			return nil
		}
		data = []byte(s)
	}
	parsed, err := ParseRateMap(data)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseRateMap decodes a JSON object of numbers (or numeric strings).
func ParseRateMap(data []byte) (RateMap, error) {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode rate map: %w", err)
	}
	out := make(RateMap, len(raw))
	for k, v := range raw {
		d, err := ToDecimal(v)
		if err != nil {
			return nil, fmt.Errorf("rate map key %q: %w", k, err)
		}
		out[k] = d
	}
	return out, nil
}

// Clone returns a copy of the map.
func (m RateMap) Clone() RateMap {
	if m == nil {
		return nil
	}
	out := make(RateMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Sum adds up all values.
func (m RateMap) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, v := range m {
		total = total.Add(v)
	}
	return total
}
