package archive

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Int is an integer field that never fails to decode. Null, missing and
// unparseable values become 0, which the importing store treats as "assign a
// fresh id".
type Int int64

// UnmarshalJSON implements json.Unmarshaler.
func (i *Int) UnmarshalJSON(data []byte) error {
	*i = Int(parseLenientInt(data))
	return nil
}

func parseLenientInt(data []byte) int64 {
	raw := bytes.TrimSpace(data)
	if len(raw) > 1 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		raw = []byte(s)
	}
	if n, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
		return n
	}
	// Integral floats such as 12.0 or 1.7e12.
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}

// Float is a float field that decodes defects to 0.
type Float float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *Float) UnmarshalJSON(data []byte) error {
	v, ok := parseLenientFloat(data)
	if !ok {
		v = 0
	}
	*f = Float(v)
	return nil
}

// NullFloat is an optional float field. Null and unparseable values decode
// to "absent".
type NullFloat struct {
	Value float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *NullFloat) UnmarshalJSON(data []byte) error {
	f.Value, f.Valid = parseLenientFloat(data)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (f NullFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

func parseLenientFloat(data []byte) (float64, bool) {
	raw := bytes.TrimSpace(data)
	if len(raw) > 1 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		raw = []byte(s)
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
