package validation

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Number is an optional numeric input. JSON numbers and numeric strings both
// set Value; anything else is kept in Raw so the "number" rule can report it.
type Number struct {
	Value *float64
	Raw   string
}

func NumberOf(f float64) Number { return Number{Value: &f} }

// ParseNumber reads a form value. Blank input is absent.
func ParseNumber(raw string) Number {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Number{}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Number{Raw: raw}
	}
	return Number{Value: &f}
}

func (n *Number) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*n = Number{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = ParseNumber(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = Number{Value: &f}
		return nil
	}
	*n = Number{Raw: raw}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if n.Value != nil {
		return json.Marshal(*n.Value)
	}
	if n.Raw != "" {
		return json.Marshal(n.Raw)
	}
	return []byte("null"), nil
}

// numberValue is what the validator sees for a Number: nil when absent, the
// float when valid, the raw text otherwise.
func numberValue(field reflect.Value) any {
	n, ok := field.Interface().(Number)
	if !ok {
		return nil
	}
	switch {
	case n.Value != nil:
		return *n.Value
	case n.Raw != "":
		return n.Raw
	}
	return nil
}
