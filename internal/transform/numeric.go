package transform

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// parseFloat reads a price cell. Thousands separators and dollar signs are
// ignored; blank or unparseable cells are null.
func parseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(f) {
		return nil
	}
	return &f
}

// FlexibleFloat accepts a JSON number, a numeric string such as
// "24,945.00", or null.
type FlexibleFloat struct {
	Value *float64
}

func (f *FlexibleFloat) UnmarshalJSON(data []byte) error {
	if isJSONNull(data) {
		f.Value = nil
		return nil
	}
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		f.Value = &num
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		f.Value = parseFloat(str)
		return nil
	}
	f.Value = nil
	return nil
}

// FlexibleString accepts a JSON string or number. Billing codes show up as
// both.
type FlexibleString struct {
	Value *string
}

func (f *FlexibleString) UnmarshalJSON(data []byte) error {
	if isJSONNull(data) {
		f.Value = nil
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		f.Value = &str
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		s := num.String()
		f.Value = &s
		return nil
	}
	f.Value = nil
	return nil
}

// isJSONNull reports whether data is the literal null. json.Unmarshal
// treats null as a no-op, which would leave a zero value behind.
func isJSONNull(data []byte) bool {
	return string(bytes.TrimSpace(data)) == "null"
}
