package transform

import "strings"

// ValueType is the measure a wide-format charge column carries.
type ValueType string

const (
	NegotiatedPercentage ValueType = "negotiated_percentage"
	NegotiatedDollar     ValueType = "negotiated_dollar"
	EstimatedAmount      ValueType = "estimated_amount"
)

// valueTypes is matched in order; the first token found in a key wins.
var valueTypes = []ValueType{NegotiatedPercentage, NegotiatedDollar, EstimatedAmount}

// ChargeKey is a parsed wide-format charge column name.
type ChargeKey struct {
	Payer     string
	Plan      string // empty when the key has a single segment
	ValueType ValueType
}

// ParseChargeKey tokenizes a wide-format column name (with the
// "standard_charge|" prefix already removed). The value-type token may sit
// anywhere in the key; what remains, split on '|' with empty segments
// dropped, gives the payer and then the plan. ok is false when no token
// matches or no payer segment remains.
func ParseChargeKey(key string) (ChargeKey, bool) {
	vt, found := matchValueType(key)
	if !found {
		return ChargeKey{}, false
	}

	rest := strings.ReplaceAll(key, string(vt), "")
	var parts []string
	for _, p := range strings.Split(rest, "|") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ChargeKey{}, false
	}

	ck := ChargeKey{Payer: parts[0], ValueType: vt}
	if len(parts) > 1 {
		ck.Plan = parts[1]
	}
	return ck, true
}

func matchValueType(key string) (ValueType, bool) {
	for _, vt := range valueTypes {
		if strings.Contains(key, string(vt)) {
			return vt, true
		}
	}
	return "", false
}
