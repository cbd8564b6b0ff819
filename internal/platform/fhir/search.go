package fhir

import (
	"strings"
)

// SearchPrefix represents a FHIR search prefix for ordered values.
type SearchPrefix string

const (
	PrefixEq SearchPrefix = "eq"
	PrefixNe SearchPrefix = "ne"
	PrefixLt SearchPrefix = "lt"
	PrefixGt SearchPrefix = "gt"
	PrefixLe SearchPrefix = "le"
	PrefixGe SearchPrefix = "ge"
	PrefixSa SearchPrefix = "sa" // starts after
	PrefixEb SearchPrefix = "eb" // ends before
	PrefixAp SearchPrefix = "ap" // approximately
)

// prefixTable is scanned in declaration order and the first literal the
// lower-cased value starts with wins. Keep new prefixes appended at the end.
var prefixTable = [...]SearchPrefix{
	PrefixEq,
	PrefixNe,
	PrefixLt,
	PrefixGt,
	PrefixLe,
	PrefixGe,
	PrefixSa,
	PrefixEb,
	PrefixAp,
}

var prefixDescriptions = map[SearchPrefix]string{
	PrefixEq: "equal",
	PrefixNe: "not equal",
	PrefixLt: "less than",
	PrefixGt: "greater than",
	PrefixLe: "less or equal",
	PrefixGe: "greater or equal",
	PrefixSa: "starts after",
	PrefixEb: "ends before",
	PrefixAp: "approximately",
}

// Description returns a human readable name for the prefix.
func (p SearchPrefix) Description() string {
	if d, ok := prefixDescriptions[p]; ok {
		return d
	}
	return "unknown"
}

// ParsedSearch holds a parsed search parameter value with its prefix.
type ParsedSearch struct {
	Prefix SearchPrefix
	Value  string
}

// ParseSearchValue extracts the prefix from a FHIR search value.
// Examples: "gt2023-01-01" -> (gt, "2023-01-01"), "2023" -> (eq, "2023"), "GE2010" -> (ge, "2010")
func ParseSearchValue(raw string) ParsedSearch {
	lower := strings.ToLower(raw)
	for _, prefix := range prefixTable {
		if strings.HasPrefix(lower, string(prefix)) {
			return ParsedSearch{Prefix: prefix, Value: raw[len(prefix):]}
		}
	}
	return ParsedSearch{Prefix: PrefixEq, Value: raw}
}

// ParseSearchPrefix is ParseSearchValue returning the prefix and the
// remaining literal separately.
func ParseSearchPrefix(raw string) (SearchPrefix, string) {
	ps := ParseSearchValue(raw)
	return ps.Prefix, ps.Value
}
