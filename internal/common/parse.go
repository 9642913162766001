package common

import (
	"strconv"
	"strings"
)

// ParseUint64orHex parses a block number written in decimal or as 0x-prefixed hex.
// Surrounding whitespace is ignored; a nil input is zero.
func ParseUint64orHex(val *string) (uint64, error) {
	if val == nil {
		return 0, nil
	}

	str := strings.TrimSpace(*val)
	base := 10

	if len(str) > 1 && str[0] == '0' && (str[1] == 'x' || str[1] == 'X') {
		str = str[2:]
		base = 16
	}

	return strconv.ParseUint(str, base, 64)
}

// ToLowerWithTrim is the canonical form of addresses in participant lookups.
func ToLowerWithTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
