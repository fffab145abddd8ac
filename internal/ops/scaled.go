package ops

import (
	"fmt"
	"strings"

	"main/internal/schema"
	"main/pkg/exception"
)

const maxInt64 = int64(^uint64(0) >> 1)

// ParseScaled converts a decimal string to a scaled integer exactly. Digits
// beyond the scale are rejected rather than rounded: a limit that cannot be
// represented on the wire must fail at load time.
func ParseScaled(s string, scale schema.Scale) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, exception.ErrConfigBadDecimal
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" && fracPart == "" {
		return 0, exception.ErrConfigBadDecimal
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > int(scale) {
		if strings.Trim(fracPart[scale:], "0") != "" {
			return 0, fmt.Errorf("%w: %q needs more than %d decimal places", exception.ErrConfigBadDecimal, s, scale)
		}
		fracPart = fracPart[:scale]
	}

	var value int64
	for _, ch := range []byte(intPart) {
		if ch < '0' || ch > '9' {
			return 0, exception.ErrConfigBadDecimal
		}
		digit := int64(ch - '0')
		if value > (maxInt64-digit)/10 {
			return 0, fmt.Errorf("%w: %q overflows", exception.ErrConfigBadDecimal, s)
		}
		value = value*10 + digit
	}
	for i := 0; i < int(scale); i++ {
		var digit int64
		if i < len(fracPart) {
			ch := fracPart[i]
			if ch < '0' || ch > '9' {
				return 0, exception.ErrConfigBadDecimal
			}
			digit = int64(ch - '0')
		}
		if value > (maxInt64-digit)/10 {
			return 0, fmt.Errorf("%w: %q overflows", exception.ErrConfigBadDecimal, s)
		}
		value = value*10 + digit
	}
	if neg {
		value = -value
	}
	return value, nil
}

// FormatScaled renders a scaled integer back to a decimal string.
func FormatScaled(v int64, scale schema.Scale) string {
	neg := v < 0
	if neg {
		v = -v
	}
	digits := fmt.Sprintf("%d", v)
	if int(scale) >= len(digits) {
		digits = strings.Repeat("0", int(scale)-len(digits)+1) + digits
	}
	cut := len(digits) - int(scale)
	out := digits[:cut]
	if scale > 0 {
		out += "." + digits[cut:]
	}
	if neg {
		out = "-" + out
	}
	return out
}
