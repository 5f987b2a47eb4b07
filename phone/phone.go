// Package phone turns loosely formatted phone values into dialable
// E.164 style strings.
package phone

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// DefaultCountryCode is prepended to bare 10 digit numbers.
const DefaultCountryCode = "+91"

const (
	minDigits = 10
	maxDigits = 15
)

type prefixRule struct {
	name  string
	match func(cleaned, digits string) bool
	apply func(cleaned, digits string) string
}

// prefixRules are tried in order and the first match wins.
var prefixRules = []prefixRule{
	{
		name:  "international",
		match: func(cleaned, _ string) bool { return strings.HasPrefix(cleaned, "+") },
		apply: func(cleaned, _ string) string { return cleaned },
	},
	{
		name:  "national",
		match: func(_, digits string) bool { return len(digits) == 10 },
		apply: func(_, digits string) string { return DefaultCountryCode + digits },
	},
	{
		name:  "nanp",
		match: func(_, digits string) bool { return len(digits) == 11 && digits[0] == '1' },
		apply: func(_, digits string) string { return "+" + digits },
	},
	{
		name:  "unprefixed",
		match: func(string, string) bool { return true },
		apply: func(cleaned, _ string) string { return cleaned },
	},
}

type Normalizer struct {
	logger *zap.Logger
}

func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize returns the dialable form of raw, or false when raw cannot be
// turned into a number of 10 to 15 digits.
func (n *Normalizer) Normalize(raw interface{}) (string, bool) {
	s, ok := toString(raw)
	if !ok {
		return "", false
	}

	cleaned := clean(s)
	if cleaned == "" {
		return "", false
	}

	digits := strings.TrimPrefix(cleaned, "+")
	var result string
	for _, r := range prefixRules {
		if !r.match(cleaned, digits) {
			continue
		}
		result = r.apply(cleaned, digits)
		if r.name == "unprefixed" {
			n.logger.Warn("unusual phone number format",
				zap.String("raw", s),
				zap.String("cleaned", cleaned))
		}
		break
	}

	if l := len(strings.TrimPrefix(result, "+")); l < minDigits || l > maxDigits {
		n.logger.Warn("invalid phone number length",
			zap.String("raw", s),
			zap.String("cleaned", result),
			zap.Int("digits", l))
		return "", false
	}
	return result, true
}

// clean keeps digits and a leading plus sign.
func clean(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	if b.String() == "+" {
		return ""
	}
	return b.String()
}

// toString converts numeric input to its integer text so that spreadsheet
// values such as 9876543210.0 do not pick up a decimal point.
func toString(raw interface{}) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		return v, v != ""
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		f, err := v.Float64()
		if err != nil {
			return "", false
		}
		return floatString(f)
	case float64:
		return floatString(v)
	case float32:
		return floatString(float64(v))
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case bool:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}

func floatString(f float64) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= 1e18 {
		return "", false
	}
	return strconv.FormatInt(int64(math.Trunc(f)), 10), true
}
