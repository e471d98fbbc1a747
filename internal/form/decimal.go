package form

import (
	"strconv"
	"strings"
	"unicode"
)

var currencyPrefixes = []string{"R$", "US$", "$", "€"}

// NormalizeDecimal keeps the digits of s and a single decimal separator,
// written as '.'. When s contains both ',' and '.', the last one is the
// decimal separator; "1.234,56" becomes "1234.56" and "29,90" becomes "29.90".
func NormalizeDecimal(s string) string {
	s = strings.TrimSpace(s)
	sep := strings.LastIndexAny(s, ".,")
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case i == sep:
			b.WriteByte('.')
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "-" || out == "." || out == "-." {
		return ""
	}
	return out
}

// ParseDecimal parses free-text numeric input. Anything unparseable is 0.
func ParseDecimal(s string) float64 {
	v, err := strconv.ParseFloat(NormalizeDecimal(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseDecimalStrict is ParseDecimal that rejects input carrying letters or
// no digits at all. A leading currency symbol is accepted.
func ParseDecimalStrict(s string) (float64, error) {
	raw := strings.TrimSpace(s)
	for _, prefix := range currencyPrefixes {
		if strings.HasPrefix(raw, prefix) {
			raw = strings.TrimSpace(strings.TrimPrefix(raw, prefix))
			break
		}
	}
	for _, r := range raw {
		if unicode.IsLetter(r) {
			return 0, strconv.ErrSyntax
		}
	}
	norm := NormalizeDecimal(raw)
	if norm == "" {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseFloat(norm, 64)
}

func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
