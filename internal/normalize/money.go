package normalize

import (
	"fmt"
	"strconv"
	"strings"
)

// Placeholder values county sites print instead of a number.
var moneyPlaceholders = map[string]bool{
	"":    true,
	"n/a": true,
	"na":  true,
	"tbd": true,
	"-":   true,
	"—":   true,
}

// ParseMoney converts a raw monetary string into a float. It tolerates
// currency symbols, thousands separators, surrounding whitespace, and the
// usual placeholder spellings, which yield (0, false, nil): a null, not an
// error. A string that looks numeric but fails to parse is an error.
func ParseMoney(raw string) (float64, bool, error) {
	s := strings.TrimSpace(strings.ToLower(raw))
	if moneyPlaceholders[s] {
		return 0, false, nil
	}

	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	// "per lien" style suffixes after the number
	if i := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	}); i > 0 {
		s = s[:i]
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("unparsable money value %q", raw)
	}
	if v < 0 {
		return 0, false, fmt.Errorf("negative money value %q", raw)
	}
	return v, true, nil
}
