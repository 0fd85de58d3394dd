package normalize

import (
	"fmt"
	"strings"
	"time"
)

// dateFormats are tried in order. County sites are wildly inconsistent;
// the common US spellings come first.
var dateFormats = []string{
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"Jan 02, 2006",
	"01/02/06",
}

// ParseDate converts a raw date string into a time. Placeholders yield
// (zero, false, nil); text matching no known format is an error.
func ParseDate(raw string) (time.Time, bool, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "n/a") || strings.EqualFold(s, "tbd") {
		return time.Time{}, false, nil
	}

	for _, f := range dateFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t, true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unparsable date value %q", raw)
}
