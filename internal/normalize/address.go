package normalize

import (
	"regexp"
	"strings"
)

// AddressParts is the best-effort structured breakdown of a street address.
// Any part may be empty; a failed breakdown never blocks ingestion.
type AddressParts struct {
	StreetNumber string
	Street       string
	Unit         string
	City         string
	State        string
	Zip          string
}

var (
	wsRe = regexp.MustCompile(`\s+`)

	// "12 Oak St", "12A Oak St Unit 3", "12 Oak St Apt B"
	streetRe = regexp.MustCompile(`^(?i)(\d+[a-z]?)\s+(.*?)(?:\s+(?:unit|apt|apt\.|#|ste|suite)\s*([\w-]+))?$`)
	stateRe  = regexp.MustCompile(`^(?i)([a-z]{2})\.?(?:\s+(\d{5})(?:-\d{4})?)?$`)
	zipRe    = regexp.MustCompile(`^\d{5}(?:-\d{4})?$`)
)

// NormalizeAddress lowercases and collapses whitespace. The result is the
// fallback identity key, so it must be stable across cosmetic reformats of
// the same source page.
func NormalizeAddress(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = wsRe.ReplaceAllString(s, " ")
	return s
}

// ParseAddress extracts a structured breakdown from a one-line address of
// the shape "12 Oak St, Newark, NJ 07102". It is best-effort by design:
// unparsable segments stay empty and the caller keeps ingesting.
func ParseAddress(raw string) AddressParts {
	var p AddressParts

	s := wsRe.ReplaceAllString(strings.TrimSpace(raw), " ")
	if s == "" {
		return p
	}

	segs := strings.Split(s, ",")
	for i := range segs {
		segs[i] = strings.TrimSpace(segs[i])
	}

	// Walk from the tail: zip, state (possibly "NJ 07102"), city.
	tail := len(segs) - 1
	if tail >= 1 && zipRe.MatchString(segs[tail]) {
		p.Zip = segs[tail]
		tail--
	}
	if tail >= 1 {
		if m := stateRe.FindStringSubmatch(segs[tail]); m != nil {
			p.State = strings.ToUpper(m[1])
			if m[2] != "" {
				p.Zip = m[2]
			}
			tail--
		}
	}
	if tail >= 1 {
		p.City = segs[tail]
		tail--
	}

	street := strings.Join(segs[:tail+1], ", ")
	if m := streetRe.FindStringSubmatch(street); m != nil {
		p.StreetNumber = m[1]
		p.Street = m[2]
		p.Unit = m[3]
	} else {
		p.Street = street
	}

	return p
}
