package pipeline

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roofsignal/permit-ingest/internal/model"
)

var (
	houseNumberRe = regexp.MustCompile(`^(\d+)\s+(.*)$`)
	stateRe       = regexp.MustCompile(`\b([A-Z]{2})\b`)
	zipRe         = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b`)
)

// ParseAddress splits a raw street address into its components. It is a
// deliberately simple comma-splitter, not a general address parser: the first
// component yields house number and street, the second the city, and the last
// is scanned for a two-letter state abbreviation and a ZIP code. Absent
// pieces stay empty.
func ParseAddress(raw string) model.ParsedAddress {
	var addr model.ParsedAddress

	raw = strings.TrimSpace(norm.NFKC.String(raw))
	if raw == "" {
		return addr
	}

	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	first := parts[0]
	if m := houseNumberRe.FindStringSubmatch(first); m != nil {
		addr.HouseNumber = m[1]
		addr.Street = strings.TrimSpace(m[2])
	} else {
		addr.Street = first
	}

	if len(parts) > 1 && parts[1] != "" {
		addr.City = parts[1]
	}

	if len(parts) > 2 {
		last := parts[len(parts)-1]
		if m := stateRe.FindStringSubmatch(last); m != nil {
			addr.State = m[1]
		}
		if m := zipRe.FindStringSubmatch(last); m != nil {
			addr.Zip = m[1]
		}
	}

	return addr
}
