package pipeline

import (
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roofsignal/permit-ingest/internal/model"
)

func TestFingerprint_CaseAndTrimInsensitive(t *testing.T) {
	a := model.ParsedAddress{Street: "H Street", City: "Sacramento", State: "CA"}
	b := model.ParsedAddress{Street: "  h street ", City: "SACRAMENTO", State: "ca"}

	fpA := Fingerprint(a, "123", "2024-10-15", "Re-Roof")
	fpB := Fingerprint(b, " 123 ", " 2024-10-15 ", "re-roof")
	assert.Equal(t, fpA, fpB)
}

func TestFingerprint_DistinguishesComponents(t *testing.T) {
	addr := model.ParsedAddress{Street: "H Street", City: "Sacramento", State: "CA"}
	base := Fingerprint(addr, "", "2024-10-15", "Re-Roof")

	assert.NotEqual(t, base, Fingerprint(addr, "", "2024-10-16", "Re-Roof"))
	assert.NotEqual(t, base, Fingerprint(addr, "", "2024-10-15", "Demolition"))
	other := addr
	other.Street = "J Street"
	assert.NotEqual(t, base, Fingerprint(other, "", "2024-10-15", "Re-Roof"))
}

func TestFingerprint_AbsentComponentsAreEmpty(t *testing.T) {
	// All-absent input hashes the five separators alone.
	expected := fmt.Sprintf("%x", sha256.Sum256([]byte("|||||")))
	assert.Equal(t, expected, Fingerprint(model.ParsedAddress{}, "", "", ""))
}

func TestFingerprint_IsLowercaseHex(t *testing.T) {
	fp := Fingerprint(model.ParsedAddress{Street: "Main"}, "", "", "")
	assert.Len(t, fp, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", fp)
}
