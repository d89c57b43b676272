package pipeline

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/roofsignal/permit-ingest/internal/model"
)

// Fingerprint computes the deduplication key for a permit: SHA-256 over the
// "|"-joined sequence of lowered street and city, uppered state, parcel id,
// issue date, and uppered permit type, each trimmed, absent components
// contributing the empty string. Serialized as lowercase hex.
func Fingerprint(addr model.ParsedAddress, parcelID, issueDate, permitType string) string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(addr.Street)),
		strings.ToLower(strings.TrimSpace(addr.City)),
		strings.ToUpper(strings.TrimSpace(addr.State)),
		strings.TrimSpace(parcelID),
		strings.TrimSpace(issueDate),
		strings.ToUpper(strings.TrimSpace(permitType)),
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%x", h)
}
