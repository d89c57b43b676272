package pipeline

import (
	"strings"

	"github.com/roofsignal/permit-ingest/internal/model"
)

// Normalizer finishes a connector-shaped permit: parses the raw address,
// computes the fingerprint, and classifies the record. Connectors fill in the
// portal-specific fields and then hand every record through Finish.
type Normalizer struct {
	classifier *Classifier
}

// NewNormalizer creates a Normalizer around the compiled rule set.
func NewNormalizer(classifier *Classifier) *Normalizer {
	return &Normalizer{classifier: classifier}
}

// Finish completes normalization of p in place. defaultState is applied only
// when the parser finds no state component; sources configure it explicitly.
func (n *Normalizer) Finish(p *model.Permit, defaultState string) {
	p.Address = ParseAddress(p.RawAddress)
	if p.Address.State == "" && defaultState != "" {
		p.Address.State = strings.ToUpper(strings.TrimSpace(defaultState))
	}

	p.Fingerprint = Fingerprint(p.Address, p.ParcelID, p.IssueDate, p.PermitType)
	p.IsRoofing = n.classifier.IsRoofing(p.PermitType, p.WorkDescription)
}
