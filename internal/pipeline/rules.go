// Package pipeline shapes raw portal rows into normalized permits: address
// parsing, fingerprint computation, and rule-driven roofing classification.
package pipeline

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// RoofingRules is the rule document driving the classifier. Loaded once at
// startup and immutable for the life of the process.
type RoofingRules struct {
	PermitTypes struct {
		ExactMatches   []string `yaml:"exact_matches"`
		PartialMatches []string `yaml:"partial_matches"`
	} `yaml:"permit_types"`
	WorkDescriptionTokens struct {
		Primary   []string `yaml:"primary"`
		Materials []string `yaml:"materials"`
		Actions   []string `yaml:"actions"`
	} `yaml:"work_description_tokens"`
	MinTokenMatches int  `yaml:"min_token_matches"`
	CaseSensitive   bool `yaml:"case_sensitive"`
}

// DefaultRules returns the rule set used when no rules file is configured.
func DefaultRules() RoofingRules {
	var r RoofingRules
	r.PermitTypes.ExactMatches = []string{
		"Re-Roof", "Reroof", "Roofing", "Roof Replacement", "Residential Reroof",
		"Commercial Reroof", "Roof",
	}
	r.PermitTypes.PartialMatches = []string{"roof"}
	r.WorkDescriptionTokens.Primary = []string{
		"roof", "reroof", "re-roof", "roofing",
	}
	r.WorkDescriptionTokens.Materials = []string{
		"shingle", "shingles", "tpo", "epdm", "torch down", "built-up",
		"asphalt", "composition", "tile roof", "metal roof", "membrane",
	}
	r.WorkDescriptionTokens.Actions = []string{
		"tear off", "tear-off", "overlay", "recover", "replace roof",
	}
	r.MinTokenMatches = 1
	return r
}

// LoadRules reads the YAML rules document from path. A missing or empty path
// falls back to DefaultRules.
func LoadRules(path string) (RoofingRules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRules(), nil
		}
		return RoofingRules{}, eris.Wrapf(err, "pipeline: read rules %s", path)
	}

	var r RoofingRules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return RoofingRules{}, eris.Wrapf(err, "pipeline: parse rules %s", path)
	}
	if r.MinTokenMatches <= 0 {
		r.MinTokenMatches = 1
	}
	return r, nil
}
