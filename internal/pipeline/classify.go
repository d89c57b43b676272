package pipeline

import "strings"

// Classifier labels permits as roofing work from the immutable rule set.
// IsRoofing is a pure function of (permit type, work description): the same
// inputs always produce the same label.
type Classifier struct {
	rules RoofingRules

	exact    map[string]bool
	partials []string
	tokens   []string
}

// NewClassifier compiles the rule document into lookup form.
func NewClassifier(rules RoofingRules) *Classifier {
	c := &Classifier{rules: rules}

	c.exact = make(map[string]bool, len(rules.PermitTypes.ExactMatches))
	for _, m := range rules.PermitTypes.ExactMatches {
		c.exact[c.fold(strings.TrimSpace(m))] = true
	}
	for _, m := range rules.PermitTypes.PartialMatches {
		if m = strings.TrimSpace(m); m != "" {
			c.partials = append(c.partials, c.fold(m))
		}
	}

	// Token lists are matched as distinct substrings; duplicates across the
	// three lists collapse so they cannot double-count.
	seen := make(map[string]bool)
	for _, list := range [][]string{
		rules.WorkDescriptionTokens.Primary,
		rules.WorkDescriptionTokens.Materials,
		rules.WorkDescriptionTokens.Actions,
	} {
		for _, tok := range list {
			tok = c.fold(strings.TrimSpace(tok))
			if tok == "" || seen[tok] {
				continue
			}
			seen[tok] = true
			c.tokens = append(c.tokens, tok)
		}
	}
	return c
}

func (c *Classifier) fold(s string) string {
	if c.rules.CaseSensitive {
		return s
	}
	return strings.ToLower(s)
}

func (c *Classifier) minMatches() int {
	if c.rules.MinTokenMatches <= 0 {
		return 1
	}
	return c.rules.MinTokenMatches
}

// IsRoofing reports whether the permit describes roofing work. Checks
// short-circuit in order: exact permit-type match, partial permit-type match,
// then distinct work-description token matches against the threshold.
// Empty inputs are fine; the function is total.
func (c *Classifier) IsRoofing(permitType, workDescription string) bool {
	pt := c.fold(strings.TrimSpace(permitType))
	if pt != "" {
		if c.exact[pt] {
			return true
		}
		for _, p := range c.partials {
			if strings.Contains(pt, p) {
				return true
			}
		}
	}

	desc := c.fold(workDescription)
	if desc == "" {
		return false
	}
	matches := 0
	for _, tok := range c.tokens {
		if strings.Contains(desc, tok) {
			matches++
			if matches >= c.minMatches() {
				return true
			}
		}
	}
	return false
}
