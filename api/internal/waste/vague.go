package waste

import (
	"errors"
	"strings"
)

// VagueDetector spots answers like "dark smooth surface" that name a
// material instead of an object.
type VagueDetector struct {
	terms    map[string]struct{}
	phrases  []string
	minTerms int
}

func NewVagueDetector(terms, phrases []string, minTerms int) (*VagueDetector, error) {
	if minTerms < 1 {
		return nil, errors.New("waste: vague min_terms must be >= 1")
	}
	v := &VagueDetector{terms: make(map[string]struct{}, len(terms)), minTerms: minTerms}
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			v.terms[t] = struct{}{}
		}
	}
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			v.phrases = append(v.phrases, p)
		}
	}
	return v, nil
}

func (v *VagueDetector) IsVague(label string) bool {
	lower := strings.ToLower(label)
	seen := make(map[string]struct{})
	for _, w := range strings.Fields(lower) {
		if _, ok := v.terms[w]; ok {
			seen[w] = struct{}{}
		}
	}
	if len(seen) >= v.minTerms {
		return true
	}
	for _, p := range v.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
