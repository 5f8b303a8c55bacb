package waste

import (
	"fmt"
	"math"
	"strings"
)

const (
	// UnidentifiedName is reported when the remote tier answers with too little confidence.
	UnidentifiedName = "Unable to identify object"
	// UnavailableName is reported when no tier produced an answer.
	UnavailableName = "Classification unavailable"

	MaxAlternatives = 3
	maxDiagnostic   = 120
)

// Mode tells which tier produced a Result.
type Mode string

const (
	ModeRemote Mode = "remote"
	ModeLocal  Mode = "local"
	ModeError  Mode = "error"
)

// Candidate is a raw detection: a free-form label with a 0..100 confidence.
type Candidate struct {
	Label      string  `json:"object_name"`
	Confidence float64 `json:"confidence"`
}

// NewCandidate trims the label and clamps confidence into [0,100]. NaN becomes 0.
func NewCandidate(label string, confidence float64) Candidate {
	return Candidate{Label: strings.TrimSpace(label), Confidence: clampConfidence(confidence)}
}

// Validate reports a Candidate that was built without NewCandidate.
func (c Candidate) Validate() error {
	if math.IsNaN(c.Confidence) || c.Confidence < 0 || c.Confidence > 100 {
		return fmt.Errorf("waste: confidence %v out of range [0,100]", c.Confidence)
	}
	return nil
}

// Alternative is a lower-ranked guess from the local tier.
type Alternative struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Result is the final answer for one image.
type Result struct {
	ObjectName   string        `json:"object_name"`
	Category     Category      `json:"waste_category"`
	Confidence   float64       `json:"confidence"`
	Instructions string        `json:"disposal_instructions"`
	Tip          string        `json:"recycling_tip"`
	BinColor     string        `json:"bin_color"`
	Alternatives []Alternative `json:"alternatives"`
	Mode         Mode          `json:"mode"`
	Error        string        `json:"error,omitempty"`
}

// NewResult fills the disposal guidance for cat and normalizes the numbers.
// Alternatives beyond MaxAlternatives are dropped.
func NewResult(objectName string, cat Category, confidence float64, alts []Alternative, mode Mode) Result {
	if !cat.Valid() {
		cat = General
	}
	a := AssignmentFor(cat)
	out := make([]Alternative, 0, MaxAlternatives)
	for _, alt := range alts {
		if len(out) == MaxAlternatives {
			break
		}
		out = append(out, Alternative{Name: alt.Name, Confidence: Round1(clampConfidence(alt.Confidence))})
	}
	return Result{
		ObjectName:   objectName,
		Category:     cat,
		Confidence:   Round1(clampConfidence(confidence)),
		Instructions: a.Instructions,
		Tip:          a.Tip,
		BinColor:     a.BinColor,
		Alternatives: out,
		Mode:         mode,
	}
}

// ErrorResult is the record returned when every tier failed.
// The diagnostic is cut to 120 characters.
func ErrorResult(diagnostic string) Result {
	r := NewResult(UnavailableName, General, 0, nil, ModeError)
	r.Error = truncate(diagnostic, maxDiagnostic)
	return r
}

// Round1 rounds v to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
