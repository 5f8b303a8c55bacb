package classify

import (
	"fmt"

	"wasteiq/api/internal/waste"
)

// Policy holds the confidence thresholds of the pipeline, all on 0..100.
type Policy struct {
	UnidentifiedBelow float64 // remote answers below this are "Unable to identify object"
	VagueRetryBelow   float64 // remote answers below this are asked again
	FuzzyCutoff       float64 // minimum WRatio for a fuzzy label match
}

func DefaultPolicy() Policy {
	return Policy{UnidentifiedBelow: 40, VagueRetryBelow: 60, FuzzyCutoff: 75}
}

func (p Policy) Validate() error {
	for name, v := range map[string]float64{
		"unidentified_below": p.UnidentifiedBelow,
		"vague_retry_below":  p.VagueRetryBelow,
		"fuzzy_cutoff":       p.FuzzyCutoff,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("classify: %s=%v out of range [0,100]", name, v)
		}
	}
	// the detector and mapper read 0 as "use the default"
	if p.VagueRetryBelow == 0 {
		return fmt.Errorf("classify: vague_retry_below must be above 0")
	}
	if p.FuzzyCutoff == 0 {
		return fmt.Errorf("classify: fuzzy_cutoff must be above 0")
	}
	return nil
}

// ApplyRemotePolicy turns an accepted remote candidate into a result.
// Low-confidence or empty answers become the unidentified record with the
// confidence kept; otherwise mapCat picks the category.
func (p Policy) ApplyRemotePolicy(c waste.Candidate, mapCat func(label string) waste.Category) waste.Result {
	if c.Label == "" || c.Confidence < p.UnidentifiedBelow {
		return waste.NewResult(waste.UnidentifiedName, waste.General, c.Confidence, nil, waste.ModeRemote)
	}
	return waste.NewResult(c.Label, mapCat(c.Label), c.Confidence, nil, waste.ModeRemote)
}
