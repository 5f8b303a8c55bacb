package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"wasteiq/api/internal/util"
	"wasteiq/api/internal/waste"
)

// Engine is a vision provider that names the dominant object of a photo.
// Errors must be classified with ClassifyError (or StatusError).
type Engine interface {
	Name() string
	GetModel() string
	Detect(ctx context.Context, img []byte, mime, prompt string) (waste.Candidate, error)
}

// Engines is a registry of configured engines keyed by Name().
type Engines struct {
	def Engine
	m   sync.Map // name -> Engine
}

func NewEngines(def Engine, others ...Engine) *Engines {
	e := &Engines{def: def}
	if def != nil {
		e.m.Store(def.Name(), def)
	}
	for _, o := range others {
		if o != nil {
			e.m.Store(o.Name(), o)
		}
	}
	return e
}

// Get returns the engine registered under name, or the default one for "".
func (e *Engines) Get(name string) (Engine, error) {
	if name == "" {
		if e.def == nil {
			return nil, fmt.Errorf("detect: no default engine")
		}
		return e.def, nil
	}
	if v, ok := e.m.Load(strings.ToLower(name)); ok {
		return v.(Engine), nil
	}
	return nil, fmt.Errorf("detect: unknown engine %q", name)
}

func (e *Engines) Default() Engine { return e.def }

// flexFloat accepts 87, 87.5 and "87" alike.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	s = strings.TrimSuffix(s, "%")
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("confidence %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

// ParseDetection decodes the `{"object_name", "confidence"}` reply of a
// detection prompt. Code fences and text around the object are tolerated.
func ParseDetection(text string) (waste.Candidate, error) {
	raw, err := jsonObject(text)
	if err != nil {
		return waste.Candidate{}, err
	}
	var out struct {
		ObjectName string    `json:"object_name"`
		Confidence flexFloat `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return waste.Candidate{}, fmt.Errorf("%w: bad detection json: %v", ErrService, err)
	}
	return waste.NewCandidate(out.ObjectName, float64(out.Confidence)), nil
}

// ParseCategoryReply decodes `{"category": "..."}`.
func ParseCategoryReply(text string) (string, error) {
	raw, err := jsonObject(text)
	if err != nil {
		return "", err
	}
	var out struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", fmt.Errorf("%w: bad category json: %v", ErrService, err)
	}
	return strings.TrimSpace(out.Category), nil
}

func jsonObject(text string) (string, error) {
	s := util.StripCodeFences(text)
	i := strings.IndexByte(s, '{')
	j := strings.LastIndexByte(s, '}')
	if i < 0 || j < i {
		return "", fmt.Errorf("%w: no json object in reply %q", ErrService, util.Truncate(s, 80))
	}
	return s[i : j+1], nil
}
