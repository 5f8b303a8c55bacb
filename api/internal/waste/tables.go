package waste

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var tablesYAML []byte

// Entry is one row of the label vocabulary.
type Entry struct {
	Key      string
	Category Category
}

// LabelTable is an immutable, ordered label→category vocabulary.
// Keys are lower case and unique; iteration follows declaration order.
type LabelTable struct {
	entries []Entry
	index   map[string]Category
}

// NewLabelTable validates entries and builds the lookup index.
func NewLabelTable(entries []Entry) (*LabelTable, error) {
	t := &LabelTable{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]Category, len(entries)),
	}
	for i, e := range entries {
		key := strings.ToLower(strings.TrimSpace(e.Key))
		if key == "" {
			return nil, fmt.Errorf("waste: label #%d: empty key", i)
		}
		if !e.Category.Valid() {
			return nil, fmt.Errorf("waste: label %q: invalid category", key)
		}
		if _, dup := t.index[key]; dup {
			return nil, fmt.Errorf("waste: label %q declared twice", key)
		}
		t.index[key] = e.Category
		t.entries = append(t.entries, Entry{Key: key, Category: e.Category})
	}
	return t, nil
}

// Lookup is an exact, case-insensitive match on the trimmed label.
func (t *LabelTable) Lookup(label string) (Category, bool) {
	c, ok := t.index[strings.ToLower(strings.TrimSpace(label))]
	return c, ok
}

// Entries returns the rows in declaration order. Callers must not modify it.
func (t *LabelTable) Entries() []Entry { return t.entries }

func (t *LabelTable) Len() int { return len(t.entries) }

type tablesFile struct {
	Labels yaml.Node `yaml:"labels"`
	Vague  struct {
		MinTerms int      `yaml:"min_terms"`
		Terms    []string `yaml:"terms"`
		Phrases  []string `yaml:"phrases"`
	} `yaml:"vague"`
}

// ParseTables reads a vocabulary document: an ordered `labels` mapping and
// the `vague` term lists.
func ParseTables(data []byte) (*LabelTable, *VagueDetector, error) {
	var f tablesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("waste: parse tables: %w", err)
	}
	if f.Labels.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("waste: `labels` must be a mapping")
	}
	// walk the node so declaration order survives
	entries := make([]Entry, 0, len(f.Labels.Content)/2)
	for i := 0; i+1 < len(f.Labels.Content); i += 2 {
		k, v := f.Labels.Content[i], f.Labels.Content[i+1]
		var c Category
		if err := v.Decode(&c); err != nil {
			return nil, nil, fmt.Errorf("label %q: %w", k.Value, err)
		}
		entries = append(entries, Entry{Key: k.Value, Category: c})
	}
	table, err := NewLabelTable(entries)
	if err != nil {
		return nil, nil, err
	}
	vd, err := NewVagueDetector(f.Vague.Terms, f.Vague.Phrases, f.Vague.MinTerms)
	if err != nil {
		return nil, nil, err
	}
	return table, vd, nil
}

var defaultLabels, defaultVague = mustLoad()

func mustLoad() (*LabelTable, *VagueDetector) {
	t, v, err := ParseTables(tablesYAML)
	if err != nil {
		panic(err)
	}
	return t, v
}

// DefaultLabels is the built-in vocabulary.
func DefaultLabels() *LabelTable { return defaultLabels }

// DefaultVague is the built-in vague-answer detector.
func DefaultVague() *VagueDetector { return defaultVague }
