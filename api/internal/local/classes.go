package local

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"wasteiq/api/internal/waste"
)

//go:embed imagenet.yaml
var imagenetYAML []byte

// Class maps an ImageNet label fragment to a display name and category.
type Class struct {
	Key      string         `yaml:"key"`
	Display  string         `yaml:"display"`
	Category waste.Category `yaml:"category"`
}

// ClassTable is the curated, ordered ImageNet vocabulary.
type ClassTable struct {
	classes []Class
}

func ParseClassTable(data []byte) (*ClassTable, error) {
	var doc struct {
		Classes []Class `yaml:"classes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("local: parse classes: %w", err)
	}
	seen := make(map[string]bool, len(doc.Classes))
	for i := range doc.Classes {
		c := &doc.Classes[i]
		c.Key = strings.ToLower(strings.TrimSpace(c.Key))
		switch {
		case c.Key == "":
			return nil, fmt.Errorf("local: class #%d: empty key", i)
		case c.Display == "":
			return nil, fmt.Errorf("local: class %q: empty display name", c.Key)
		case !c.Category.Valid():
			return nil, fmt.Errorf("local: class %q: missing category", c.Key)
		case seen[c.Key]:
			return nil, fmt.Errorf("local: class %q declared twice", c.Key)
		}
		seen[c.Key] = true
	}
	return &ClassTable{classes: doc.Classes}, nil
}

var defaultClasses = func() *ClassTable {
	t, err := ParseClassTable(imagenetYAML)
	if err != nil {
		panic(err)
	}
	return t
}()

func DefaultClasses() *ClassTable { return defaultClasses }

// Match returns the first class whose key contains label or is contained in it.
func (t *ClassTable) Match(label string) (Class, bool) {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return Class{}, false
	}
	for _, c := range t.classes {
		if strings.Contains(label, c.Key) || strings.Contains(c.Key, label) {
			return c, true
		}
	}
	return Class{}, false
}

func (t *ClassTable) Len() int { return len(t.classes) }
