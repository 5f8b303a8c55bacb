package waste

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is one of the six disposal streams. The zero value is invalid.
type Category int

const (
	categoryInvalid Category = iota
	Wet
	Dry
	Hazardous
	Recyclable
	EWaste
	General
)

var categoryNames = [...]string{
	categoryInvalid: "",
	Wet:             "Wet Waste",
	Dry:             "Dry Waste",
	Hazardous:       "Hazardous Waste",
	Recyclable:      "Recyclable",
	EWaste:          "E-Waste",
	General:         "General Waste",
}

// Categories lists every valid category in table order.
func Categories() []Category {
	return []Category{Wet, Dry, Hazardous, Recyclable, EWaste, General}
}

func (c Category) Valid() bool { return c > categoryInvalid && int(c) < len(categoryNames) }

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

// ParseCategory maps a wire string ("Wet Waste", "E-Waste", ...) onto the enum.
// Surrounding whitespace and letter case are ignored.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Categories() {
		if strings.EqualFold(categoryNames[c], s) {
			return c, true
		}
	}
	return categoryInvalid, false
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("waste: invalid category %d", int(c))
	}
	return []byte(categoryNames[c]), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	v, ok := ParseCategory(string(b))
	if !ok {
		return fmt.Errorf("waste: unknown category %q", string(b))
	}
	*c = v
	return nil
}

func (c *Category) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("waste: line %d: category must be a string", n.Line)
	}
	v, ok := ParseCategory(n.Value)
	if !ok {
		return fmt.Errorf("waste: line %d: unknown category %q", n.Line, n.Value)
	}
	*c = v
	return nil
}

// Assignment is the disposal guidance shown for a category.
type Assignment struct {
	Category     Category
	Instructions string
	Tip          string
	Bin          string // bin name shown in chat replies
	BinColor     string // hex, for UI surfaces
}

var assignments = map[Category]Assignment{
	Wet: {
		Category:     Wet,
		Instructions: "Place in the GREEN bin. Organic waste composts in 45-90 days.",
		Tip:          "Start a compost bin: food scraps make excellent free garden fertilizer!",
		Bin:          "green",
		BinColor:     "#22c55e",
	},
	Dry: {
		Category:     Dry,
		Instructions: "Place in the BLUE bin. Ensure items are clean and dry before disposal.",
		Tip:          "Switch to reusable bags and containers to reduce dry waste generation.",
		Bin:          "blue",
		BinColor:     "#3b82f6",
	},
	Recyclable: {
		Category:     Recyclable,
		Instructions: "Place in the YELLOW bin. Rinse items before placing and flatten cardboard.",
		Tip:          "One recycled aluminium can saves enough energy to power a TV for 3 hours.",
		Bin:          "yellow",
		BinColor:     "#f59e0b",
	},
	Hazardous: {
		Category:     Hazardous,
		Instructions: "Do NOT use regular bins. Take to a designated Hazardous Waste Collection Centre.",
		Tip:          "Never pour chemicals or medicines down the drain. Contact your municipal office.",
		Bin:          "red (collection centre)",
		BinColor:     "#ef4444",
	},
	EWaste: {
		Category:     EWaste,
		Instructions: "Take to an authorized E-Waste collection point or manufacturer take-back programme.",
		Tip:          "Donate working devices to schools or charities before discarding.",
		Bin:          "purple (e-waste drop-off)",
		BinColor:     "#a855f7",
	},
	General: {
		Category:     General,
		Instructions: "Place in the BLACK bin. Try to further segregate into wet, dry or recyclable.",
		Tip:          "When in doubt, segregate! Proper sorting significantly increases recycling rates.",
		Bin:          "black",
		BinColor:     "#6b7280",
	},
}

// AssignmentFor returns the guidance for c. Invalid categories get General's.
func AssignmentFor(c Category) Assignment {
	if a, ok := assignments[c]; ok {
		return a
	}
	return assignments[General]
}
