package order

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LabelTable maps lowercase size tokens to display prefixes. The prefixes are
// spoken by the voice output, so the phrasing is part of the contract: a size
// listed here uses its prefix verbatim, anything else is rendered as a
// capitalized prefix word.
type LabelTable map[string]string

// DefaultLabels returns the built-in size→prefix table.
func DefaultLabels() LabelTable {
	return LabelTable{
		"standard": "",
		"kannchen": "Kannchen of ",
		"pot":      "Pot of ",
	}
}

// LoadLabels reads a YAML file of size→prefix pairs and merges it over the
// defaults, so deployments can extend the table without code changes.
func LoadLabels(path string) (LabelTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("labels load: %w", err)
	}
	var extra map[string]string
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("labels parse: %w", err)
	}
	table := DefaultLabels()
	for size, prefix := range extra {
		table[strings.ToLower(size)] = prefix
	}
	return table, nil
}

// Display derives the spoken label for an item at a given size, e.g.
// ("Earl Grey", "pot") → "Pot of Earl Grey" and ("Latte", "venti") →
// "Venti Latte".
func (t LabelTable) Display(itemName, size string) string {
	prefix, ok := t[strings.ToLower(size)]
	if !ok {
		prefix = capitalize(size) + " "
	}
	return strings.TrimSpace(prefix + itemName)
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
