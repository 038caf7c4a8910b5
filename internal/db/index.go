package db

import (
	"errors"
	"fmt"
)

// IndexDefinition describes an FT index over the JSON documents stored under Prefix.
type IndexDefinition struct {
	Name   string
	Prefix string
	Schema []Attribute
}

// Attribute indexes the JSONPath Path under Alias. Type is the FT.CREATE
// field type followed by its options, e.g. {"TEXT", "WEIGHT", "2"}.
type Attribute struct {
	Path  string
	Alias string
	Type  []string
}

// Validate checks the definition before it reaches FT.CREATE.
func (d *IndexDefinition) Validate() error {
	switch {
	case d.Name == "":
		return errors.New("index name is required")
	case d.Prefix == "":
		return errors.New("key prefix is required")
	case len(d.Schema) == 0:
		return errors.New("at least one attribute is required")
	}

	seen := make(map[string]bool, len(d.Schema))
	for _, a := range d.Schema {
		if a.Path == "" || a.Alias == "" || len(a.Type) == 0 {
			return fmt.Errorf("attribute %q: path, alias and type are required", a.Alias)
		}
		if seen[a.Alias] {
			return fmt.Errorf("duplicate attribute %q", a.Alias)
		}
		seen[a.Alias] = true
	}
	return nil
}
