// Package schema holds the abstract data-model document exchanged with the
// rendering and query-execution collaborators, plus the raw database
// description produced by introspection backends and the conversion between
// the two.
package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kilnworks/kiln/core/shared/errors"
)

// Datamodel is the abstract data-model document. Model order is preserved
// exactly as declared or introspected; no two models share a name.
type Datamodel struct {
	Models []Model `yaml:"models"`
	Enums  []Enum  `yaml:"enums,omitempty"`
}

// Model is one declared entity backed by a table or collection.
type Model struct {
	Name   string  `yaml:"name"`
	Fields []Field `yaml:"fields"`
}

// Field is a scalar member of a model.
type Field struct {
	Name     string  `yaml:"name"`
	Type     string  `yaml:"type"`
	Optional bool    `yaml:"optional,omitempty"`
	Unique   bool    `yaml:"unique,omitempty"`
	ID       bool    `yaml:"id,omitempty"`
	Default  *string `yaml:"default,omitempty"`
}

// Enum is a named set of values (relational enums only).
type Enum struct {
	Name   string   `yaml:"name"`
	Values []string `yaml:"values"`
}

// IsEmpty reports whether the datamodel declares no models.
func (d *Datamodel) IsEmpty() bool {
	return d == nil || len(d.Models) == 0
}

// ModelByName returns the named model, or nil.
func (d *Datamodel) ModelByName(name string) *Model {
	for i := range d.Models {
		if d.Models[i].Name == name {
			return &d.Models[i]
		}
	}
	return nil
}

// ParseDocument extracts the datamodel half of a schema document. The
// configuration half is parsed separately by the config package; both read
// the same text.
func ParseDocument(text string) (*Datamodel, error) {
	var dm Datamodel
	if err := yaml.Unmarshal([]byte(text), &dm); err != nil {
		e := errors.NewConversionError("schema document", "datamodel")
		e.Err = err
		return nil, e
	}

	seen := make(map[string]struct{}, len(dm.Models))
	for _, m := range dm.Models {
		if _, dup := seen[m.Name]; dup {
			e := errors.NewConversionError("schema document", "datamodel")
			e.Message = fmt.Sprintf("duplicate model name %q in schema document", m.Name)
			return nil, e
		}
		seen[m.Name] = struct{}{}
	}

	return &dm, nil
}

// Render writes the datamodel and its configuration back into one schema
// document. cfg is rendered first, then models and enums, so the output can
// be fed back into ParseDocument and config.Parse unchanged.
func Render(dm *Datamodel, cfg any) (string, error) {
	cfgBytes, err := yaml.Marshal(cfg)
	if err != nil {
		e := errors.NewConversionError("configuration", "schema document")
		e.Err = err
		return "", e
	}
	dmBytes, err := yaml.Marshal(dm)
	if err != nil {
		e := errors.NewConversionError("datamodel", "schema document")
		e.Err = err
		return "", e
	}
	return string(cfgBytes) + string(dmBytes), nil
}
