// Package config reads the configuration half of a schema document: the
// declared datasources and the active preview-feature set.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kilnworks/kiln/core/shared/errors"
)

var validate = validator.New()

// Datasource declares one database connection in the schema document. Only
// the first declared datasource is used; multi-source configurations are
// unsupported.
type Datasource struct {
	Name     string `yaml:"name" json:"name" validate:"required"`
	Provider string `yaml:"provider" json:"provider" validate:"required,oneof=postgres postgresql mysql sqlite mongodb"`
	URL      string `yaml:"url" json:"url" validate:"required"`
}

// Config is the validated configuration snapshot held by the engine.
type Config struct {
	Datasources     []Datasource `yaml:"datasources" json:"datasources" validate:"required,min=1,dive"`
	PreviewFeatures []string     `yaml:"previewFeatures,omitempty" json:"previewFeatures,omitempty"`
}

// Parse reads and validates the configuration from schema document text.
func Parse(text string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(text), &cfg); err != nil {
		e := errors.NewConversionError("schema document", "configuration")
		e.Err = err
		return nil, e
	}
	if err := validate.Struct(&cfg); err != nil {
		e := errors.NewConversionError("schema document", "configuration")
		e.Message = fmt.Sprintf("invalid configuration: %v", err)
		e.Err = err
		return nil, e
	}
	return &cfg, nil
}

// AsJSON returns the configuration as a JSON-shaped value tree, the form
// the connected engine state stores and the server surface exposes.
func (c *Config) AsJSON() map[string]any {
	b, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

// First returns the first declared datasource.
func (c *Config) First() (*Datasource, error) {
	if len(c.Datasources) == 0 {
		return nil, errors.New(errors.ErrCodeConnectionError, "no valid data source found")
	}
	return &c.Datasources[0], nil
}

// LookupEnv resolves an environment variable. Injected so introspection and
// tests can thread their own resolver instead of the process environment.
type LookupEnv func(name string) (string, bool)

// OSLookupEnv resolves against the process environment.
func OSLookupEnv(name string) (string, bool) {
	return os.LookupEnv(name)
}

// ResolveURL returns the datasource's connection URL with environment
// indirection applied. A URL referencing an unset variable cannot form a
// connection string, so the failure is reported as malformed.
func (d *Datasource) ResolveURL(lookup LookupEnv) (string, error) {
	if lookup == nil {
		lookup = OSLookupEnv
	}
	resolved, err := substituteEnvVars(d.URL, lookup)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeMalformedConnectionString,
			fmt.Sprintf("cannot resolve url of datasource %q", d.Name), err)
	}
	return resolved, nil
}
