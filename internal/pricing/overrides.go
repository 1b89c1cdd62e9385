package pricing

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Overrides replaces or adds model prices on top of the built-in catalogs.
//
//	providers:
//	  openai:
//	    models:
//	      gpt-4o: {input: 2.5, output: 10}
//	  ollama:
//	    default_model: llama3
//	    models:
//	      llama3: {input: 0, output: 0}
type Overrides struct {
	Providers map[string]ProviderOverride `yaml:"providers"`
}

type ProviderOverride struct {
	DefaultModel string                   `yaml:"default_model"`
	Models       map[string]ModelOverride `yaml:"models"`
}

// ModelOverride prices one model. Input/Output set a flat price; Tiers set a
// range priced model. Neither marks the model as not priced.
type ModelOverride struct {
	Input     *float64    `yaml:"input"`
	Output    *float64    `yaml:"output"`
	Tiers     []ModelCost `yaml:"tiers"`
	Hidden    bool        `yaml:"hidden"`
	Reasoning bool        `yaml:"reasoning"`
}

// LoadOverrides reads an overrides file. An empty path returns no overrides.
func LoadOverrides(path string) (Overrides, error) {
	if strings.TrimSpace(path) == "" {
		return Overrides{}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return Overrides{}, fmt.Errorf("open pricing overrides: %w", err)
	}
	defer file.Close()
	return DecodeOverrides(file)
}

// DecodeOverrides parses a single YAML document and rejects unknown fields.
func DecodeOverrides(r io.Reader) (Overrides, error) {
	var overrides Overrides
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&overrides); err != nil {
		if errors.Is(err, io.EOF) {
			return Overrides{}, nil
		}
		return Overrides{}, fmt.Errorf("decode pricing overrides: %w", err)
	}
	var extra any
	if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
		return Overrides{}, errors.New("decode pricing overrides: multiple YAML documents are not supported")
	}
	if err := overrides.Validate(); err != nil {
		return Overrides{}, err
	}
	return overrides, nil
}

// Validate rejects negative or non-finite prices.
func (o Overrides) Validate() error {
	for provider, override := range o.Providers {
		if strings.TrimSpace(provider) == "" {
			return errors.New("pricing overrides: provider name is required")
		}
		for name, model := range override.Models {
			for _, price := range model.prices() {
				if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
					return fmt.Errorf("pricing overrides: %s/%s has invalid price %v", provider, name, price)
				}
			}
			for _, t := range model.Tiers {
				if t.RangeStart() < 0 {
					return fmt.Errorf("pricing overrides: %s/%s has negative tokens_range_start", provider, name)
				}
			}
		}
	}
	return nil
}

func (m ModelOverride) prices() []float64 {
	prices := make([]float64, 0, 2+2*len(m.Tiers))
	if m.Input != nil {
		prices = append(prices, *m.Input)
	}
	if m.Output != nil {
		prices = append(prices, *m.Output)
	}
	for _, t := range m.Tiers {
		prices = append(prices, t.Input, t.Output)
	}
	return prices
}

func (m ModelOverride) spec(name string) ModelSpec {
	spec := ModelSpec{Name: name, Hidden: m.Hidden, Reasoning: m.Reasoning}
	switch {
	case len(m.Tiers) > 0:
		spec.Cost = append([]ModelCost(nil), m.Tiers...)
	case m.Input != nil || m.Output != nil:
		var input, output float64
		if m.Input != nil {
			input = *m.Input
		}
		if m.Output != nil {
			output = *m.Output
		}
		spec.Cost = flat(input, output)
	}
	return spec
}

// apply returns a new catalog with the override models replacing or extending
// base. base may be nil for providers without a built-in catalog.
func (p ProviderOverride) apply(base *Catalog) *Catalog {
	models := make(map[string]ModelSpec)
	defaultModel := p.DefaultModel
	var resolver func(string) string
	if base != nil {
		for _, spec := range base.Specs() {
			models[spec.Name] = spec
		}
		if defaultModel == "" {
			defaultModel = base.defaultModel
		}
		resolver = base.modelName
	}
	for name, model := range p.Models {
		models[name] = model.spec(name)
	}

	specs := make([]ModelSpec, 0, len(models))
	for _, spec := range models {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	if defaultModel == "" && len(specs) > 0 {
		defaultModel = specs[0].Name
	}
	if resolver == nil {
		resolver = longestPrefix(specs)
	}

	return NewCatalog(CatalogOptions{
		DefaultModel: defaultModel,
		Models:       specs,
		ModelName:    resolver,
	})
}
