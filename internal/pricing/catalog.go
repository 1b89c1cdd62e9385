// Package pricing holds per-provider model price catalogs and turns token
// usage into a monetary cost.
package pricing

import (
	"sort"
	"strings"
)

// ModelCost is a price in USD per 1M tokens. A tier applies from
// TokensRangeStart input tokens upward; nil means 0.
type ModelCost struct {
	Input            float64 `json:"input" yaml:"input"`
	Output           float64 `json:"output" yaml:"output"`
	TokensRangeStart *int    `json:"tokensRangeStart,omitempty" yaml:"tokens_range_start,omitempty"`
}

// RangeStart returns TokensRangeStart, treating nil as 0.
func (c ModelCost) RangeStart() int {
	if c.TokensRangeStart == nil {
		return 0
	}
	return *c.TokensRangeStart
}

// ModelSpec is one catalog entry. A spec without Cost entries has no pricing
// modeled yet.
type ModelSpec struct {
	Name      string      `json:"name"`
	Cost      []ModelCost `json:"cost,omitempty"`
	Hidden    bool        `json:"hidden,omitempty"`
	Reasoning bool        `json:"reasoning,omitempty"`
}

// CatalogOptions configures NewCatalog. ModelName maps a requested model id to
// a catalog name and returns "" when it has no answer.
type CatalogOptions struct {
	DefaultModel string
	Models       []ModelSpec
	ModelName    func(requested string) string
}

// Catalog is an immutable set of model specs for one provider.
type Catalog struct {
	defaultModel string
	specs        map[string]ModelSpec
	names        []string
	modelName    func(string) string
}

// CostLookup is the pricing resolved for a model. Implemented is false when
// the resolved spec carries no cost, in which case Costs is a single zero tier.
type CostLookup struct {
	Model       string
	Costs       []ModelCost
	Implemented bool
}

// NewCatalog builds a catalog. Tiered costs are sorted ascending by
// TokensRangeStart; the input slice is not modified.
func NewCatalog(opts CatalogOptions) *Catalog {
	catalog := &Catalog{
		defaultModel: opts.DefaultModel,
		specs:        make(map[string]ModelSpec, len(opts.Models)),
		names:        make([]string, 0, len(opts.Models)),
		modelName:    opts.ModelName,
	}
	for _, spec := range opts.Models {
		costs := append([]ModelCost(nil), spec.Cost...)
		sort.SliceStable(costs, func(i, j int) bool {
			return costs[i].RangeStart() < costs[j].RangeStart()
		})
		spec.Cost = costs
		if _, exists := catalog.specs[spec.Name]; !exists {
			catalog.names = append(catalog.names, spec.Name)
		}
		catalog.specs[spec.Name] = spec
	}
	sort.Strings(catalog.names)
	return catalog
}

// DefaultModel is the model unrecognized ids are priced as.
func (c *Catalog) DefaultModel() string {
	return c.defaultModel
}

// ModelSpec returns the spec stored under name.
func (c *Catalog) ModelSpec(name string) (ModelSpec, bool) {
	spec, ok := c.specs[name]
	if !ok {
		return ModelSpec{}, false
	}
	spec.Cost = append([]ModelCost(nil), spec.Cost...)
	return spec, true
}

// Specs returns every spec sorted by name.
func (c *Catalog) Specs() []ModelSpec {
	out := make([]ModelSpec, 0, len(c.names))
	for _, name := range c.names {
		spec, _ := c.ModelSpec(name)
		out = append(out, spec)
	}
	return out
}

// ModelList maps every model name to itself.
func (c *Catalog) ModelList() map[string]string {
	out := make(map[string]string, len(c.names))
	for _, name := range c.names {
		out[name] = name
	}
	return out
}

// UIList is ModelList without hidden models.
func (c *Catalog) UIList() map[string]string {
	out := make(map[string]string, len(c.names))
	for _, name := range c.names {
		if c.specs[name].Hidden {
			continue
		}
		out[name] = name
	}
	return out
}

// ModelName resolves requested to a catalog name: exact match, then the
// catalog's fallback resolver, then the default model. It never fails, so an
// unknown model is priced as the default model.
func (c *Catalog) ModelName(requested string) string {
	if _, ok := c.specs[requested]; ok {
		return requested
	}
	if c.modelName != nil {
		if name := c.modelName(requested); name != "" {
			if _, ok := c.specs[name]; ok {
				return name
			}
		}
	}
	return c.defaultModel
}

// Cost returns the tiers for the model ModelName resolves requested to.
func (c *Catalog) Cost(requested string) CostLookup {
	name := c.ModelName(requested)
	spec, ok := c.specs[name]
	if !ok || len(spec.Cost) == 0 {
		return CostLookup{Model: name, Costs: []ModelCost{{Input: 0, Output: 0}}, Implemented: false}
	}
	return CostLookup{Model: name, Costs: append([]ModelCost(nil), spec.Cost...), Implemented: true}
}

// SelectTier returns the tier with the largest RangeStart not above tokens.
// costs must be sorted ascending. Token counts below every tier use the first.
func SelectTier(costs []ModelCost, tokens int64) ModelCost {
	if len(costs) == 0 {
		return ModelCost{}
	}
	selected := costs[0]
	for _, cost := range costs[1:] {
		if int64(cost.RangeStart()) > tokens {
			break
		}
		selected = cost
	}
	return selected
}

// longestPrefix resolves a requested id to the longest catalog name it starts
// with.
func longestPrefix(models []ModelSpec) func(string) string {
	names := sortedByLength(models)
	return func(requested string) string {
		requested = strings.ToLower(strings.TrimSpace(requested))
		for _, name := range names {
			if strings.HasPrefix(requested, name) {
				return name
			}
		}
		return ""
	}
}

// longestSubstring resolves a requested id to the longest catalog name it
// contains. Bedrock ids carry region and version decorations on both sides.
func longestSubstring(models []ModelSpec) func(string) string {
	names := sortedByLength(models)
	return func(requested string) string {
		requested = strings.ToLower(strings.TrimSpace(requested))
		for _, name := range names {
			if strings.Contains(requested, name) {
				return name
			}
		}
		return ""
	}
}

func sortedByLength(models []ModelSpec) []string {
	names := make([]string, 0, len(models))
	for _, model := range models {
		names = append(names, strings.ToLower(model.Name))
	}
	sort.SliceStable(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}

type prefixRule struct {
	prefix string
	model  string
}

// prefixRules returns the model of the first rule whose prefix matches.
// Rules are listed most specific first.
func prefixRules(rules []prefixRule) func(string) string {
	return func(requested string) string {
		requested = strings.ToLower(strings.TrimSpace(requested))
		for _, rule := range rules {
			if strings.HasPrefix(requested, rule.prefix) {
				return rule.model
			}
		}
		return ""
	}
}

// stripPath drops resource path prefixes such as "models/" or
// "publishers/google/models/" before resolving.
func stripPath(next func(string) string) func(string) string {
	return func(requested string) string {
		if index := strings.LastIndex(requested, "/"); index >= 0 {
			requested = requested[index+1:]
		}
		return next(requested)
	}
}

func flat(input, output float64) []ModelCost {
	return []ModelCost{{Input: input, Output: output}}
}

// tier is a ModelCost starting at from input tokens.
func tier(input, output float64, from int) ModelCost {
	return ModelCost{Input: input, Output: output, TokensRangeStart: &from}
}
