package pricing

import (
	"sort"
	"strings"
	"sync"
)

// Provider identifiers with a built-in catalog, plus custom which never has one.
const (
	ProviderOpenAI          = "openai"
	ProviderAnthropic       = "anthropic"
	ProviderGroq            = "groq"
	ProviderMistral         = "mistral"
	ProviderAzure           = "azure"
	ProviderGoogle          = "google"
	ProviderGoogleVertex    = "google_vertex"
	ProviderAnthropicVertex = "anthropic_vertex"
	ProviderCustom          = "custom"
	ProviderXAI             = "xai"
	ProviderAmazonBedrock   = "amazon_bedrock"
	ProviderDeepSeek        = "deepseek"
	ProviderPerplexity      = "perplexity"
)

// providerAliases maps provider names used by instrumentation libraries to
// catalog identifiers.
var providerAliases = map[string]string{
	"azure_openai":     ProviderAzure,
	"azure_ai":         ProviderAzure,
	"gemini":           ProviderGoogle,
	"google_genai":     ProviderGoogle,
	"vertex":           ProviderGoogleVertex,
	"vertexai":         ProviderGoogleVertex,
	"vertex_ai":        ProviderGoogleVertex,
	"gcp.vertex_ai":    ProviderGoogleVertex,
	"aws":              ProviderAmazonBedrock,
	"bedrock":          ProviderAmazonBedrock,
	"aws.bedrock":      ProviderAmazonBedrock,
	"aws_bedrock":      ProviderAmazonBedrock,
	"mistralai":        ProviderMistral,
	"mistral_ai":       ProviderMistral,
	"x_ai":             ProviderXAI,
	"grok":             ProviderXAI,
	"gcp.gemini":       ProviderGoogle,
	"anthropic.vertex": ProviderAnthropicVertex,
}

// NormalizeProvider lowercases name, folds dashes into underscores and applies
// known aliases.
func NormalizeProvider(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "-", "_")
	if alias, ok := providerAliases[name]; ok {
		return alias
	}
	return name
}

// Registry maps provider identifiers to catalogs. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	catalogs map[string]*Catalog
}

func builtInCatalogs() map[string]*Catalog {
	return map[string]*Catalog{
		ProviderOpenAI:          newOpenAICatalog(),
		ProviderAnthropic:       newAnthropicCatalog(),
		ProviderGroq:            newGroqCatalog(),
		ProviderMistral:         newMistralCatalog(),
		ProviderAzure:           newAzureCatalog(),
		ProviderGoogle:          newGoogleCatalog(),
		ProviderGoogleVertex:    newGoogleVertexCatalog(),
		ProviderAnthropicVertex: newAnthropicVertexCatalog(),
		ProviderXAI:             newXAICatalog(),
		ProviderAmazonBedrock:   newAmazonBedrockCatalog(),
		ProviderDeepSeek:        newDeepSeekCatalog(),
		ProviderPerplexity:      newPerplexityCatalog(),
	}
}

// NewRegistry builds the built-in catalogs with overrides merged on top.
func NewRegistry(overrides Overrides) *Registry {
	catalogs := builtInCatalogs()
	for provider, override := range overrides.Providers {
		provider = NormalizeProvider(provider)
		catalogs[provider] = override.apply(catalogs[provider])
	}
	return &Registry{catalogs: catalogs}
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return NewRegistry(Overrides{})
})

// DefaultRegistry returns the process-wide built-in registry.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

// Catalog returns the catalog for provider.
func (r *Registry) Catalog(provider string) (*Catalog, bool) {
	catalog, ok := r.catalogs[NormalizeProvider(provider)]
	return catalog, ok
}

// Providers returns the provider identifiers with a catalog, sorted.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.catalogs))
	for name := range r.catalogs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
