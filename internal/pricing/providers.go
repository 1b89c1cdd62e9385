package pricing

import (
	"regexp"
	"strings"
)

// USD per 1M tokens for the smaller hosted providers.

var groqModels = []ModelSpec{
	{Name: "llama-3.3-70b-versatile", Cost: flat(0.59, 0.79)},
	{Name: "llama-3.1-8b-instant", Cost: flat(0.05, 0.08)},
	{Name: "meta-llama/llama-4-scout-17b-16e-instruct", Cost: flat(0.11, 0.34)},
	{Name: "meta-llama/llama-4-maverick-17b-128e-instruct", Cost: flat(0.2, 0.6)},
	{Name: "deepseek-r1-distill-llama-70b", Cost: flat(0.75, 0.99), Reasoning: true},
	{Name: "qwen/qwen3-32b", Cost: flat(0.29, 0.59), Reasoning: true},
	{Name: "moonshotai/kimi-k2-instruct", Cost: flat(1, 3)},
	{Name: "openai/gpt-oss-120b", Cost: flat(0.15, 0.75), Reasoning: true},
	{Name: "openai/gpt-oss-20b", Cost: flat(0.1, 0.5), Reasoning: true},
	{Name: "gemma2-9b-it", Cost: flat(0.2, 0.2), Hidden: true},
	{Name: "mixtral-8x7b-32768", Cost: flat(0.24, 0.24), Hidden: true},
}

var mistralModels = []ModelSpec{
	{Name: "mistral-large-latest", Cost: flat(2, 6)},
	{Name: "mistral-medium-latest", Cost: flat(0.4, 2)},
	{Name: "mistral-small-latest", Cost: flat(0.1, 0.3)},
	{Name: "magistral-medium-latest", Cost: flat(2, 5), Reasoning: true},
	{Name: "magistral-small-latest", Cost: flat(0.5, 1.5), Reasoning: true},
	{Name: "codestral-latest", Cost: flat(0.3, 0.9)},
	{Name: "devstral-medium-latest", Cost: flat(0.4, 2)},
	{Name: "ministral-8b-latest", Cost: flat(0.1, 0.1)},
	{Name: "ministral-3b-latest", Cost: flat(0.04, 0.04)},
	{Name: "pixtral-large-latest", Cost: flat(2, 6)},
	{Name: "open-mistral-nemo", Cost: flat(0.15, 0.15), Hidden: true},
}

var xaiModels = []ModelSpec{
	{Name: "grok-4", Cost: []ModelCost{tier(3, 15, 0), tier(6, 30, 128_000)}, Reasoning: true},
	{Name: "grok-code-fast-1", Cost: flat(0.2, 1.5), Reasoning: true},
	{Name: "grok-3", Cost: flat(3, 15)},
	{Name: "grok-3-mini", Cost: flat(0.3, 0.5), Reasoning: true},
	{Name: "grok-2-vision-1212", Cost: flat(2, 10), Hidden: true},
	{Name: "grok-2-1212", Cost: flat(2, 10), Hidden: true},
}

var deepSeekModels = []ModelSpec{
	{Name: "deepseek-chat", Cost: flat(0.27, 1.1)},
	{Name: "deepseek-reasoner", Cost: flat(0.55, 2.19), Reasoning: true},
}

var perplexityModels = []ModelSpec{
	{Name: "sonar", Cost: flat(1, 1)},
	{Name: "sonar-pro", Cost: flat(3, 15)},
	{Name: "sonar-reasoning", Cost: flat(1, 5), Reasoning: true},
	{Name: "sonar-reasoning-pro", Cost: flat(2, 8), Reasoning: true},
	{Name: "sonar-deep-research", Cost: flat(2, 8), Reasoning: true},
	{Name: "r1-1776", Cost: flat(2, 8), Reasoning: true, Hidden: true},
}

func newGroqCatalog() *Catalog {
	return NewCatalog(CatalogOptions{
		DefaultModel: "llama-3.3-70b-versatile",
		Models:       groqModels,
	})
}

// mistralVersion matches the release suffix of pinned ids such as
// mistral-large-2411.
var mistralVersion = regexp.MustCompile(`-\d{4}$`)

// Pinned Mistral releases are priced as their -latest alias.
func newMistralCatalog() *Catalog {
	return NewCatalog(CatalogOptions{
		DefaultModel: "mistral-small-latest",
		Models:       mistralModels,
		ModelName: func(requested string) string {
			requested = strings.ToLower(strings.TrimSpace(requested))
			if !mistralVersion.MatchString(requested) {
				return ""
			}
			return mistralVersion.ReplaceAllString(requested, "-latest")
		},
	})
}

func newXAICatalog() *Catalog {
	return NewCatalog(CatalogOptions{
		DefaultModel: "grok-3-mini",
		Models:       xaiModels,
		ModelName:    longestPrefix(xaiModels),
	})
}

func newDeepSeekCatalog() *Catalog {
	return NewCatalog(CatalogOptions{
		DefaultModel: "deepseek-chat",
		Models:       deepSeekModels,
	})
}

func newPerplexityCatalog() *Catalog {
	return NewCatalog(CatalogOptions{
		DefaultModel: "sonar",
		Models:       perplexityModels,
	})
}
