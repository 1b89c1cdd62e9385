package pricing

// USD per 1M tokens. Sonnet 4 doubles input price past 200k prompt tokens.
var anthropicModels = []ModelSpec{
	{Name: "claude-opus-4-1", Cost: flat(15, 75), Reasoning: true},
	{Name: "claude-opus-4-0", Cost: flat(15, 75), Reasoning: true},
	{Name: "claude-sonnet-4-5", Cost: []ModelCost{tier(6, 22.5, 200_000), tier(3, 15, 0)}, Reasoning: true},
	{Name: "claude-sonnet-4-0", Cost: []ModelCost{tier(3, 15, 0), tier(6, 22.5, 200_000)}, Reasoning: true},
	{Name: "claude-haiku-4-5", Cost: flat(1, 5), Reasoning: true},
	{Name: "claude-3-7-sonnet-latest", Cost: flat(3, 15), Reasoning: true},
	{Name: "claude-3-5-sonnet-latest", Cost: flat(3, 15)},
	{Name: "claude-3-5-haiku-latest", Cost: flat(0.8, 4)},
	{Name: "claude-3-opus-latest", Cost: flat(15, 75), Hidden: true},
	{Name: "claude-3-haiku-20240307", Cost: flat(0.25, 1.25), Hidden: true},
}

var anthropicRules = []prefixRule{
	{prefix: "claude-opus-4-1", model: "claude-opus-4-1"},
	{prefix: "claude-opus-4", model: "claude-opus-4-0"},
	{prefix: "claude-4-opus", model: "claude-opus-4-0"},
	{prefix: "claude-sonnet-4-5", model: "claude-sonnet-4-5"},
	{prefix: "claude-sonnet-4", model: "claude-sonnet-4-0"},
	{prefix: "claude-4-sonnet", model: "claude-sonnet-4-0"},
	{prefix: "claude-haiku-4-5", model: "claude-haiku-4-5"},
	{prefix: "claude-3-7-sonnet", model: "claude-3-7-sonnet-latest"},
	{prefix: "claude-3-5-sonnet", model: "claude-3-5-sonnet-latest"},
	{prefix: "claude-3-5-haiku", model: "claude-3-5-haiku-latest"},
	{prefix: "claude-3-opus", model: "claude-3-opus-latest"},
	{prefix: "claude-3-haiku", model: "claude-3-haiku-20240307"},
}

func newAnthropicCatalog() *Catalog {
	return NewCatalog(CatalogOptions{
		DefaultModel: "claude-sonnet-4-0",
		Models:       anthropicModels,
		ModelName:    prefixRules(anthropicRules),
	})
}

// Vertex publishes Claude as claude-3-5-sonnet-v2@20241022 style ids, which the
// same family rules resolve.
func newAnthropicVertexCatalog() *Catalog {
	return NewCatalog(CatalogOptions{
		DefaultModel: "claude-sonnet-4-0",
		Models:       anthropicModels,
		ModelName:    stripPath(prefixRules(anthropicRules)),
	})
}
