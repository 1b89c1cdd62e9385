package pricing

// USD per 1M tokens.
var openAIModels = []ModelSpec{
	{Name: "gpt-5", Cost: flat(1.25, 10), Reasoning: true},
	{Name: "gpt-5-mini", Cost: flat(0.25, 2), Reasoning: true},
	{Name: "gpt-5-nano", Cost: flat(0.05, 0.4), Reasoning: true},
	{Name: "gpt-4.1", Cost: flat(2, 8)},
	{Name: "gpt-4.1-mini", Cost: flat(0.4, 1.6)},
	{Name: "gpt-4.1-nano", Cost: flat(0.1, 0.4)},
	{Name: "gpt-4o", Cost: flat(2.5, 10)},
	{Name: "gpt-4o-mini", Cost: flat(0.15, 0.6)},
	{Name: "chatgpt-4o-latest", Cost: flat(5, 15)},
	{Name: "o1", Cost: flat(15, 60), Reasoning: true},
	{Name: "o1-mini", Cost: flat(1.1, 4.4), Reasoning: true, Hidden: true},
	{Name: "o1-pro", Cost: flat(150, 600), Reasoning: true},
	{Name: "o3", Cost: flat(2, 8), Reasoning: true},
	{Name: "o3-mini", Cost: flat(1.1, 4.4), Reasoning: true},
	{Name: "o3-pro", Cost: flat(20, 80), Reasoning: true},
	{Name: "o4-mini", Cost: flat(1.1, 4.4), Reasoning: true},
	{Name: "gpt-4.5-preview", Cost: flat(75, 150), Hidden: true},
	{Name: "gpt-4-turbo", Cost: flat(10, 30), Hidden: true},
	{Name: "gpt-4", Cost: flat(30, 60), Hidden: true},
	{Name: "gpt-3.5-turbo", Cost: flat(0.5, 1.5), Hidden: true},
}

// Dated and suffixed ids (gpt-4o-2024-05-13) resolve to their family.
func newOpenAICatalog() *Catalog {
	return NewCatalog(CatalogOptions{
		DefaultModel: "gpt-4o-mini",
		Models:       openAIModels,
		ModelName:    longestPrefix(openAIModels),
	})
}

// Azure deployments serve the OpenAI model set under the same names.
func newAzureCatalog() *Catalog {
	return newOpenAICatalog()
}
