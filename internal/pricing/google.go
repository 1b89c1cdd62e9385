package pricing

// USD per 1M tokens. Pro and 1.5 models change price past a prompt size.
var googleModels = []ModelSpec{
	{Name: "gemini-2.5-pro", Cost: []ModelCost{tier(1.25, 10, 0), tier(2.5, 15, 200_000)}, Reasoning: true},
	{Name: "gemini-2.5-flash", Cost: flat(0.3, 2.5), Reasoning: true},
	{Name: "gemini-2.5-flash-lite", Cost: flat(0.1, 0.4)},
	{Name: "gemini-2.0-flash", Cost: flat(0.1, 0.4)},
	{Name: "gemini-2.0-flash-lite", Cost: flat(0.075, 0.3)},
	{Name: "gemini-1.5-pro", Cost: []ModelCost{tier(1.25, 5, 0), tier(2.5, 10, 128_000)}, Hidden: true},
	{Name: "gemini-1.5-flash", Cost: []ModelCost{tier(0.075, 0.3, 0), tier(0.15, 0.6, 128_000)}, Hidden: true},
	{Name: "gemini-1.5-flash-8b", Cost: []ModelCost{tier(0.0375, 0.15, 0), tier(0.075, 0.3, 128_000)}, Hidden: true},
}

// Google reports models as "models/gemini-..." and Vertex as
// "publishers/google/models/gemini-...".
func newGoogleCatalog() *Catalog {
	return NewCatalog(CatalogOptions{
		DefaultModel: "gemini-2.5-flash",
		Models:       googleModels,
		ModelName:    stripPath(longestPrefix(googleModels)),
	})
}

func newGoogleVertexCatalog() *Catalog {
	return newGoogleCatalog()
}
