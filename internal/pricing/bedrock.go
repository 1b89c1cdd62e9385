package pricing

// USD per 1M tokens, on-demand us-east-1.
var amazonBedrockModels = []ModelSpec{
	{Name: "anthropic.claude-opus-4-1", Cost: flat(15, 75), Reasoning: true},
	{Name: "anthropic.claude-opus-4", Cost: flat(15, 75), Reasoning: true},
	{Name: "anthropic.claude-sonnet-4", Cost: flat(3, 15), Reasoning: true},
	{Name: "anthropic.claude-3-7-sonnet", Cost: flat(3, 15), Reasoning: true},
	{Name: "anthropic.claude-3-5-sonnet", Cost: flat(3, 15)},
	{Name: "anthropic.claude-3-5-haiku", Cost: flat(0.8, 4)},
	{Name: "anthropic.claude-3-haiku", Cost: flat(0.25, 1.25), Hidden: true},
	{Name: "amazon.nova-premier", Cost: flat(2.5, 12.5)},
	{Name: "amazon.nova-pro", Cost: flat(0.8, 3.2)},
	{Name: "amazon.nova-lite", Cost: flat(0.06, 0.24)},
	{Name: "amazon.nova-micro", Cost: flat(0.035, 0.14)},
	{Name: "meta.llama3-3-70b-instruct", Cost: flat(0.72, 0.72)},
	{Name: "meta.llama3-1-8b-instruct", Cost: flat(0.22, 0.22)},
	{Name: "mistral.mistral-large-2407", Cost: flat(2, 6)},
	{Name: "deepseek.r1", Cost: flat(1.35, 5.4), Reasoning: true},
}

// Bedrock ids and inference profile ARNs wrap the model name, as in
// "us.anthropic.claude-3-5-sonnet-20240620-v1:0".
func newAmazonBedrockCatalog() *Catalog {
	return NewCatalog(CatalogOptions{
		DefaultModel: "anthropic.claude-3-5-sonnet",
		Models:       amazonBedrockModels,
		ModelName:    longestSubstring(amazonBedrockModels),
	})
}
