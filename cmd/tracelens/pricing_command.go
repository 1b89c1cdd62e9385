package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ongoingai/tracelens/internal/pricing"
)

const defaultPricingFormat = "text"

type pricingListProvider struct {
	Provider     string              `json:"provider"`
	DefaultModel string              `json:"default_model"`
	Models       []pricing.ModelSpec `json:"models"`
}

type pricingEstimateOutput struct {
	pricing.Estimate
	CostUnits int64         `json:"cost_units"`
	Usage     pricing.Usage `json:"usage"`
}

func runPricing(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printPricingUsage(errOut)
		return 2
	}

	switch args[0] {
	case "list":
		return runPricingList(args[1:], out, errOut)
	case "estimate":
		return runPricingEstimate(args[1:], out, errOut)
	default:
		printPricingUsage(errOut)
		return 2
	}
}

func runPricingList(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("pricing list", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	provider := flagSet.String("provider", "", "Only list this provider")
	all := flagSet.Bool("all", false, "Include hidden models")
	format := flagSet.String("format", defaultPricingFormat, "Output format: text or json")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "pricing list does not accept positional arguments")
		return 2
	}
	normalizedFormat, err := normalizeTextJSONFormat("pricing list", *format, defaultPricingFormat)
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 2
	}

	registry, code := pricingRegistryForCommand(*configPath, errOut)
	if registry == nil {
		return code
	}

	names := registry.Providers()
	if name := strings.TrimSpace(*provider); name != "" {
		if _, ok := registry.Catalog(name); !ok {
			fmt.Fprintf(errOut, "no pricing catalog for provider %q\n", name)
			return 1
		}
		names = []string{pricing.NormalizeProvider(name)}
	}

	providers := make([]pricingListProvider, 0, len(names))
	for _, name := range names {
		catalog, _ := registry.Catalog(name)
		entry := pricingListProvider{Provider: name, DefaultModel: catalog.DefaultModel(), Models: []pricing.ModelSpec{}}
		for _, spec := range catalog.Specs() {
			if spec.Hidden && !*all {
				continue
			}
			entry.Models = append(entry.Models, spec)
		}
		providers = append(providers, entry)
	}

	if normalizedFormat == "json" {
		if err := writeJSON(out, providers); err != nil {
			fmt.Fprintf(errOut, "failed to write pricing: %v\n", err)
			return 1
		}
		return 0
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tMODEL\tINPUT_PER_1M\tOUTPUT_PER_1M\tFROM_TOKENS")
	for _, entry := range providers {
		for _, spec := range entry.Models {
			if len(spec.Cost) == 0 {
				fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\n", entry.Provider, spec.Name)
				continue
			}
			for _, cost := range spec.Cost {
				fmt.Fprintf(tw, "%s\t%s\t%.4f\t%.4f\t%d\n", entry.Provider, spec.Name, cost.Input, cost.Output, cost.RangeStart())
			}
		}
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(errOut, "failed to write pricing: %v\n", err)
		return 1
	}
	return 0
}

func runPricingEstimate(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("pricing estimate", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	provider := flagSet.String("provider", "", "Provider identifier")
	model := flagSet.String("model", "", "Model identifier; empty uses the provider default")
	inputTokens := flagSet.Int64("input-tokens", 0, "Prompt tokens")
	outputTokens := flagSet.Int64("output-tokens", 0, "Completion tokens")
	cachedTokens := flagSet.Int64("cached-tokens", 0, "Cached prompt tokens")
	reasoningTokens := flagSet.Int64("reasoning-tokens", 0, "Reasoning tokens")
	format := flagSet.String("format", defaultPricingFormat, "Output format: text or json")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "pricing estimate does not accept positional arguments")
		return 2
	}
	if strings.TrimSpace(*provider) == "" {
		fmt.Fprintln(errOut, "pricing estimate requires --provider")
		return 2
	}
	normalizedFormat, err := normalizeTextJSONFormat("pricing estimate", *format, defaultPricingFormat)
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 2
	}

	registry, code := pricingRegistryForCommand(*configPath, errOut)
	if registry == nil {
		return code
	}

	usage := pricing.FoldUsage(*inputTokens, *cachedTokens, *reasoningTokens, *outputTokens)
	estimate := registry.EstimateCost(usage, *provider, strings.TrimSpace(*model))
	result := pricingEstimateOutput{
		Estimate:  estimate,
		CostUnits: pricing.ToCostUnits(estimate.Cost),
		Usage:     usage,
	}

	if normalizedFormat == "json" {
		if err := writeJSON(out, result); err != nil {
			fmt.Fprintf(errOut, "failed to write estimate: %v\n", err)
			return 1
		}
		return 0
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Provider\t%s\n", result.Provider)
	fmt.Fprintf(tw, "Model\t%s\n", valueOr(result.Model, "(unknown)"))
	fmt.Fprintf(tw, "Input tokens\t%d\n", usage.InputTokens)
	fmt.Fprintf(tw, "Output tokens\t%d\n", usage.OutputTokens)
	if result.Implemented {
		fmt.Fprintf(tw, "Cost (USD)\t%.6f\n", result.Cost)
	} else {
		fmt.Fprintln(tw, "Cost (USD)\tnot priced")
	}
	fmt.Fprintf(tw, "Cost units\t%d\n", result.CostUnits)
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(errOut, "failed to write estimate: %v\n", err)
		return 1
	}
	return 0
}

// pricingRegistryForCommand returns nil and an exit code when the config or
// pricing overrides cannot be loaded.
func pricingRegistryForCommand(configPath string, errOut io.Writer) (*pricing.Registry, int) {
	cfg, stage, err := loadAndValidateConfig(configPath)
	if err != nil {
		reportConfigError(errOut, stage, err)
		return nil, 1
	}
	registry, err := loadPricingRegistry(cfg)
	if err != nil {
		fmt.Fprintf(errOut, "failed to load pricing overrides: %v\n", err)
		return nil, 1
	}
	return registry, 0
}

func printPricingUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  tracelens pricing list [--config path/to/tracelens.yaml] [--provider NAME] [--all] [--format text|json]")
	fmt.Fprintln(out, "  tracelens pricing estimate [--config path/to/tracelens.yaml] --provider NAME [--model NAME] [--input-tokens N] [--output-tokens N] [--cached-tokens N] [--reasoning-tokens N] [--format text|json]")
}
