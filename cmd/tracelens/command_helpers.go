package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ongoingai/tracelens/internal/config"
	"github.com/ongoingai/tracelens/internal/pricing"
	"github.com/ongoingai/tracelens/internal/spanstore"
)

const (
	configStageLoad     = "load"
	configStageValidate = "validate"
)

// normalizeTextJSONFormat validates command output format flags with shared semantics.
func normalizeTextJSONFormat(command, rawValue, defaultValue string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(rawValue))
	if normalized == "" {
		normalized = strings.TrimSpace(defaultValue)
	}
	switch normalized {
	case "text", "json":
		return normalized, nil
	default:
		return "", fmt.Errorf("invalid %s format %q: expected text or json", strings.TrimSpace(command), rawValue)
	}
}

// loadAndValidateConfig resolves config and reports which stage failed.
func loadAndValidateConfig(configPath string) (config.Config, string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, configStageLoad, err
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, configStageValidate, err
	}
	return cfg, "", nil
}

func reportConfigError(errOut io.Writer, stage string, err error) {
	if stage == configStageLoad {
		fmt.Fprintf(errOut, "failed to load config: %v\n", err)
		return
	}
	fmt.Fprintf(errOut, "config is invalid: %v\n", err)
}

func loadPricingRegistry(cfg config.Config) (*pricing.Registry, error) {
	path := strings.TrimSpace(cfg.Pricing.OverridesPath)
	if path == "" {
		return pricing.DefaultRegistry(), nil
	}
	overrides, err := pricing.LoadOverrides(path)
	if err != nil {
		return nil, err
	}
	return pricing.NewRegistry(overrides), nil
}

var openSpanStore = func(cfg config.Config) (spanstore.Store, error) {
	switch strings.TrimSpace(cfg.Storage.Driver) {
	case config.StorageDriverSQLite:
		return spanstore.NewSQLiteStore(cfg.Storage.Path)
	case config.StorageDriverPostgres:
		return spanstore.NewPostgresStore(cfg.Storage.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage.driver %q", cfg.Storage.Driver)
	}
}

func closeSpanStoreWithWarning(store spanstore.Store, errOut io.Writer) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		fmt.Fprintf(errOut, "warning: failed to close span store: %v\n", err)
	}
}

func writeJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
