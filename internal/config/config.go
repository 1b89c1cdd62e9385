package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ongoingai/tracelens/internal/workspacestore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Pricing       PricingConfig       `yaml:"pricing"`
	Auth          AuthConfig          `yaml:"auth"`
	Workspaces    WorkspacesConfig    `yaml:"workspaces"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	MaxBodyBytes      int64  `yaml:"max_body_bytes"`
	ShutdownTimeoutMS int    `yaml:"shutdown_timeout_ms"`
}

func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// IngestConfig bounds span processing and the asynchronous span writer.
type IngestConfig struct {
	Concurrency   int `yaml:"concurrency"`
	SpanTimeoutMS int `yaml:"span_timeout_ms"`
	MaxBatch      int `yaml:"max_batch"`
	QueueSize     int `yaml:"queue_size"`
	BatchSize     int `yaml:"batch_size"`
}

type PricingConfig struct {
	OverridesPath string `yaml:"overrides_path"`
}

type AuthConfig struct {
	Enabled bool           `yaml:"enabled"`
	Header  string         `yaml:"header"`
	Keys    []APIKeyConfig `yaml:"keys"`
}

type APIKeyConfig struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Token         string   `yaml:"token"`
	TokenHash     string   `yaml:"token_hash"`
	WorkspaceID   string   `yaml:"workspace_id"`
	WorkspaceName string   `yaml:"workspace_name"`
	Role          string   `yaml:"role"`
	Permissions   []string `yaml:"permissions"`
}

// WorkspacesConfig selects where provider credentials and prompt documents
// are resolved from. The static driver serves the records listed here.
type WorkspacesConfig struct {
	Driver      string                              `yaml:"driver"`
	DSN         string                              `yaml:"dsn"`
	Credentials []workspacestore.ProviderCredential `yaml:"credentials"`
	Prompts     []workspacestore.PromptDocument     `yaml:"prompts"`
}

type ObservabilityConfig struct {
	OTel OTelConfig `yaml:"otel"`
}

type OTelConfig struct {
	Enabled                bool    `yaml:"enabled"`
	Endpoint               string  `yaml:"endpoint"`
	Insecure               bool    `yaml:"insecure"`
	ServiceName            string  `yaml:"service_name"`
	TracesEnabled          bool    `yaml:"traces_enabled"`
	MetricsEnabled         bool    `yaml:"metrics_enabled"`
	SamplingRatio          float64 `yaml:"sampling_ratio"`
	ExportTimeoutMS        int     `yaml:"export_timeout_ms"`
	MetricExportIntervalMS int     `yaml:"metric_export_interval_ms"`
}

const (
	StorageDriverSQLite   = "sqlite"
	StorageDriverPostgres = "postgres"

	WorkspacesDriverStatic   = "static"
	WorkspacesDriverPostgres = "postgres"
)

const (
	defaultOTELEndpoint               = "localhost:4318"
	defaultOTELServiceName            = "tracelens"
	defaultOTELSamplingRatio          = 1.0
	defaultOTELExportTimeoutMS        = 3000
	defaultOTELMetricExportIntervalMS = 10000
)

func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			MaxBodyBytes:      8 << 20,
			ShutdownTimeoutMS: 10000,
		},
		Storage: StorageConfig{
			Driver: StorageDriverSQLite,
			Path:   "./data/tracelens.db",
		},
		Ingest: IngestConfig{
			Concurrency:   8,
			SpanTimeoutMS: 5000,
			MaxBatch:      1000,
			QueueSize:     1024,
			BatchSize:     64,
		},
		Auth: AuthConfig{
			Enabled: false,
			Header:  "X-Tracelens-Key",
		},
		Workspaces: WorkspacesConfig{
			Driver: WorkspacesDriverStatic,
		},
		Observability: ObservabilityConfig{
			OTel: OTelConfig{
				Enabled:                false,
				Endpoint:               defaultOTELEndpoint,
				Insecure:               true,
				ServiceName:            defaultOTELServiceName,
				TracesEnabled:          true,
				MetricsEnabled:         true,
				SamplingRatio:          defaultOTELSamplingRatio,
				ExportTimeoutMS:        defaultOTELExportTimeoutMS,
				MetricExportIntervalMS: defaultOTELMetricExportIntervalMS,
			},
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			decoder := yaml.NewDecoder(bytes.NewReader(data))
			decoder.KnownFields(true)
			decodeErr := decoder.Decode(&cfg)
			if errors.Is(decodeErr, io.EOF) {
				decodeErr = nil
			}
			if decodeErr != nil {
				return Config{}, fmt.Errorf("parse yaml %q: %w", path, decodeErr)
			}
			// A trailing document would silently override nothing.
			var trailing any
			trailingErr := decoder.Decode(&trailing)
			if trailingErr != nil && !errors.Is(trailingErr, io.EOF) {
				return Config{}, fmt.Errorf("parse yaml %q: %w", path, trailingErr)
			}
			if trailing != nil {
				return Config{}, fmt.Errorf("parse yaml %q: multiple yaml documents are not supported", path)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks configuration invariants required at runtime.
func Validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535 (got %d)", cfg.Server.Port)
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be > 0 (got %d)", cfg.Server.MaxBodyBytes)
	}
	if cfg.Server.ShutdownTimeoutMS <= 0 {
		return fmt.Errorf("server.shutdown_timeout_ms must be > 0 (got %d)", cfg.Server.ShutdownTimeoutMS)
	}

	switch strings.TrimSpace(cfg.Storage.Driver) {
	case StorageDriverSQLite:
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return errors.New("storage.path is required when storage.driver=sqlite")
		}
	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return errors.New("storage.dsn is required when storage.driver=postgres")
		}
	default:
		return fmt.Errorf("storage.driver must be one of sqlite, postgres (got %q)", cfg.Storage.Driver)
	}

	if err := validateIngestConfig(cfg.Ingest); err != nil {
		return err
	}
	if err := validateAuthConfig(cfg.Auth); err != nil {
		return err
	}

	switch strings.TrimSpace(cfg.Workspaces.Driver) {
	case WorkspacesDriverStatic:
	case WorkspacesDriverPostgres:
		if strings.TrimSpace(cfg.Workspaces.DSN) == "" && strings.TrimSpace(cfg.Storage.DSN) == "" {
			return errors.New("workspaces.dsn or storage.dsn is required when workspaces.driver=postgres")
		}
	default:
		return fmt.Errorf("workspaces.driver must be one of static, postgres (got %q)", cfg.Workspaces.Driver)
	}
	for idx, credential := range cfg.Workspaces.Credentials {
		if strings.TrimSpace(credential.Name) == "" {
			return fmt.Errorf("workspaces.credentials[%d].name is required", idx)
		}
		if strings.TrimSpace(credential.Provider) == "" {
			return fmt.Errorf("workspaces.credentials[%d].provider is required", idx)
		}
	}
	for idx, prompt := range cfg.Workspaces.Prompts {
		if strings.TrimSpace(prompt.Path) == "" {
			return fmt.Errorf("workspaces.prompts[%d].path is required", idx)
		}
	}

	if err := validateOTelConfig(cfg.Observability.OTel); err != nil {
		return err
	}

	return nil
}

// WorkspacesDSN is the Postgres DSN used by the workspace store. It falls back
// to the span storage DSN.
func (cfg Config) WorkspacesDSN() string {
	if dsn := strings.TrimSpace(cfg.Workspaces.DSN); dsn != "" {
		return dsn
	}
	return strings.TrimSpace(cfg.Storage.DSN)
}

func validateIngestConfig(cfg IngestConfig) error {
	if cfg.Concurrency <= 0 {
		return fmt.Errorf("ingest.concurrency must be > 0 (got %d)", cfg.Concurrency)
	}
	if cfg.SpanTimeoutMS <= 0 {
		return fmt.Errorf("ingest.span_timeout_ms must be > 0 (got %d)", cfg.SpanTimeoutMS)
	}
	if cfg.MaxBatch <= 0 {
		return fmt.Errorf("ingest.max_batch must be > 0 (got %d)", cfg.MaxBatch)
	}
	if cfg.QueueSize <= 0 {
		return fmt.Errorf("ingest.queue_size must be > 0 (got %d)", cfg.QueueSize)
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > cfg.QueueSize {
		return fmt.Errorf("ingest.batch_size must be between 1 and ingest.queue_size (got %d)", cfg.BatchSize)
	}
	return nil
}

func validateAuthConfig(cfg AuthConfig) error {
	if strings.TrimSpace(cfg.Header) == "" {
		return errors.New("auth.header must not be empty")
	}
	if !cfg.Enabled {
		return nil
	}
	if len(cfg.Keys) == 0 {
		return errors.New("auth.keys must not be empty when auth.enabled=true")
	}
	seen := make(map[string]struct{}, len(cfg.Keys))
	for idx, key := range cfg.Keys {
		id := strings.TrimSpace(key.ID)
		if id == "" {
			return fmt.Errorf("auth.keys[%d].id is required", idx)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("auth.keys[%d].id %q is duplicated", idx, id)
		}
		seen[id] = struct{}{}
		if strings.TrimSpace(key.Token) == "" && strings.TrimSpace(key.TokenHash) == "" {
			return fmt.Errorf("auth.keys[%d] requires token or token_hash", idx)
		}
	}
	return nil
}

func validateOTelConfig(cfg OTelConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return errors.New("observability.otel.endpoint is required when observability.otel.enabled=true")
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		return errors.New("observability.otel.service_name is required when observability.otel.enabled=true")
	}
	if !cfg.TracesEnabled && !cfg.MetricsEnabled {
		return errors.New("observability.otel requires traces_enabled and/or metrics_enabled when enabled")
	}
	if cfg.SamplingRatio < 0 || cfg.SamplingRatio > 1 {
		return fmt.Errorf("observability.otel.sampling_ratio must be between 0 and 1 (got %f)", cfg.SamplingRatio)
	}
	if cfg.ExportTimeoutMS <= 0 {
		return fmt.Errorf("observability.otel.export_timeout_ms must be > 0 (got %d)", cfg.ExportTimeoutMS)
	}
	if cfg.MetricExportIntervalMS <= 0 {
		return fmt.Errorf("observability.otel.metric_export_interval_ms must be > 0 (got %d)", cfg.MetricExportIntervalMS)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if host := os.Getenv("TRACELENS_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if err := envInt("TRACELENS_PORT", &cfg.Server.Port); err != nil {
		return err
	}

	if storageDriver := os.Getenv("TRACELENS_STORAGE_DRIVER"); storageDriver != "" {
		cfg.Storage.Driver = storageDriver
	}
	if storagePath := os.Getenv("TRACELENS_STORAGE_PATH"); storagePath != "" {
		cfg.Storage.Path = storagePath
	}
	if storageDSN := os.Getenv("TRACELENS_STORAGE_DSN"); storageDSN != "" {
		cfg.Storage.DSN = storageDSN
	}

	if err := envInt("TRACELENS_INGEST_CONCURRENCY", &cfg.Ingest.Concurrency); err != nil {
		return err
	}
	if err := envInt("TRACELENS_INGEST_MAX_BATCH", &cfg.Ingest.MaxBatch); err != nil {
		return err
	}
	if err := envInt("TRACELENS_INGEST_SPAN_TIMEOUT_MS", &cfg.Ingest.SpanTimeoutMS); err != nil {
		return err
	}

	if overrides := os.Getenv("TRACELENS_PRICING_OVERRIDES"); overrides != "" {
		cfg.Pricing.OverridesPath = overrides
	}

	if authEnabled := os.Getenv("TRACELENS_AUTH_ENABLED"); authEnabled != "" {
		v, err := strconv.ParseBool(authEnabled)
		if err != nil {
			return fmt.Errorf("invalid TRACELENS_AUTH_ENABLED: %w", err)
		}
		cfg.Auth.Enabled = v
	}
	if authHeader := os.Getenv("TRACELENS_AUTH_HEADER"); authHeader != "" {
		cfg.Auth.Header = authHeader
	}

	if workspacesDriver := os.Getenv("TRACELENS_WORKSPACES_DRIVER"); workspacesDriver != "" {
		cfg.Workspaces.Driver = workspacesDriver
	}
	if workspacesDSN := os.Getenv("TRACELENS_WORKSPACES_DSN"); workspacesDSN != "" {
		cfg.Workspaces.DSN = workspacesDSN
	}

	return applyOTelEnv(&cfg.Observability.OTel)
}

func applyOTelEnv(cfg *OTelConfig) error {
	otelConfigured := false
	otelSDKDisabledSet := false
	if sdkDisabled := strings.TrimSpace(os.Getenv("OTEL_SDK_DISABLED")); sdkDisabled != "" {
		v, err := strconv.ParseBool(sdkDisabled)
		if err != nil {
			return fmt.Errorf("invalid OTEL_SDK_DISABLED: %w", err)
		}
		cfg.Enabled = !v
		otelSDKDisabledSet = true
		otelConfigured = true
	}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); endpoint != "" {
		cfg.Endpoint = endpoint
		otelConfigured = true
	}
	if insecure := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); insecure != "" {
		v, err := strconv.ParseBool(insecure)
		if err != nil {
			return fmt.Errorf("invalid OTEL_EXPORTER_OTLP_INSECURE: %w", err)
		}
		cfg.Insecure = v
		otelConfigured = true
	}
	if serviceName := strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")); serviceName != "" {
		cfg.ServiceName = serviceName
		otelConfigured = true
	}
	if tracesExporter := strings.TrimSpace(os.Getenv("OTEL_TRACES_EXPORTER")); tracesExporter != "" {
		enabled, err := otelExporterEnabled(tracesExporter)
		if err != nil {
			return fmt.Errorf("invalid OTEL_TRACES_EXPORTER: %w", err)
		}
		cfg.TracesEnabled = enabled
		otelConfigured = true
	}
	if metricsExporter := strings.TrimSpace(os.Getenv("OTEL_METRICS_EXPORTER")); metricsExporter != "" {
		enabled, err := otelExporterEnabled(metricsExporter)
		if err != nil {
			return fmt.Errorf("invalid OTEL_METRICS_EXPORTER: %w", err)
		}
		cfg.MetricsEnabled = enabled
		otelConfigured = true
	}
	if samplingRatio := strings.TrimSpace(os.Getenv("OTEL_TRACES_SAMPLER_ARG")); samplingRatio != "" {
		v, err := strconv.ParseFloat(samplingRatio, 64)
		if err != nil {
			return fmt.Errorf("invalid OTEL_TRACES_SAMPLER_ARG: %w", err)
		}
		cfg.SamplingRatio = v
		otelConfigured = true
	}
	if strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TIMEOUT")) != "" {
		if err := envInt("OTEL_EXPORTER_OTLP_TIMEOUT", &cfg.ExportTimeoutMS); err != nil {
			return err
		}
		otelConfigured = true
	}
	if strings.TrimSpace(os.Getenv("OTEL_METRIC_EXPORT_INTERVAL")) != "" {
		if err := envInt("OTEL_METRIC_EXPORT_INTERVAL", &cfg.MetricExportIntervalMS); err != nil {
			return err
		}
		otelConfigured = true
	}
	if otelConfigured && !otelSDKDisabledSet {
		cfg.Enabled = true
	}
	return nil
}

func envInt(name string, target *int) error {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*target = v
	return nil
}

func otelExporterEnabled(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "otlp":
		return true, nil
	case "none":
		return false, nil
	default:
		return false, fmt.Errorf("must be one of otlp, none (got %q)", value)
	}
}
