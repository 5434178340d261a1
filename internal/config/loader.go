package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq"},
	"embeddings": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown fields are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.LLM.Name != "" && cfg.Providers.LLM.APIKey == "" {
		errs = append(errs, errors.New("providers.llm.api_key is required"))
	}
	for i, fb := range cfg.Providers.LLMFallbacks {
		validateProviderName("llm", fb.Name)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
		if fb.Name != "" && fb.Name != "ollama" && fb.APIKey == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].api_key is required", i))
		}
	}
	if cfg.Providers.Embeddings.Name == "" {
		errs = append(errs, errors.New("providers.embeddings.name is required"))
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Providers.Embeddings.APIKey == "" {
		errs = append(errs, errors.New("providers.embeddings.api_key is required"))
	}
	if cfg.Providers.Realtime.APIKey == "" {
		errs = append(errs, errors.New("providers.realtime.api_key is required"))
	}
	if t := cfg.Providers.Realtime.VADThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("providers.realtime.vad_threshold %.2f is out of range [0, 1]", t))
	}

	// Catalog: exactly one source.
	switch {
	case cfg.Catalog.FromFiles() && cfg.Catalog.FromPostgres():
		errs = append(errs, errors.New("catalog: rows_csv/vectors_json and postgres_dsn are mutually exclusive"))
	case cfg.Catalog.FromFiles():
		if cfg.Catalog.RowsCSV == "" || cfg.Catalog.VectorsJSON == "" {
			errs = append(errs, errors.New("catalog: rows_csv and vectors_json must both be set"))
		}
	case cfg.Catalog.FromPostgres():
		if cfg.Catalog.Table == "" {
			errs = append(errs, errors.New("catalog.table is required when postgres_dsn is set"))
		}
	default:
		errs = append(errs, errors.New("catalog: either rows_csv/vectors_json or postgres_dsn must be configured"))
	}
	if cfg.Catalog.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("catalog.embedding_dimensions %d must not be negative", cfg.Catalog.EmbeddingDimensions))
	}

	// Pipeline
	if cfg.Pipeline.TopK < 0 {
		errs = append(errs, fmt.Errorf("pipeline.top_k %d must not be negative", cfg.Pipeline.TopK))
	}
	if cfg.Pipeline.CrossSellMin < 0 || cfg.Pipeline.CrossSellMax < 0 {
		errs = append(errs, errors.New("pipeline.cross_sell_min and cross_sell_max must not be negative"))
	}
	if cfg.Pipeline.CrossSellMax != 0 && cfg.Pipeline.CrossSellMax < cfg.Pipeline.CrossSellMin {
		errs = append(errs, fmt.Errorf("pipeline.cross_sell_max %d is below cross_sell_min %d", cfg.Pipeline.CrossSellMax, cfg.Pipeline.CrossSellMin))
	}
	if cfg.Pipeline.MatchTimeout < 0 {
		errs = append(errs, errors.New("pipeline.match_timeout must not be negative"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
