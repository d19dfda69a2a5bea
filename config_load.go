package dispatch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// configSchema is the JSON Schema applied to JSON config files before
// decoding, so malformed documents fail with a field-level error instead of
// a half-populated Config.
const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["providers"],
  "properties": {
    "providers": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["kind"],
        "properties": {
          "kind": {"enum": ["gemini", "openai", "anthropic", "bedrock", "ollama"]},
          "tier": {"enum": ["", "primary", "fallback", "local"]},
          "api_key_env": {"type": "string"},
          "api_key": {"type": "string"},
          "base_url": {"type": "string"},
          "model": {"type": "string"},
          "region": {"type": "string"},
          "circuit_breaker": {"$ref": "#/$defs/breaker"}
        }
      }
    },
    "circuit_breaker": {"$ref": "#/$defs/breaker"},
    "retry": {
      "type": "object",
      "properties": {
        "max_attempts": {"type": "integer", "minimum": 1},
        "initial_delay_ms": {"type": "integer", "minimum": 0},
        "max_delay_ms": {"type": "integer", "minimum": 0},
        "backoff_multiplier": {"type": "number", "minimum": 1},
        "retryable_markers": {"type": "array", "items": {"type": "string"}}
      }
    },
    "usage": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "token_limit": {"type": "integer", "minimum": 0},
          "window": {"type": "string"},
          "requests_per_second": {"type": "number", "minimum": 0},
          "burst": {"type": "number", "minimum": 0}
        }
      }
    },
    "failover_store": {
      "type": "object",
      "properties": {
        "driver": {"enum": ["", "sqlite", "postgres", "memory", "none"]},
        "dsn": {"type": "string"}
      }
    }
  },
  "$defs": {
    "breaker": {
      "type": "object",
      "properties": {
        "failure_threshold": {"type": "integer", "minimum": 1},
        "timeout": {"type": "string"}
      }
    }
  }
}`

// LoadConfig reads and parses a config file from the given path.
// Supported formats: JSON (.json), YAML (.yaml, .yml). JSON documents are
// additionally checked against the embedded schema.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := validateConfigSchema(data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	return &cfg, nil
}

func validateConfigSchema(data []byte) error {
	schema, err := jsonschema.CompileString("config.schema.json", configSchema)
	if err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing JSON config: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("config schema violation: %w", err)
	}
	return nil
}

// ValidateConfig validates a Config for correctness.
func ValidateConfig(cfg Config) error {
	if len(cfg.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}

	seen := make(map[string]bool, len(cfg.Providers))
	for i, pc := range cfg.Providers {
		switch pc.Kind {
		case "gemini", "openai", "anthropic", "bedrock", "ollama":
		default:
			return fmt.Errorf("provider %d: unknown kind %q", i, pc.Kind)
		}
		if seen[pc.Kind] {
			return fmt.Errorf("provider %d: duplicate kind %q", i, pc.Kind)
		}
		seen[pc.Kind] = true
		switch pc.Tier {
		case "", "primary", "fallback", "local":
		default:
			return fmt.Errorf("provider %d (%s): unknown tier %q", i, pc.Kind, pc.Tier)
		}
		if pc.CircuitBreaker != nil {
			if err := validateBreaker(*pc.CircuitBreaker); err != nil {
				return fmt.Errorf("provider %d (%s): %w", i, pc.Kind, err)
			}
		}
	}

	if err := validateBreaker(cfg.CircuitBreaker); err != nil {
		return err
	}

	if cfg.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry max_attempts must not be negative")
	}
	if cfg.Retry.BackoffMultiplier != 0 && cfg.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("retry backoff_multiplier must be at least 1")
	}
	if cfg.Retry.MaxDelayMs != 0 && cfg.Retry.MaxDelayMs < cfg.Retry.InitialDelayMs {
		return fmt.Errorf("retry max_delay_ms must not be below initial_delay_ms")
	}

	for name, uc := range cfg.Usage {
		if uc.TokenLimit < 0 {
			return fmt.Errorf("usage %s: token_limit must not be negative", name)
		}
		if uc.Window != "" {
			if _, err := time.ParseDuration(uc.Window); err != nil {
				return fmt.Errorf("usage %s: invalid window: %w", name, err)
			}
		}
	}

	switch cfg.FailoverStore.Driver {
	case "", "sqlite", "postgres", "memory", "none":
	default:
		return fmt.Errorf("unknown failover store driver: %q", cfg.FailoverStore.Driver)
	}
	if cfg.FailoverStore.Driver == "postgres" && strings.TrimSpace(cfg.FailoverStore.DSN) == "" {
		return fmt.Errorf("postgres failover store requires a dsn")
	}

	return nil
}

func validateBreaker(bc BreakerConfig) error {
	if bc.FailureThreshold < 0 {
		return fmt.Errorf("circuit breaker failure_threshold must not be negative")
	}
	if bc.Timeout != "" {
		if _, err := time.ParseDuration(bc.Timeout); err != nil {
			return fmt.Errorf("invalid circuit breaker timeout: %w", err)
		}
	}
	return nil
}
