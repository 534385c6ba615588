package scaffold

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// configSchema validates the structure of JSON config documents before they
// are decoded. YAML and TOML sources rely on typed decoding plus Validate.
const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "listen": {"type": "string"},
    "contextRoot": {"type": "string"},
    "controllersPath": {"type": "string"},
    "shutdownTimeout": {"type": "integer", "minimum": 1},
    "auth": {
      "type": "object",
      "properties": {
        "jwt": {
          "type": "object",
          "properties": {
            "enabled": {"type": "boolean"},
            "secret": {"type": "string"},
            "algorithm": {"type": "string"}
          }
        },
        "basic": {
          "type": "object",
          "properties": {
            "enabled": {"type": "boolean"},
            "users": {
              "oneOf": [
                {"type": "object", "additionalProperties": {"type": "string"}},
                {
                  "type": "array",
                  "items": {
                    "type": "object",
                    "required": ["username", "password"],
                    "properties": {
                      "username": {"type": "string"},
                      "password": {"type": "string"}
                    }
                  }
                }
              ]
            }
          }
        }
      }
    },
    "scheduler": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "mode": {"enum": ["standalone", "attached"]},
        "timezone": {"type": "string"},
        "jobs": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name", "cron", "module"],
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "cron": {"type": "string", "minLength": 1},
              "module": {"type": "string", "minLength": 1},
              "timezone": {"type": "string"},
              "leaderOnly": {"type": "boolean"},
              "options": {"type": "object"},
              "enabled": {"type": "boolean"}
            }
          }
        }
      }
    },
    "cluster": {
      "type": "object",
      "properties": {"enabled": {"type": "boolean"}}
    }
  }
}`

// LoadConfig reads a config file, selecting the feeder by extension
// (.json, .yaml/.yml, .toml). JSON documents are validated against the
// embedded schema before decoding. Environment overrides are applied last
// and the result is validated.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := NewConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := feedJSON(data, cfg); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decoding YAML config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decoding TOML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrConfigFileUnsupported, filepath.Ext(path))
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// feedJSON validates raw JSON against the embedded schema, then decodes it.
func feedJSON(data []byte, cfg *Config) error {
	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(configSchema))
	if err != nil {
		return fmt.Errorf("parsing embedded config schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("scaffold-config.json", schemaDoc); err != nil {
		return fmt.Errorf("registering config schema: %w", err)
	}
	schema, err := compiler.Compile("scaffold-config.json")
	if err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decoding JSON config: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	if err := yamlCompatibleJSONDecode(data, cfg); err != nil {
		return fmt.Errorf("decoding JSON config: %w", err)
	}
	return nil
}

// yamlCompatibleJSONDecode decodes JSON through the yaml decoder so the
// UserTable custom decoding applies uniformly. JSON is a YAML subset.
func yamlCompatibleJSONDecode(data []byte, cfg *Config) error {
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides overrides a closed set of fields from SCAFFOLD_* variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCAFFOLD_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("SCAFFOLD_CONTEXT_ROOT"); v != "" {
		cfg.ContextRoot = v
	}
	if v := os.Getenv("SCAFFOLD_JWT_SECRET"); v != "" {
		cfg.Auth.JWT.Secret = v
	}
	if v := os.Getenv("SCAFFOLD_CLUSTER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cluster.Enabled = b
		}
	}
	if v := os.Getenv("SCAFFOLD_SCHEDULER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Scheduler.Enabled = b
		}
	}
}
