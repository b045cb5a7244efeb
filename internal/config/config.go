package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"careline/internal/domain"
	"careline/internal/engine/capacity"
	"careline/internal/engine/rules"
)

// FileName is the config file looked up at the workspace root.
const FileName = "careline.yml"

//go:embed schema.json
var schemaJSON string

const schemaURL = "https://careline.local/schemas/config.schema.json"

// Config models careline.yml.
type Config struct {
	Workload domain.WorkloadPolicy `yaml:"workload" json:"workload"`
	Rules    []rules.Definition    `yaml:"rules,omitempty" json:"rules,omitempty"`
	Release  struct {
		Reminders bool `yaml:"reminders" json:"reminders"`
	} `yaml:"release" json:"release"`
	Auth struct {
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header" json:"allow_legacy_actor_header"`
		TokenTTL               string `yaml:"token_ttl,omitempty" json:"token_ttl,omitempty"`
	} `yaml:"auth" json:"auth"`
	Server struct {
		Addr     string `yaml:"addr,omitempty" json:"addr,omitempty"`
		BasePath string `yaml:"base_path,omitempty" json:"base_path,omitempty"`
	} `yaml:"server" json:"server"`
	Log struct {
		Level  string `yaml:"level,omitempty" json:"level,omitempty"`
		Format string `yaml:"format,omitempty" json:"format,omitempty"`
	} `yaml:"log" json:"log"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

// WebhookConfig posts audit events to an external endpoint. An empty Events
// list means every event.
type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	// MaxPerSecond caps deliveries to this hook. Zero means unlimited.
	MaxPerSecond float64 `yaml:"max_per_second,omitempty" json:"max_per_second,omitempty"`
}

// Active reports whether the hook should receive deliveries.
func (w WebhookConfig) Active() bool {
	return strings.TrimSpace(w.URL) != "" && (w.Enabled == nil || *w.Enabled)
}

// Validate checks the semantic rules the schema cannot express.
func (c *Config) Validate() error {
	if err := capacity.ValidatePolicy(c.Workload); err != nil {
		return fmt.Errorf("config.workload: %w", err)
	}
	if _, err := rules.Compile(c.Rules); err != nil {
		return fmt.Errorf("config.rules: %w", err)
	}
	for i, w := range c.Webhooks {
		u, err := url.Parse(w.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.webhooks[%d].url: must be an http(s) URL, got %q", i, w.URL)
		}
	}
	if c.Auth.TokenTTL != "" {
		if _, err := time.ParseDuration(c.Auth.TokenTTL); err != nil {
			return fmt.Errorf("config.auth.token_ttl: %w", err)
		}
	}
	return nil
}

// TokenTTL returns the dev token lifetime, one hour when unset.
func (c *Config) TokenTTL() time.Duration {
	if d, err := time.ParseDuration(c.Auth.TokenTTL); err == nil && d > 0 {
		return d
	}
	return time.Hour
}

// CompileRules compiles the custom trigger rules.
func (c *Config) CompileRules() (*rules.Set, error) {
	return rules.Compile(c.Rules)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with cl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := Load(workspace)
	if err == nil {
		return cfg, nil
	}
	if _, statErr := os.Stat(Path(workspace)); errors.Is(statErr, os.ErrNotExist) {
		return Default(), nil
	}
	return nil, err
}

// Default returns the seed config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(DefaultYAML)).Decode(&cfg)
	return &cfg
}

// FromYAML parses, schema-checks and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.Workload.SeverityPoints == nil {
		cfg.Workload = domain.DefaultWorkloadPolicy()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config back to YAML.
func (c *Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("config schema load failed: %w", err)
	}
	return c.Compile(schemaURL)
}

func validateSchema(raw any) error {
	schema, err := compileSchema()
	if err != nil {
		return err
	}
	// Round-trip through JSON so the validator sees JSON types only.
	b, err := json.Marshal(normalize(raw))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}

// normalize turns YAML maps with non-string keys into string-keyed maps.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

const DefaultYAML = `workload:
  max_points: 15
  amber_threshold: 0.7
  severity_points:
    1: 1
    2: 2
    3: 3
    4: 4

rules: []

release:
  reminders: true

auth:
  allow_legacy_actor_header: false
  token_ttl: 1h

server:
  addr: 127.0.0.1:8080
  base_path: /v0

log:
  level: info
  format: console
`
