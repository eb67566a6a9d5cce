package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models shelter.yml.
type Config struct {
	Shelter struct {
		Name         string `yaml:"name"`
		ContactPhone string `yaml:"contact_phone"`
	} `yaml:"shelter"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret     string `yaml:"jwt_secret"`
		JWTIssuer     string `yaml:"jwt_issuer"`
		JWTAudience   string `yaml:"jwt_audience"`
		AllowDevLogin bool   `yaml:"allow_dev_login"`
	} `yaml:"auth"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Lifecycle struct {
		// CascadeRejectionReason is stored on sibling requests rejected when
		// another request for the same animal is approved.
		CascadeRejectionReason string `yaml:"cascade_rejection_reason"`
	} `yaml:"lifecycle"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with shelter config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Lifecycle.CascadeRejectionReason) == "" {
		return fmt.Errorf("config.lifecycle.cascade_rejection_reason is required")
	}
	switch c.Database.Driver {
	case "", "sqlite":
	case "pgx", "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("config.database.dsn is required for driver %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("config.database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.logging.format must be text or json")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.logging.level %q is not a known level", c.Logging.Level)
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "shelter.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys
// keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `shelter:
  name: "Приют для животных"
  contact_phone: "+7 000 0000 0000"

server:
  addr: 127.0.0.1:8080
  base_path: /v1

database:
  driver: sqlite
  dsn: ""

auth:
  jwt_secret: ""
  jwt_issuer: shelter
  jwt_audience: ""
  allow_dev_login: false

logging:
  level: info
  format: text

lifecycle:
  cascade_rejection_reason: "Заявка отклонена: животное было усыновлено другим пользователем"
`
