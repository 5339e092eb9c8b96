package http

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings such as
// "20s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Endpoint is the YAML configuration of one provider endpoint.
type Endpoint struct {
	URL         string   `yaml:"url"`
	Timeout     Duration `yaml:"timeout"`
	CallTimeout Duration `yaml:"call_timeout"`
}

// Config is the YAML configuration of all consumed endpoints.
type Config struct {
	Card     Endpoint `yaml:"card"`
	Redirect Endpoint `yaml:"redirect"`
	Catalog  Endpoint `yaml:"catalog"`
}

// LoadConfig reads a YAML config file. Environment variables
// CHECKOUT_CARD_URL, CHECKOUT_REDIRECT_URL and CHECKOUT_CATALOG_URL
// override the file's endpoint URLs.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if v := os.Getenv("CHECKOUT_CARD_URL"); v != "" {
		cfg.Card.URL = v
	}
	if v := os.Getenv("CHECKOUT_REDIRECT_URL"); v != "" {
		cfg.Redirect.URL = v
	}
	if v := os.Getenv("CHECKOUT_CATALOG_URL"); v != "" {
		cfg.Catalog.URL = v
	}
	return &cfg, nil
}

// ClientConfig converts an endpoint to a client config.
func (e Endpoint) ClientConfig() *ClientConfig {
	return &ClientConfig{
		URL:         e.URL,
		Timeout:     time.Duration(e.Timeout),
		CallTimeout: time.Duration(e.CallTimeout),
	}
}
