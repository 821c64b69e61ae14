package fitting

import (
	"fmt"
	"os"

	"github.com/kwv/lomsac/ransac"
	"gopkg.in/yaml.v3"
)

// Config represents the full configuration file
type Config struct {
	Estimator ransac.LOOptions `yaml:"estimator" json:"estimator"`
	MQTT      MQTTConfig       `yaml:"mqtt" json:"mqtt"`
	HTTP      HTTPConfig       `yaml:"http" json:"http"`
	Store     StoreConfig      `yaml:"store" json:"store"`
	Render    RenderConfig     `yaml:"render" json:"render"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker   string `yaml:"broker" json:"broker"`
	ClientID string `yaml:"client_id" json:"client_id"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	Prefix   string `yaml:"prefix" json:"prefix"`
	QoS      byte   `yaml:"qos" json:"qos"`
	Retain   bool   `yaml:"retain" json:"retain"`
}

// HTTPConfig holds the API server settings
type HTTPConfig struct {
	Port int `yaml:"port" json:"port"`
}

// StoreConfig locates the run history database. An empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// RenderConfig controls plot output
type RenderConfig struct {
	Format string `yaml:"format" json:"format"` // "vector" or "raster"
	Width  int    `yaml:"width" json:"width"`   // Raster width in pixels
}

// DefaultConfig returns a configuration that runs without any file.
func DefaultConfig() *Config {
	return &Config{
		Estimator: ransac.DefaultLOOptions(),
		MQTT: MQTTConfig{
			ClientID: "lomsac",
			Prefix:   "lomsac",
			QoS:      1,
		},
		HTTP:   HTTPConfig{Port: 4040},
		Render: RenderConfig{Format: "vector", Width: 800},
	}
}

// LoadConfig loads the configuration from a YAML file on top of the defaults.
// An empty path skips the file. Environment variables override both.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnv overlays MQTT_* and LOMSAC_STORE environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		c.MQTT.ClientID = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv("LOMSAC_STORE"); v != "" {
		c.Store.Path = v
	}
}

// Validate checks the estimator options and the service settings.
func (c *Config) Validate() error {
	if err := c.Estimator.Validate(); err != nil {
		return fmt.Errorf("estimator: %w", err)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.MQTT.Prefix == "" {
		return fmt.Errorf("mqtt.prefix is required")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	switch c.Render.Format {
	case "vector", "raster":
	default:
		return fmt.Errorf("render.format must be vector or raster, got %q", c.Render.Format)
	}
	if c.Render.Width <= 0 {
		return fmt.Errorf("render.width must be positive, got %d", c.Render.Width)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
