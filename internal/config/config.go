package config

import (
	"crypto/rand"
	"encoding/base64"
	"os"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Admin         AdminConfig     `mapstructure:"admin"`
	Firewalla     FirewallaConfig `mapstructure:"firewalla"`
	DatabasePath  string          `mapstructure:"database_path"`
	SessionSecret string          `mapstructure:"session_secret"`
}

type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

type FirewallaConfig struct {
	Host           string `mapstructure:"host"`
	APIKey         string `mapstructure:"api_key"`
	PollInterval   int    `mapstructure:"poll_interval"`   // seconds
	RequestTimeout int    `mapstructure:"request_timeout"` // seconds
}

func LoadOrInitialize(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Set defaults
	viper.SetDefault("database_path", "firewalla_bridge.db")
	viper.SetDefault("firewalla.poll_interval", 60)
	viper.SetDefault("firewalla.request_timeout", 15)

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Create new config with defaults
		cfg := &Config{
			DatabasePath:  viper.GetString("database_path"),
			SessionSecret: generateSessionSecret(),
			Firewalla: FirewallaConfig{
				PollInterval:   viper.GetInt("firewalla.poll_interval"),
				RequestTimeout: viper.GetInt("firewalla.request_timeout"),
			},
		}

		// Save initial config
		if err := SaveConfig(configPath, cfg); err != nil {
			return nil, err
		}

		return cfg, nil
	}

	// Read existing config
	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Firewalla.PollInterval <= 0 {
		cfg.Firewalla.PollInterval = viper.GetInt("firewalla.poll_interval")
	}
	if cfg.Firewalla.RequestTimeout <= 0 {
		cfg.Firewalla.RequestTimeout = viper.GetInt("firewalla.request_timeout")
	}

	// Ensure session secret exists
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = generateSessionSecret()
		if err := SaveConfig(configPath, &cfg); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func SaveConfig(configPath string, cfg *Config) error {
	viper.Set("admin.username", cfg.Admin.Username)
	viper.Set("admin.password_hash", cfg.Admin.PasswordHash)

	viper.Set("firewalla.host", cfg.Firewalla.Host)
	viper.Set("firewalla.api_key", cfg.Firewalla.APIKey)
	viper.Set("firewalla.poll_interval", cfg.Firewalla.PollInterval)
	viper.Set("firewalla.request_timeout", cfg.Firewalla.RequestTimeout)

	viper.Set("database_path", cfg.DatabasePath)
	viper.Set("session_secret", cfg.SessionSecret)

	return viper.WriteConfigAs(configPath)
}

// IsConfigured reports whether the API credentials are present. The bridge
// refuses to start without them.
func (c *Config) IsConfigured() bool {
	return c.Firewalla.Host != "" && c.Firewalla.APIKey != ""
}

// AdminConfigured reports whether an admin login exists. Without one the
// mutating API endpoints are left open.
func (c *Config) AdminConfigured() bool {
	return c.Admin.Username != "" && c.Admin.PasswordHash != ""
}

func (c *Config) SetAdminPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	c.Admin.PasswordHash = string(hash)
	return nil
}

func (c *Config) VerifyAdminPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(c.Admin.PasswordHash), []byte(password))
	return err == nil
}

func generateSessionSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// This should never happen with crypto/rand
		panic(err)
	}
	return base64.URLEncoding.EncodeToString(b)
}
