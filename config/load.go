package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const DefaultConfigPath = "config.yaml"

// Load reads .env (if any) into the environment, then the yaml file at path
// (if it exists) and finally environment overrides.
func Load(path string) (*AppConfig, error) {
	_ = godotenv.Load()
	var cfg AppConfig
	if strings.TrimSpace(path) == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read env config: %w", err)
		}
	} else {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported db_driver %q", c.DBDriver)
	}
	if c.DBDriver == "sqlite" && strings.TrimSpace(c.DBPath) == "" {
		return errors.New("db_path is required for sqlite")
	}
	if c.TLSEnabled && (c.TLSCert == "" || c.TLSKey == "") {
		return errors.New("tls_cert and tls_key are required when tls is enabled")
	}
	if c.Incidents.UploadConcurrency < 0 {
		return errors.New("incidents.upload_concurrency must not be negative")
	}
	return nil
}

// Usage renders the supported environment variables.
func Usage() string {
	var cfg AppConfig
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}
