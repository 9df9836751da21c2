package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultServerURL = "http://localhost:8080"

// CLIConfig is what login remembers between runs.
type CLIConfig struct {
	ServerURL string `yaml:"server_url,omitempty"`
	Token     string `yaml:"token,omitempty"`
	Email     string `yaml:"email,omitempty"`
}

// configPath returns $ARRIENDA_CONFIG, or arrienda/config.yaml under
// $XDG_CONFIG_HOME (default ~/.config).
func configPath() (string, error) {
	if p := os.Getenv("ARRIENDA_CONFIG"); p != "" {
		return p, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("finding home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "arrienda", "config.yaml"), nil
}

// loadConfig reads the CLI config. A missing file yields the zero value.
func loadConfig() (CLIConfig, error) {
	path, err := configPath()
	if err != nil {
		return CLIConfig{}, err
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return CLIConfig{}, nil
	case err != nil:
		return CLIConfig{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var cfg CLIConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return CLIConfig{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// saveConfig writes the CLI config readable by the owner only; it holds a
// bearer token.
func saveConfig(cfg CLIConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// getServerURL: $ARRIENDA_SERVER_URL, then the config file, then localhost.
func getServerURL() string {
	if v := os.Getenv("ARRIENDA_SERVER_URL"); v != "" {
		return strings.TrimRight(v, "/")
	}
	if cfg, err := loadConfig(); err == nil && cfg.ServerURL != "" {
		return cfg.ServerURL
	}
	return defaultServerURL
}

// getToken: $ARRIENDA_TOKEN, then the config file.
func getToken() string {
	if v := os.Getenv("ARRIENDA_TOKEN"); v != "" {
		return v
	}
	cfg, _ := loadConfig()
	return cfg.Token
}
