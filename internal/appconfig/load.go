package appconfig

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty,
// uses DefaultConfigPath. A missing file yields the defaults; a present
// file must carry the current config_version.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("env_file", cfg.EnvFile)
	v.SetDefault("console.buffer_max_lines", cfg.Console.BufferMaxLines)
	v.SetDefault("console.theme", cfg.Console.Theme)
	v.SetDefault("model.name", cfg.Model.Name)
	v.SetDefault("model.base_url", cfg.Model.BaseURL)
	v.SetDefault("model.api_key_env", cfg.Model.APIKeyEnv)
	v.SetDefault("model.copilot_name", cfg.Model.CopilotName)
	v.SetDefault("model.persona", cfg.Model.Persona)
	v.SetDefault("model.max_action_rounds", cfg.Model.MaxActionRounds)
	v.SetDefault("venue.kind", cfg.Venue.Kind)
	v.SetDefault("venue.label", cfg.Venue.Label)
	v.SetDefault("venue.base_url", cfg.Venue.BaseURL)
	v.SetDefault("venue.api_key_env", cfg.Venue.APIKeyEnv)
	v.SetDefault("ssh.addr", cfg.SSH.Addr)
	v.SetDefault("ssh.host_key_path", cfg.SSH.HostKeyPath)
	v.SetDefault("auth.user_file", cfg.Auth.UserFile)
	v.SetDefault("auth.seed_users", cfg.Auth.SeedUsers)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return Config{}, err
			}
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.Venue.Kind {
	case "sim":
	case "http":
		if err := validateBaseURL(cfg.Venue.BaseURL, "venue.base_url"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported venue.kind %q (want sim or http)", cfg.Venue.Kind)
	}
	if strings.TrimSpace(cfg.Model.Name) == "" {
		return fmt.Errorf("model.name is required")
	}
	if err := validateBaseURL(cfg.Model.BaseURL, "model.base_url"); err != nil {
		return err
	}
	if cfg.Console.BufferMaxLines <= 0 {
		return fmt.Errorf("console.buffer_max_lines must be positive")
	}
	return nil
}

func validateBaseURL(raw, field string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must include scheme and host (e.g. https://example.com)", field)
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.EnvFile = expandEnv(cfg.EnvFile)
	cfg.Model.BaseURL = expandEnv(cfg.Model.BaseURL)
	cfg.Venue.BaseURL = expandEnv(cfg.Venue.BaseURL)
	cfg.SSH.HostKeyPath = expandEnv(cfg.SSH.HostKeyPath)
	cfg.Auth.UserFile = expandEnv(cfg.Auth.UserFile)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
