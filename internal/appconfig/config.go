// Package appconfig loads and writes the pitline YAML configuration.
// Secrets never live here; the config only names which .env keys hold
// them.
package appconfig

import (
	"os"
	"path/filepath"

	"github.com/pitline/pitline/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	EnvFile       string        `mapstructure:"env_file" yaml:"env_file"`
	Console       ConsoleConfig `mapstructure:"console" yaml:"console"`
	Model         ModelConfig   `mapstructure:"model" yaml:"model"`
	Venue         VenueConfig   `mapstructure:"venue" yaml:"venue"`
	SSH           SSHConfig     `mapstructure:"ssh" yaml:"ssh"`
	Auth          AuthConfig    `mapstructure:"auth" yaml:"auth"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// ConsoleConfig controls transcript behavior and appearance.
type ConsoleConfig struct {
	BufferMaxLines int    `mapstructure:"buffer_max_lines" yaml:"buffer_max_lines"`
	Theme          string `mapstructure:"theme" yaml:"theme"`
}

// ModelConfig configures the LLM backend.
type ModelConfig struct {
	Name            string `mapstructure:"name" yaml:"name"`
	BaseURL         string `mapstructure:"base_url" yaml:"base_url"`
	APIKeyEnv       string `mapstructure:"api_key_env" yaml:"api_key_env"`
	CopilotName     string `mapstructure:"copilot_name" yaml:"copilot_name"`
	Persona         string `mapstructure:"persona" yaml:"persona"`
	MaxActionRounds int    `mapstructure:"max_action_rounds" yaml:"max_action_rounds"`
}

// VenueConfig configures the trading venue backend.
type VenueConfig struct {
	Kind      string `mapstructure:"kind" yaml:"kind"` // "sim" or "http"
	Label     string `mapstructure:"label" yaml:"label"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	APIKeyEnv string `mapstructure:"api_key_env" yaml:"api_key_env"`
}

// SSHConfig configures the SSH transport.
type SSHConfig struct {
	Addr        string `mapstructure:"addr" yaml:"addr"`
	HostKeyPath string `mapstructure:"host_key_path" yaml:"host_key_path"`
}

// AuthConfig configures auth storage and seed users.
type AuthConfig struct {
	UserFile  string     `mapstructure:"user_file" yaml:"user_file"`
	SeedUsers []SeedUser `mapstructure:"seed_users" yaml:"seed_users"`
}

// SeedUser seeds a user record in the auth store.
type SeedUser struct {
	Username     string `mapstructure:"username" yaml:"username"`
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash"`
	TOTPSecret   string `mapstructure:"totp_secret" yaml:"totp_secret"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".pitline", "state"),
		EnvFile:       filepath.Join(home, ".pitline", ".env"),
		Console: ConsoleConfig{
			BufferMaxLines: schema.DefaultBufferMaxLines,
			Theme:          string(schema.DefaultTheme),
		},
		Model: ModelConfig{
			Name:            "gpt-4o",
			BaseURL:         "https://api.openai.com/v1",
			APIKeyEnv:       "OPENAI_API_KEY",
			CopilotName:     "pit",
			Persona:         "",
			MaxActionRounds: 4,
		},
		Venue: VenueConfig{
			Kind:      "sim",
			Label:     "paper",
			BaseURL:   "",
			APIKeyEnv: "VENUE_API_KEY",
		},
		SSH: SSHConfig{
			Addr:        ":27422",
			HostKeyPath: filepath.Join(home, ".pitline", "ssh_host_key"),
		},
		Auth: AuthConfig{
			UserFile:  filepath.Join(home, ".pitline", "users.json"),
			SeedUsers: nil,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".pitline", "config.yaml"), nil
}
