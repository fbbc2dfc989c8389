// Package config holds the Pharmabot runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Directory DirectoryConfig `yaml:"directory"`
	Agent     AgentConfig     `yaml:"agent"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port int    `yaml:"port"` // default 7272
	Host string `yaml:"host"` // default "127.0.0.1"
}

type StoreConfig struct {
	Type    string `yaml:"type"`    // "memory" or "bolt"
	DataDir string `yaml:"dataDir"` // default "~/.pharmabot/data"
}

type GatewayConfig struct {
	// APIKey authenticates against the text-generation API.
	// Falls back to the OPENAI_API_KEY environment variable when empty.
	APIKey    string `yaml:"apiKey"`
	Model     string `yaml:"model"`     // default "gpt-4o-mini"
	MaxTokens int    `yaml:"maxTokens"` // default 1024
}

type DirectoryConfig struct {
	BaseURL        string `yaml:"baseURL"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"` // default 15
}

type AgentConfig struct {
	// Mode selects the conversation engine: "loop" runs the tool-calling
	// control loop, "direct" runs the single-hop intent dispatcher.
	Mode string `yaml:"mode"`
	// HistoryWindow is how many trailing transcript turns are sent to the
	// gateway when composing prompts.
	HistoryWindow int `yaml:"historyWindow"` // default 5
	// SessionTTLMinutes is how long an idle API session survives before the
	// reaper removes it.
	SessionTTLMinutes int `yaml:"sessionTTLMinutes"` // default 30
}

type LogConfig struct {
	Level  string `yaml:"level"`  // default "info"
	Format string `yaml:"format"` // default "console"
}

// Agent modes.
const (
	ModeLoop   = "loop"
	ModeDirect = "direct"
)

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 7272,
			Host: "127.0.0.1",
		},
		Store: StoreConfig{
			Type:    "memory",
			DataDir: defaultDataDir(),
		},
		Gateway: GatewayConfig{
			APIKey:    os.Getenv("OPENAI_API_KEY"),
			Model:     "gpt-4o-mini",
			MaxTokens: 1024,
		},
		Directory: DirectoryConfig{
			BaseURL:        "https://67e14fb758cc6bf785254550.mockapi.io/pharmacies",
			TimeoutSeconds: 15,
		},
		Agent: AgentConfig{
			Mode:              ModeLoop,
			HistoryWindow:     5,
			SessionTTLMinutes: 30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a YAML config file and overlays it on the defaults.
// Fields absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if cfg.Gateway.APIKey == "" {
		cfg.Gateway.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the rest of the system cannot act on.
func (c *Config) Validate() error {
	if c.Agent.Mode != ModeLoop && c.Agent.Mode != ModeDirect {
		return fmt.Errorf("invalid agent mode %q (want %q or %q)", c.Agent.Mode, ModeLoop, ModeDirect)
	}
	if c.Store.Type != "memory" && c.Store.Type != "bolt" {
		return fmt.Errorf("invalid store type %q (want \"memory\" or \"bolt\")", c.Store.Type)
	}
	if c.Agent.HistoryWindow <= 0 {
		return fmt.Errorf("agent historyWindow must be > 0, got %d", c.Agent.HistoryWindow)
	}
	return nil
}

// ServerAddress returns the listen address in "host:port" format.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DBPath returns the full path to the BoltDB file (DataDir + "/pharmabot.db").
func (c *Config) DBPath() string {
	return filepath.Join(c.Store.DataDir, "pharmabot.db")
}

// defaultDataDir resolves the default data directory.
// It uses os.UserHomeDir() + "/.pharmabot/data", falling back to
// "/tmp/pharmabot/data" if the home directory cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "pharmabot", "data")
	}
	return filepath.Join(home, ".pharmabot", "data")
}
