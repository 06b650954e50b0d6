package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RPCURLEnv overrides the configured RPC endpoint when set. It is the only
// environment-level override; contract addressing is compiled in.
const RPCURLEnv = "AGENTFUND_RPC_URL"

// Config contains runtime configuration for agentfund-mcp.
type Config struct {
	ServerName              string `yaml:"server_name"`
	LogLevel                string `yaml:"log_level"`
	RPCURL                  string `yaml:"rpc_url"`
	DBPath                  string `yaml:"db_path"`
	ScanLimit               int    `yaml:"scan_limit"`
	RequestLogRetentionDays int    `yaml:"request_log_retention_days"`
	PruneIntervalSeconds    int    `yaml:"prune_interval_seconds"`
}

// Default returns a Config populated with safe defaults.
func Default() Config {
	return Config{
		ServerName:              "agentfund-mcp",
		LogLevel:                "info",
		RPCURL:                  "https://sepolia.base.org",
		DBPath:                  filepath.Join(userHomeDir(), ".agentfund-mcp", "requests.db"),
		ScanLimit:               100,
		RequestLogRetentionDays: 14,
		PruneIntervalSeconds:    300,
	}
}

// Load loads config from disk; if path does not exist, default config is
// returned. AGENTFUND_RPC_URL takes precedence over the file in either case.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	if env := strings.TrimSpace(os.Getenv(RPCURLEnv)); env != "" {
		cfg.RPCURL = env
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks configuration sanity.
func (c *Config) Validate() error {
	if c.ServerName == "" {
		return errors.New("server_name must not be empty")
	}
	if c.DBPath == "" {
		return errors.New("db_path must not be empty")
	}
	if strings.TrimSpace(c.RPCURL) == "" {
		return errors.New("rpc_url must not be empty")
	}
	if u, err := url.Parse(c.RPCURL); err != nil || u.Scheme == "" {
		return fmt.Errorf("invalid rpc_url %q", c.RPCURL)
	}
	if c.ScanLimit <= 0 {
		return errors.New("scan_limit must be > 0")
	}
	if c.RequestLogRetentionDays <= 0 {
		return errors.New("request_log_retention_days must be > 0")
	}
	if c.PruneIntervalSeconds <= 0 {
		return errors.New("prune_interval_seconds must be > 0")
	}
	return nil
}

// EnsurePaths creates parent directories for config-managed paths.
func (c *Config) EnsurePaths() error {
	c.DBPath = ExpandPath(c.DBPath)
	parent := filepath.Dir(c.DBPath)
	if parent == "." {
		return nil
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create db parent dir: %w", err)
	}
	return nil
}

// ExpandPath expands "~/" to the current user's home directory.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p == "~" {
		return userHomeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(userHomeDir(), p[2:])
	}
	return p
}

func userHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
