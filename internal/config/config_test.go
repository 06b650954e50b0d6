package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandPath(t *testing.T) {
	t.Parallel()
	got := ExpandPath("~/requests.db")
	if got == "~/requests.db" {
		t.Fatalf("expected home-expanded path, got %q", got)
	}
	if !strings.Contains(got, "requests.db") {
		t.Fatalf("expected expanded path to contain file name, got %q", got)
	}
}

func TestLoad_EnvOverridesRPCURL(t *testing.T) {
	t.Setenv(RPCURLEnv, "https://rpc.example.org")

	path := filepath.Join(t.TempDir(), "agentfund-mcp.yaml")
	if err := os.WriteFile(path, []byte("rpc_url: https://file.example.org\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RPCURL != "https://rpc.example.org" {
		t.Fatalf("expected env override to win, got %q", cfg.RPCURL)
	}
}

func TestValidate_RejectsZeroScanLimit(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.ScanLimit = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected scan_limit validation error, got nil")
	}
}
