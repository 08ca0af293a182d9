package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress == "" || cfg.DataDir == "" || cfg.NetworkName == "" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	// A second load must read the file it just wrote.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.RPCAddress != cfg.RPCAddress || again.NetworkName != cfg.NetworkName {
		t.Fatalf("reload mismatch: %+v vs %+v", again, cfg)
	}
}

func TestLoadExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := "RPCAddress = \"0.0.0.0:9999\"\nNetworkName = \"testnet\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != "0.0.0.0:9999" || cfg.NetworkName != "testnet" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.DataDir == "" {
		t.Fatalf("missing field must default")
	}
}

func TestRejectsWhitespaceNetworkName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("NetworkName = \"bad name\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestRPCTokenFromEnv(t *testing.T) {
	cfg := &Config{RPCTokenEnv: "NFTRENTAL_TEST_TOKEN"}
	t.Setenv("NFTRENTAL_TEST_TOKEN", "  secret  ")
	if got := cfg.RPCToken(); got != "secret" {
		t.Fatalf("token = %q", got)
	}
	cfg.RPCTokenEnv = ""
	if got := cfg.RPCToken(); got != "" {
		t.Fatalf("empty env name must disable auth, got %q", got)
	}
}
