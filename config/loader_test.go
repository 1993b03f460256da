package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tezexlabs/coordinator/config"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadServerConfigFromFile(t *testing.T) {
	path := writeTempFile(t, "server.toml", `
port = 8080
host = "0.0.0.0"
allowed_origins = ["https://swap.example.org"]
rate_per_minute = 120
max_concurrent_requests = 50
enable_metrics = true
tracker_urls = ["https://tracker.example.org", "https://tracker-backup.example.org"]
`)

	cfg, err := config.LoadServerConfig(&path)
	if err != nil {
		t.Fatalf("failed to load server config: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Host)
	}
	if !cfg.EnableMetrics {
		t.Error("expected metrics to be enabled")
	}
	if len(cfg.TrackerURLs) != 2 {
		t.Errorf("expected 2 tracker URLs, got %d", len(cfg.TrackerURLs))
	}
	if cfg.RatePerMinute != 120 {
		t.Errorf("expected rate 120, got %d", cfg.RatePerMinute)
	}
}

func TestLoadServerConfigFromEnv(t *testing.T) {
	t.Setenv("COORDINATOR_PORT", "9090")
	t.Setenv("COORDINATOR_HOST", "127.0.0.1")
	t.Setenv("COORDINATOR_TRACKER_URLS", "https://tracker.example.org")

	cfg, err := config.LoadServerConfig(nil)
	if err != nil {
		t.Fatalf("failed to load env config: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1, got %s", cfg.Host)
	}
	if len(cfg.TrackerURLs) != 1 {
		t.Errorf("expected 1 tracker URL, got %d", len(cfg.TrackerURLs))
	}
}

func TestServerConfigValidation(t *testing.T) {
	// Missing tracker_urls should fail verification.
	path := writeTempFile(t, "bad.toml", `
port = 8080
host = "0.0.0.0"
`)

	if _, err := config.LoadServerConfig(&path); err == nil {
		t.Error("expected validation error for missing tracker_urls")
	}

	// Wrong extension is rejected before parsing.
	yamlPath := writeTempFile(t, "server.yaml", "port: 8080")
	if _, err := config.LoadServerConfig(&yamlPath); err == nil {
		t.Error("expected error for non-toml config file")
	}
}

func TestLoadChainParams(t *testing.T) {
	path := writeTempFile(t, "chains.toml", `
refund_window_hours = 48
fee_pad = "1.05"

[ethereum]
rpc_url = "https://rpc.example.org"
chain_id = 5
swap_contract = "0x1111111111111111111111111111111111111111"
token_contract = "0x2222222222222222222222222222222222222222"
private_key_env = "COORDINATOR_ETH_KEY"

[tezos]
indexer_url = "https://indexer.example.org"
signer_url = "http://localhost:6732"
swap_contract = "KT1SwapContractAddress"
token_contract = "KT1TokenContractAddress"
account = "tz1BotAccountAddress"
`)

	params, err := config.LoadChainParams(path)
	if err != nil {
		t.Fatalf("failed to load chain params: %v", err)
	}

	if params.Ethereum.ChainID != 5 {
		t.Errorf("expected chain_id 5, got %d", params.Ethereum.ChainID)
	}
	if params.Ethereum.PrivateKeyEnv != "COORDINATOR_ETH_KEY" {
		t.Errorf("unexpected private_key_env: %s", params.Ethereum.PrivateKeyEnv)
	}
	if params.Tezos.Account != "tz1BotAccountAddress" {
		t.Errorf("unexpected tezos account: %s", params.Tezos.Account)
	}
	if params.RefundWindowHours != 48 {
		t.Errorf("expected refund window 48h, got %d", params.RefundWindowHours)
	}
	if params.FeePad != "1.05" {
		t.Errorf("expected fee pad 1.05, got %s", params.FeePad)
	}
}

func TestLoadChainParamsValidation(t *testing.T) {
	// A key directly in the file is a misconfiguration; only the env var
	// name is accepted, and here it is missing entirely.
	path := writeTempFile(t, "chains.toml", `
refund_window_hours = 48

[ethereum]
rpc_url = "https://rpc.example.org"
swap_contract = "0x1111111111111111111111111111111111111111"
token_contract = "0x2222222222222222222222222222222222222222"

[tezos]
indexer_url = "https://indexer.example.org"
signer_url = "http://localhost:6732"
swap_contract = "KT1SwapContractAddress"
token_contract = "KT1TokenContractAddress"
account = "tz1BotAccountAddress"
`)

	if _, err := config.LoadChainParams(path); err == nil {
		t.Error("expected validation error for missing private_key_env")
	}

	if _, err := config.LoadChainParams("testdata/nonexistent.toml"); err == nil {
		t.Error("expected error for non-existent file")
	}
}
