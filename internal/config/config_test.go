package config

import (
	"testing"

	"github.com/nintondo/doge20indexer/internal/errs"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RPC_URL", "http://127.0.0.1:22555")
	t.Setenv("RPC_USER", "user")
	t.Setenv("RPC_PASS", "pass")
	t.Setenv("BLOCKCHAIN", "dogecoin")
	t.Setenv("NETWORK", "mainnet")
}

func TestLoadSucceedsWithRequiredFieldsAndDefaults(t *testing.T) {
	setRequiredEnv(t)

	c, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ReorgMax != DefaultReorgMax {
		t.Fatalf("ReorgMax = %d, want default %d", c.ReorgMax, DefaultReorgMax)
	}
	if c.ServerBindURL != DefaultServerBindURL {
		t.Fatalf("ServerBindURL = %q, want default", c.ServerBindURL)
	}
	if c.DBPath != DefaultDBPath {
		t.Fatalf("DBPath = %q, want default", c.DBPath)
	}
	if c.StartHeight != 0 || c.JubileeHeight != 0 {
		t.Fatalf("expected zero-valued optional heights, got %+v", c)
	}
}

func TestLoadMissingRequiredFieldsIsFatalConfig(t *testing.T) {
	t.Setenv("RPC_URL", "")
	t.Setenv("RPC_USER", "")
	t.Setenv("RPC_PASS", "")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required env vars")
	}
	if kind, ok := errs.KindOf(err); !ok || kind != errs.KindFatalConfig {
		t.Fatalf("expected KindFatalConfig, got %v (ok=%v)", kind, ok)
	}
}

func TestLoadRejectsUnsupportedBlockchainOrNetwork(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BLOCKCHAIN", "litecoin")
	if _, err := Load(); err == nil {
		t.Fatal("expected rejection of unsupported BLOCKCHAIN")
	}

	t.Setenv("BLOCKCHAIN", "dogecoin")
	t.Setenv("NETWORK", "devnet")
	if _, err := Load(); err == nil {
		t.Fatal("expected rejection of unsupported NETWORK")
	}
}

func TestLoadRequiresIndexDirWhenBlkDirSet(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BLK_DIR", "/data/blocks")
	t.Setenv("INDEX_DIR", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when BLK_DIR is set without INDEX_DIR")
	}

	t.Setenv("INDEX_DIR", "/data/index")
	c, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.BlkDir != "/data/blocks" || c.IndexDir != "/data/index" {
		t.Fatalf("unexpected dirs: %+v", c)
	}
}

func TestLoadParsesOptionalNumericFields(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("START_HEIGHT", "100")
	t.Setenv("JUBILEE_HEIGHT", "200")
	t.Setenv("REORG_MAX", "5")

	c, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.StartHeight != 100 || c.JubileeHeight != 200 || c.ReorgMax != 5 {
		t.Fatalf("unexpected config: %+v", c)
	}
}

func TestLoadRejectsInvalidReorgMax(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REORG_MAX", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected rejection of non-positive REORG_MAX")
	}
	t.Setenv("REORG_MAX", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("expected rejection of non-numeric REORG_MAX")
	}
}

func TestRedactedHidesCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RPC_USER", "login-sentinel-1")
	t.Setenv("RPC_PASS", "login-sentinel-2")
	c, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := c.Redacted().String()
	if contains(s, "login-sentinel-1") || contains(s, "login-sentinel-2") {
		t.Fatalf("expected credentials to be redacted, got %q", s)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
