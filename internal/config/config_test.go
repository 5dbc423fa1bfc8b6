package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `[crawl]
dir = /srv/occ-memos
window = 864000
timezone = UTC

[qcloud]
app_id = 10001
secret_id = sid
secret_key = skey
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.ini")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreDir != "/srv/occ-memos" {
		t.Errorf("store dir = %q", cfg.StoreDir)
	}
	if cfg.Window != 10*24*time.Hour {
		t.Errorf("window = %v, want 240h", cfg.Window)
	}
	if cfg.Timezone != time.UTC {
		t.Errorf("timezone = %v, want UTC", cfg.Timezone)
	}
	if err := cfg.RequireOCRCredentials(); err != nil {
		t.Errorf("credentials should be complete: %v", err)
	}
	if cfg.SignValidity != 600*time.Second || cfg.SignCacheTTL != 300*time.Second {
		t.Errorf("signature defaults = %v/%v", cfg.SignValidity, cfg.SignCacheTTL)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("OCCMEMO_STORE_DIR", "/tmp/override")
	t.Setenv("OCCMEMO_WINDOW", "36h")
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreDir != "/tmp/override" {
		t.Errorf("store dir = %q, want env override", cfg.StoreDir)
	}
	if cfg.Window != 36*time.Hour {
		t.Errorf("window = %v, want 36h", cfg.Window)
	}
}

func TestLoadRejectsMissingStoreDir(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.ini")); err == nil {
		t.Fatal("expected error when store dir is unset")
	}
}

func TestLoadRejectsCacheTTLNotBelowValidity(t *testing.T) {
	cfg := sampleConfig + "sign_validity = 300\nsign_cache_ttl = 300\n"
	if _, err := Load(writeConfig(t, cfg)); err == nil {
		t.Fatal("expected error when cache ttl >= validity")
	}
}
