package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POS_DB_PATH", "")
	t.Setenv("POS_SERVER_URL", "")
	t.Setenv("CACHE_TTL_SECONDS", "")
	t.Setenv("STOCK_SYNC_INTERVAL_SECONDS", "")

	cfg := Load()
	if cfg.DBPath != "posbridge.db" {
		t.Fatalf("unexpected default db path %q", cfg.DBPath)
	}
	if cfg.ServerURL != "" {
		t.Fatalf("expected empty server URL when unset, got %q", cfg.ServerURL)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Fatalf("expected 5m cache TTL, got %s", cfg.CacheTTL)
	}
	if cfg.StockSyncInterval != time.Minute {
		t.Fatalf("expected 60s stock sync interval, got %s", cfg.StockSyncInterval)
	}
}

func TestLoadRejectsGarbageNumbers(t *testing.T) {
	t.Setenv("CACHE_TTL_SECONDS", "soon")
	t.Setenv("CACHE_CAPACITY", "-4")

	cfg := Load()
	if cfg.CacheTTL != 5*time.Minute {
		t.Fatalf("garbage TTL should fall back to default, got %s", cfg.CacheTTL)
	}
	if cfg.CacheCapacity != 256 {
		t.Fatalf("negative capacity should fall back to default, got %d", cfg.CacheCapacity)
	}
}
