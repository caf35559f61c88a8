package config

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	def := Default()
	if cfg.Server.Port != def.Server.Port {
		t.Errorf("port = %d, want default %d", cfg.Server.Port, def.Server.Port)
	}
	if cfg.Cache.Dir != def.Cache.Dir {
		t.Errorf("cache dir = %q, want default %q", cfg.Cache.Dir, def.Cache.Dir)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "cardflash", "config.json")

	cfg := Default()
	cfg.Server.Port = 9000
	cfg.Flash.SkipVerify = true
	cfg.MDNS.Enabled = false
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", loaded.Server.Port)
	}
	if !loaded.Flash.SkipVerify {
		t.Error("skip_verify not persisted")
	}
	if loaded.MDNS.Enabled {
		t.Error("mdns enabled flag not persisted")
	}
}

func TestLoadOverridesSubsetOfDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Default()
	cfg.Server.Host = "127.0.0.1"
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Server.Host != "127.0.0.1" {
		t.Errorf("host = %q, want 127.0.0.1", loaded.Server.Host)
	}
	// Untouched fields keep their defaults.
	if loaded.Server.IdleTimeout != Default().Server.IdleTimeout {
		t.Errorf("idle timeout = %d, want default", loaded.Server.IdleTimeout)
	}
}
