package di

import (
	"path/filepath"
	"testing"

	"JewelForecast/pkg/config"
)

func TestInitializeAppInMemory(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	cfg.Storage.Type = "memory"
	cfg.Models.Dir = filepath.Join(dir, "models")
	cfg.Log.Output = "stderr"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	app, cleanup, err := InitializeApp(cfg)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer cleanup()
	if app == nil {
		t.Fatalf("nil app")
	}
}
