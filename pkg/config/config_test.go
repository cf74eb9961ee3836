package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != 8080 || c.Storage.Type != "duckdb" || c.Trends.CacheTTL != 5*time.Minute {
		t.Fatalf("defaults not applied: %+v", c)
	}
	if c.Training.ForestTrees != 100 || c.Training.ForestDepth != 10 || c.Gold.Purity != "22K" {
		t.Fatalf("training defaults: %+v", c.Training)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := "environment: test\nstorage:\n  type: memory\nserver:\n  port: 9090\ntraining:\n  stale_after: 24h\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Environment != "test" || c.Server.Port != 9090 || c.Training.StaleAfter != 24*time.Hour {
		t.Fatalf("yaml values lost: %+v", c)
	}

	env := map[string]string{"STORAGE_TYPE": "clickhouse", "KAFKA_BROKERS": "k1:9092,k2:9092", "MODEL_DIR": "/tmp/m"}
	c.applyEnv(func(k string) string { return env[k] })
	if c.Storage.Type != "clickhouse" || !c.Kafka.Enabled || len(c.Kafka.Brokers) != 2 || c.Models.Dir != "/tmp/m" {
		t.Fatalf("env overrides: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejectsUnknownStorage(t *testing.T) {
	c, _ := Load("")
	c.Storage.Type = "sqlite"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
	c.Storage.Type = "memory"
	c.Kafka.Enabled = true
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for kafka without brokers")
	}
}
