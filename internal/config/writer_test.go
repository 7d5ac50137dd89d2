package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor.yaml")

	original := &Config{
		SchemaVersion:       "1.0.0",
		Admin:               AdminConfig{ListenAddr: "127.0.0.1:9000"},
		ShutdownTimeout:     20 * time.Second,
		HealthCheckInterval: 10 * time.Second,
		AutoRestart:         true,
		LogLevel:            []string{"default=debug"},
		Services: []ServiceSpec{
			{
				Name:           "worker",
				Command:        []string{"/usr/local/bin/worker", "--queue", "jobs"},
				GracefulSignal: "SIGTERM",
				DrainTimeout:   3 * time.Second,
			},
		},
	}

	if err := Write(path, original); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load of written config failed: %v", err)
	}

	if loaded.SchemaVersion != original.SchemaVersion {
		t.Errorf("SchemaVersion = %q, want %q", loaded.SchemaVersion, original.SchemaVersion)
	}
	if loaded.Admin.ListenAddr != original.Admin.ListenAddr {
		t.Errorf("ListenAddr = %q, want %q", loaded.Admin.ListenAddr, original.Admin.ListenAddr)
	}
	if loaded.ShutdownTimeout != original.ShutdownTimeout {
		t.Errorf("ShutdownTimeout = %s, want %s", loaded.ShutdownTimeout, original.ShutdownTimeout)
	}
	if !loaded.AutoRestart {
		t.Error("AutoRestart lost in round trip")
	}
	if len(loaded.Services) != 1 || loaded.Services[0].Name != "worker" {
		t.Fatalf("Services lost in round trip: %+v", loaded.Services)
	}
	if got := loaded.Services[0].DrainTimeout; got != 3*time.Second {
		t.Errorf("DrainTimeout = %s, want 3s", got)
	}
}

func TestWriteReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor.yaml")
	if err := os.WriteFile(path, []byte("old contents"), 0600); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	cfg := validConfigStruct()
	if err := Write(path, cfg); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if strings.Contains(string(data), "old contents") {
		t.Error("old contents survived the write")
	}
	if !strings.Contains(string(data), "schema_version") {
		t.Errorf("written file missing schema_version: %s", data)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conductor.yaml")

	if err := Write(path, validConfigStruct()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "conductor.yaml" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("unexpected files after write: %v", names)
	}
}

func TestWriteInvalidPath(t *testing.T) {
	err := Write("/nonexistent/directory/conductor.yaml", validConfigStruct())
	if err == nil {
		t.Fatal("expected error when writing to a missing directory")
	}
}

func TestWriteDefaultProducesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("default config does not load: %v", err)
	}
	if cfg.SchemaVersion != MinSchemaVersion {
		t.Errorf("SchemaVersion = %q, want %q", cfg.SchemaVersion, MinSchemaVersion)
	}
	if cfg.Admin.ListenAddr != DefaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.Admin.ListenAddr, DefaultListenAddr)
	}
	if cfg.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("ShutdownTimeout = %s, want %s", cfg.ShutdownTimeout, DefaultShutdownTimeout)
	}
	if len(cfg.Services) != 0 {
		t.Errorf("default config should declare no services, got %d", len(cfg.Services))
	}
}

func TestWriteDefaultRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor.yaml")
	if err := os.WriteFile(path, []byte("precious"), 0600); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	if err := WriteDefault(path); err == nil {
		t.Fatal("WriteDefault must refuse to overwrite an existing file")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if string(data) != "precious" {
		t.Error("existing file was modified")
	}
}
