package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// defaultTemplate is the commented starter config written by WriteDefault.
const defaultTemplate = `# conductor configuration
schema_version: "` + MinSchemaVersion + `"

admin:
  # Address the admin API listens on. The stop and status commands talk to
  # a running daemon through this address.
  listen_addr: "127.0.0.1:7727"

# Total time a graceful shutdown may take, drain and stop phases combined,
# before conductor escalates to a forced stop.
shutdown_timeout: 15s

# How often the health monitor probes components.
health_check_interval: 30s

# Restart supervised services that stop running between health checks.
auto_restart: false

log_level:
  - "default=info"

# Where daemon mode (start --daemon) appends log output. Foreground runs
# log to the terminal.
# log_file: "/var/log/conductor.log"

tracing:
  enabled: false
  endpoint: "localhost:4317"

# Supervised processes, started in order and stopped in reverse order.
services: []
#  - name: "api-gateway"
#    command: ["/usr/local/bin/gw", "--port", "8080"]
#    graceful_signal: "SIGTERM"
#    drain_timeout: 5s
`

// Write atomically writes a config to disk using a temp-file-then-rename
// pattern, so readers never observe a partial file.
func Write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return atomicWrite(path, data)
}

// WriteDefault writes the commented starter config. Refuses to overwrite an
// existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing config %q", path)
	}
	return atomicWrite(path, []byte(defaultTemplate))
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".conductor.*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		// Still present means an earlier step failed; the target is intact.
		if _, err := os.Stat(tmpPath); err == nil {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// POSIX rename within the same directory is atomic.
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %q: %w", path, err)
	}

	return nil
}
