package config

import (
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/hashicorp/go-version"
)

// MinSchemaVersion is the oldest config schema this build still reads.
// Files declaring an older schema_version are rejected at load time so a
// daemon never runs on settings it would silently misinterpret.
const MinSchemaVersion = "1.0.0"

var minSchemaVersion = version.Must(version.NewVersion(MinSchemaVersion))

// Defaults applied to unset fields after loading.
const (
	DefaultListenAddr          = "127.0.0.1:7727"
	DefaultShutdownTimeout     = 15 * time.Second
	DefaultHealthCheckInterval = 30 * time.Second
	DefaultDrainTimeout        = 5 * time.Second
	DefaultGracefulSignal      = "SIGTERM"
)

// Config holds the daemon configuration.
//
// Example YAML:
//
//	schema_version: "1.0.0"
//	admin:
//	  listen_addr: "127.0.0.1:7727"
//	shutdown_timeout: 15s
//	health_check_interval: 30s
//	auto_restart: false
//	log_level:
//	  - "default=info"
//	tracing:
//	  enabled: false
//	  endpoint: "localhost:4317"
//	services:
//	  - name: "api-gateway"
//	    command: ["/usr/local/bin/gw", "--port", "8080"]
//	    graceful_signal: "SIGTERM"
//	    drain_timeout: 5s
type Config struct {
	// SchemaVersion declares which config schema the file follows.
	// Gated against MinSchemaVersion.
	SchemaVersion string `yaml:"schema_version"`

	// Admin configures the in-daemon HTTP API.
	Admin AdminConfig `yaml:"admin"`

	// ShutdownTimeout bounds a graceful shutdown end to end, drain and stop
	// phases combined. Exceeding it escalates to a forced stop.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// HealthCheckInterval is how often the health monitor probes components.
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`

	// AutoRestart lets the health monitor restart supervised services that
	// stopped running.
	AutoRestart bool `yaml:"auto_restart"`

	// LogLevel entries use the --log-level flag syntax, e.g. "default=info"
	// or "lifecycle.*=debug". Reapplied on config hot-reload.
	LogLevel []string `yaml:"log_level"`

	// LogFile is where daemon mode appends log output. Foreground runs log
	// to stderr and ignore this.
	LogFile string `yaml:"log_file,omitempty"`

	// Tracing configures the OpenTelemetry trace exporter.
	Tracing TracingConfig `yaml:"tracing"`

	// Services lists the supervised processes in start order. Stop order is
	// the exact reverse. The list is fixed for the lifetime of the daemon;
	// changes on disk take effect on the next start.
	Services []ServiceSpec `yaml:"services"`
}

// AdminConfig configures the admin HTTP listener.
type AdminConfig struct {
	// ListenAddr is the host:port the admin API binds to.
	ListenAddr string `yaml:"listen_addr"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC endpoint, e.g. "localhost:4317".
	Endpoint string `yaml:"endpoint"`

	// TLSCAPath points to a CA certificate for verifying the collector.
	// Empty with TLSInsecure false uses the system roots.
	TLSCAPath string `yaml:"tls_ca_path"`

	// TLSInsecure disables transport security entirely.
	TLSInsecure bool `yaml:"tls_insecure"`
}

// ServiceSpec describes one supervised OS process.
type ServiceSpec struct {
	// Name is the unique component name for this service.
	Name string `yaml:"name"`

	// Command is the argv to spawn; Command[0] is the executable.
	Command []string `yaml:"command"`

	// WorkDir is the working directory for the process. Empty inherits the
	// daemon's.
	WorkDir string `yaml:"work_dir,omitempty"`

	// Env entries ("KEY=VALUE") are appended to the daemon's environment.
	Env []string `yaml:"env,omitempty"`

	// GracefulSignal is sent on drain, e.g. "SIGTERM".
	GracefulSignal string `yaml:"graceful_signal"`

	// DrainTimeout is how long to wait for the process to exit after the
	// graceful signal before giving up on the drain.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

var signalsByName = map[string]syscall.Signal{
	"SIGHUP":  syscall.SIGHUP,
	"SIGINT":  syscall.SIGINT,
	"SIGQUIT": syscall.SIGQUIT,
	"SIGTERM": syscall.SIGTERM,
	"SIGUSR1": syscall.SIGUSR1,
	"SIGUSR2": syscall.SIGUSR2,
}

// Signal returns the configured graceful signal.
func (s *ServiceSpec) Signal() (syscall.Signal, error) {
	sig, ok := signalsByName[s.GracefulSignal]
	if !ok {
		return 0, NewConfigError(fmt.Sprintf("unknown graceful_signal %q", s.GracefulSignal))
	}
	return sig, nil
}

// applyDefaults fills unset fields. Called by Load before validation.
func (c *Config) applyDefaults() {
	if c.Admin.ListenAddr == "" {
		c.Admin.ListenAddr = DefaultListenAddr
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = DefaultHealthCheckInterval
	}
	for i := range c.Services {
		if c.Services[i].GracefulSignal == "" {
			c.Services[i].GracefulSignal = DefaultGracefulSignal
		}
		if c.Services[i].DrainTimeout == 0 {
			c.Services[i].DrainTimeout = DefaultDrainTimeout
		}
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SchemaVersion == "" {
		return NewConfigError("schema_version is required")
	}
	declared, err := version.NewVersion(c.SchemaVersion)
	if err != nil {
		return NewConfigError(fmt.Sprintf("invalid schema_version %q: %v", c.SchemaVersion, err))
	}
	if declared.LessThan(minSchemaVersion) {
		return NewConfigError(fmt.Sprintf(
			"schema_version %s is below the minimum supported %s",
			c.SchemaVersion, MinSchemaVersion,
		))
	}

	if err := validateListenAddr(c.Admin.ListenAddr); err != nil {
		return err
	}

	if c.ShutdownTimeout <= 0 {
		return NewConfigError("shutdown_timeout must be positive")
	}
	if c.HealthCheckInterval <= 0 {
		return NewConfigError("health_check_interval must be positive")
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return NewConfigError("tracing.endpoint must be set when tracing is enabled")
	}

	seenNames := make(map[string]bool)
	for i, svc := range c.Services {
		if svc.Name == "" {
			return NewConfigError(fmt.Sprintf("services[%d]: name is required", i))
		}
		if seenNames[svc.Name] {
			return NewConfigError(fmt.Sprintf("services[%d]: duplicate service name %q", i, svc.Name))
		}
		seenNames[svc.Name] = true

		if len(svc.Command) == 0 || svc.Command[0] == "" {
			return NewConfigError(fmt.Sprintf("services[%d] (%s): command is required", i, svc.Name))
		}
		if svc.DrainTimeout < 0 {
			return NewConfigError(fmt.Sprintf("services[%d] (%s): drain_timeout must not be negative", i, svc.Name))
		}
		if _, err := svc.Signal(); err != nil {
			return NewConfigError(fmt.Sprintf("services[%d] (%s): %v", i, svc.Name, err))
		}
	}

	return nil
}

// SetAdminPort replaces the port of the admin listen address, keeping the
// host. Used by the --port flag.
func (c *Config) SetAdminPort(port int) error {
	if port < 1 || port > 65535 {
		return NewConfigError(fmt.Sprintf("port %d must be between 1 and 65535", port))
	}
	host, _, err := net.SplitHostPort(c.Admin.ListenAddr)
	if err != nil {
		return NewConfigError(fmt.Sprintf("invalid admin.listen_addr %q: %v", c.Admin.ListenAddr, err))
	}
	c.Admin.ListenAddr = net.JoinHostPort(host, strconv.Itoa(port))
	return nil
}

func validateListenAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return NewConfigError(fmt.Sprintf("invalid admin.listen_addr %q: %v", addr, err))
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return NewConfigError(fmt.Sprintf("admin.listen_addr port %q must be between 1 and 65535", port))
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return e.message
}
