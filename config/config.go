package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Config represents the complete odoorpc configuration
type Config struct {
	BaseDir      string                       `yaml:"-"`       // Directory containing config file, for resolving relative paths
	Default      string                       `yaml:"default"` // Environment used when none is named
	Environments map[string]EnvironmentConfig `yaml:"environments"`
	Transport    TransportConfig              `yaml:"transport"`
	Logging      LoggingConfig                `yaml:"logging"`
	Shell        ShellConfig                  `yaml:"shell"`
	Secrets      *SecretTracker               `yaml:"-"`
}

// EnvironmentConfig holds the connection settings of one named environment.
// Server, when set, is the full URL; otherwise it is built from scheme,
// host, port and protocol.
type EnvironmentConfig struct {
	Server   string       `yaml:"server"`
	Scheme   string       `yaml:"scheme"` // http or https (default: http)
	Host     string       `yaml:"host"`
	Port     int          `yaml:"port"`     // default: 8069
	Protocol string       `yaml:"protocol"` // xmlrpc, jsonrpc or web (default: xmlrpc)
	Database string       `yaml:"database"`
	Username string       `yaml:"username"`
	Password SecretString `yaml:"password"` // Optional: asked on login when missing
}

// TransportConfig holds HTTP settings shared by every environment
type TransportConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	Compression bool          `yaml:"compression"` // Accept gzip responses
	Insecure    bool          `yaml:"insecure"`    // Skip TLS certificate verification
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	Output string `yaml:"output"` // stderr, stdout, or file path
}

// ShellConfig holds interactive shell settings
type ShellConfig struct {
	HistoryFile string `yaml:"history_file"`
	HistorySize int    `yaml:"history_size"`
}

// Connection is a resolved environment, ready for login.
type Connection struct {
	Name     string
	Server   string
	Database string
	User     string
	Password SecretString
}

func (c Connection) String() string {
	return fmt.Sprintf("%s@%s/%s", c.User, c.Server, c.Database)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Environments: map[string]EnvironmentConfig{},
		Transport: TransportConfig{
			Timeout:     2 * time.Minute,
			Compression: true,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
		Shell: ShellConfig{
			HistoryFile: "~/.odoorpc_history",
			HistorySize: 500,
		},
		Secrets: NewSecretTracker(),
	}
}

// Names returns the sorted environment names.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Environments))
	for name := range c.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Environment resolves the named environment. An empty name selects the
// default environment.
func (c *Config) Environment(name string) (Connection, error) {
	if name == "" {
		name = c.Default
	}
	env, ok := c.Environments[name]
	if !ok {
		return Connection{}, fmt.Errorf("unknown environment %q (available: %s)", name, strings.Join(c.Names(), ", "))
	}
	return Connection{
		Name:     name,
		Server:   env.URL(),
		Database: env.Database,
		User:     env.Username,
		Password: env.Password,
	}, nil
}

// URL returns the server URL of the environment.
func (e EnvironmentConfig) URL() string {
	if e.Server != "" {
		return e.Server
	}
	scheme, port, protocol := e.Scheme, e.Port, e.Protocol
	if scheme == "" {
		scheme = "http"
	}
	if port == 0 {
		port = 8069
	}
	if protocol == "" {
		protocol = "xmlrpc"
	}
	return fmt.Sprintf("%s://%s:%d/%s", scheme, e.Host, port, protocol)
}
