package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Logging.Level != "warn" {
		t.Errorf("expected default log level 'warn', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if !cfg.Transport.Compression {
		t.Error("expected compression to be enabled by default")
	}
	if cfg.Shell.HistorySize != 500 {
		t.Errorf("expected history size 500, got %d", cfg.Shell.HistorySize)
	}
}

func TestInterpolateEnv(t *testing.T) {
	getenv := func(key string) string {
		switch key {
		case "TEST_HOST":
			return "odoo.example.com"
		case "TEST_PASSWORD":
			return "s3cret"
		default:
			return ""
		}
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple substitution", "host: ${TEST_HOST}", "host: odoo.example.com"},
		{"with default (env set)", "host: ${TEST_HOST:-localhost}", "host: odoo.example.com"},
		{"with default (env unset)", "host: ${MISSING:-localhost}", "host: localhost"},
		{"unset without default", "password: ${MISSING}", "password: "},
		{"multiple", "${TEST_HOST} ${TEST_PASSWORD}", "odoo.example.com s3cret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(interpolateEnv([]byte(tt.input), getenv))
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

const sample = `
default: demo
environments:
  demo:
    host: localhost
    database: demo
    username: admin
    password: !secret ${DEMO_PASSWORD:-admin}
  prod:
    server: https://erp.example.com/jsonrpc
    database: prod
    username: ops
transport:
  timeout: 30s
logging:
  level: debug
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample), func(string) string { return "" })
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if got := cfg.Names(); !reflect.DeepEqual(got, []string{"demo", "prod"}) {
		t.Errorf("Names() = %v", got)
	}
	if cfg.Transport.Timeout != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Transport.Timeout)
	}
	if !cfg.Secrets.IsSecret("environments.demo.password") {
		t.Error("demo password not tracked as secret")
	}

	conn, err := cfg.Environment("")
	if err != nil {
		t.Fatal(err)
	}
	if conn.Server != "http://localhost:8069/xmlrpc" || conn.Database != "demo" || conn.User != "admin" {
		t.Errorf("Environment(default) = %+v", conn)
	}
	if conn.Password.Value() != "admin" || conn.Password.String() != "[hidden]" {
		t.Errorf("password = %q (%s)", conn.Password.Value(), conn.Password)
	}

	prod, err := cfg.Environment("prod")
	if err != nil || prod.Server != "https://erp.example.com/jsonrpc" {
		t.Errorf("Environment(prod) = %+v, %v", prod, err)
	}

	_, err = cfg.Environment("staging")
	if err == nil || !strings.Contains(err.Error(), "available: demo, prod") {
		t.Errorf("Environment(staging) error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing host",
			yaml: "environments:\n  x:\n    database: d\n    username: u\n",
			want: "environments.x: server or host is required",
		},
		{
			name: "bad protocol",
			yaml: "environments:\n  x:\n    host: h\n    protocol: soap\n    database: d\n    username: u\n",
			want: "environments.x: protocol must be 'xmlrpc', 'jsonrpc' or 'web'",
		},
		{
			name: "unknown default",
			yaml: "default: nope\n",
			want: `default: unknown environment "nope"`,
		},
		{
			name: "bad level",
			yaml: "logging:\n  level: loud\n",
			want: "invalid log level: loud (must be debug, info, warn, or error)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), func(string) string { return "" })
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.HasPrefix(err.Error(), "configuration errors:\n  - ") || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want %q", err, tt.want)
			}
		})
	}
}

func TestLoadWithPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "odoorpc.yaml")
	data := sample + "shell:\n  history_file: history.txt\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	getenv := func(key string) string {
		if key == "DEMO_PASSWORD" {
			return "fromenv"
		}
		return ""
	}
	cfg, resolved, err := LoadWithPath(path, getenv)
	if err != nil {
		t.Fatalf("LoadWithPath() error: %v", err)
	}
	if resolved != path {
		t.Errorf("resolved = %q, want %q", resolved, path)
	}
	if cfg.BaseDir != dir {
		t.Errorf("BaseDir = %q", cfg.BaseDir)
	}
	if want := filepath.Join(dir, "history.txt"); cfg.Shell.HistoryFile != want {
		t.Errorf("HistoryFile = %q, want %q", cfg.Shell.HistoryFile, want)
	}
	if got := cfg.Environments["demo"].Password.Value(); got != "fromenv" {
		t.Errorf("password = %q", got)
	}
}

func TestResolveConfigPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := resolveConfigPath("", func(key string) string {
		if key == "ODOORPC_CONFIG" {
			return path
		}
		return ""
	})
	if err != nil || got != path {
		t.Errorf("resolveConfigPath() = %q, %v", got, err)
	}

	if _, err := resolveConfigPath(filepath.Join(dir, "missing.yaml"), os.Getenv); err == nil {
		t.Error("expected an error for a missing explicit path")
	}
}
