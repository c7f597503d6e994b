package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a file with ENV interpolation.
// If configPath is empty, it searches default locations.
func Load(configPath string, getenv func(string) string) (*Config, error) {
	cfg, _, err := LoadWithPath(configPath, getenv)
	return cfg, err
}

// LoadWithPath reads configuration and returns both the config and the resolved path.
func LoadWithPath(configPath string, getenv func(string) string) (*Config, string, error) {
	path, err := resolveConfigPath(configPath, getenv)
	if err != nil {
		return nil, "", err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data, getenv)
	if err != nil {
		return nil, "", err
	}
	cfg.BaseDir = filepath.Dir(absPath)

	// Resolve the history file against the home or config directory
	if h := cfg.Shell.HistoryFile; h != "" {
		cfg.Shell.HistoryFile = expandPath(h, cfg.BaseDir)
	}
	if out := cfg.Logging.Output; out != "" && out != "stderr" && out != "stdout" {
		cfg.Logging.Output = expandPath(out, cfg.BaseDir)
	}

	return cfg, absPath, nil
}

// Parse decodes and validates configuration data.
func Parse(data []byte, getenv func(string) string) (*Config, error) {
	data = interpolateEnv(data, getenv)

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Track secrets after loading
	for name, env := range cfg.Environments {
		if env.Password.IsSecret() {
			cfg.Secrets.MarkSecret("environments." + name + ".password")
		}
	}

	if err := validateBasic(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func expandPath(path, baseDir string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	if !filepath.IsAbs(path) {
		return filepath.Join(baseDir, path)
	}
	return path
}

// resolveConfigPath finds the config file to use.
// Search order: explicit path > ODOORPC_CONFIG env > ./odoorpc.yaml > ~/.config/odoorpc/odoorpc.yaml
func resolveConfigPath(explicit string, getenv func(string) string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	// Try ODOORPC_CONFIG environment variable
	if envPath := getenv("ODOORPC_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("ODOORPC_CONFIG file not found: %s", envPath)
		}
		return envPath, nil
	}

	// Try ./odoorpc.yaml
	if _, err := os.Stat("odoorpc.yaml"); err == nil {
		return "odoorpc.yaml", nil
	}

	// Try ~/.config/odoorpc/odoorpc.yaml
	home, err := os.UserHomeDir()
	if err == nil {
		xdgPath := filepath.Join(home, ".config", "odoorpc", "odoorpc.yaml")
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath, nil
		}
	}

	return "", fmt.Errorf("no config file found (tried ODOORPC_CONFIG, odoorpc.yaml, ~/.config/odoorpc/odoorpc.yaml)")
}

// envPattern matches ${VAR} or ${VAR:-default}
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// interpolateEnv replaces ${VAR} and ${VAR:-default} patterns with environment values.
func interpolateEnv(data []byte, getenv func(string) string) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := string(parts[1])
		value := getenv(varName)

		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}

		return []byte(value)
	})
}

// Validate checks the configuration for errors.
func Validate(cfg *Config) error {
	return validateBasic(cfg)
}

// validateBasic checks the configuration for errors.
func validateBasic(cfg *Config) error {
	var errs []string

	for _, name := range cfg.Names() {
		env := cfg.Environments[name]
		if env.Server == "" && env.Host == "" {
			errs = append(errs, fmt.Sprintf("environments.%s: server or host is required", name))
		}
		if env.Server != "" && !strings.HasPrefix(env.Server, "http://") && !strings.HasPrefix(env.Server, "https://") {
			errs = append(errs, fmt.Sprintf("environments.%s: server must be an http or https URL", name))
		}
		if env.Scheme != "" && env.Scheme != "http" && env.Scheme != "https" {
			errs = append(errs, fmt.Sprintf("environments.%s: scheme must be 'http' or 'https'", name))
		}
		switch env.Protocol {
		case "", "xmlrpc", "jsonrpc", "web":
		default:
			errs = append(errs, fmt.Sprintf("environments.%s: protocol must be 'xmlrpc', 'jsonrpc' or 'web'", name))
		}
		if env.Port < 0 || env.Port > 65535 {
			errs = append(errs, fmt.Sprintf("environments.%s: invalid port: %d (must be 1-65535)", name, env.Port))
		}
		if env.Database == "" {
			errs = append(errs, fmt.Sprintf("environments.%s: database is required", name))
		}
		if env.Username == "" {
			errs = append(errs, fmt.Sprintf("environments.%s: username is required", name))
		}
	}

	if cfg.Default != "" {
		if _, ok := cfg.Environments[cfg.Default]; !ok {
			errs = append(errs, fmt.Sprintf("default: unknown environment %q", cfg.Default))
		}
	}

	if cfg.Transport.Timeout < 0 {
		errs = append(errs, "transport.timeout must not be negative")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", cfg.Logging.Level))
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be json or text)", cfg.Logging.Format))
	}

	if cfg.Shell.HistorySize < 0 {
		errs = append(errs, "shell.history_size must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
