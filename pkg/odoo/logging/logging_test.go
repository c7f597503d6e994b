package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/sambeau/odoorpc/config"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantWarn  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, true},
		{"error", false, false},
		{"", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log, err := New(config.LoggingConfig{Level: tt.level, Format: "text"}, &buf)
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			log.Debug("debug line")
			log.Warn("warn line")

			if got := strings.Contains(buf.String(), "debug line"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.Contains(buf.String(), "warn line"); got != tt.wantWarn {
				t.Errorf("warn logged = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("connected", zap.String("db", "demo"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	if entry["msg"] != "connected" || entry["db"] != "demo" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "odoorpc.log")
	log, err := New(config.LoggingConfig{Level: "info", Format: "text", Output: path}, nil)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("to file")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file = %q", data)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "loud"}, nil); err == nil {
		t.Error("expected an error for an unknown level")
	}
	if _, err := New(config.LoggingConfig{Format: "xml"}, nil); err == nil {
		t.Error("expected an error for an unknown format")
	}
	if log := Must(config.LoggingConfig{Format: "xml"}, nil); log == nil {
		t.Error("Must() returned nil")
	}
}

func TestVerbosity(t *testing.T) {
	cfg := config.LoggingConfig{Level: "warn"}
	if got := Verbosity(cfg, 0).Level; got != "warn" {
		t.Errorf("Verbosity(0) = %q", got)
	}
	if got := Verbosity(cfg, 2).Level; got != "debug" {
		t.Errorf("Verbosity(2) = %q", got)
	}
}
