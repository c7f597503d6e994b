// Package logging builds the zap logger used by the client, the shell and
// the command line.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sambeau/odoorpc/config"
)

// New returns a logger configured from cfg. Output "stderr" writes to the
// given writer so tests and the shell can capture it; "stdout" writes to
// os.Stdout and anything else is opened as a file.
func New(cfg config.LoggingConfig, stderr io.Writer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(levelOrDefault(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	case "", "text":
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		encoder = zapcore.NewConsoleEncoder(ec)
	default:
		return nil, fmt.Errorf("invalid log format: %s", cfg.Format)
	}

	sink, err := openSink(cfg.Output, stderr)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.ErrorOutput(sink)), nil
}

// Must is New for callers that already validated cfg.
func Must(cfg config.LoggingConfig, stderr io.Writer) *zap.Logger {
	log, err := New(cfg, stderr)
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// Verbosity raises the level to debug when RPC tracing is requested on the
// command line.
func Verbosity(cfg config.LoggingConfig, verbose int) config.LoggingConfig {
	if verbose > 0 {
		cfg.Level = "debug"
	}
	return cfg
}

func levelOrDefault(level string) string {
	if level == "" {
		return "warn"
	}
	return level
}

func openSink(output string, stderr io.Writer) (zapcore.WriteSyncer, error) {
	switch output {
	case "", "stderr":
		if stderr == nil {
			stderr = os.Stderr
		}
		return zapcore.AddSync(stderr), nil
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	}
	ws, _, err := zap.Open(output)
	if err != nil {
		return nil, fmt.Errorf("opening log output: %w", err)
	}
	return ws, nil
}
