package logging_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/sophialabs/plugmock/internal/infrastructure/outbound/logging"
)

func TestSlogLogger_AllLevels(t *testing.T) {
	tests := []struct {
		name  string
		call  func(l *logging.SlogLogger)
		level string
	}{
		{"Info", func(l *logging.SlogLogger) { l.Info("info message", "endpoint", "users") }, "INFO"},
		{"Warn", func(l *logging.SlogLogger) { l.Warn("warn message", "endpoint", "users") }, "WARN"},
		{"Error", func(l *logging.SlogLogger) { l.Error("error message", "endpoint", "users") }, "ERROR"},
		{"Debug", func(l *logging.SlogLogger) { l.Debug("debug message", "endpoint", "users") }, "DEBUG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := logging.NewText(&buf, "debug")

			tt.call(logger)

			output := buf.String()
			if !strings.Contains(output, tt.level) {
				t.Errorf("expected output to contain %q, got: %s", tt.level, output)
			}
			if !strings.Contains(output, "endpoint=users") {
				t.Errorf("expected output to contain endpoint=users, got: %s", output)
			}
		})
	}
}

func TestSlogLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewText(&buf, "info").With("platform", "demo")

	logger.Info("loaded")
	logger.Debug("hidden")

	output := buf.String()
	if !strings.Contains(output, "platform=demo") {
		t.Errorf("expected platform=demo, got: %s", output)
	}
	if strings.Contains(output, "hidden") {
		t.Errorf("debug record should be filtered at info level, got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelDebug,
	}
	for in, want := range tests {
		if got := logging.ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
