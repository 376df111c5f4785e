package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{
			name: "explicit debug level",
			config: &Config{
				Level:  zerolog.DebugLevel,
				Output: &bytes.Buffer{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			if logger == nil {
				t.Error("NewLogger() returned nil")
			}
		})
	}
}

func TestLoggerWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: zerolog.DebugLevel, Output: &buf, Pretty: false})

	acqLogger := logger.With("acquire")
	acqLogger.Info("polled device", "ready", true)

	output := buf.String()
	if !strings.Contains(output, `"component":"acquire"`) {
		t.Errorf("expected component=acquire in output, got: %s", output)
	}
	if !strings.Contains(output, `"ready":true`) {
		t.Errorf("expected ready=true in output, got: %s", output)
	}
}

func TestLoggerKeyValues(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: zerolog.DebugLevel, Output: &buf, Pretty: false})

	logger.Warn("threshold clamped", "channel", 3, "value", 1.25)

	output := buf.String()
	if !strings.Contains(output, "threshold clamped") {
		t.Errorf("expected message in output, got: %s", output)
	}
	if !strings.Contains(output, `"channel":3`) {
		t.Errorf("expected channel=3 in output, got: %s", output)
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: zerolog.DebugLevel, Output: &buf, Pretty: false}))

	Debug("debug message", "key", "value")
	output := buf.String()
	if !strings.Contains(output, "debug message") {
		t.Errorf("expected debug message, got: %s", output)
	}
	if !strings.Contains(output, `"key":"value"`) {
		t.Errorf("expected key=value, got: %s", output)
	}

	buf.Reset()
	Info("info message")
	if !strings.Contains(buf.String(), "info message") {
		t.Errorf("expected info message, got: %s", buf.String())
	}

	buf.Reset()
	Warn("warning message")
	if !strings.Contains(buf.String(), "warning message") {
		t.Errorf("expected warning message, got: %s", buf.String())
	}

	buf.Reset()
	Error("error message")
	if !strings.Contains(buf.String(), "error message") {
		t.Errorf("expected error message, got: %s", buf.String())
	}
}
