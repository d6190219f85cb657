package logger

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"", "console", "json"} {
		l, err := New(Config{Level: "debug", Format: format})
		if err != nil {
			t.Errorf("New(format=%q) failed: %v", format, err)
			continue
		}
		l.Debug("hello")
	}

	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New(Config{Level: "info", Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestNamedAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := &Logger{zap: zap.New(core)}

	l.Named("atis-service").With(String("airport", "YMML")).Info("ATIS updated",
		Int("diagnostics", 2),
		Bool("first", true),
		Error(errors.New("boom")))
	l.Debug("dropped below level")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.LoggerName != "atis-service" {
		t.Errorf("logger name = %q", e.LoggerName)
	}
	ctx := e.ContextMap()
	if ctx["airport"] != "YMML" || ctx["diagnostics"] != int64(2) || ctx["first"] != true || ctx["error"] != "boom" {
		t.Errorf("context = %v", ctx)
	}
}
