package logging

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
)

func TestLevelFromEnv(t *testing.T) {
	tests := []struct {
		raw  string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{" debug ", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := levelFromEnv(tt.raw); got != tt.want {
			t.Errorf("levelFromEnv(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestTextOutputExplicitFormat(t *testing.T) {
	if !textOutput("text") {
		t.Error("LOG_FORMAT=text should select the text handler")
	}
	if textOutput("json") {
		t.Error("LOG_FORMAT=json should select the JSON handler")
	}
	if !textOutput(" TEXT ") {
		t.Error("format matching should ignore case and whitespace")
	}
}

func TestTrimSourceRelativizesPath(t *testing.T) {
	wd := filepath.Join("/srv", "app")
	replace := trimSource(wd)

	src := &slog.Source{File: filepath.Join(wd, "internal", "service", "aggregator.go"), Line: 42}
	attr := replace(nil, slog.Any(slog.SourceKey, src))

	got, ok := attr.Value.Any().(*slog.Source)
	if !ok {
		t.Fatal("source attribute type changed")
	}
	if want := filepath.Join("internal", "service", "aggregator.go"); got.File != want {
		t.Errorf("trimmed path = %q, want %q", got.File, want)
	}
}

func TestTrimSourceLeavesOtherAttrs(t *testing.T) {
	replace := trimSource("/srv/app")

	attr := replace(nil, slog.String("query", "one piece"))
	if attr.Key != "query" || attr.Value.String() != "one piece" {
		t.Errorf("non-source attr modified: %v", attr)
	}
}

func TestNewHonorsEnvironment(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	logger := New()
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("LOG_LEVEL=debug should enable debug records")
	}
}

func TestSetDefaultInstallsLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := SetDefault()
	if logger == nil {
		t.Fatal("SetDefault() returned nil")
	}
	if slog.Default() != logger {
		t.Error("returned logger should be the new default")
	}
}
