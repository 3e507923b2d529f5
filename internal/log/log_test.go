package log

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":  zerolog.DebugLevel,
		"warn":   zerolog.WarnLevel,
		"error":  zerolog.ErrorLevel,
		"info":   zerolog.InfoLevel,
		"bogus":  zerolog.InfoLevel,
		"":       zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitSetsBaseLevelAndComponentLoggers(t *testing.T) {
	if err := Init("debug", false, ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	if Base.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("Base level = %v, want debug", Base.GetLevel())
	}
	if Engine.GetLevel() != zerolog.DebugLevel {
		t.Fatal("expected component loggers to inherit Base's level")
	}
}

func TestInitWithLogFileConfiguresRotatorAndClose(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "indexer.log")
	if err := Init("info", true, logFile); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if rotatorSink == nil {
		t.Fatal("expected Init to configure a rotating file sink when logFile is set")
	}
	Close()
}

func TestWithComponentTagsLogger(t *testing.T) {
	l := WithComponent("custom")
	if l.GetLevel() != Base.GetLevel() {
		t.Fatal("expected WithComponent logger to inherit Base's level")
	}
}
