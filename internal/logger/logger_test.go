package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leandrodaf/midibridge/sdk/contracts"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrapFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := Wrap(zap.New(core))

	log.Info("connected",
		log.Field().Int("index", 2),
		log.Field().String("name", "IAC Bus 1"),
		log.Field().Error("error", errors.New("boom")),
	)

	entries := logs.FilterMessage("connected").All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["index"] != int64(2) {
		t.Errorf("index = %v, want 2", ctx["index"])
	}
	if ctx["name"] != "IAC Bus 1" {
		t.Errorf("name = %v, want IAC Bus 1", ctx["name"])
	}
	if ctx["error"] != "boom" {
		t.Errorf("error = %v, want boom", ctx["error"])
	}
}

func TestBareFieldIgnored(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := Wrap(zap.New(core))

	log.Warn("bare", log.Field())

	if got := len(logs.All()[0].Context); got != 0 {
		t.Errorf("got %d context fields, want 0", got)
	}
}

func TestNewFileOutputAndSetLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "midibridge.log")
	log, err := New(Config{Level: "info", Format: "json", Outputs: []string{path}})
	if err != nil {
		t.Fatal(err)
	}

	log.Debug("hidden")
	log.Info("shown")
	log.SetLevel(contracts.DebugLevel)
	log.Debug("now visible")
	if err := log.(*ZapLogger).Sync(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(raw)
	for _, want := range []string{"shown", "now visible"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug entry written below level:\n%s", out)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want contracts.LogLevel
		ok   bool
	}{
		{"debug", contracts.DebugLevel, true},
		{"info", contracts.InfoLevel, true},
		{"warning", contracts.WarnLevel, true},
		{"error", contracts.ErrorLevel, true},
		{"verbose", contracts.InfoLevel, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := contracts.ParseLogLevel(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseLogLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}
