package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/leandrodaf/midibridge/sdk/contracts"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MIDIBRIDGE_CONFIG", "")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "midibridge.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
client_name: Studio Bridge
log:
  level: debug
  format: json
  outputs: [stdout, /tmp/midibridge.log]
  rotation:
    enable: true
midi:
  receive_timeout: 250ms
  max_payload: 256
  handler_queue: 8
  loopback: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	want := Default()
	want.ClientName = "Studio Bridge"
	want.Log.Level = "debug"
	want.Log.Format = "json"
	want.Log.Outputs = []string{"stdout", "/tmp/midibridge.log"}
	want.Log.Rotation.Enable = true
	want.MIDI = MIDIConfig{
		ReceiveTimeout: 250 * time.Millisecond,
		MaxPayload:     256,
		HandlerQueue:   8,
		Loopback:       true,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPathFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("MIDIBRIDGE_CONFIG", writeConfig(t, "client_name: From Env\n"))

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ClientName != "From Env" {
		t.Errorf("ClientName = %q", cfg.ClientName)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "log:\n  level: warn\n")
	t.Setenv("MIDIBRIDGE_LOG_LEVEL", "error")
	t.Setenv("MIDIBRIDGE_MIDI_MAX_PAYLOAD", "64")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "error" || cfg.MIDI.MaxPayload != 64 {
		t.Errorf("level = %q, max_payload = %d", cfg.Log.Level, cfg.MIDI.MaxPayload)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"log level", "log:\n  level: loud\n", "log.level"},
		{"log format", "log:\n  format: xml\n", "log.format"},
		{"max payload", "midi:\n  max_payload: 0\n", "midi.max_payload"},
		{"handler queue", "midi:\n  handler_queue: -1\n", "midi.handler_queue"},
		{"receive timeout", "midi:\n  receive_timeout: -1s\n", "midi.receive_timeout"},
		{"yaml", "log: [\n", "read config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestClientOptions(t *testing.T) {
	cfg := Default()
	cfg.MIDI.ReceiveTimeout = time.Second
	cfg.MIDI.MaxPayload = 512

	var opts contracts.ClientOptions
	for _, opt := range cfg.ClientOptions() {
		opt(&opts)
	}
	if opts.CoreMIDIConfig == nil || opts.CoreMIDIConfig.ClientName != contracts.DefaultClientName {
		t.Errorf("CoreMIDIConfig = %+v", opts.CoreMIDIConfig)
	}
	if opts.ReceiveTimeout != time.Second || opts.MaxPayload != 512 || opts.HandlerQueue != contracts.DefaultHandlerQueue {
		t.Errorf("options = %+v", opts)
	}
}
