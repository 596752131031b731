package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/leandrodaf/midibridge/internal/midi/loopback"
	"github.com/leandrodaf/midibridge/sdk/contracts"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MIDIBRIDGE_CONFIG", "")
	t.Setenv("MIDIBRIDGE_LOG_LEVEL", "error")
}

func newLoopback() *loopback.Transport {
	return loopback.New([]string{"Keys", "Pads"}, []string{"Synth", "Drums"})
}

func run(tr contracts.Transport, args ...string) (string, error) {
	var out bytes.Buffer
	a := &app{out: &out, transport: tr}
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	a.teardown()
	return out.String(), err
}

type result struct {
	out string
	err error
}

func runAsync(tr contracts.Transport, args ...string) <-chan result {
	done := make(chan result, 1)
	go func() {
		out, err := run(tr, args...)
		done <- result{out, err}
	}()
	return done
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func wait(t *testing.T, done <-chan result) result {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("command did not finish")
		return result{}
	}
}

func TestList(t *testing.T) {
	isolate(t)
	out, err := run(newLoopback(), "list")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"KIND", "source", "Keys", "Pads", "destination", "Synth", "Drums"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}
}

func TestListLoopbackFlag(t *testing.T) {
	isolate(t)
	out, err := run(nil, "--loopback", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Loopback 2") {
		t.Errorf("list output:\n%s", out)
	}
}

func TestSend(t *testing.T) {
	isolate(t)
	tr := newLoopback()
	if _, err := run(tr, "send", "--dest", "Synth", "90", "3C", "64"); err != nil {
		t.Fatal(err)
	}
	if _, err := run(tr, "send", "--dest", "1", "f07e7f0601f7"); err != nil {
		t.Fatal(err)
	}

	var got []loopback.Sent
	for _, s := range tr.Sent() {
		s.Frame.Timestamp = 0
		got = append(got, s)
	}
	want := []loopback.Sent{
		{Destination: 0, Frame: contracts.Frame{Data: []byte{0x90, 0x3C, 0x64}}},
		{Destination: 1, Frame: contracts.Frame{Data: []byte{0xF0, 0x7E, 0x7F, 0x06, 0x01, 0xF7}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
}

func TestSendErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		kind error
	}{
		{"unknown destination", []string{"send", "--dest", "Piano", "F8"}, contracts.ErrEndpointNotFound},
		{"index out of range", []string{"send", "--dest", "7", "F8"}, contracts.ErrEndpointNotFound},
		{"bad hex", []string{"send", "--dest", "0", "9G"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			tr := newLoopback()
			_, err := run(tr, tt.args...)
			if err == nil || (tt.kind != nil && !errors.Is(err, tt.kind)) {
				t.Errorf("err = %v, want %v", err, tt.kind)
			}
			if len(tr.Sent()) != 0 {
				t.Error("bytes sent despite the error")
			}
		})
	}
}

func TestReceive(t *testing.T) {
	isolate(t)
	tr := newLoopback()
	done := runAsync(tr, "receive", "--source", "Keys", "--timeout", "3s")

	waitFor(t, "source connection", func() bool { return tr.Connected(0) == 1 })
	tr.Deliver(0, []byte{0x90, 0x3C, 0x64})

	r := wait(t, done)
	if r.err != nil {
		t.Fatal(r.err)
	}
	if r.out != "90 3C 64\n" {
		t.Errorf("output = %q", r.out)
	}
	if tr.OpenPorts() != 0 {
		t.Error("receive left its port open")
	}
}

func TestReceiveTimeout(t *testing.T) {
	isolate(t)
	_, err := run(newLoopback(), "receive", "--source", "0", "--timeout", "20ms")
	if !errors.Is(err, contracts.ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestReceiveTimeoutFromConfig(t *testing.T) {
	isolate(t)
	t.Setenv("MIDIBRIDGE_MIDI_RECEIVE_TIMEOUT", "20ms")
	_, err := run(newLoopback(), "receive", "--source", "Keys")
	if !errors.Is(err, contracts.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if !strings.Contains(err.Error(), "within 20ms") {
		t.Errorf("err = %v, want the configured limit", err)
	}
}

func TestMonitor(t *testing.T) {
	isolate(t)
	tr := newLoopback()
	done := runAsync(tr, "monitor", "--source", "Keys", "--source", "Pads", "--duration", "1s")

	waitFor(t, "both source connections", func() bool { return tr.Connected(0) == 1 && tr.Connected(1) == 1 })
	tr.Deliver(0, []byte{0x90, 0x3C, 0x64})
	tr.Deliver(1, []byte{0x80, 0x3C, 0x00})

	r := wait(t, done)
	if r.err != nil {
		t.Fatal(r.err)
	}
	for _, want := range []string{"Keys: 90 3C 64\n", "Pads: 80 3C 00\n"} {
		if !strings.Contains(r.out, want) {
			t.Errorf("monitor output missing %q:\n%s", want, r.out)
		}
	}
}

func TestForward(t *testing.T) {
	isolate(t)
	tr := newLoopback()
	done := runAsync(tr, "forward", "--source", "Keys", "--dest", "Drums", "--duration", "1s")

	waitFor(t, "source connection", func() bool { return tr.Connected(0) == 1 })
	tr.Deliver(0, []byte{0xB0, 0x07, 0x40})

	r := wait(t, done)
	if r.err != nil {
		t.Fatal(r.err)
	}
	sent := tr.Sent()
	if len(sent) != 1 || sent[0].Destination != 1 || !bytes.Equal(sent[0].Frame.Data, []byte{0xB0, 0x07, 0x40}) {
		t.Errorf("sent = %+v", sent)
	}
	if !strings.Contains(r.out, "forwarded 1 batches from Keys to Drums (0 failed)") {
		t.Errorf("output = %q", r.out)
	}
}

func TestInvalidConfig(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "midibridge.yaml")
	if err := os.WriteFile(path, []byte("midi:\n  max_payload: -4\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(newLoopback(), "--config", path, "list"); err == nil {
		t.Error("invalid config accepted")
	}
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		args []string
		want []byte
	}{
		{[]string{"90", "3C", "64"}, []byte{0x90, 0x3C, 0x64}},
		{[]string{"903c64"}, []byte{0x90, 0x3C, 0x64}},
		{[]string{"90 3C", "64"}, []byte{0x90, 0x3C, 0x64}},
	}
	for _, tt := range tests {
		got, err := parseHex(tt.args)
		if err != nil {
			t.Fatalf("parseHex(%q): %v", tt.args, err)
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("parseHex(%q) = % X", tt.args, got)
		}
	}
	if _, err := parseHex([]string{"9"}); err == nil {
		t.Error("odd digit count accepted")
	}
}
