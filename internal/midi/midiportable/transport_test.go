package midiportable

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leandrodaf/midibridge/internal/logger"
	"github.com/leandrodaf/midibridge/sdk/contracts"
	"gitlab.com/gomidi/midi/v2/drivers"
)

type fakePort struct {
	mu     sync.Mutex
	num    int
	name   string
	open   bool
	opens  int
	onMsg  func([]byte, int32)
	sent   [][]byte
	failOp string
}

func (p *fakePort) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOp == "open" {
		return errors.New("device busy")
	}
	p.open = true
	p.opens++
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = false
	p.onMsg = nil
	return nil
}

func (p *fakePort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

func (p *fakePort) Number() int             { return p.num }
func (p *fakePort) String() string          { return p.name }
func (p *fakePort) Underlying() interface{} { return p }

type fakeIn struct{ *fakePort }

func (p fakeIn) Listen(onMsg func(msg []byte, milliseconds int32), _ drivers.ListenConfig) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onMsg = onMsg
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.onMsg = nil
	}, nil
}

func (p fakeIn) emit(msg []byte) bool {
	p.mu.Lock()
	f := p.onMsg
	p.mu.Unlock()
	if f == nil {
		return false
	}
	f(msg, 0)
	return true
}

type fakeOut struct{ *fakePort }

func (p fakeOut) Send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return errors.New("port not open")
	}
	p.sent = append(p.sent, append([]byte(nil), data...))
	return nil
}

type fakeDriver struct {
	ins  []drivers.In
	outs []drivers.Out
}

func (d *fakeDriver) Ins() ([]drivers.In, error)   { return d.ins, nil }
func (d *fakeDriver) Outs() ([]drivers.Out, error) { return d.outs, nil }
func (d *fakeDriver) String() string               { return "fake" }
func (d *fakeDriver) Close() error                 { return nil }

func newFake() (*Transport, fakeIn, fakeOut) {
	in := fakeIn{&fakePort{num: 0, name: "Launchkey MIDI"}}
	out := fakeOut{&fakePort{num: 0, name: "Launchkey Out"}}
	drv := &fakeDriver{ins: []drivers.In{in}, outs: []drivers.Out{out}}
	return New(drv, logger.NewNop()), in, out
}

func TestDisplayName(t *testing.T) {
	tr, _, _ := newFake()
	srcs, err := tr.Sources()
	if err != nil {
		t.Fatal(err)
	}
	if name, ok := tr.DisplayName(srcs[0]); !ok || name != "Launchkey MIDI" {
		t.Errorf("DisplayName = %q, %v", name, ok)
	}

	other, _, _ := newFake()
	if _, ok := other.DisplayName(srcs[0]); ok {
		t.Error("foreign handle resolved")
	}
}

func TestInputDeliversAndStops(t *testing.T) {
	tr, in, _ := newFake()
	srcs, _ := tr.Sources()

	var got [][]byte
	port, err := tr.OpenInput("In", func(batch [][]byte) {
		got = append(got, batch...)
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := port.Connect(srcs[0]); err != nil {
		t.Fatal(err)
	}
	if !in.IsOpen() {
		t.Fatal("source device not opened")
	}

	in.emit([]byte{0x90, 0x40, 0x7F})
	if diff := cmp.Diff([][]byte{{0x90, 0x40, 0x7F}}, got); diff != "" {
		t.Errorf("delivery mismatch (-want +got):\n%s", diff)
	}

	if err := port.Close(); err != nil {
		t.Fatal(err)
	}
	if in.emit([]byte{0x80, 0x40, 0x00}) {
		t.Error("listener still registered after Close")
	}
	if in.IsOpen() {
		t.Error("source device left open")
	}
	if err := port.Close(); err == nil {
		t.Error("second Close succeeded")
	}
}

func TestSecondListenerRejected(t *testing.T) {
	tr, _, _ := newFake()
	srcs, _ := tr.Sources()

	first, _ := tr.OpenInput("In", func([][]byte) {})
	if err := first.Connect(srcs[0]); err != nil {
		t.Fatal(err)
	}
	defer first.Close()

	second, _ := tr.OpenInput("In", func([][]byte) {})
	if err := second.Connect(srcs[0]); !errors.Is(err, contracts.ErrConnection) {
		t.Errorf("err = %v, want ErrConnection", err)
	}
}

func TestReconnectSamePortRejected(t *testing.T) {
	in0 := fakeIn{&fakePort{num: 0, name: "Keys"}}
	in1 := fakeIn{&fakePort{num: 1, name: "Pads"}}
	tr := New(&fakeDriver{ins: []drivers.In{in0, in1}}, logger.NewNop())
	srcs, _ := tr.Sources()

	port, _ := tr.OpenInput("In", func([][]byte) {})
	if err := port.Connect(srcs[0]); err != nil {
		t.Fatal(err)
	}
	if err := port.Connect(srcs[1]); !errors.Is(err, contracts.ErrConnection) {
		t.Fatalf("second Connect err = %v, want ErrConnection", err)
	}
	if in1.IsOpen() {
		t.Error("second source opened by a rejected Connect")
	}

	if err := port.Close(); err != nil {
		t.Fatal(err)
	}
	if in0.IsOpen() || in0.emit([]byte{0xF8}) {
		t.Error("first source still open or listened to after Close")
	}

	other, _ := tr.OpenInput("In", func([][]byte) {})
	if err := other.Connect(srcs[1]); err != nil {
		t.Errorf("second source reserved by the rejected Connect: %v", err)
	}
	_ = other.Close()
}

func TestConnectOpenFailure(t *testing.T) {
	tr, in, _ := newFake()
	in.failOp = "open"
	srcs, _ := tr.Sources()

	port, _ := tr.OpenInput("In", func([][]byte) {})
	if err := port.Connect(srcs[0]); !errors.Is(err, contracts.ErrConnection) {
		t.Fatalf("err = %v, want ErrConnection", err)
	}

	in.failOp = ""
	retry, _ := tr.OpenInput("In", func([][]byte) {})
	if err := retry.Connect(srcs[0]); err != nil {
		t.Errorf("source stayed reserved after a failed connect: %v", err)
	}
}

func TestOutputSplitsShortMessages(t *testing.T) {
	tr, _, out := newFake()
	dsts, _ := tr.Destinations()

	port, err := tr.OpenOutput("Out")
	if err != nil {
		t.Fatal(err)
	}
	frames := []contracts.Frame{
		{Data: []byte{0x90, 0x3C, 0x64, 0x80, 0x3C, 0x00}},
		{Data: []byte{0xF0, 0x7E, 0x7F, 0x06, 0x01, 0xF7}},
	}
	for _, fr := range frames {
		if err := port.Send(dsts[0], fr); err != nil {
			t.Fatal(err)
		}
	}

	want := [][]byte{
		{0x90, 0x3C, 0x64},
		{0x80, 0x3C, 0x00},
		{0xF0, 0x7E, 0x7F, 0x06, 0x01, 0xF7},
	}
	if diff := cmp.Diff(want, out.sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
	if out.opens != 1 {
		t.Errorf("device opened %d times, want 1", out.opens)
	}

	if err := port.Close(); err != nil {
		t.Fatal(err)
	}
	if out.IsOpen() {
		t.Error("destination device left open")
	}
	if err := port.Send(dsts[0], frames[0]); !errors.Is(err, contracts.ErrTransportSend) {
		t.Errorf("send after close err = %v, want ErrTransportSend", err)
	}
}

func TestSharedOutputDevice(t *testing.T) {
	tr, _, out := newFake()
	dsts, _ := tr.Destinations()

	a, _ := tr.OpenOutput("A")
	b, _ := tr.OpenOutput("B")
	for _, p := range []contracts.OutputPort{a, b} {
		if err := p.Send(dsts[0], contracts.Frame{Data: []byte{0xF8}}); err != nil {
			t.Fatal(err)
		}
	}
	_ = a.Close()
	if !out.IsOpen() {
		t.Fatal("device closed while another port still uses it")
	}
	_ = b.Close()
	if out.IsOpen() {
		t.Error("device left open after last port closed")
	}
}
