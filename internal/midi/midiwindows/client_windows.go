//go:build windows
// +build windows

package midiwindows

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/leandrodaf/midibridge/internal/midi/frame"
	"github.com/leandrodaf/midibridge/sdk/contracts"
	"golang.org/x/sys/windows"
)

// Type definitions for MIDI handles
type (
	HMIDIIN  windows.Handle
	HMIDIOUT windows.Handle
)

// Constants for callback flags
const (
	CALLBACK_FUNCTION = 0x00030000 // Indicates that the callback is a function
	MIDI_IO_STATUS    = 0x00000020 // MIDI input/output status
)

// Constants for MIDI message types
const (
	MIM_OPEN      = 0x3C1 // MIDI device opened
	MIM_CLOSE     = 0x3C2 // MIDI device closed
	MIM_DATA      = 0x3C3 // MIDI data received
	MIM_ERROR     = 0x3C5 // MIDI error
	MIM_LONGERROR = 0x3C6 // Long MIDI error
	MIM_MOREDATA  = 0x3CC // More MIDI data available
)

const (
	mhdrDone     = 0x00000001
	longMsgWait  = 2 * time.Second
	longMsgPoll  = time.Millisecond
	capsNameSize = 32
)

var errPortClosed = errors.New("port already closed")

// Struct representing MIDI input device capabilities
type midiInCaps struct {
	wMid           uint16
	wPid           uint16
	vDriverVersion uint32
	szPname        [capsNameSize]uint16
	dwSupport      uint32
}

// Struct representing MIDI output device capabilities
type midiOutCaps struct {
	wMid           uint16
	wPid           uint16
	vDriverVersion uint32
	szPname        [capsNameSize]uint16
	wTechnology    uint16
	wVoices        uint16
	wNotes         uint16
	wChannelMask   uint16
	dwSupport      uint32
}

// midiHdr mirrors MIDIHDR for long (SysEx) output.
type midiHdr struct {
	lpData          *byte
	dwBufferLength  uint32
	dwBytesRecorded uint32
	dwUser          uintptr
	dwFlags         uint32
	lpNext          *midiHdr
	reserved        uintptr
	dwOffset        uint32
	dwReserved      [8]uintptr
}

// Load the winmm.dll library and required functions
var (
	winmm                      = windows.NewLazySystemDLL("winmm.dll")
	procMidiInGetNumDevs       = winmm.NewProc("midiInGetNumDevs")
	procMidiInGetDevCaps       = winmm.NewProc("midiInGetDevCapsW")
	procMidiInOpen             = winmm.NewProc("midiInOpen")
	procMidiInStart            = winmm.NewProc("midiInStart")
	procMidiInStop             = winmm.NewProc("midiInStop")
	procMidiInClose            = winmm.NewProc("midiInClose")
	procMidiOutGetNumDevs      = winmm.NewProc("midiOutGetNumDevs")
	procMidiOutGetDevCaps      = winmm.NewProc("midiOutGetDevCapsW")
	procMidiOutOpen            = winmm.NewProc("midiOutOpen")
	procMidiOutShortMsg        = winmm.NewProc("midiOutShortMsg")
	procMidiOutPrepareHeader   = winmm.NewProc("midiOutPrepareHeader")
	procMidiOutLongMsg         = winmm.NewProc("midiOutLongMsg")
	procMidiOutUnprepareHeader = winmm.NewProc("midiOutUnprepareHeader")
	procMidiOutClose           = winmm.NewProc("midiOutClose")
)

// winmm hands dwInstance back to the callback. It carries a registry key,
// never a Go pointer, and the callback itself is created once per process
// because windows.NewCallback slots are never freed.
var (
	inputs      sync.Map // uintptr -> *inputPort
	nextInputID atomic.Uintptr
	callback    = sync.OnceValue(func() uintptr { return windows.NewCallback(midiInCallback) })
)

// Transport adapts winmm to contracts.Transport.
type Transport struct {
	logger contracts.Logger
	start  time.Time
}

type endpoint struct {
	dir   contracts.Direction
	index int
}

func (e endpoint) Direction() contracts.Direction { return e.dir }
func (e endpoint) Index() int                     { return e.index }

// NewTransport creates a MIDI transport for Windows
func NewTransport(options *contracts.ClientOptions) (contracts.Transport, error) {
	if err := winmm.Load(); err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrAdapterInit, err)
	}
	options.Logger.Info("MIDI client created for Windows")
	return &Transport{logger: options.Logger, start: time.Now()}, nil
}

// Sources lists the MIDI input devices
func (t *Transport) Sources() ([]contracts.Endpoint, error) {
	r0, _, _ := procMidiInGetNumDevs.Call()
	return listEndpoints(contracts.Source, int(uint32(r0))), nil
}

// Destinations lists the MIDI output devices
func (t *Transport) Destinations() ([]contracts.Endpoint, error) {
	r0, _, _ := procMidiOutGetNumDevs.Call()
	return listEndpoints(contracts.Destination, int(uint32(r0))), nil
}

func listEndpoints(dir contracts.Direction, n int) []contracts.Endpoint {
	out := make([]contracts.Endpoint, n)
	for i := range out {
		out[i] = endpoint{dir: dir, index: i}
	}
	return out
}

// DisplayName reads the device name from its capabilities.
func (t *Transport) DisplayName(ep contracts.Endpoint) (string, bool) {
	e, ok := ep.(endpoint)
	if !ok {
		return "", false
	}
	if e.dir == contracts.Source {
		var caps midiInCaps
		r1, _, _ := procMidiInGetDevCaps.Call(uintptr(e.index), uintptr(unsafe.Pointer(&caps)), unsafe.Sizeof(caps))
		if r1 != 0 {
			return "", false
		}
		return windows.UTF16ToString(caps.szPname[:]), true
	}
	var caps midiOutCaps
	r1, _, _ := procMidiOutGetDevCaps.Call(uintptr(e.index), uintptr(unsafe.Pointer(&caps)), unsafe.Sizeof(caps))
	if r1 != 0 {
		return "", false
	}
	return windows.UTF16ToString(caps.szPname[:]), true
}

// OpenInput prepares an input port. winmm binds a device at open time, so
// the device is opened by Connect.
func (t *Transport) OpenInput(name string, deliver contracts.DeliverFunc) (contracts.InputPort, error) {
	p := &inputPort{
		id:      nextInputID.Add(1),
		logger:  t.logger,
		deliver: deliver,
	}
	inputs.Store(p.id, p)
	return p, nil
}

// OpenOutput prepares an output port. The device is opened on first send.
func (t *Transport) OpenOutput(name string) (contracts.OutputPort, error) {
	return &outputPort{logger: t.logger}, nil
}

// Now returns nanoseconds since the transport was created.
func (t *Transport) Now() uint64 {
	return uint64(time.Since(t.start))
}

// Close is a no-op; winmm has no client object.
func (t *Transport) Close() error {
	return nil
}

type inputPort struct {
	id      uintptr
	logger  contracts.Logger
	deliver contracts.DeliverFunc

	mu     sync.Mutex
	handle HMIDIIN
	closed bool
}

func (p *inputPort) Connect(source contracts.Endpoint) error {
	e, ok := source.(endpoint)
	if !ok || e.dir != contracts.Source {
		return fmt.Errorf("%w: %v", contracts.ErrConnection, contracts.ErrInvalidEndpoint)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("%w: %v", contracts.ErrConnection, errPortClosed)
	}

	fdwOpen := CALLBACK_FUNCTION | MIDI_IO_STATUS
	r1, _, err := procMidiInOpen.Call(
		uintptr(unsafe.Pointer(&p.handle)),
		uintptr(e.index),
		callback(),
		p.id,
		uintptr(fdwOpen),
	)
	if r1 != 0 {
		return fmt.Errorf("%w: midiInOpen device %d: %v", contracts.ErrConnection, e.index, err)
	}

	r1, _, err = procMidiInStart.Call(uintptr(p.handle))
	if r1 != 0 {
		procMidiInClose.Call(uintptr(p.handle))
		p.handle = 0
		return fmt.Errorf("%w: midiInStart device %d: %v", contracts.ErrConnection, e.index, err)
	}
	return nil
}

// Close stops the device and removes the port from the callback registry.
func (p *inputPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPortClosed
	}
	p.closed = true
	inputs.Delete(p.id)

	if p.handle == 0 {
		return nil
	}
	handle := p.handle
	p.handle = 0
	if r1, _, err := procMidiInStop.Call(uintptr(handle)); r1 != 0 {
		p.logger.Error(fmt.Sprintf("Failed to stop MIDI capture: %v", err))
	}
	if r1, _, err := procMidiInClose.Call(uintptr(handle)); r1 != 0 {
		return fmt.Errorf("midiInClose: %v", err)
	}
	return nil
}

// midiInCallback processes incoming MIDI messages
func midiInCallback(hMidiIn uintptr, wMsg uint32, dwInstance uintptr, dwParam1 uintptr, dwParam2 uintptr) uintptr {
	v, ok := inputs.Load(dwInstance)
	if !ok {
		return 0
	}
	p := v.(*inputPort)

	switch wMsg {
	case MIM_OPEN:
		p.logger.Debug("MIDI device opened")
	case MIM_CLOSE:
		p.logger.Debug("MIDI device closed")
	case MIM_DATA, MIM_MOREDATA:
		if msg := frame.Unpack(uint32(dwParam1)); msg != nil {
			p.deliver([][]byte{msg})
		}
	case MIM_ERROR, MIM_LONGERROR:
		p.logger.Error(fmt.Sprintf("MIDI error: msg=0x%X", wMsg))
	default:
		p.logger.Warn(fmt.Sprintf("Unknown MIDI message: 0x%X", wMsg))
	}

	return 0
}

type outputPort struct {
	logger contracts.Logger

	mu     sync.Mutex
	handle HMIDIOUT
	device int
	closed bool
}

func (p *outputPort) Send(destination contracts.Endpoint, fr contracts.Frame) error {
	e, ok := destination.(endpoint)
	if !ok || e.dir != contracts.Destination {
		return fmt.Errorf("%w: %v", contracts.ErrTransportSend, contracts.ErrInvalidEndpoint)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("%w: %v", contracts.ErrTransportSend, errPortClosed)
	}
	if err := p.open(e.index); err != nil {
		return err
	}

	if msgs, ok := frame.Split(fr.Data); ok {
		for _, msg := range msgs {
			if r1, _, err := procMidiOutShortMsg.Call(uintptr(p.handle), uintptr(frame.Pack(msg))); r1 != 0 {
				return fmt.Errorf("%w: midiOutShortMsg: %v", contracts.ErrTransportSend, err)
			}
		}
		return nil
	}
	return p.sendLong(fr.Data)
}

// open binds the port to device, reopening if it was bound elsewhere.
func (p *outputPort) open(device int) error {
	if p.handle != 0 && p.device == device {
		return nil
	}
	p.release()

	r1, _, err := procMidiOutOpen.Call(uintptr(unsafe.Pointer(&p.handle)), uintptr(device), 0, 0, 0)
	if r1 != 0 {
		p.handle = 0
		return fmt.Errorf("%w: midiOutOpen device %d: %v", contracts.ErrTransportSend, device, err)
	}
	p.device = device
	return nil
}

func (p *outputPort) sendLong(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	buf := append([]byte(nil), data...)
	hdr := midiHdr{lpData: &buf[0], dwBufferLength: uint32(len(buf)), dwBytesRecorded: uint32(len(buf))}
	size := unsafe.Sizeof(hdr)

	if r1, _, err := procMidiOutPrepareHeader.Call(uintptr(p.handle), uintptr(unsafe.Pointer(&hdr)), size); r1 != 0 {
		return fmt.Errorf("%w: midiOutPrepareHeader: %v", contracts.ErrTransportSend, err)
	}
	defer procMidiOutUnprepareHeader.Call(uintptr(p.handle), uintptr(unsafe.Pointer(&hdr)), size)

	if r1, _, err := procMidiOutLongMsg.Call(uintptr(p.handle), uintptr(unsafe.Pointer(&hdr)), size); r1 != 0 {
		return fmt.Errorf("%w: midiOutLongMsg: %v", contracts.ErrTransportSend, err)
	}
	deadline := time.Now().Add(longMsgWait)
	for hdr.dwFlags&mhdrDone == 0 {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: long message not acknowledged", contracts.ErrTransportSend)
		}
		time.Sleep(longMsgPoll)
	}
	return nil
}

func (p *outputPort) release() {
	if p.handle == 0 {
		return
	}
	if r1, _, err := procMidiOutClose.Call(uintptr(p.handle)); r1 != 0 {
		p.logger.Warn(fmt.Sprintf("Failed to close MIDI output device: %v", err))
	}
	p.handle = 0
}

func (p *outputPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPortClosed
	}
	p.closed = true
	p.release()
	return nil
}
