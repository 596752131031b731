// Package midiportable adapts a gomidi driver to contracts.Transport. It is
// the backend for systems without a dedicated native package; the binary
// chooses the actual driver by importing one (rtmididrv, portmididrv, ...).
package midiportable

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/leandrodaf/midibridge/internal/midi/frame"
	"github.com/leandrodaf/midibridge/sdk/contracts"
	"gitlab.com/gomidi/midi/v2/drivers"
)

var (
	errPortClosed    = errors.New("port already closed")
	errSourceInUse   = errors.New("source already connected in this process")
	errPortConnected = errors.New("port already connected")
	errNoDriver      = errors.New("no gomidi driver registered")
	errForeignHandle = errors.New("endpoint does not belong to this driver")
)

// device is the part of drivers.In and drivers.Out the transport manages.
type device interface {
	Open() error
	Close() error
	Number() int
	String() string
}

// Transport shares driver ports between connections: a device is opened by
// its first user and closed by its last.
type Transport struct {
	drv    drivers.Driver
	logger contracts.Logger
	start  time.Time

	mu        sync.Mutex
	refs      map[string]int
	listening map[int]bool
}

type endpoint struct {
	owner *Transport
	dir   contracts.Direction
	index int
	in    drivers.In
	out   drivers.Out
}

func (e endpoint) Direction() contracts.Direction { return e.dir }
func (e endpoint) Index() int                     { return e.index }

// NewTransport uses the driver registered with gomidi.
func NewTransport(options *contracts.ClientOptions) (contracts.Transport, error) {
	drv := drivers.Get()
	if drv == nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrAdapterInit, errNoDriver)
	}
	options.Logger.Info("MIDI client created on gomidi driver",
		options.Logger.Field().String("driver", drv.String()))
	return New(drv, options.Logger), nil
}

// New wraps drv.
func New(drv drivers.Driver, logger contracts.Logger) *Transport {
	return &Transport{
		drv:       drv,
		logger:    logger,
		start:     time.Now(),
		refs:      make(map[string]int),
		listening: make(map[int]bool),
	}
}

func (t *Transport) Sources() ([]contracts.Endpoint, error) {
	ins, err := t.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI sources: %w", err)
	}
	out := make([]contracts.Endpoint, len(ins))
	for i, in := range ins {
		out[i] = endpoint{owner: t, dir: contracts.Source, index: i, in: in}
	}
	return out, nil
}

func (t *Transport) Destinations() ([]contracts.Endpoint, error) {
	outs, err := t.drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI destinations: %w", err)
	}
	out := make([]contracts.Endpoint, len(outs))
	for i, o := range outs {
		out[i] = endpoint{owner: t, dir: contracts.Destination, index: i, out: o}
	}
	return out, nil
}

func (t *Transport) DisplayName(ep contracts.Endpoint) (string, bool) {
	e, ok := t.own(ep)
	if !ok {
		return "", false
	}
	var name string
	if e.dir == contracts.Source {
		name = e.in.String()
	} else {
		name = e.out.String()
	}
	return name, name != ""
}

func (t *Transport) own(ep contracts.Endpoint) (endpoint, bool) {
	e, ok := ep.(endpoint)
	return e, ok && e.owner == t
}

func (t *Transport) OpenInput(name string, deliver contracts.DeliverFunc) (contracts.InputPort, error) {
	return &inputPort{owner: t, deliver: deliver}, nil
}

func (t *Transport) OpenOutput(name string) (contracts.OutputPort, error) {
	return &outputPort{owner: t}, nil
}

// Now returns nanoseconds since the transport was created.
func (t *Transport) Now() uint64 {
	return uint64(time.Since(t.start))
}

// Close closes the driver and every port it opened.
func (t *Transport) Close() error {
	return t.drv.Close()
}

func refKey(d device, dir contracts.Direction) string {
	return fmt.Sprintf("%s:%d", dir, d.Number())
}

func (t *Transport) acquire(d device, dir contracts.Direction) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := refKey(d, dir)
	if t.refs[key] == 0 {
		if err := d.Open(); err != nil {
			return err
		}
	}
	t.refs[key]++
	return nil
}

func (t *Transport) release(d device, dir contracts.Direction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := refKey(d, dir)
	t.refs[key]--
	if t.refs[key] > 0 {
		return
	}
	delete(t.refs, key)
	if err := d.Close(); err != nil {
		t.logger.Warn("Failed to close MIDI port",
			t.logger.Field().String("port", d.String()),
			t.logger.Field().Error("error", err))
	}
}

type inputPort struct {
	owner   *Transport
	deliver contracts.DeliverFunc

	mu     sync.Mutex
	in     drivers.In
	stop   func()
	closed bool
}

// Connect opens the source device and starts listening. gomidi allows one
// listener per device, so a second connection to the same source fails.
func (p *inputPort) Connect(source contracts.Endpoint) error {
	e, ok := p.owner.own(source)
	if !ok || e.dir != contracts.Source {
		return fmt.Errorf("%w: %v", contracts.ErrConnection, errForeignHandle)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("%w: %v", contracts.ErrConnection, errPortClosed)
	}
	if p.in != nil {
		return fmt.Errorf("%w: %v", contracts.ErrConnection, errPortConnected)
	}

	t := p.owner
	t.mu.Lock()
	busy := t.listening[e.in.Number()]
	if !busy {
		t.listening[e.in.Number()] = true
	}
	t.mu.Unlock()
	if busy {
		return fmt.Errorf("%w: %v", contracts.ErrConnection, errSourceInUse)
	}

	if err := t.acquire(e.in, contracts.Source); err != nil {
		t.unlisten(e.in)
		return fmt.Errorf("%w: %v", contracts.ErrConnection, err)
	}
	stop, err := e.in.Listen(func(msg []byte, _ int32) {
		p.deliver([][]byte{msg})
	}, drivers.ListenConfig{
		SysEx:       true,
		TimeCode:    true,
		ActiveSense: true,
		OnErr: func(err error) {
			t.logger.Warn("MIDI input error",
				t.logger.Field().String("port", e.in.String()),
				t.logger.Field().Error("error", err))
		},
	})
	if err != nil {
		t.release(e.in, contracts.Source)
		t.unlisten(e.in)
		return fmt.Errorf("%w: %v", contracts.ErrConnection, err)
	}
	p.in, p.stop = e.in, stop
	return nil
}

func (t *Transport) unlisten(in drivers.In) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.listening, in.Number())
}

// Close stops the listener, unregistering the delivery callback, then
// releases the device.
func (p *inputPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPortClosed
	}
	p.closed = true
	if p.in == nil {
		return nil
	}
	p.stop()
	p.owner.release(p.in, contracts.Source)
	p.owner.unlisten(p.in)
	p.in, p.stop = nil, nil
	return nil
}

type outputPort struct {
	owner *Transport

	mu     sync.Mutex
	opened map[int]drivers.Out
	closed bool
}

// Send writes the frame to the destination. Frames made of complete short
// messages are written one message at a time; anything else (SysEx) goes out
// as a single write.
func (p *outputPort) Send(destination contracts.Endpoint, fr contracts.Frame) error {
	e, ok := p.owner.own(destination)
	if !ok || e.dir != contracts.Destination {
		return fmt.Errorf("%w: %v", contracts.ErrTransportSend, errForeignHandle)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("%w: %v", contracts.ErrTransportSend, errPortClosed)
	}
	if _, open := p.opened[e.out.Number()]; !open {
		if err := p.owner.acquire(e.out, contracts.Destination); err != nil {
			return fmt.Errorf("%w: %v", contracts.ErrTransportSend, err)
		}
		if p.opened == nil {
			p.opened = make(map[int]drivers.Out)
		}
		p.opened[e.out.Number()] = e.out
	}

	msgs, ok := frame.Split(fr.Data)
	if !ok {
		msgs = [][]byte{fr.Data}
	}
	for _, msg := range msgs {
		if err := e.out.Send(msg); err != nil {
			return fmt.Errorf("%w: %v", contracts.ErrTransportSend, err)
		}
	}
	return nil
}

func (p *outputPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPortClosed
	}
	p.closed = true
	for _, out := range p.opened {
		p.owner.release(out, contracts.Destination)
	}
	p.opened = nil
	return nil
}
