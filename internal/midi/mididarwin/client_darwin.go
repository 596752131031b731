//go:build darwin
// +build darwin

package mididarwin

/*
#include <mach/mach_time.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"

	"github.com/leandrodaf/midibridge/sdk/contracts"
	"github.com/youpy/go-coremidi"
)

var errPortClosed = errors.New("port already closed")

// internalPortConnection is an interface for handling disconnection from a MIDI port.
type internalPortConnection interface {
	Disconnect()
}

// Transport adapts CoreMIDI to contracts.Transport. One CoreMIDI client backs
// every port it creates.
type Transport struct {
	logger contracts.Logger
	client coremidi.Client
}

type endpoint struct {
	dir   contracts.Direction
	index int
	src   coremidi.Source
	dst   coremidi.Destination
}

func (e endpoint) Direction() contracts.Direction { return e.dir }
func (e endpoint) Index() int                     { return e.index }

// NewTransport registers a CoreMIDI client named after the configured client name.
func NewTransport(options *contracts.ClientOptions) (contracts.Transport, error) {
	client, err := coremidi.NewClient(options.CoreMIDIConfig.ClientName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrAdapterInit, err)
	}
	options.Logger.Info("MIDI client successfully created",
		options.Logger.Field().String("client", options.CoreMIDIConfig.ClientName))

	return &Transport{logger: options.Logger, client: client}, nil
}

// Sources lists CoreMIDI sources in system order.
func (t *Transport) Sources() ([]contracts.Endpoint, error) {
	sources, err := coremidi.AllSources()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI sources: %w", err)
	}
	out := make([]contracts.Endpoint, len(sources))
	for i, src := range sources {
		out[i] = endpoint{dir: contracts.Source, index: i, src: src}
	}
	return out, nil
}

// Destinations lists CoreMIDI destinations in system order.
func (t *Transport) Destinations() ([]contracts.Endpoint, error) {
	destinations, err := coremidi.AllDestinations()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI destinations: %w", err)
	}
	out := make([]contracts.Endpoint, len(destinations))
	for i, dst := range destinations {
		out[i] = endpoint{dir: contracts.Destination, index: i, dst: dst}
	}
	return out, nil
}

// DisplayName returns the endpoint's CoreMIDI name.
func (t *Transport) DisplayName(ep contracts.Endpoint) (string, bool) {
	e, ok := ep.(endpoint)
	if !ok {
		return "", false
	}
	var name string
	if e.dir == contracts.Source {
		name = e.src.Name()
	} else {
		name = e.dst.Name()
	}
	return name, name != ""
}

// OpenInput creates a CoreMIDI input port. CoreMIDI calls the read proc once
// per packet, so every packet is delivered as its own batch.
func (t *Transport) OpenInput(name string, deliver contracts.DeliverFunc) (contracts.InputPort, error) {
	port, err := coremidi.NewInputPort(t.client, name, func(_ coremidi.Source, packet coremidi.Packet) {
		deliver([][]byte{packet.Data})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrAdapterInit, err)
	}
	return &inputPort{port: port}, nil
}

// OpenOutput creates a CoreMIDI output port.
func (t *Transport) OpenOutput(name string) (contracts.OutputPort, error) {
	port, err := coremidi.NewOutputPort(t.client, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrAdapterInit, err)
	}
	return &outputPort{port: port}, nil
}

// Now returns host time, the clock CoreMIDI packet timestamps use.
func (t *Transport) Now() uint64 {
	return uint64(C.mach_absolute_time())
}

// Close is a no-op: go-coremidi does not expose MIDIClientDispose and the
// client lives for the rest of the process.
func (t *Transport) Close() error {
	t.logger.Info("MIDI client released")
	return nil
}

type inputPort struct {
	mu       sync.Mutex
	port     coremidi.InputPort
	portConn internalPortConnection
	closed   bool
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
	conn, err := p.port.Connect(e.src)
	if err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrConnection, err)
	}
	p.portConn = conn
	return nil
}

// Close disconnects the port from its source, which stops further read proc
// calls for this port.
func (p *inputPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPortClosed
	}
	p.closed = true
	if p.portConn != nil {
		p.portConn.Disconnect()
		p.portConn = nil
	}
	return nil
}

type outputPort struct {
	mu     sync.Mutex
	port   coremidi.OutputPort
	closed bool
}

func (p *outputPort) Send(destination contracts.Endpoint, frame contracts.Frame) error {
	e, ok := destination.(endpoint)
	if !ok || e.dir != contracts.Destination {
		return fmt.Errorf("%w: %v", contracts.ErrTransportSend, contracts.ErrInvalidEndpoint)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("%w: %v", contracts.ErrTransportSend, errPortClosed)
	}
	packet := coremidi.NewPacket(frame.Data, frame.Timestamp)
	if err := packet.Send(&p.port, &e.dst); err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrTransportSend, err)
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
	return nil
}
