// Package loopback is an in-process contracts.Transport. Destination i is
// wired to source i, so bytes sent to a destination are delivered to every
// input port connected to the matching source. It also records every frame
// and can fail chosen operations, which makes it the transport used by tests.
package loopback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/leandrodaf/midibridge/sdk/contracts"
)

// Op names a transport operation that can be made to fail.
type Op int

const (
	OpOpenInput Op = iota
	OpConnect
	OpOpenOutput
	OpSend
)

var errPortClosed = errors.New("port already closed")

// Sent is one frame submitted through an output port.
type Sent struct {
	Destination int
	Frame       contracts.Frame
}

// Transport is the loopback transport. The zero value is not usable; call New.
type Transport struct {
	start        time.Time
	sources      []string
	destinations []string

	mu       sync.Mutex
	inputs   map[*inputPort]struct{}
	outputs  map[*outputPort]struct{}
	sent     []Sent
	failures map[Op]error
	released int
	closed   bool
}

// New returns a transport with the given source and destination names. An
// empty name makes DisplayName report a failed lookup for that endpoint.
func New(sources, destinations []string) *Transport {
	return &Transport{
		start:        time.Now(),
		sources:      sources,
		destinations: destinations,
		inputs:       make(map[*inputPort]struct{}),
		outputs:      make(map[*outputPort]struct{}),
		failures:     make(map[Op]error),
	}
}

type endpoint struct {
	owner *Transport
	dir   contracts.Direction
	index int
}

func (e endpoint) Direction() contracts.Direction { return e.dir }
func (e endpoint) Index() int                     { return e.index }

func (t *Transport) Sources() ([]contracts.Endpoint, error) {
	return t.list(contracts.Source, len(t.sources)), nil
}

func (t *Transport) Destinations() ([]contracts.Endpoint, error) {
	return t.list(contracts.Destination, len(t.destinations)), nil
}

func (t *Transport) list(dir contracts.Direction, n int) []contracts.Endpoint {
	out := make([]contracts.Endpoint, n)
	for i := range out {
		out[i] = endpoint{owner: t, dir: dir, index: i}
	}
	return out
}

func (t *Transport) DisplayName(ep contracts.Endpoint) (string, bool) {
	e, ok := t.own(ep)
	if !ok {
		return "", false
	}
	names := t.sources
	if e.dir == contracts.Destination {
		names = t.destinations
	}
	if e.index >= len(names) || names[e.index] == "" {
		return "", false
	}
	return names[e.index], true
}

func (t *Transport) own(ep contracts.Endpoint) (endpoint, bool) {
	e, ok := ep.(endpoint)
	return e, ok && e.owner == t
}

// FailNext makes the next call of op return err.
func (t *Transport) FailNext(op Op, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[op] = err
}

func (t *Transport) takeFailure(op Op) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.failures[op]
	delete(t.failures, op)
	return err
}

func (t *Transport) OpenInput(name string, deliver contracts.DeliverFunc) (contracts.InputPort, error) {
	if err := t.takeFailure(OpOpenInput); err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrAdapterInit, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("%w: transport closed", contracts.ErrAdapterInit)
	}
	p := &inputPort{owner: t, name: name, deliver: deliver, source: -1}
	t.inputs[p] = struct{}{}
	return p, nil
}

func (t *Transport) OpenOutput(name string) (contracts.OutputPort, error) {
	if err := t.takeFailure(OpOpenOutput); err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrAdapterInit, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("%w: transport closed", contracts.ErrAdapterInit)
	}
	p := &outputPort{owner: t, name: name}
	t.outputs[p] = struct{}{}
	return p, nil
}

// Now returns nanoseconds since the transport was created.
func (t *Transport) Now() uint64 {
	return uint64(time.Since(t.start))
}

// Close releases every open port.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for p := range t.inputs {
		delete(t.inputs, p)
		t.released++
	}
	for p := range t.outputs {
		delete(t.outputs, p)
		t.released++
	}
	return nil
}

// Deliver runs one delivery batch on the calling goroutine for every input
// port connected to source, the way a native driver thread would. It reports
// how many ports received the batch.
func (t *Transport) Deliver(source int, batch ...[]byte) int {
	t.mu.Lock()
	var targets []*inputPort
	for p := range t.inputs {
		if p.source == source {
			targets = append(targets, p)
		}
	}
	t.mu.Unlock()

	for _, p := range targets {
		p.deliver(batch)
	}
	return len(targets)
}

// Sent returns a copy of every frame submitted so far.
func (t *Transport) Sent() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Sent(nil), t.sent...)
}

// OpenPorts reports how many ports are currently open.
func (t *Transport) OpenPorts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inputs) + len(t.outputs)
}

// Connected reports how many input ports are connected to source.
func (t *Transport) Connected(source int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for p := range t.inputs {
		if p.source == source {
			n++
		}
	}
	return n
}

// Released reports how many ports have been released.
func (t *Transport) Released() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}

type inputPort struct {
	owner   *Transport
	name    string
	deliver contracts.DeliverFunc
	source  int
}

func (p *inputPort) Connect(source contracts.Endpoint) error {
	if err := p.owner.takeFailure(OpConnect); err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrConnection, err)
	}
	e, ok := p.owner.own(source)
	if !ok || e.dir != contracts.Source || e.index >= len(p.owner.sources) {
		return fmt.Errorf("%w: %v", contracts.ErrConnection, contracts.ErrInvalidEndpoint)
	}
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	if _, open := p.owner.inputs[p]; !open {
		return fmt.Errorf("%w: %v", contracts.ErrConnection, errPortClosed)
	}
	p.source = e.index
	return nil
}

func (p *inputPort) Close() error {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	if _, open := p.owner.inputs[p]; !open {
		return errPortClosed
	}
	delete(p.owner.inputs, p)
	p.owner.released++
	return nil
}

type outputPort struct {
	owner *Transport
	name  string
}

func (p *outputPort) Send(destination contracts.Endpoint, frame contracts.Frame) error {
	if err := p.owner.takeFailure(OpSend); err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrTransportSend, err)
	}
	e, ok := p.owner.own(destination)
	if !ok || e.dir != contracts.Destination || e.index >= len(p.owner.destinations) {
		return fmt.Errorf("%w: %v", contracts.ErrTransportSend, contracts.ErrInvalidEndpoint)
	}

	p.owner.mu.Lock()
	if _, open := p.owner.outputs[p]; !open {
		p.owner.mu.Unlock()
		return fmt.Errorf("%w: %v", contracts.ErrTransportSend, errPortClosed)
	}
	p.owner.sent = append(p.owner.sent, Sent{Destination: e.index, Frame: frame})
	p.owner.mu.Unlock()

	if e.index < len(p.owner.sources) {
		p.owner.Deliver(e.index, frame.Data)
	}
	return nil
}

func (p *outputPort) Close() error {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	if _, open := p.owner.outputs[p]; !open {
		return errPortClosed
	}
	delete(p.owner.outputs, p)
	p.owner.released++
	return nil
}
