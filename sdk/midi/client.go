// Package midi is the entry point of the library: it creates clients bound to
// the process-wide MIDI transport.
package midi

import (
	"errors"
	"fmt"
	"sync"

	"github.com/leandrodaf/midibridge/internal/endpoint"
	"github.com/leandrodaf/midibridge/sdk/contracts"
	"go.uber.org/multierr"
)

// NewMIDIClient creates a new MIDI client with the specified options.
// It applies default options and binds the client to the process-wide
// transport, creating it on first use, unless WithTransport is given.
//
// opts ...contracts.Option: A variadic list of option functions to customize the client configuration.
//
// Returns:
//   - contracts.ClientMIDI: An instance of the MIDI client.
//   - error: An error, if any occurred during the creation of the client.
func NewMIDIClient(opts ...contracts.Option) (contracts.ClientMIDI, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}

	t := options.Transport
	if t == nil {
		if t, err = processTransport(&options); err != nil {
			options.Logger.Error("Failed to initialize MIDI transport", options.Logger.Field().Error("error", err))
			return nil, err
		}
	}
	return NewClient(t, &options), nil
}

// Client tracks the connections opened through it so Close can release them.
type Client struct {
	transport contracts.Transport
	options   contracts.ClientOptions
	logger    contracts.Logger

	mu     sync.Mutex
	conns  map[uint64]contracts.Connection
	nextID uint64
	closed bool
}

// NewClient binds a client to t. Options are used as given; NewMIDIClient
// fills in defaults.
func NewClient(t contracts.Transport, opts *contracts.ClientOptions) *Client {
	return &Client{
		transport: t,
		options:   *opts,
		logger:    opts.Logger,
		conns:     make(map[uint64]contracts.Connection),
	}
}

func (c *Client) ListSources() ([]contracts.Endpoint, error) {
	return c.transport.Sources()
}

func (c *Client) ListDestinations() ([]contracts.Endpoint, error) {
	return c.transport.Destinations()
}

// EndpointName returns the display name of endpoint. ok is false when the
// transport has none.
func (c *Client) EndpointName(ep contracts.Endpoint) (string, bool) {
	if ep == nil {
		return "", false
	}
	return c.transport.DisplayName(ep)
}

func (c *Client) OpenSource(ep contracts.Endpoint) (contracts.InboundConnection, error) {
	var conn *endpoint.Inbound
	err := c.track(func(cfg endpoint.Config) (contracts.Connection, error) {
		var err error
		conn, err = endpoint.ConnectSource(c.transport, ep, endpoint.BlockingPull(), cfg)
		return conn, err
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) OpenSourceFunc(ep contracts.Endpoint, handler contracts.DataHandler) (contracts.PushConnection, error) {
	var conn *endpoint.Inbound
	err := c.track(func(cfg endpoint.Config) (contracts.Connection, error) {
		var err error
		conn, err = endpoint.ConnectSource(c.transport, ep, endpoint.PushCallback(handler), cfg)
		return conn, err
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) OpenDestination(ep contracts.Endpoint) (contracts.OutboundConnection, error) {
	var conn *endpoint.Outbound
	err := c.track(func(cfg endpoint.Config) (contracts.Connection, error) {
		var err error
		conn, err = endpoint.ConnectDestination(c.transport, ep, cfg)
		return conn, err
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// track reserves a slot for a new connection, opens it and records it. A
// connection closed before it is recorded keeps its slot empty; one opened
// while the client was closing is closed again.
func (c *Client) track(open func(endpoint.Config) (contracts.Connection, error)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return contracts.ErrClosed
	}
	id := c.nextID
	c.nextID++
	c.conns[id] = nil
	c.mu.Unlock()

	conn, err := open(endpoint.Config{
		Logger:         c.logger,
		MaxPayload:     c.options.MaxPayload,
		HandlerQueue:   c.options.HandlerQueue,
		ReceiveTimeout: c.options.ReceiveTimeout,
		OnClose:        func() { c.forget(id) },
	})
	if err != nil {
		c.forget(id)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return contracts.ErrClosed
	}
	if _, live := c.conns[id]; live {
		c.conns[id] = conn
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, id)
}

// Open reports how many connections are open on the client.
func (c *Client) Open() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, conn := range c.conns {
		if conn != nil {
			n++
		}
	}
	return n
}

// Close closes every connection still open on the client. The transport
// stays up; see Shutdown.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return contracts.ErrClosed
	}
	c.closed = true
	open := make([]contracts.Connection, 0, len(c.conns))
	for _, conn := range c.conns {
		if conn != nil {
			open = append(open, conn)
		}
	}
	c.mu.Unlock()

	var err error
	for _, conn := range open {
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, contracts.ErrClosed) {
			err = multierr.Append(err, fmt.Errorf("closing endpoint %d: %w", conn.Endpoint().Index(), cerr))
		}
	}
	c.logger.Info("MIDI client closed", c.logger.Field().Int("connections", len(open)))
	return err
}

// FindSource returns the source whose display name is exactly name.
func FindSource(client contracts.ClientMIDI, name string) (contracts.Endpoint, error) {
	sources, err := client.ListSources()
	if err != nil {
		return nil, err
	}
	return findByName(client, sources, name)
}

// FindDestination returns the destination whose display name is exactly name.
func FindDestination(client contracts.ClientMIDI, name string) (contracts.Endpoint, error) {
	destinations, err := client.ListDestinations()
	if err != nil {
		return nil, err
	}
	return findByName(client, destinations, name)
}

func findByName(client contracts.ClientMIDI, eps []contracts.Endpoint, name string) (contracts.Endpoint, error) {
	for _, ep := range eps {
		if n, ok := client.EndpointName(ep); ok && n == name {
			return ep, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", contracts.ErrEndpointNotFound, name)
}
