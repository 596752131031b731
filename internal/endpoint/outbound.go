package endpoint

import (
	"fmt"
	"sync"

	"github.com/leandrodaf/midibridge/sdk/contracts"
)

// Outbound is a connection to a MIDI destination. It holds no buffer; every
// Send is submitted to the transport immediately.
//
// Sends may come from any goroutine. Concurrent sends on one port rely on the
// transport being safe for that; it is not re-verified here.
type Outbound struct {
	dest       contracts.Endpoint
	port       contracts.OutputPort
	clock      func() uint64
	maxPayload int
	cfg        Config
	logger     contracts.Logger

	mu     sync.RWMutex
	closed bool
}

// ConnectDestination opens an output port on t for dest.
func ConnectDestination(t contracts.Transport, dest contracts.Endpoint, cfg Config) (*Outbound, error) {
	if dest == nil || dest.Direction() != contracts.Destination {
		return nil, fmt.Errorf("%w: not a destination endpoint", contracts.ErrInvalidEndpoint)
	}
	cfg = cfg.withDefaults("Out")

	port, err := t.OpenOutput(cfg.PortName)
	if err != nil {
		cfg.Logger.Error("Failed to create output port", cfg.Logger.Field().Error("error", err))
		return nil, wrapKind(contracts.ErrAdapterInit, err)
	}

	cfg.Logger.Info("MIDI destination connected", cfg.Logger.Field().Int("index", dest.Index()))
	return &Outbound{
		dest:       dest,
		port:       port,
		clock:      t.Now,
		maxPayload: cfg.MaxPayload,
		cfg:        cfg,
		logger:     cfg.Logger,
	}, nil
}

// Endpoint returns the destination this connection writes to.
func (c *Outbound) Endpoint() contracts.Endpoint {
	return c.dest
}

// Send frames data with the transport's current timestamp and submits it.
// An empty payload is a no-op. Failures are returned, never retried.
func (c *Outbound) Send(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return contracts.ErrClosed
	}
	if len(data) > c.maxPayload {
		return fmt.Errorf("%w: %d bytes, capacity %d", contracts.ErrPayloadTooLarge, len(data), c.maxPayload)
	}
	if len(data) == 0 {
		return nil
	}

	frame := contracts.Frame{
		Timestamp: c.clock(),
		Data:      append([]byte(nil), data...),
	}
	if err := c.port.Send(c.dest, frame); err != nil {
		c.logger.Error("Failed to send MIDI frame",
			c.logger.Field().Int("index", c.dest.Index()),
			c.logger.Field().Error("error", err))
		return wrapKind(contracts.ErrTransportSend, err)
	}
	c.logger.Debug("MIDI frame sent",
		c.logger.Field().Int("index", c.dest.Index()),
		c.logger.Field().Binary("data", frame.Data))
	return nil
}

// Close releases the output port. Sends in progress finish first.
func (c *Outbound) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return contracts.ErrClosed
	}
	c.closed = true
	err := c.port.Close()
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("Failed to release output port", c.logger.Field().Error("error", err))
	} else {
		c.logger.Info("MIDI destination disconnected", c.logger.Field().Int("index", c.dest.Index()))
	}
	if c.cfg.OnClose != nil {
		c.cfg.OnClose()
	}
	return err
}
