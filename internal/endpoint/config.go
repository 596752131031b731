// Package endpoint connects to MIDI sources and destinations through a
// contracts.Transport and moves bytes between the transport's delivery thread
// and the caller.
package endpoint

import (
	"time"

	"github.com/leandrodaf/midibridge/internal/logger"
	"github.com/leandrodaf/midibridge/sdk/contracts"
)

// Config tunes a single connection.
type Config struct {
	Logger       contracts.Logger
	PortName     string
	MaxPayload   int
	HandlerQueue int
	// ReceiveTimeout bounds Receive calls whose context has no deadline.
	// Zero waits forever.
	ReceiveTimeout time.Duration
	// OnClose runs once after the connection has released its port.
	OnClose func()
}

func (c Config) withDefaults(fallbackName string) Config {
	if c.Logger == nil {
		c.Logger = logger.NewNop()
	}
	if c.PortName == "" {
		c.PortName = fallbackName
	}
	if c.MaxPayload <= 0 {
		c.MaxPayload = contracts.DefaultMaxPayload
	}
	if c.HandlerQueue <= 0 {
		c.HandlerQueue = contracts.DefaultHandlerQueue
	}
	return c
}
