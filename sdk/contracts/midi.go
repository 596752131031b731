package contracts

import (
	"context"
	"time"
)

// Connection is a live binding to one endpoint.
type Connection interface {
	Endpoint() Endpoint
	// Close releases the native port. A second call returns ErrClosed.
	Close() error
}

// InboundConnection is a source connection consumed by blocking pull.
type InboundConnection interface {
	Connection
	// Receive blocks until bytes are buffered, then drains and returns all of
	// them. It returns ctx.Err() if ctx is cancelled, ErrTimeout if its
	// deadline expires and ErrClosed once the connection is closed. A ctx
	// without a deadline is bounded by the client's receive timeout, if set.
	Receive(ctx context.Context) ([]byte, error)
	// ReceiveTimeout is Receive bounded by timeout. A timeout <= 0 checks the
	// buffer once without waiting.
	ReceiveTimeout(timeout time.Duration) ([]byte, error)
}

// PushConnection is a source connection consumed by a DataHandler.
type PushConnection interface {
	Connection
	// Done is closed after Close once the handler has returned for the last
	// time. Close itself does not wait, so a handler may close its own
	// connection; it must not wait on Done.
	Done() <-chan struct{}
}

// OutboundConnection is a destination connection.
type OutboundConnection interface {
	Connection
	// Send submits data as one frame. Payloads larger than the frame capacity
	// fail with ErrPayloadTooLarge before reaching the transport.
	Send(data []byte) error
}

// DataHandler receives the bytes of one delivery batch on a push connection.
type DataHandler func(data []byte)

// ClientMIDI defines the consumer-facing MIDI operations.
type ClientMIDI interface {
	ListSources() ([]Endpoint, error)
	ListDestinations() ([]Endpoint, error)
	EndpointName(endpoint Endpoint) (string, bool)

	// OpenSource connects to a source for blocking-pull consumption.
	OpenSource(endpoint Endpoint) (InboundConnection, error)
	// OpenSourceFunc connects to a source and calls handler once per delivery.
	OpenSourceFunc(endpoint Endpoint, handler DataHandler) (PushConnection, error)
	OpenDestination(endpoint Endpoint) (OutboundConnection, error)

	// Close closes every connection still open on this client.
	Close() error
}
