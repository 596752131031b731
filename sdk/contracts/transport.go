package contracts

// Frame is one framed transport packet: a timestamped run of bytes submitted
// in a single send.
type Frame struct {
	Timestamp uint64
	Data      []byte
}

// DeliverFunc is invoked by a Transport on its own delivery thread whenever
// bytes arrive on a connected input port. Each call carries one native
// delivery batch; every element of batch is one packet's bytes, in arrival
// order. The slices are only valid for the duration of the call.
type DeliverFunc func(batch [][]byte)

// InputPort is a process-local receive binding created by a Transport.
type InputPort interface {
	// Connect binds the port to a source endpoint. Deliveries start after
	// Connect returns successfully.
	Connect(source Endpoint) error
	// Close unregisters the delivery callback and releases the native port.
	Close() error
}

// OutputPort is a process-local send binding created by a Transport.
type OutputPort interface {
	Send(destination Endpoint, frame Frame) error
	Close() error
}

// Transport is the adapter over a native MIDI subsystem.
//
// Implementations own a single native client. Port creation failures wrap
// ErrAdapterInit, connection failures wrap ErrConnection and send failures
// wrap ErrTransportSend. Transports never retry.
type Transport interface {
	Sources() ([]Endpoint, error)
	Destinations() ([]Endpoint, error)
	// DisplayName reports false when the name lookup fails; it never errors.
	DisplayName(endpoint Endpoint) (string, bool)
	OpenInput(name string, deliver DeliverFunc) (InputPort, error)
	OpenOutput(name string) (OutputPort, error)
	// Now returns the transport's monotonic clock, used to stamp frames.
	Now() uint64
	Close() error
}
