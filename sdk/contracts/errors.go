package contracts

import "errors"

// Error kinds surfaced by transports, connections and the client.
var (
	ErrAdapterInit         = errors.New("MIDI adapter initialization failed")
	ErrConnection          = errors.New("error connecting to MIDI endpoint")
	ErrPayloadTooLarge     = errors.New("payload exceeds frame capacity")
	ErrTransportSend       = errors.New("MIDI send failed")
	ErrTimeout             = errors.New("receive timed out")
	ErrClosed              = errors.New("connection closed")
	ErrInvalidEndpoint     = errors.New("invalid MIDI endpoint")
	ErrEndpointNotFound    = errors.New("MIDI endpoint not found")
	ErrWrongStrategy       = errors.New("operation not supported by connection strategy")
	ErrUnsupportedOS       = errors.New("unsupported operating system")
	ErrUnsupportedPlatform = errors.New("MIDI functionality is not available on this platform")
)
