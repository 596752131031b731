package contracts

import "time"

const (
	// DefaultMaxPayload is the frame capacity of a single send, in bytes.
	DefaultMaxPayload = 1024
	// DefaultHandlerQueue is the number of delivery batches that may wait for
	// a push handler before the delivery thread blocks.
	DefaultHandlerQueue = 64
	// DefaultClientName names the native client registered with the OS.
	DefaultClientName = "GO MIDI Client"
)

// CoreMIDIConfig holds configuration for the native MIDI client.
type CoreMIDIConfig struct {
	ClientName string // Name of the MIDI client.
}

// ClientOptions defines the configuration options for the MIDI client.
type ClientOptions struct {
	Logger         Logger          // Logger for logging events and errors.
	LogLevel       LogLevel        // Level of logging to use.
	LogFilePath    string          // File path for logging if file logging is enabled.
	CoreMIDIConfig *CoreMIDIConfig // Configuration of the native client.
	ReceiveTimeout time.Duration   // Bounds Receive calls whose context has no deadline; zero waits forever.
	MaxPayload     int             // Frame capacity for sends.
	HandlerQueue   int             // Depth of the push handler queue.
	Transport      Transport       // Overrides the process-wide transport when set.
}

// Option is a function that modifies ClientOptions.
type Option func(*ClientOptions)

// WithLogger sets the logger for the MIDI client.
func WithLogger(l Logger) Option {
	return func(opts *ClientOptions) {
		opts.Logger = l
	}
}

// WithLogLevel sets the logging level for the MIDI client.
func WithLogLevel(level LogLevel) Option {
	return func(opts *ClientOptions) {
		opts.LogLevel = level
	}
}

// WithLogFile routes log output to a rotated file.
func WithLogFile(path string) Option {
	return func(opts *ClientOptions) {
		opts.LogFilePath = path
	}
}

// WithCoreMIDIConfig sets the native client configuration. It only takes
// effect for the client that initializes the process-wide transport.
func WithCoreMIDIConfig(config CoreMIDIConfig) Option {
	return func(opts *ClientOptions) {
		opts.CoreMIDIConfig = &config
	}
}

// WithReceiveTimeout bounds Receive calls made without a context deadline.
func WithReceiveTimeout(d time.Duration) Option {
	return func(opts *ClientOptions) {
		opts.ReceiveTimeout = d
	}
}

// WithMaxPayload sets the frame capacity for sends.
func WithMaxPayload(n int) Option {
	return func(opts *ClientOptions) {
		opts.MaxPayload = n
	}
}

// WithHandlerQueue sets how many delivery batches may queue for a push handler.
func WithHandlerQueue(n int) Option {
	return func(opts *ClientOptions) {
		opts.HandlerQueue = n
	}
}

// WithTransport makes the client use t instead of the process-wide transport.
// The client does not close t.
func WithTransport(t Transport) Option {
	return func(opts *ClientOptions) {
		opts.Transport = t
	}
}
