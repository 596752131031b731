package midi

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/leandrodaf/midibridge/internal/midi/mididarwin"
	"github.com/leandrodaf/midibridge/internal/midi/midiportable"
	"github.com/leandrodaf/midibridge/internal/midi/midiwindows"
	"github.com/leandrodaf/midibridge/sdk/contracts"
)

// ErrUnsupportedOS is returned when the operating system has no transport.
var ErrUnsupportedOS = contracts.ErrUnsupportedOS

// transportInitializers maps OS names to the transport backing them.
var transportInitializers = map[string]func(*contracts.ClientOptions) (contracts.Transport, error){
	"darwin":  mididarwin.NewTransport,   // CoreMIDI.
	"windows": midiwindows.NewTransport,  // winmm.
	"linux":   midiportable.NewTransport, // whichever gomidi driver the binary registered.
}

// NewTransport initializes the transport for the current operating system.
func NewTransport(opts *contracts.ClientOptions) (contracts.Transport, error) {
	if initializer, exists := transportInitializers[runtime.GOOS]; exists {
		return initializer(opts)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedOS, runtime.GOOS)
}

// newTransport is swapped in tests.
var newTransport = NewTransport

// sharedTransport is the process-wide transport. A failed initialization is
// kept until Shutdown.
type sharedTransport struct {
	once sync.Once
	t    contracts.Transport
	err  error
}

var (
	sharedMu sync.Mutex
	shared   = &sharedTransport{}
)

// processTransport returns the process-wide transport, creating it on first
// use with the options of the client that got there first.
func processTransport(opts *contracts.ClientOptions) (contracts.Transport, error) {
	sharedMu.Lock()
	s := shared
	sharedMu.Unlock()

	s.once.Do(func() {
		s.t, s.err = newTransport(opts)
		if s.err != nil && !errors.Is(s.err, contracts.ErrAdapterInit) {
			s.err = fmt.Errorf("%w: %w", contracts.ErrAdapterInit, s.err)
		}
	})
	return s.t, s.err
}

// Shutdown closes the process-wide transport. Clients created before the call
// must not be used afterwards; the next NewMIDIClient creates a new transport.
func Shutdown() error {
	sharedMu.Lock()
	s := shared
	shared = &sharedTransport{}
	sharedMu.Unlock()

	// Waits for an initialization in flight.
	s.once.Do(func() {})
	if s.t == nil {
		return nil
	}
	return s.t.Close()
}
