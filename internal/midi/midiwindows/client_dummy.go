//go:build !windows
// +build !windows

package midiwindows

import (
	"github.com/leandrodaf/midibridge/sdk/contracts"
)

type dummyTransport struct {
	logger contracts.Logger
}

// NewTransport initializes a dummy MIDI transport for non-Windows systems.
func NewTransport(options *contracts.ClientOptions) (contracts.Transport, error) {
	options.Logger.Info("Using dummy MIDI client for non-Windows system")
	return &dummyTransport{
		logger: options.Logger,
	}, nil
}

// Sources logs a warning and reports that MIDI is unavailable on this platform.
func (m *dummyTransport) Sources() ([]contracts.Endpoint, error) {
	m.logger.Warn("Sources called on dummy MIDI client")
	return nil, contracts.ErrUnsupportedPlatform
}

// Destinations logs a warning and reports that MIDI is unavailable on this platform.
func (m *dummyTransport) Destinations() ([]contracts.Endpoint, error) {
	m.logger.Warn("Destinations called on dummy MIDI client")
	return nil, contracts.ErrUnsupportedPlatform
}

func (m *dummyTransport) DisplayName(contracts.Endpoint) (string, bool) {
	return "", false
}

func (m *dummyTransport) OpenInput(string, contracts.DeliverFunc) (contracts.InputPort, error) {
	m.logger.Warn("OpenInput called on dummy MIDI client")
	return nil, contracts.ErrUnsupportedPlatform
}

func (m *dummyTransport) OpenOutput(string) (contracts.OutputPort, error) {
	m.logger.Warn("OpenOutput called on dummy MIDI client")
	return nil, contracts.ErrUnsupportedPlatform
}

func (m *dummyTransport) Now() uint64 { return 0 }

func (m *dummyTransport) Close() error { return nil }
