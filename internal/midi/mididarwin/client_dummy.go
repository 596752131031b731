//go:build !darwin
// +build !darwin

package mididarwin

import (
	"github.com/leandrodaf/midibridge/sdk/contracts"
)

// DummyTransport stands in for CoreMIDI on other systems. Every operation
// fails with contracts.ErrUnsupportedPlatform.
type DummyTransport struct {
	logger contracts.Logger
}

func NewTransport(options *contracts.ClientOptions) (contracts.Transport, error) {
	options.Logger.Info("Using dummy MIDI client for non-macOS system")
	return &DummyTransport{
		logger: options.Logger,
	}, nil
}

func (m *DummyTransport) Sources() ([]contracts.Endpoint, error) {
	m.logger.Warn("Sources called on dummy MIDI client")
	return nil, contracts.ErrUnsupportedPlatform
}

func (m *DummyTransport) Destinations() ([]contracts.Endpoint, error) {
	m.logger.Warn("Destinations called on dummy MIDI client")
	return nil, contracts.ErrUnsupportedPlatform
}

func (m *DummyTransport) DisplayName(contracts.Endpoint) (string, bool) {
	return "", false
}

func (m *DummyTransport) OpenInput(string, contracts.DeliverFunc) (contracts.InputPort, error) {
	m.logger.Warn("OpenInput called on dummy MIDI client")
	return nil, contracts.ErrUnsupportedPlatform
}

func (m *DummyTransport) OpenOutput(string) (contracts.OutputPort, error) {
	m.logger.Warn("OpenOutput called on dummy MIDI client")
	return nil, contracts.ErrUnsupportedPlatform
}

func (m *DummyTransport) Now() uint64 { return 0 }

func (m *DummyTransport) Close() error { return nil }
