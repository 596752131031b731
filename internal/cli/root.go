// Package cli implements the midibridge command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/leandrodaf/midibridge/internal/config"
	"github.com/leandrodaf/midibridge/internal/logger"
	"github.com/leandrodaf/midibridge/internal/midi/loopback"
	"github.com/leandrodaf/midibridge/sdk/contracts"
	"github.com/leandrodaf/midibridge/sdk/midi"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

// loopbackNames names the endpoints of the --loopback transport.
var loopbackNames = []string{"Loopback 1", "Loopback 2"}

type app struct {
	out io.Writer

	configPath string
	loopback   bool

	// transport replaces both the OS and the loopback transport when set.
	transport contracts.Transport

	cfg    *config.Config
	log    contracts.Logger
	client contracts.ClientMIDI
	shared bool
}

// Execute runs the command line with os.Args and stops on SIGINT or SIGTERM.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := &app{out: os.Stdout}
	defer a.teardown()
	return a.rootCmd().ExecuteContext(ctx)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "midibridge",
		Short: "Move raw MIDI bytes between endpoints",
		Long: `midibridge lists MIDI endpoints and moves raw bytes to and from them.

Endpoints are named by display name or by index in the list output.

Examples:
  midibridge list
  midibridge receive --source "Launchkey MIDI" --timeout 5s
  midibridge monitor --source 0 --source 1
  midibridge send --dest 0 90 3C 64
  midibridge forward --source 0 --dest "IAC Bus 1"`,
		Version:           fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.out)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default ./midibridge.yaml)")
	root.PersistentFlags().BoolVar(&a.loopback, "loopback", false, "Use the in-process loopback transport")

	root.AddCommand(a.listCmd(), a.receiveCmd(), a.monitorCmd(), a.sendCmd(), a.forwardCmd())
	return root
}

// setup loads configuration and creates the client used by every command.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if f := cmd.Flag("loopback"); f != nil && f.Changed {
		cfg.MIDI.Loopback = a.loopback
	}
	a.cfg = cfg

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	a.log = log
	level, _ := contracts.ParseLogLevel(strings.ToLower(strings.TrimSpace(cfg.Log.Level)))

	opts := append(cfg.ClientOptions(), contracts.WithLogger(log), contracts.WithLogLevel(level))
	switch {
	case a.transport != nil:
		opts = append(opts, contracts.WithTransport(a.transport))
	case cfg.MIDI.Loopback:
		opts = append(opts, contracts.WithTransport(loopback.New(loopbackNames, loopbackNames)))
	default:
		a.shared = true
	}

	a.client, err = midi.NewMIDIClient(opts...)
	return err
}

func (a *app) teardown() {
	if a.client != nil {
		if err := a.client.Close(); err != nil && !errors.Is(err, contracts.ErrClosed) {
			a.log.Warn("Failed to close MIDI client", a.log.Field().Error("error", err))
		}
	}
	if a.shared {
		if err := midi.Shutdown(); err != nil {
			a.log.Warn("Failed to shut down MIDI transport", a.log.Field().Error("error", err))
		}
	}
	if s, ok := a.log.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
}

// source resolves a --source value: a display name first, then an index.
func (a *app) source(ref string) (contracts.Endpoint, error) {
	ep, err := midi.FindSource(a.client, ref)
	if errors.Is(err, contracts.ErrEndpointNotFound) {
		return byIndex(a.client.ListSources, ref, err)
	}
	return ep, err
}

// destination resolves a --dest value like source does.
func (a *app) destination(ref string) (contracts.Endpoint, error) {
	ep, err := midi.FindDestination(a.client, ref)
	if errors.Is(err, contracts.ErrEndpointNotFound) {
		return byIndex(a.client.ListDestinations, ref, err)
	}
	return ep, err
}

func byIndex(list func() ([]contracts.Endpoint, error), ref string, notFound error) (contracts.Endpoint, error) {
	i, convErr := strconv.Atoi(ref)
	if convErr != nil {
		return nil, notFound
	}
	eps, err := list()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(eps) {
		return nil, fmt.Errorf("%w: index %d of %d", contracts.ErrEndpointNotFound, i, len(eps))
	}
	return eps[i], nil
}

// label is how endpoints appear in command output.
func (a *app) label(ep contracts.Endpoint) string {
	if name, ok := a.client.EndpointName(ep); ok {
		return name
	}
	return fmt.Sprintf("%s #%d", ep.Direction(), ep.Index())
}
