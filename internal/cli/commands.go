package cli

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/leandrodaf/midibridge/sdk/contracts"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List MIDI sources and destinations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sources, err := a.client.ListSources()
			if err != nil {
				return err
			}
			destinations, err := a.client.ListDestinations()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tINDEX\tNAME")
			for _, ep := range append(sources, destinations...) {
				fmt.Fprintf(w, "%s\t%d\t%s\n", ep.Direction(), ep.Index(), a.label(ep))
			}
			return w.Flush()
		},
	}
}

func (a *app) receiveCmd() *cobra.Command {
	var (
		source  string
		timeout time.Duration
		count   int
	)
	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Print bytes received from a source",
		Long: `receive connects to a source and prints each batch of buffered bytes in hex.
It stops after --count batches (0 means until interrupted) and fails when
nothing arrives within --timeout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ep, err := a.source(source)
			if err != nil {
				return err
			}
			conn, err := a.client.OpenSource(ep)
			if err != nil {
				return err
			}
			defer conn.Close()

			for n := 0; count == 0 || n < count; n++ {
				data, err := receive(cmd.Context(), conn, timeout)
				switch {
				case errors.Is(err, context.Canceled):
					return nil
				case errors.Is(err, contracts.ErrTimeout):
					limit := timeout
					if limit <= 0 {
						limit = a.cfg.MIDI.ReceiveTimeout
					}
					return fmt.Errorf("nothing received from %s within %s: %w", a.label(ep), limit, err)
				case err != nil:
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "% X\n", data)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "", "Source name or index (required)")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Wait limit per batch; 0 uses midi.receive_timeout from config")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Batches to print; 0 means until interrupted")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func receive(ctx context.Context, conn contracts.InboundConnection, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return conn.Receive(ctx)
}

func (a *app) monitorCmd() *cobra.Command {
	var (
		sources  []string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print every delivery from one or more sources",
		Long: `monitor connects to the given sources (all of them when none is given)
and prints every delivery batch, prefixed by the source name, until
interrupted or until --duration elapses.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eps, err := a.sources(sources)
			if err != nil {
				return err
			}
			if len(eps) == 0 {
				return fmt.Errorf("%w: no sources to monitor", contracts.ErrEndpointNotFound)
			}

			ctx, cancel := withDuration(cmd.Context(), duration)
			defer cancel()

			var mu sync.Mutex
			out := cmd.OutOrStdout()
			g, ctx := errgroup.WithContext(ctx)
			for _, ep := range eps {
				ep := ep
				label := a.label(ep)
				g.Go(func() error {
					conn, err := a.client.OpenSourceFunc(ep, func(data []byte) {
						mu.Lock()
						defer mu.Unlock()
						fmt.Fprintf(out, "%s: % X\n", label, data)
					})
					if err != nil {
						return fmt.Errorf("monitor %s: %w", label, err)
					}
					<-ctx.Done()
					if err := conn.Close(); err != nil {
						return err
					}
					<-conn.Done()
					return nil
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringSliceVarP(&sources, "source", "s", nil, "Source name or index, repeatable (default all)")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long; 0 runs until interrupted")
	return cmd
}

func (a *app) sources(refs []string) ([]contracts.Endpoint, error) {
	if len(refs) == 0 {
		return a.client.ListSources()
	}
	eps := make([]contracts.Endpoint, 0, len(refs))
	for _, ref := range refs {
		ep, err := a.source(ref)
		if err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}
	return eps, nil
}

func (a *app) sendCmd() *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "send <hex bytes>...",
		Short: "Send bytes to a destination as one frame",
		Example: `  midibridge send --dest 0 90 3C 64
  midibridge send --dest "IAC Bus 1" F07E7F0601F7`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseHex(args)
			if err != nil {
				return err
			}
			ep, err := a.destination(dest)
			if err != nil {
				return err
			}
			conn, err := a.client.OpenDestination(ep)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := conn.Send(data); err != nil {
				return err
			}
			a.log.Info("MIDI bytes sent",
				a.log.Field().String("destination", a.label(ep)),
				a.log.Field().Int("bytes", len(data)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&dest, "dest", "o", "", "Destination name or index (required)")
	_ = cmd.MarkFlagRequired("dest")
	return cmd
}

// parseHex accepts bytes split across arguments or spaces ("90 3C 64",
// "903C64").
func parseHex(args []string) ([]byte, error) {
	s := strings.Join(strings.Fields(strings.Join(args, " ")), "")
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex bytes %q: %w", strings.Join(args, " "), err)
	}
	return data, nil
}

func (a *app) forwardCmd() *cobra.Command {
	var (
		source, dest string
		duration     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "forward",
		Short: "Forward every delivery from a source to a destination",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := a.source(source)
			if err != nil {
				return err
			}
			dst, err := a.destination(dest)
			if err != nil {
				return err
			}

			out, err := a.client.OpenDestination(dst)
			if err != nil {
				return err
			}
			defer out.Close()

			var forwarded, failed atomic.Int64
			in, err := a.client.OpenSourceFunc(src, func(data []byte) {
				if err := out.Send(data); err != nil {
					failed.Add(1)
					a.log.Warn("Failed to forward MIDI bytes", a.log.Field().Error("error", err))
					return
				}
				forwarded.Add(1)
			})
			if err != nil {
				return err
			}

			ctx, cancel := withDuration(cmd.Context(), duration)
			defer cancel()
			<-ctx.Done()
			if err := in.Close(); err != nil {
				return err
			}
			<-in.Done()

			fmt.Fprintf(cmd.OutOrStdout(), "forwarded %d batches from %s to %s (%d failed)\n",
				forwarded.Load(), a.label(src), a.label(dst), failed.Load())
			return nil
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "", "Source name or index (required)")
	cmd.Flags().StringVarP(&dest, "dest", "o", "", "Destination name or index (required)")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long; 0 runs until interrupted")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("dest")
	return cmd
}

func withDuration(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
