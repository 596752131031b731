package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/midibridge/sdk/contracts"
)

var errNilHandler = errors.New("push connection requires a data handler")

// Inbound is a connection to a MIDI source.
type Inbound struct {
	source   contracts.Endpoint
	port     contracts.InputPort
	inbox    *inbox
	strategy Strategy
	cfg      Config
	logger   contracts.Logger
	closing  atomic.Bool

	// dispatched is closed once no handler call can run any more: by the
	// dispatcher when it exits, or by Close on a pull connection.
	dispatched chan struct{}
}

// ConnectSource opens an input port on t and binds it to source. If binding
// fails the port is closed before the error is returned.
func ConnectSource(t contracts.Transport, source contracts.Endpoint, s Strategy, cfg Config) (*Inbound, error) {
	if source == nil || source.Direction() != contracts.Source {
		return nil, fmt.Errorf("%w: not a source endpoint", contracts.ErrInvalidEndpoint)
	}
	if s.push() && s.handler == nil {
		return nil, errNilHandler
	}
	cfg = cfg.withDefaults("In")

	c := &Inbound{
		source:   source,
		inbox:    newInbox(s, cfg.HandlerQueue),
		strategy: s,
		cfg:      cfg,
		logger:   cfg.Logger,
	}

	port, err := t.OpenInput(cfg.PortName, c.onDeliver)
	if err != nil {
		c.logger.Error("Failed to create input port", c.logger.Field().Error("error", err))
		return nil, wrapKind(contracts.ErrAdapterInit, err)
	}

	c.dispatched = make(chan struct{})
	if s.push() {
		go c.dispatch()
	}

	if err := port.Connect(source); err != nil {
		c.inbox.shutdown()
		if cerr := port.Close(); cerr != nil {
			c.logger.Warn("Failed to release input port", c.logger.Field().Error("error", cerr))
		}
		c.inbox.release()
		c.logger.Error("Failed to connect input port", c.logger.Field().Error("error", err))
		return nil, wrapKind(contracts.ErrConnection, err)
	}
	c.port = port

	c.logger.Info("MIDI source connected",
		c.logger.Field().Int("index", source.Index()),
		c.logger.Field().String("strategy", s.String()))
	return c, nil
}

// onDeliver is the callback handed to the transport.
func (c *Inbound) onDeliver(batch [][]byte) {
	if n := c.inbox.deliver(batch); n > 0 {
		c.logger.Debug("MIDI bytes delivered",
			c.logger.Field().Int("index", c.source.Index()),
			c.logger.Field().Int("bytes", n))
	}
}

// dispatch invokes the push handler for every queued batch until the
// connection is closed.
func (c *Inbound) dispatch() {
	defer close(c.dispatched)
	for {
		select {
		case data := <-c.inbox.events:
			select {
			case <-c.inbox.done:
				return
			default:
			}
			c.invoke(data)
		case <-c.inbox.done:
			return
		}
	}
}

func (c *Inbound) invoke(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("MIDI data handler panicked",
				c.logger.Field().Int("index", c.source.Index()),
				c.logger.Field().String("panic", fmt.Sprint(r)))
		}
	}()
	c.strategy.handler(data)
}

// Endpoint returns the source this connection reads from.
func (c *Inbound) Endpoint() contracts.Endpoint {
	return c.source
}

// Receive blocks until bytes are buffered and returns all of them. A context
// without a deadline is bounded by the configured ReceiveTimeout.
func (c *Inbound) Receive(ctx context.Context) ([]byte, error) {
	if c.strategy.push() {
		return nil, contracts.ErrWrongStrategy
	}
	if _, ok := ctx.Deadline(); !ok && c.cfg.ReceiveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ReceiveTimeout)
		defer cancel()
	}
	return c.inbox.receive(ctx)
}

// ReceiveTimeout is Receive bounded by timeout. With timeout <= 0 it only
// checks what is already buffered.
func (c *Inbound) ReceiveTimeout(timeout time.Duration) ([]byte, error) {
	if timeout < 0 {
		timeout = 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Receive(ctx)
}

// Pending reports how many bytes are waiting to be received.
func (c *Inbound) Pending() int {
	return c.inbox.pending()
}

// Done is closed after Close once the push handler has returned for the last
// time. Waiting on it from inside the handler deadlocks.
func (c *Inbound) Done() <-chan struct{} {
	return c.dispatched
}

// Close unregisters the delivery callback, releases the input port and drops
// buffered bytes. Blocked receivers return ErrClosed. It does not wait for a
// push handler that is already running.
func (c *Inbound) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return contracts.ErrClosed
	}

	c.inbox.shutdown()
	err := c.port.Close()
	c.inbox.release()
	if !c.strategy.push() {
		close(c.dispatched)
	}

	if err != nil {
		c.logger.Warn("Failed to release input port", c.logger.Field().Error("error", err))
	} else {
		c.logger.Info("MIDI source disconnected", c.logger.Field().Int("index", c.source.Index()))
	}
	if c.cfg.OnClose != nil {
		c.cfg.OnClose()
	}
	return err
}

// wrapKind makes err match kind under errors.Is without double wrapping.
func wrapKind(kind, err error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %v", kind, err)
}
