package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/leandrodaf/midibridge/sdk/contracts"
)

// inbox is the state shared between a transport's delivery thread and the
// consumer. Every access to buf happens under mu.
//
// In pull mode each delivery leaves a token in wake; receivers re-check buf
// after every wake, so a stale or coalesced token never loses data. In push
// mode each delivery hands its bytes to events instead of keeping them.
type inbox struct {
	mu     sync.Mutex
	buf    []byte
	closed bool

	wake   chan struct{}
	events chan []byte
	done   chan struct{}
}

func newInbox(s Strategy, queue int) *inbox {
	b := &inbox{done: make(chan struct{})}
	if s.push() {
		b.events = make(chan []byte, queue)
	} else {
		b.wake = make(chan struct{}, 1)
	}
	return b
}

// deliver appends one native delivery batch and notifies the strategy. It
// runs on the transport's delivery thread.
//
// A push delivery blocks while the handler queue is full. The block ends when
// the dispatcher makes room or the inbox is shut down.
func (b *inbox) deliver(batch [][]byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0
	}
	n := 0
	for _, pkt := range batch {
		b.buf = append(b.buf, pkt...)
		n += len(pkt)
	}

	if b.events == nil {
		select {
		case b.wake <- struct{}{}:
		default:
		}
		return n
	}

	if len(b.buf) == 0 {
		return 0
	}
	data := b.buf
	b.buf = nil
	select {
	case b.events <- data:
	case <-b.done:
	}
	return n
}

// receive drains everything buffered, waiting for data if there is none.
func (b *inbox) receive(ctx context.Context) ([]byte, error) {
	for {
		select {
		case <-b.done:
			return nil, contracts.ErrClosed
		default:
		}

		b.mu.Lock()
		if len(b.buf) > 0 {
			data := b.buf
			b.buf = nil
			b.mu.Unlock()
			return data, nil
		}
		b.mu.Unlock()

		select {
		case <-b.wake:
		case <-b.done:
		case <-ctx.Done():
			return nil, waitError(ctx.Err())
		}
	}
}

func (b *inbox) pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// shutdown wakes every waiter and stops pending push deliveries. It must run
// before the input port is closed so a delivery blocked on a full handler
// queue cannot hold up port teardown.
func (b *inbox) shutdown() {
	close(b.done)
}

// release drops the buffer. Deliveries that arrive afterwards are ignored.
func (b *inbox) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.buf = nil
}

func waitError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", contracts.ErrTimeout, err)
	}
	return err
}
