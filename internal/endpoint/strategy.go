package endpoint

import "github.com/leandrodaf/midibridge/sdk/contracts"

type strategyKind int

const (
	blockingPull strategyKind = iota
	pushCallback
)

// Strategy selects how an inbound connection hands buffered bytes to its
// consumer. It is fixed when the connection is created.
type Strategy struct {
	kind    strategyKind
	handler contracts.DataHandler
}

// BlockingPull buffers deliveries until the consumer calls Receive.
func BlockingPull() Strategy {
	return Strategy{kind: blockingPull}
}

// PushCallback hands every delivery batch to handler.
//
// The handler runs on a dedicated goroutine, never on the transport's delivery
// thread, so it may call back into MIDI operations (including closing its own
// connection). Batches wait in a bounded queue; when the queue is full the
// delivery thread blocks until the handler catches up, so a slow handler
// delays later deliveries rather than dropping them.
func PushCallback(handler contracts.DataHandler) Strategy {
	return Strategy{kind: pushCallback, handler: handler}
}

func (s Strategy) push() bool { return s.kind == pushCallback }

func (s Strategy) String() string {
	if s.push() {
		return "push"
	}
	return "pull"
}
