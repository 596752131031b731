package contracts

// Direction tells whether an endpoint produces or consumes MIDI data.
type Direction int

const (
	// Source endpoints produce MIDI data that is read through an input port.
	Source Direction = iota
	// Destination endpoints consume MIDI data written through an output port.
	Destination
)

func (d Direction) String() string {
	if d == Source {
		return "source"
	}
	return "destination"
}

// Endpoint is an opaque handle to a native MIDI source or destination. It is
// owned by the Transport that enumerated it; connections only borrow it.
type Endpoint interface {
	Direction() Direction
	// Index is the position of the endpoint in the enumeration that produced
	// it. It is only stable within that enumeration.
	Index() int
}
