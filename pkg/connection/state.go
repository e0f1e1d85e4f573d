package connection

import "fmt"

// State is the lifecycle position of a Connection.
type State uint32

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
)

var stateNames = [...]string{
	Disconnected:  "disconnected",
	Connecting:    "connecting",
	Connected:     "connected",
	Disconnecting: "disconnecting",
}

func (s State) String() string {
	if int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", uint32(s))
	}
	return stateNames[s]
}

// canTransition reports whether from -> to is a legal lifecycle step.
func canTransition(from, to State) bool {
	switch from {
	case Disconnected:
		return to == Connecting || to == Connected
	case Connecting:
		return to == Connected || to == Disconnecting || to == Disconnected
	case Connected:
		return to == Disconnecting
	case Disconnecting:
		return to == Disconnected
	}
	return false
}

// MessageTypes is the set of channels a connection carries.
type MessageTypes uint8

const (
	Reliable MessageTypes = 1 << iota
	Unreliable
)

func (t MessageTypes) Has(o MessageTypes) bool {
	return t&o == o
}

func (t MessageTypes) String() string {
	switch t {
	case 0:
		return "none"
	case Reliable:
		return "reliable"
	case Unreliable:
		return "unreliable"
	case Reliable | Unreliable:
		return "reliable|unreliable"
	}
	return fmt.Sprintf("types(%#x)", uint8(t))
}
