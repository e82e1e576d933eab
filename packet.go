// Package socketio implements the Socket.IO v3 client: namespace
// multiplexing, the manager that owns one Engine.IO session per
// (host,path), and the per-namespace Socket API, on top of the engineio
// package's transport and framing.
package socketio

import "fmt"

// PacketType is one of the seven Socket.IO packet tags.
type PacketType byte

const (
	Connect PacketType = iota
	Disconnect
	Event
	Ack
	Error
	BinaryEvent
	BinaryAck
	maxPacketType
)

func (t PacketType) String() string {
	switch t {
	case Connect:
		return "connect"
	case Disconnect:
		return "disconnect"
	case Event:
		return "event"
	case Ack:
		return "ack"
	case Error:
		return "error"
	case BinaryEvent:
		return "binary_event"
	case BinaryAck:
		return "binary_ack"
	default:
		return "invalid"
	}
}

func ofValue(b byte) (PacketType, bool) {
	t := PacketType(b)
	if t >= maxPacketType {
		return 0, false
	}
	return t, true
}

// IsValid reports whether t is one of the seven defined Socket.IO tags.
func (t PacketType) IsValid() bool {
	return t < maxPacketType
}

// Packet is a decoded (or yet-to-be-encoded) Socket.IO frame. Data is a
// tagged-value tree: nil, bool, float64, string, []interface{},
// map[string]interface{}, or []byte for a byte-sequence leaf (before
// encoding) / reconstructed leaf (after decoding).
type Packet struct {
	Type           PacketType
	Namespace      string // defaults to "/"
	ID             int    // -1 means "no ack requested"
	AttachmentSize int
	Data           interface{}
}

// NoID is the sentinel ID value meaning "no ack requested".
const NoID = -1

func newPacket(t PacketType) Packet {
	return Packet{Type: t, Namespace: "/", ID: NoID}
}

func (p Packet) isBinary() bool {
	return p.Type == BinaryEvent || p.Type == BinaryAck
}

func invalidTagError(b byte) error {
	return fmt.Errorf("%w: invalid packet tag %q", ErrParser, b)
}
