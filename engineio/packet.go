// Package engineio implements the Engine.IO v3 wire protocol and the two
// client transports (HTTP long-polling and WebSocket) that carry it, plus
// the session state machine that owns the handshake, ping/pong liveness
// and probe-based transport upgrade.
package engineio

import "fmt"

// PacketType is one of the seven Engine.IO packet tags. The numeric values
// are part of the wire protocol and must not be reordered.
type PacketType byte

const (
	Open PacketType = iota
	Close
	Ping
	Pong
	Message
	Upgrade
	Noop
	maxPacketType
)

func (t PacketType) String() string {
	switch t {
	case Open:
		return "open"
	case Close:
		return "close"
	case Ping:
		return "ping"
	case Pong:
		return "pong"
	case Message:
		return "message"
	case Upgrade:
		return "upgrade"
	case Noop:
		return "noop"
	default:
		return "invalid"
	}
}

// ofValue recovers a PacketType from its wire byte. ok is false for any
// value outside the closed tag set; callers must check it rather than
// assume every byte decodes to a valid type.
func ofValue(b byte) (PacketType, bool) {
	t := PacketType(b)
	if t >= maxPacketType {
		return 0, false
	}
	return t, true
}

// IsValid reports whether t is one of the seven defined tags.
func (t PacketType) IsValid() bool {
	return t < maxPacketType
}

// Packet is a single Engine.IO frame: a tag plus a payload that is either
// absent, UTF-8 text, or an opaque byte sequence. Binary is a property of
// the payload's representation, never of the tag.
type Packet struct {
	Type    PacketType
	Binary  bool
	Payload []byte // nil means "absent"; UTF-8 bytes when !Binary
}

// Size is the byte length of the payload, 0 when absent.
func (p Packet) Size() int {
	return len(p.Payload)
}

func textPacket(t PacketType, s string) Packet {
	var payload []byte
	if s != "" {
		payload = []byte(s)
	}
	return Packet{Type: t, Payload: payload}
}

func binaryPacket(t PacketType, b []byte) Packet {
	return Packet{Type: t, Binary: true, Payload: b}
}

// EncodeSingle encodes one packet the way the WebSocket transport frames
// its messages: a text frame carrying the ASCII digit of the tag followed
// by the payload, or a raw byte frame carrying the tag byte followed by
// the payload.
func EncodeSingle(p Packet) []byte {
	if p.Binary {
		out := make([]byte, 1+len(p.Payload))
		out[0] = byte(p.Type)
		copy(out[1:], p.Payload)
		return out
	}
	out := make([]byte, 1+len(p.Payload))
	out[0] = byte(p.Type) + '0'
	copy(out[1:], p.Payload)
	return out
}

// DecodeSingleText decodes a text WebSocket frame into a Packet.
func DecodeSingleText(b []byte) (Packet, error) {
	if len(b) == 0 {
		return Packet{}, fmt.Errorf("%w: empty text frame", ErrParser)
	}
	t, ok := ofValue(b[0] - '0')
	if !ok {
		return Packet{}, fmt.Errorf("%w: invalid packet type %q", ErrParser, b[0])
	}
	var payload []byte
	if len(b) > 1 {
		payload = b[1:]
	}
	return Packet{Type: t, Payload: payload}, nil
}

// DecodeSingleBinary decodes a binary WebSocket frame into a Packet.
func DecodeSingleBinary(b []byte) (Packet, error) {
	if len(b) == 0 {
		return Packet{}, fmt.Errorf("%w: empty binary frame", ErrParser)
	}
	t, ok := ofValue(b[0])
	if !ok {
		return Packet{}, fmt.Errorf("%w: invalid packet type %d", ErrParser, b[0])
	}
	var payload []byte
	if len(b) > 1 {
		payload = b[1:]
	}
	return Packet{Type: t, Binary: true, Payload: payload}, nil
}
