package engineio

import (
	"encoding/json"
	"fmt"
	"time"
)

// Handshake is the parsed payload of the first Engine.IO OPEN packet.
// Parsing fails if any field is missing, rather than silently defaulting
// it to zero.
type Handshake struct {
	SessionID    string
	PingInterval time.Duration
	PingTimeout  time.Duration
	Upgrades     []string
}

type handshakeWire struct {
	Sid          *string   `json:"sid"`
	PingInterval *int      `json:"pingInterval"`
	PingTimeout  *int      `json:"pingTimeout"`
	Upgrades     *[]string `json:"upgrades"`
}

// ParseHandshake decodes the OPEN packet payload into a Handshake.
func ParseHandshake(payload []byte) (Handshake, error) {
	var w handshakeWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return Handshake{}, fmt.Errorf("%w: handshake: %v", ErrParser, err)
	}
	switch {
	case w.Sid == nil:
		return Handshake{}, fmt.Errorf("%w: handshake missing sid", ErrParser)
	case w.PingInterval == nil:
		return Handshake{}, fmt.Errorf("%w: handshake missing pingInterval", ErrParser)
	case w.PingTimeout == nil:
		return Handshake{}, fmt.Errorf("%w: handshake missing pingTimeout", ErrParser)
	case w.Upgrades == nil:
		return Handshake{}, fmt.Errorf("%w: handshake missing upgrades", ErrParser)
	}
	return Handshake{
		SessionID:    *w.Sid,
		PingInterval: time.Duration(*w.PingInterval) * time.Millisecond,
		PingTimeout:  time.Duration(*w.PingTimeout) * time.Millisecond,
		Upgrades:     *w.Upgrades,
	}, nil
}

// HasUpgrade reports whether name appears in h.Upgrades.
func (h Handshake) HasUpgrade(name string) bool {
	for _, u := range h.Upgrades {
		if u == name {
			return true
		}
	}
	return false
}
