package engineio

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrParser is the sentinel wrapped by every malformed-input error raised
// while decoding an Engine.IO packet or payload. It is fatal to the frame
// or payload currently being parsed, never to the session.
var ErrParser = errors.New("engineio: parser error")

// EncodePayload frames an ordered sequence of packets the way the polling
// transport's request/response bodies are framed: each packet contributes
// [marker][length digits, one per raw byte][0xFF][type][payload].
func EncodePayload(packets []Packet) []byte {
	var out []byte
	for _, p := range packets {
		out = append(out, encodeFramedPacket(p)...)
	}
	return out
}

func encodeFramedPacket(p Packet) []byte {
	size := p.Size() + 1 // +1 accounts for the type byte, per the reference framing
	digits := lengthDigits(size)

	var marker byte
	var typeByte byte
	if p.Binary {
		marker = 0x01
		typeByte = byte(p.Type)
	} else {
		marker = 0x00
		typeByte = byte(p.Type) + '0'
	}

	out := make([]byte, 0, 1+len(digits)+1+1+len(p.Payload))
	out = append(out, marker)
	out = append(out, digits...)
	out = append(out, 0xFF)
	out = append(out, typeByte)
	out = append(out, p.Payload...)
	return out
}

// lengthDigits returns the decimal digits of n, most significant first,
// each written as a raw value 0-9, not as an ASCII digit.
func lengthDigits(n int) []byte {
	if n == 0 {
		return []byte{0}
	}
	var rev []byte
	for n > 0 {
		rev = append(rev, byte(n%10))
		n /= 10
	}
	digits := make([]byte, len(rev))
	for i, d := range rev {
		digits[len(rev)-1-i] = d
	}
	return digits
}

// DecodePayload parses a binary-framed payload produced by EncodePayload.
// It does not over-read past declared lengths: a truncated length field or
// a packet whose declared size runs past the end of buf is a parser error.
func DecodePayload(buf []byte) ([]Packet, error) {
	var packets []Packet
	i := 0
	for i < len(buf) {
		marker := buf[i]
		if marker != 0x00 && marker != 0x01 {
			return nil, fmt.Errorf("%w: unknown payload marker 0x%02x", ErrParser, marker)
		}
		i++

		size := 0
		foundTerminator := false
		for i < len(buf) {
			b := buf[i]
			if b == 0xFF {
				foundTerminator = true
				i++
				break
			}
			if b > 9 {
				return nil, fmt.Errorf("%w: invalid length digit 0x%02x", ErrParser, b)
			}
			size = size*10 + int(b)
			i++
		}
		if !foundTerminator {
			return nil, fmt.Errorf("%w: truncated length field", ErrParser)
		}
		if size < 1 {
			return nil, fmt.Errorf("%w: packet length must include the type byte", ErrParser)
		}
		end := i + size
		if end > len(buf) {
			return nil, fmt.Errorf("%w: declared length %d overruns payload", ErrParser, size)
		}

		typeByte := buf[i]
		payloadStart := i + 1
		var payload []byte
		if payloadStart < end {
			payload = buf[payloadStart:end]
		}

		var t PacketType
		var ok bool
		var binary bool
		if marker == 0x01 {
			binary = true
			t, ok = ofValue(typeByte)
		} else {
			binary = false
			// Subtract '0' from the ASCII digit rather than routing through a
			// string conversion, which mishandles any future tag >= 10.
			t, ok = ofValue(typeByte - '0')
		}
		if !ok {
			return nil, fmt.Errorf("%w: invalid packet type byte 0x%02x", ErrParser, typeByte)
		}
		packets = append(packets, Packet{Type: t, Binary: binary, Payload: payload})
		i = end
	}
	return packets, nil
}

// DecodeTextPayload parses the legacy all-text payload framing
// "<decimal-length>:<packet-text>" repeated, used by polling responses
// whose content type declares them as text.
func DecodeTextPayload(buf []byte) ([]Packet, error) {
	var packets []Packet
	i := 0
	for i < len(buf) {
		j := i
		for j < len(buf) && buf[j] != ':' {
			if buf[j] < '0' || buf[j] > '9' {
				return nil, fmt.Errorf("%w: invalid length digit %q", ErrParser, buf[j])
			}
			j++
		}
		if j >= len(buf) {
			return nil, fmt.Errorf("%w: truncated text payload length", ErrParser)
		}
		length, err := strconv.Atoi(string(buf[i:j]))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParser, err)
		}
		start := j + 1
		end := start + length
		if end > len(buf) {
			return nil, fmt.Errorf("%w: declared text length %d overruns payload", ErrParser, length)
		}
		pkt, err := DecodeSingleText(buf[start:end])
		if err != nil {
			return nil, err
		}
		packets = append(packets, pkt)
		i = end
	}
	return packets, nil
}
