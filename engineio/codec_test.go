package engineio

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeSingleRoundTrip(t *testing.T) {
	cases := []Packet{
		textPacket(Message, "hello"),
		textPacket(Ping, ""),
		binaryPacket(Message, []byte{1, 2, 3}),
		binaryPacket(Noop, nil),
	}
	for _, p := range cases {
		enc := EncodeSingle(p)
		var got Packet
		var err error
		if p.Binary {
			got, err = DecodeSingleBinary(enc)
		} else {
			got, err = DecodeSingleText(enc)
		}
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Type != p.Type || got.Binary != p.Binary || !bytes.Equal(got.Payload, p.Payload) {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, p)
		}
	}
}

func TestEncodePayloadFixture(t *testing.T) {
	packets := []Packet{
		textPacket(Message, "data"),
		binaryPacket(Message, []byte{1, 2, 3}),
		textPacket(Message, ""),
		textPacket(Message, ""), // MESSAGE(null) frames identically to MESSAGE()
	}
	got := EncodePayload(packets)
	want := []byte{
		0, 5, 0xFF, 52, 100, 97, 116, 97,
		1, 4, 0xFF, 4, 1, 2, 3,
		0, 1, 0xFF, 52,
		0, 1, 0xFF, 52,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestDecodePayloadRoundTrip(t *testing.T) {
	packets := []Packet{
		textPacket(Open, `{"sid":"abc"}`),
		binaryPacket(Message, []byte{9, 8, 7, 6}),
		textPacket(Ping, "probe"),
		textPacket(Noop, ""),
	}
	encoded := EncodePayload(packets)
	decoded, err := DecodePayload(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(packets) {
		t.Fatalf("got %d packets want %d", len(decoded), len(packets))
	}
	for i := range packets {
		if decoded[i].Type != packets[i].Type || decoded[i].Binary != packets[i].Binary ||
			!bytes.Equal(decoded[i].Payload, packets[i].Payload) {
			t.Fatalf("packet %d mismatch: got %+v want %+v", i, decoded[i], packets[i])
		}
	}
}

func TestDecodePayloadTruncatedLength(t *testing.T) {
	_, err := DecodePayload([]byte{0, 5, 0xFF, 52, 100}) // declares 5 but only 1 byte follows type
	if err == nil {
		t.Fatalf("expected a parser error for an overrunning declared length")
	}
}

func TestDecodePayloadInvalidType(t *testing.T) {
	_, err := DecodePayload([]byte{0, 1, 0xFF, 0x39}) // '9' is not a valid Engine.IO tag
	if err == nil {
		t.Fatalf("expected a parser error for an invalid tag byte")
	}
}

func TestDecodeTextPayloadLegacyForm(t *testing.T) {
	buf := []byte("6:4hello2:40")
	decoded, err := DecodeTextPayload(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 2 || string(decoded[0].Payload) != "hello" || string(decoded[1].Payload) != "0" {
		t.Fatalf("unexpected decode: %+v", decoded)
	}
}

func TestPacketTypeOfValue(t *testing.T) {
	for b := byte(0); b < byte(maxPacketType); b++ {
		pt, ok := ofValue(b)
		if !ok {
			t.Fatalf("byte %d should be valid", b)
		}
		if byte(pt) != b {
			t.Fatalf("ofValue(%d) = %d", b, pt)
		}
	}
	if _, ok := ofValue(200); ok {
		t.Fatalf("200 should not be a valid packet type")
	}
}
