package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrParser is the sentinel wrapped by every malformed Socket.IO frame or
// attachment-reconstruction error.
var ErrParser = errors.New("socketio: parser error")

// placeholder is the JSON shape substituted for a byte-sequence leaf during
// encoding: {"_placeholder":true,"num":N}.
type placeholder struct {
	num int
}

func (p placeholder) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Placeholder bool `json:"_placeholder"`
		Num         int  `json:"num"`
	}{true, p.num})
}

// Encode produces the primary text frame plus, in index order, the raw
// attachments extracted from any byte-sequence leaves in p.Data. p is not
// mutated; a copy with the substituted tree is encoded instead.
func Encode(p Packet) (primary []byte, attachments [][]byte, err error) {
	data := p.Data
	var atts [][]byte
	if data != nil {
		data, atts = substitutePlaceholders(data)
	}
	tag := p.Type
	if len(atts) > 0 {
		switch tag {
		case Event:
			tag = BinaryEvent
		case Ack:
			tag = BinaryAck
		}
	}

	var buf []byte
	buf = append(buf, byte(tag)+'0')
	if tag == BinaryEvent || tag == BinaryAck {
		buf = append(buf, []byte(fmt.Sprintf("%d-", len(atts)))...)
	}
	ns := p.Namespace
	if ns == "" {
		ns = "/"
	}
	if ns != "/" {
		buf = append(buf, []byte(ns)...)
		buf = append(buf, ',')
	}
	if p.ID >= 0 {
		buf = append(buf, []byte(fmt.Sprintf("%d", p.ID))...)
	}
	if data != nil {
		j, jerr := json.Marshal(data)
		if jerr != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrParser, jerr)
		}
		buf = append(buf, j...)
	}
	return buf, atts, nil
}

// substitutePlaceholders walks v depth-first (array elements in order, map
// keys in sorted order so the traversal matches json.Marshal's own key
// ordering) and returns a parallel tree with every []byte leaf replaced by
// a placeholder, plus the attachments in the index order their
// placeholders were assigned.
func substitutePlaceholders(v interface{}) (interface{}, [][]byte) {
	var atts [][]byte
	out := walkSubstitute(v, &atts)
	return out, atts
}

func walkSubstitute(v interface{}, atts *[][]byte) interface{} {
	switch t := v.(type) {
	case []byte:
		idx := len(*atts)
		*atts = append(*atts, t)
		return placeholder{num: idx}
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, elem := range t {
			out[i] = walkSubstitute(elem, atts)
		}
		return out
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]interface{}, len(t))
		for _, k := range keys {
			out[k] = walkSubstitute(t[k], atts)
		}
		return out
	default:
		return v
	}
}

// Decoder reconstructs Socket.IO packets from a primary text frame followed
// by zero or more raw attachments, implementing the binary-attachment
// placeholder protocol. It is stateful and must be used by a single
// logical connection at a time.
type Decoder struct {
	pending   *Packet
	remaining int
}

// NewDecoder returns a Decoder with no pending reconstruction.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// DecodeText feeds a primary text frame. It returns a non-nil Packet when
// the frame carries no attachments; otherwise it returns (nil, nil) and the
// Decoder waits for AddAttachment calls.
func (d *Decoder) DecodeText(s []byte) (*Packet, error) {
	if d.pending != nil {
		return nil, fmt.Errorf("%w: received a new frame while attachments are pending", ErrParser)
	}
	p, err := decodePrimary(s)
	if err != nil {
		return nil, err
	}
	if p.isBinary() && p.AttachmentSize > 0 {
		d.pending = &p
		d.remaining = p.AttachmentSize
		return nil, nil
	}
	return &p, nil
}

// AddAttachment feeds one raw attachment. It returns the reassembled
// packet once the last expected attachment has been consumed.
func (d *Decoder) AddAttachment(b []byte) (*Packet, error) {
	if d.pending == nil {
		return nil, fmt.Errorf("%w: attachment received with no pending packet", ErrParser)
	}
	num := d.pending.AttachmentSize - d.remaining
	if !fillPlaceholder(&d.pending.Data, num, b) {
		return nil, fmt.Errorf("%w: no placeholder found for attachment %d", ErrParser, num)
	}
	d.remaining--
	if d.remaining == 0 {
		p := d.pending
		d.pending = nil
		return p, nil
	}
	return nil, nil
}

// HasPending reports whether the decoder is mid-reconstruction.
func (d *Decoder) HasPending() bool {
	return d.pending != nil
}

func fillPlaceholder(node *interface{}, num int, data []byte) bool {
	if isPlaceholderNum(*node, num) {
		*node = data
		return true
	}
	switch t := (*node).(type) {
	case []interface{}:
		for i := range t {
			if fillPlaceholder(&t[i], num, data) {
				return true
			}
		}
	case map[string]interface{}:
		for k, v := range t {
			vv := v
			if fillPlaceholder(&vv, num, data) {
				t[k] = vv
				return true
			}
		}
	}
	return false
}

func isPlaceholderNum(v interface{}, num int) bool {
	m, ok := v.(map[string]interface{})
	if !ok {
		return false
	}
	if b, ok := m["_placeholder"].(bool); !ok || !b {
		return false
	}
	n, ok := m["num"].(float64)
	if !ok {
		return false
	}
	return int(n) == num
}

func decodePrimary(s []byte) (Packet, error) {
	if len(s) == 0 {
		return Packet{}, fmt.Errorf("%w: empty frame", ErrParser)
	}
	tag, ok := ofValue(s[0] - '0')
	if !ok {
		return Packet{}, invalidTagError(s[0])
	}
	p := newPacket(tag)
	p.Data = nil
	i := 1
	if i >= len(s) {
		return p, nil
	}

	// The attachment count, if present, always sits immediately after the
	// tag and before any namespace, terminated by '-'. It is computed
	// whenever that shape appears, regardless of tag: a server is free to
	// send e.g. a plain EVENT frame with an attachment count it never
	// expects the client to act on, and the count still belongs on the
	// decoded Packet. A digit run here that is NOT followed by '-' is not
	// an attachment count at all; it is left alone so the id-parsing step
	// below picks it up (a frame with no namespace has its id right after
	// the tag, in the same position).
	if n, next, ok := scanAttachmentCount(s, i); ok {
		p.AttachmentSize = n
		i = next
		if i >= len(s) {
			return p, nil
		}
	}

	if s[i] == '/' {
		j := i + 1
		for ; j < len(s); j++ {
			if s[j] == ',' {
				break
			}
		}
		if j >= len(s) {
			return Packet{}, fmt.Errorf("%w: missing namespace terminator", ErrParser)
		}
		p.Namespace = string(s[i:j])
		i = j + 1
		if i >= len(s) {
			return p, nil
		}
	}

	if s[i] >= '0' && s[i] <= '9' {
		j := i
		id := 0
		for ; j < len(s); j++ {
			if s[j] < '0' || s[j] > '9' {
				break
			}
			id = id*10 + int(s[j]-'0')
		}
		p.ID = id
		i = j
		if i >= len(s) {
			return p, nil
		}
	}

	if i < len(s) {
		if err := json.Unmarshal(s[i:], &p.Data); err != nil {
			return Packet{}, fmt.Errorf("%w: %v", ErrParser, err)
		}
	}
	return p, nil
}

// scanAttachmentCount looks for a run of decimal digits starting at i and
// immediately followed by '-'. It reports the parsed count and the index
// just past the '-'. ok is false when no digit run terminated by '-' exists
// at i, in which case the caller must leave i untouched: any digits there
// belong to the packet id instead.
func scanAttachmentCount(s []byte, i int) (n, next int, ok bool) {
	j := i
	for ; j < len(s) && s[j] >= '0' && s[j] <= '9'; j++ {
		n = n*10 + int(s[j]-'0')
	}
	if j == i || j >= len(s) || s[j] != '-' {
		return 0, i, false
	}
	return n, j + 1, true
}
