package iso8583

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/moov-io/iso8583/encoding"
	"github.com/moov-io/iso8583/prefix"
)

// WireCodec parses and packs ISO-8583 frames against a Dictionary.
// It is stateless with respect to any single request and is safe to
// share across connections (spec.md §5 Shared resources).
type WireCodec struct {
	dict                       *Dictionary
	useBinaryBitmap            bool
	ignoreTrailingMissingField bool
}

// Option configures a WireCodec at construction.
type Option func(*WireCodec)

// WithBinaryBitmap selects binary (true) or hex-ASCII (false) bitmap
// encoding. Parse and pack must agree (spec.md §4.1).
func WithBinaryBitmap(enabled bool) Option {
	return func(c *WireCodec) { c.useBinaryBitmap = enabled }
}

// WithIgnoreTrailingMissingField toggles the edge policy that
// tolerates the highest bitmapped field being absent at message end.
func WithIgnoreTrailingMissingField(enabled bool) Option {
	return func(c *WireCodec) { c.ignoreTrailingMissingField = enabled }
}

// NewWireCodec builds a codec bound to dict, defaulting to binary
// bitmaps and ignore_trailing_missing_field = true per spec.md §4.1.
func NewWireCodec(dict *Dictionary, opts ...Option) *WireCodec {
	c := &WireCodec{dict: dict, useBinaryBitmap: true, ignoreTrailingMissingField: true}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReadFrame reads one 2-byte-big-endian-length-prefixed frame payload
// from r (spec.md §4.1 Parse contract). A clean io.EOF before any byte
// is read is returned as-is so callers can distinguish a closed
// connection from a truncated frame.
func (c *WireCodec) ReadFrame(r io.Reader) ([]byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, frameIncomplete("length prefix", err)
	}
	n := int(binary.BigEndian.Uint16(header[:]))
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, frameIncomplete("frame payload", err)
	}
	return payload, nil
}

// Decode parses a frame payload (MTI + bitmap(s) + field data, without
// the 2-byte length prefix) into an IsoMessage.
func (c *WireCodec) Decode(payload []byte) (*IsoMessage, error) {
	if len(payload) < 4 {
		return nil, frameMalformed("payload shorter than MTI", nil)
	}
	mti := string(payload[:4])
	table, ok := c.dict.Table(mti)
	if !ok {
		return nil, frameMalformed(fmt.Sprintf("unknown MTI %q", mti), nil)
	}

	msg := NewMessage(mti, table)
	if err := c.decodeFieldsInto(msg, payload[4:], table); err != nil {
		return nil, err
	}
	return msg, nil
}

// decodeFieldsInto reads a bitmap and the fields it indicates from
// data, populating msg against table. Used both at top level (after
// the MTI) and recursively for field 127's nested payload.
func (c *WireCodec) decodeFieldsInto(msg *IsoMessage, data []byte, table FieldTable) error {
	present, consumed, err := decodeBitmap(data, c.useBinaryBitmap)
	if err != nil {
		return err
	}
	data = data[consumed:]

	fieldNums := sortedPresent(present)
	for i, n := range fieldNums {
		if len(data) == 0 {
			if c.ignoreTrailingMissingField && i == len(fieldNums)-1 {
				break
			}
			return frameIncomplete(fmt.Sprintf("field %d indicated by bitmap but no data remains", n), nil)
		}

		spec, ok := table[n]
		if !ok {
			return frameMalformed(fmt.Sprintf("field %d has no dictionary entry", n), nil)
		}

		value, read, err := c.decodeField(data, spec)
		if err != nil {
			return err
		}
		data = data[read:]

		if spec.Composite {
			nested := NewMessage("", c.dict.Composite127())
			if err := c.decodeFieldsInto(nested, value.Bytes, c.dict.Composite127()); err != nil {
				return err
			}
			value.Nested = nested
			value.Bytes = nil
		}
		msg.Set(n, value)
	}
	return nil
}

func (c *WireCodec) decodeField(data []byte, spec FieldSpec) (*FieldValue, int, error) {
	binaryMode := spec.Type.binary() || spec.Composite
	enc := encoding.ASCII
	if binaryMode {
		enc = encoding.Binary
	}

	if spec.Type.fixed() && !spec.Composite {
		n := spec.Length
		if len(data) < n {
			return nil, 0, frameIncomplete(fmt.Sprintf("field %d truncated", spec.Number), nil)
		}
		raw, _, err := enc.Decode(data[:n], n)
		if err != nil {
			return nil, 0, frameMalformed(fmt.Sprintf("field %d decode", spec.Number), err)
		}
		v := &FieldValue{Type: spec.Type, Length: n}
		if binaryMode {
			v.Bytes = raw
		} else {
			v.Text = string(raw)
		}
		return v, n, nil
	}

	pref := prefixerFor(spec.Type)
	length, read, err := pref.DecodeLength(spec.Type.maxVarLength(), data)
	if err != nil {
		return nil, 0, frameMalformed(fmt.Sprintf("field %d length prefix", spec.Number), err)
	}
	if len(data) < read+length {
		return nil, 0, frameIncomplete(fmt.Sprintf("field %d body truncated", spec.Number), nil)
	}
	raw, _, err := enc.Decode(data[read:read+length], length)
	if err != nil {
		return nil, 0, frameMalformed(fmt.Sprintf("field %d decode", spec.Number), err)
	}
	v := &FieldValue{Type: spec.Type, Length: length}
	if binaryMode {
		v.Bytes = raw
	} else {
		v.Text = string(raw)
	}
	return v, read + length, nil
}

// Encode packs msg into a full length-prefixed wire frame.
func (c *WireCodec) Encode(msg *IsoMessage) ([]byte, error) {
	payload, err := c.encodePayload(msg, true)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0xFFFF {
		return nil, frameMalformed("encoded payload exceeds 65535 bytes", nil)
	}
	header := make([]byte, 2)
	binary.BigEndian.PutUint16(header, uint16(len(payload)))
	return append(header, payload...), nil
}

func (c *WireCodec) encodePayload(msg *IsoMessage, includeMTI bool) ([]byte, error) {
	present := make(map[int]bool, len(msg.Fields))
	for n := range msg.Fields {
		present[n] = true
	}

	var buf bytes.Buffer
	if includeMTI {
		buf.WriteString(msg.MTI)
	}
	buf.Write(encodeBitmap(present, c.useBinaryBitmap))

	table := msg.table
	for _, n := range sortedPresent(present) {
		spec, ok := table[n]
		if !ok {
			return nil, frameMalformed(fmt.Sprintf("field %d has no dictionary entry", n), nil)
		}
		encoded, err := c.encodeField(spec, msg.Fields[n])
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
	}
	return buf.Bytes(), nil
}

func (c *WireCodec) encodeField(spec FieldSpec, value *FieldValue) ([]byte, error) {
	if spec.Composite {
		RemoveForbidden127Subfields(value.Nested)
		nestedPayload, err := c.encodePayload(value.Nested, false)
		if err != nil {
			return nil, err
		}
		return c.encodeVarBytes(spec, nestedPayload, true)
	}

	if spec.Type.fixed() {
		return c.encodeFixed(spec, value)
	}

	if spec.Type.binary() {
		return c.encodeVarBytes(spec, value.Bytes, true)
	}
	return c.encodeVarBytes(spec, []byte(value.Text), false)
}

func (c *WireCodec) encodeFixed(spec FieldSpec, value *FieldValue) ([]byte, error) {
	n := spec.Length
	if spec.Type.binary() {
		raw := padOrTruncateBytes(value.Bytes, n)
		return encoding.Binary.Encode(raw)
	}
	var raw []byte
	switch spec.Type {
	case NUMERIC, AMOUNT, DATE10, DATE4, TIME:
		raw = []byte(zeroPad(value.Text, n))
	default: // ALPHA
		raw = []byte(spacePad(value.Text, n))
	}
	return encoding.ASCII.Encode(raw)
}

func (c *WireCodec) encodeVarBytes(spec FieldSpec, raw []byte, binaryMode bool) ([]byte, error) {
	maxLen := spec.Type.maxVarLength()
	if len(raw) > maxLen {
		raw = raw[:maxLen]
	}
	pref := prefixerFor(spec.Type)
	lengthHeader, err := pref.EncodeLength(maxLen, len(raw))
	if err != nil {
		return nil, frameMalformed(fmt.Sprintf("field %d length prefix encode", spec.Number), err)
	}
	enc := encoding.ASCII
	if binaryMode {
		enc = encoding.Binary
	}
	body, err := enc.Encode(raw)
	if err != nil {
		return nil, frameMalformed(fmt.Sprintf("field %d encode", spec.Number), err)
	}
	return append(lengthHeader, body...), nil
}

func prefixerFor(t IsoType) prefix.Prefixer {
	switch t {
	case LLVAR, LLBIN:
		return prefix.ASCII.LL
	case LLLVAR, LLLBIN:
		return prefix.ASCII.LLL
	case LLLLVAR:
		return prefix.ASCII.LLLL
	default:
		return prefix.ASCII.LLL
	}
}

func sortedPresent(present map[int]bool) []int {
	out := make([]int, 0, len(present))
	for n := range present {
		out = append(out, n)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func zeroPad(s string, n int) string {
	if len(s) >= n {
		return s[len(s)-n:]
	}
	return padLeft(s, n, '0')
}

func spacePad(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + repeatByte(' ', n-len(s))
}

func padLeft(s string, n int, c byte) string {
	return repeatByte(c, n-len(s)) + s
}

func repeatByte(c byte, n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = c
	}
	return string(b)
}

func padOrTruncateBytes(b []byte, n int) []byte {
	if len(b) == n {
		return b
	}
	if len(b) > n {
		return b[:n]
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}
