// Package iso8583 implements the ISO-8583 wire protocol layer of the
// ATM acquirer gateway: the field type system, the per-MTI message
// dictionary, bitmap composition, and the frame codec that turns raw
// TCP bytes into an IsoMessage and back.
package iso8583

import "fmt"

// IsoType identifies the wire encoding discipline of a field value.
type IsoType int

const (
	// ALPHA is a fixed-length, space-right-padded text field.
	ALPHA IsoType = iota
	// NUMERIC is a fixed-length, zero-left-padded digit field.
	NUMERIC
	// AMOUNT is a fixed-length digit field carrying a minor-unit amount.
	AMOUNT
	// DATE10 is a fixed 10-digit MMDDhhmmss timestamp.
	DATE10
	// DATE4 is a fixed 4-digit MMDD local date.
	DATE4
	// TIME is a fixed 6-digit hhmmss local time.
	TIME
	// LLVAR is a 2-digit-length-prefixed text field, 0..99 bytes.
	LLVAR
	// LLLVAR is a 3-digit-length-prefixed text field, 0..999 bytes.
	LLLVAR
	// LLLLVAR is a 4-digit-length-prefixed text field, 0..9999 bytes.
	LLLLVAR
	// BINARY is a fixed-length raw octet field.
	BINARY
	// LLBIN is a 2-digit-length-prefixed raw octet field, 0..99 bytes.
	LLBIN
	// LLLBIN is a 3-digit-length-prefixed raw octet field, 0..999 bytes.
	LLLBIN
)

func (t IsoType) String() string {
	switch t {
	case ALPHA:
		return "ALPHA"
	case NUMERIC:
		return "NUMERIC"
	case AMOUNT:
		return "AMOUNT"
	case DATE10:
		return "DATE10"
	case DATE4:
		return "DATE4"
	case TIME:
		return "TIME"
	case LLVAR:
		return "LLVAR"
	case LLLVAR:
		return "LLLVAR"
	case LLLLVAR:
		return "LLLLVAR"
	case BINARY:
		return "BINARY"
	case LLBIN:
		return "LLBIN"
	case LLLBIN:
		return "LLLBIN"
	default:
		return fmt.Sprintf("IsoType(%d)", int(t))
	}
}

// fixed reports whether t has a single declared length rather than a
// length-prefix discipline.
func (t IsoType) fixed() bool {
	switch t {
	case ALPHA, NUMERIC, AMOUNT, DATE10, DATE4, TIME, BINARY:
		return true
	default:
		return false
	}
}

// binary reports whether t stores raw octets rather than text/digits.
func (t IsoType) binary() bool {
	switch t {
	case BINARY, LLBIN, LLLBIN:
		return true
	default:
		return false
	}
}

// maxVarLength returns the largest length a variable-prefix discipline
// may declare, per spec.md §3 invariant (ii).
func (t IsoType) maxVarLength() int {
	switch t {
	case LLVAR, LLBIN:
		return 99
	case LLLVAR, LLLBIN:
		return 999
	case LLLLVAR:
		return 9999
	default:
		return 0
	}
}

// FieldSpec is one entry of a MessageDictionary field table: the
// number, IsoType, and declared length for a single field.
type FieldSpec struct {
	Number    int
	Name      string
	Type      IsoType
	Length    int  // exact length for fixed types, max length for variable types
	Composite bool // true only for field 127, whose payload is a nested IsoMessage
}

// FieldTable maps field number to its dictionary entry for one MTI
// (or, for the 127 sub-table, one subfield set).
type FieldTable map[int]FieldSpec

// FieldValue is a parsed or to-be-packed field: a tagged union over
// text, raw octets, or (field 127 only) a nested IsoMessage.
type FieldValue struct {
	Type   IsoType
	Length int // the actual length this instance carries
	Text   string
	Bytes  []byte
	Nested *IsoMessage
}

// NewText builds a FieldValue for a text/digit IsoType.
func NewText(t IsoType, value string) *FieldValue {
	return &FieldValue{Type: t, Length: len(value), Text: value}
}

// NewBinaryValue builds a FieldValue for a binary IsoType.
func NewBinaryValue(t IsoType, value []byte) *FieldValue {
	return &FieldValue{Type: t, Length: len(value), Bytes: append([]byte(nil), value...)}
}

// NewComposite builds a FieldValue wrapping a nested IsoMessage (field 127).
func NewComposite(msg *IsoMessage) *FieldValue {
	return &FieldValue{Type: LLLVAR, Nested: msg}
}

// IsoMessage is one ISO-8583 message: an MTI plus a sparse field map.
// It exists only for the duration of one request/response round trip;
// there is no persisted state (spec.md §3 Lifecycle).
type IsoMessage struct {
	MTI    string
	Fields map[int]*FieldValue

	// table is the field dictionary this message was parsed against,
	// or will be packed against. Set at construction/parse time so a
	// nested composite-127 message re-packs symmetrically against its
	// own sub-dictionary rather than the outer message's table.
	table FieldTable
}

// NewMessage creates an empty message bound to table.
func NewMessage(mti string, table FieldTable) *IsoMessage {
	return &IsoMessage{MTI: mti, Fields: make(map[int]*FieldValue), table: table}
}

// Table returns the field dictionary this message is bound to.
func (m *IsoMessage) Table() FieldTable { return m.table }

// Has reports whether field n is present.
func (m *IsoMessage) Has(n int) bool {
	_, ok := m.Fields[n]
	return ok
}

// Get returns field n, or nil if absent.
func (m *IsoMessage) Get(n int) *FieldValue {
	return m.Fields[n]
}

// GetString returns the text value of field n, or "" if absent.
func (m *IsoMessage) GetString(n int) string {
	if v := m.Fields[n]; v != nil {
		return v.Text
	}
	return ""
}

// Set assigns field n.
func (m *IsoMessage) Set(n int, v *FieldValue) {
	m.Fields[n] = v
}

// SetString assigns a text field, inferring its IsoType/length from
// the bound dictionary table when available.
func (m *IsoMessage) SetString(n int, value string) {
	t := ALPHA
	if spec, ok := m.table[n]; ok {
		t = spec.Type
	}
	m.Fields[n] = NewText(t, value)
}

// Remove deletes field n. Safe to call when absent or repeatedly
// (spec.md §9: removeForbidden127Subfields must be idempotent).
func (m *IsoMessage) Remove(n int) {
	delete(m.Fields, n)
}

// FieldNumbers returns the present field numbers in ascending order.
func (m *IsoMessage) FieldNumbers() []int {
	out := make([]int, 0, len(m.Fields))
	for n := range m.Fields {
		out = append(out, n)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// RemoveForbidden127Subfields strips subfields 22 and 25 from a nested
// field-127 message. Idempotent by construction: deleting an absent
// key is a no-op.
func RemoveForbidden127Subfields(nested *IsoMessage) {
	if nested == nil {
		return
	}
	nested.Remove(22)
	nested.Remove(25)
}
