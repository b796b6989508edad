package iso8583

import (
	"bytes"
	"testing"
)

func testDictionary() *Dictionary {
	return NewDictionary()
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	dict := testDictionary()
	codec := NewWireCodec(dict)
	table, ok := dict.Table("0200")
	if !ok {
		t.Fatal("expected 0200 table")
	}

	msg := NewMessage("0200", table)
	msg.SetString(2, "4123456789012")
	msg.SetString(3, "010000")
	msg.SetString(4, "000000050000")
	msg.SetString(7, "0101120000")
	msg.SetString(11, "000001")
	msg.SetString(41, "ATM00001")
	msg.SetString(49, "800")

	encoded, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	r := bytes.NewReader(encoded)
	payload, err := codec.ReadFrame(r)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}

	decoded, err := codec.Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.MTI != "0200" {
		t.Errorf("MTI = %q, want 0200", decoded.MTI)
	}
	if got := decoded.GetString(2); got != "4123456789012" {
		t.Errorf("field 2 = %q, want 4123456789012", got)
	}
	if got := decoded.GetString(4); got != "000000050000" {
		t.Errorf("field 4 = %q, want 000000050000", got)
	}
	if got := decoded.GetString(41); got != "ATM00001" {
		t.Errorf("field 41 = %q, want ATM00001", got)
	}

	reEncoded, err := codec.Encode(decoded)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(encoded, reEncoded) {
		t.Errorf("round-trip mismatch:\n  original = %x\n  re-encoded = %x", encoded, reEncoded)
	}
}

func TestDecodeUnknownMTI(t *testing.T) {
	codec := NewWireCodec(testDictionary())
	_, err := codec.Decode([]byte("9999"))
	if err == nil {
		t.Fatal("expected error for unknown MTI")
	}
	var protoErr *ProtocolError
	if !errorsAs(err, &protoErr) {
		t.Fatalf("expected *ProtocolError, got %T", err)
	}
	if protoErr.Kind != KindFrameMalformed {
		t.Errorf("Kind = %v, want FrameMalformed", protoErr.Kind)
	}
}

func TestComposite127StripsForbiddenSubfields(t *testing.T) {
	dict := testDictionary()
	codec := NewWireCodec(dict)
	table, _ := dict.Table("0200")

	nested := NewMessage("", dict.Composite127())
	nested.SetString(2, "ORIGDATA")
	nested.SetString(22, "051")
	nested.SetString(25, "00")

	msg := NewMessage("0200", table)
	msg.SetString(2, "4123456789012")
	msg.SetString(3, "010000")
	msg.SetString(4, "000000050000")
	msg.SetString(7, "0101120000")
	msg.SetString(11, "000001")
	msg.SetString(41, "ATM00001")
	msg.SetString(49, "800")
	msg.Set(127, NewComposite(nested))

	encoded, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	r := bytes.NewReader(encoded)
	payload, err := codec.ReadFrame(r)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	decoded, err := codec.Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	v := decoded.Get(127)
	if v == nil || v.Nested == nil {
		t.Fatal("expected nested field 127")
	}
	if v.Nested.Has(22) || v.Nested.Has(25) {
		t.Errorf("subfields 22/25 must be stripped, got fields %v", v.Nested.FieldNumbers())
	}
	if v.Nested.GetString(2) != "ORIGDATA" {
		t.Errorf("subfield 2 = %q, want ORIGDATA", v.Nested.GetString(2))
	}
}

func TestRemoveForbidden127SubfieldsIdempotent(t *testing.T) {
	nested := NewMessage("", FieldTable{})
	nested.SetString(22, "x")
	RemoveForbidden127Subfields(nested)
	RemoveForbidden127Subfields(nested)
	if nested.Has(22) {
		t.Error("field 22 should be removed")
	}
}

// errorsAs avoids importing "errors" twice across test files for a
// one-line helper.
func errorsAs(err error, target **ProtocolError) bool {
	pe, ok := err.(*ProtocolError)
	if !ok {
		return false
	}
	*target = pe
	return true
}
