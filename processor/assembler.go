package processor

import "github.com/nxgw/atmgateway/iso8583"

// assemble builds a fresh response message from (mti, allowed, request,
// esbResponse, template) per spec.md §4.10: for each allowed field,
// take the first non-empty value in precedence order (request, then
// esbResponse, then template), then strip anything not in allowed and
// any forbidden field-127 subfield.
func assemble(mti string, allowed []int, request, esbResponse, template *iso8583.IsoMessage, table iso8583.FieldTable) *iso8583.IsoMessage {
	out := iso8583.NewMessage(mti, table)

	for _, n := range allowed {
		v := firstPresent(n, request, esbResponse, template)
		if v == nil {
			continue
		}
		out.Set(n, v)
	}

	if v := out.Get(127); v != nil && v.Nested != nil {
		iso8583.RemoveForbidden127Subfields(v.Nested)
	}

	sanitizeNumericLL(out)

	return out
}

func firstPresent(n int, sources ...*iso8583.IsoMessage) *iso8583.FieldValue {
	for _, src := range sources {
		if src == nil {
			continue
		}
		v := src.Get(n)
		if v == nil {
			continue
		}
		if fieldEmpty(v) {
			continue
		}
		return v
	}
	return nil
}

func fieldEmpty(v *iso8583.FieldValue) bool {
	if v.Nested != nil {
		return false
	}
	if len(v.Bytes) > 0 {
		return false
	}
	return v.Text == ""
}

// numericLLFields are the fields spec.md §4.10 requires reduced to
// digits-only, capped to the field's declared max length, before wire
// encoding. Field 35 (Track-2 sentinels) and field 70 are excluded.
var numericLLFields = map[int]bool{
	2: true, 32: true, 33: true, 99: true, 100: true, 101: true, 102: true, 103: true, 104: true,
}

func sanitizeNumericLL(msg *iso8583.IsoMessage) {
	table := msg.Table()
	for n := range numericLLFields {
		v := msg.Get(n)
		if v == nil || v.Text == "" {
			continue
		}
		digits := digitsOnly(v.Text)
		if spec, ok := table[n]; ok && spec.Length > 0 && len(digits) > spec.Length {
			digits = digits[:spec.Length]
		}
		msg.Set(n, iso8583.NewText(v.Type, digits))
	}
}

func digitsOnly(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b = append(b, s[i])
		}
	}
	return string(b)
}
