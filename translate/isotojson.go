// Package translate implements the bidirectional ISO-8583 <-> JSON
// field translation (spec.md §4.4 IsoToJson, §4.5 JsonToIso).
package translate

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nxgw/atmgateway/iso8583"
)

// Document is the canonical JSON shape exchanged with the ESB. It is
// a sparse map, not a fixed struct, matching spec.md §3: "The core
// depends only on the JSON shape, not on any object model."
type Document map[string]interface{}

// ProcessingCodeTransactionType maps the first two digits of field 3
// to a transaction type, per spec.md §4.4.
func ProcessingCodeTransactionType(pc string) string {
	if len(pc) < 2 {
		return "OTHER"
	}
	switch pc[:2] {
	case "00":
		return "PURCHASE"
	case "01":
		return "WITHDRAWAL"
	case "02", "21":
		return "DEPOSIT"
	case "03":
		return "TRANSFER"
	case "31":
		return "BALANCE_INQUIRY"
	case "32", "38":
		return "MINI_STATEMENT"
	default:
		return "OTHER"
	}
}

// fieldsConsumedByIsoToJson lists every field number IsoToJson maps to
// a named logical key, so the remainder can be captured in rawFields.
var fieldsConsumedByIsoToJson = map[int]bool{
	2: true, 3: true, 4: true, 7: true, 11: true, 12: true, 13: true,
	32: true, 37: true, 38: true, 39: true, 41: true, 42: true, 43: true,
	44: true, 48: true, 49: true, 54: true, 55: true, 62: true, 64: true,
	102: true, 123: true,
}

// IsoToJson converts a parsed ISO message into the canonical JSON
// document sent to the ESB (spec.md §4.4).
func IsoToJson(msg *iso8583.IsoMessage) (Document, error) {
	doc := Document{}

	doc["messageType"] = msg.MTI

	if v := msg.Get(2); v != nil {
		pan := v.Text
		doc["accountNumber"] = pan
		doc["cardNumber"] = maskPan(pan)
	}

	if v := msg.Get(3); v != nil {
		doc["processingCode"] = v.Text
		doc["transactionType"] = ProcessingCodeTransactionType(v.Text)
	}

	if v := msg.Get(4); v != nil {
		doc["amountMinor"] = v.Text
		major := scaleMinorToMajor(v.Text)
		doc["amount"] = major
		doc["amountValue"] = major
	}

	if v := msg.Get(7); v != nil {
		doc["transmissionDateTime"] = expandTransmissionDateTime(v.Text)
	}

	if v := msg.Get(11); v != nil {
		doc["stan"] = v.Text
	}
	if v := msg.Get(12); v != nil {
		doc["timeLocal"] = v.Text
	}
	if v := msg.Get(13); v != nil {
		doc["dateLocal"] = v.Text
	}
	if v := msg.Get(32); v != nil {
		doc["acquiringInstitutionId"] = v.Text
	}
	if v := msg.Get(37); v != nil {
		doc["rrn"] = v.Text
	}
	if v := msg.Get(38); v != nil {
		doc["authorizationCode"] = v.Text
	}
	if v := msg.Get(39); v != nil {
		doc["responseCode"] = v.Text
	}
	if v := msg.Get(41); v != nil {
		doc["terminalId"] = strings.TrimRight(v.Text, " ")
	}
	if v := msg.Get(42); v != nil {
		doc["merchantId"] = v.Text
	}
	if v := msg.Get(43); v != nil {
		doc["merchantInfo"] = v.Text
	}
	if v := msg.Get(44); v != nil {
		doc["additionalResponseData"] = v.Text
	}
	if v := msg.Get(49); v != nil {
		doc["currencyCode"] = v.Text
	}
	if v := msg.Get(48); v != nil {
		doc["miniStatement"] = v.Text
	} else if v := msg.Get(62); v != nil {
		doc["miniStatement"] = v.Text
	}
	if v := msg.Get(54); v != nil {
		doc["balanceData"] = v.Text
	}
	if v := msg.Get(102); v != nil {
		doc["fromAccount"] = v.Text
	}
	if v := msg.Get(123); v != nil {
		doc["privateData"] = v.Text
	}
	if v := msg.Get(55); v != nil {
		doc["emvDataBase64"] = base64.StdEncoding.EncodeToString(v.Bytes)
	}
	if v := msg.Get(64); v != nil {
		doc["macBase64"] = base64.StdEncoding.EncodeToString(v.Bytes)
	}

	raw := map[string]string{}
	for _, n := range msg.FieldNumbers() {
		if fieldsConsumedByIsoToJson[n] {
			continue
		}
		v := msg.Get(n)
		if v.Nested != nil {
			for _, sub := range v.Nested.FieldNumbers() {
				sv := v.Nested.Get(sub)
				raw[fmt.Sprintf("127.%d", sub)] = rawFieldText(sv)
			}
			continue
		}
		raw[strconv.Itoa(n)] = rawFieldText(v)
	}
	if len(raw) > 0 {
		doc["rawFields"] = raw
	}

	return doc, nil
}

func rawFieldText(v *iso8583.FieldValue) string {
	if v.Bytes != nil {
		return base64.StdEncoding.EncodeToString(v.Bytes)
	}
	return v.Text
}

func maskPan(pan string) string {
	if len(pan) <= 10 {
		return pan
	}
	return pan[:6] + "******" + pan[len(pan)-4:]
}

// scaleMinorToMajor renders a 12-digit minor-unit string scaled by
// 10^-2 as plain decimal (spec.md §4.4).
func scaleMinorToMajor(minor string) string {
	n, err := strconv.ParseInt(strings.TrimLeft(minor, "0"), 10, 64)
	if err != nil || strings.TrimLeft(minor, "0") == "" {
		n = 0
	}
	whole := n / 100
	frac := n % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d", whole, frac)
}

// expandTransmissionDateTime renders field 7 as ISO-8601. A 10-digit
// DATE10 value (MMddHHmmss) is expanded using the current year; any
// other value (already a timestamp) passes through unchanged.
func expandTransmissionDateTime(v string) string {
	if len(v) == 10 && isAllDigits(v) {
		year := time.Now().Year()
		month, day := v[0:2], v[2:4]
		hour, min, sec := v[4:6], v[6:8], v[8:10]
		return fmt.Sprintf("%04d-%s-%sT%s:%s:%s", year, month, day, hour, min, sec)
	}
	return v
}

func isAllDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
