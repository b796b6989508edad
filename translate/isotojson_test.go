package translate

import (
	"testing"

	"github.com/nxgw/atmgateway/iso8583"
)

func withdrawalRequest() *iso8583.IsoMessage {
	dict := iso8583.NewDictionary()
	table, _ := dict.Table("0200")
	msg := iso8583.NewMessage("0200", table)
	msg.SetString(2, "4123456789012")
	msg.SetString(3, "010000")
	msg.SetString(4, "000000050000")
	msg.SetString(7, "0101120000")
	msg.SetString(11, "000001")
	msg.SetString(41, "ATM00001")
	msg.SetString(49, "800")
	return msg
}

func TestIsoToJsonMapsCoreFields(t *testing.T) {
	doc, err := IsoToJson(withdrawalRequest())
	if err != nil {
		t.Fatalf("IsoToJson: %v", err)
	}

	if doc["accountNumber"] != "4123456789012" {
		t.Errorf("accountNumber = %v", doc["accountNumber"])
	}
	if doc["transactionType"] != "WITHDRAWAL" {
		t.Errorf("transactionType = %v, want WITHDRAWAL", doc["transactionType"])
	}
	if doc["amount"] != "500.00" {
		t.Errorf("amount = %v, want 500.00", doc["amount"])
	}
	if doc["amountMinor"] != "000000050000" {
		t.Errorf("amountMinor = %v", doc["amountMinor"])
	}
	if doc["currencyCode"] != "800" {
		t.Errorf("currencyCode = %v, want 800", doc["currencyCode"])
	}
	if mask, ok := doc["cardNumber"].(string); !ok || mask != "412345******9012" {
		t.Errorf("cardNumber = %v, want masked PAN", doc["cardNumber"])
	}
}

func TestIsoToJsonMiniStatementTransactionType(t *testing.T) {
	req := withdrawalRequest()
	req.SetString(3, "380000")
	doc, err := IsoToJson(req)
	if err != nil {
		t.Fatalf("IsoToJson: %v", err)
	}
	if doc["transactionType"] != "MINI_STATEMENT" {
		t.Errorf("transactionType = %v, want MINI_STATEMENT", doc["transactionType"])
	}
}

func TestIsoToJsonRawFieldsCaptureUnmappedField(t *testing.T) {
	req := withdrawalRequest()
	req.SetString(70, "001")
	doc, err := IsoToJson(req)
	if err != nil {
		t.Fatalf("IsoToJson: %v", err)
	}
	raw, ok := doc["rawFields"].(map[string]string)
	if !ok {
		t.Fatalf("expected rawFields map, got %T", doc["rawFields"])
	}
	if raw["70"] != "001" {
		t.Errorf("rawFields[70] = %q, want 001", raw["70"])
	}
}

func TestScaleMinorToMajor(t *testing.T) {
	cases := map[string]string{
		"000000050000": "500.00",
		"000000000001": "0.01",
		"000000000000": "0.00",
	}
	for minor, want := range cases {
		if got := scaleMinorToMajor(minor); got != want {
			t.Errorf("scaleMinorToMajor(%q) = %q, want %q", minor, got, want)
		}
	}
}
