package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nxgw/atmgateway/charge"
	"github.com/nxgw/atmgateway/config"
	"github.com/nxgw/atmgateway/esb"
	"github.com/nxgw/atmgateway/iso8583"
)

func newTestProcessor(t *testing.T, handler http.HandlerFunc) (*Processor, *iso8583.Dictionary, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)

	cfg := config.EsbConfig{
		BaseURL:        srv.URL,
		Username:       "gateway",
		Password:       "secret",
		Withdrawal:     "/withdraw",
		Deposit:        "/deposit",
		Purchase:       "/purchase",
		BalanceInquiry: "/balance",
		MiniStatement:  "/ministatement",
	}

	dict := iso8583.NewDictionary()
	chargeEngine := charge.NewEngine(charge.DefaultConfig())
	esbClient := esb.NewClient(cfg, 2*time.Second, nil)
	proc := New(dict, chargeEngine, esbClient, nil)

	return proc, dict, srv.Close
}

func jsonHandler(t *testing.T, status int, body interface{}) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	}
}

func withdrawalRequest(table iso8583.FieldTable) *iso8583.IsoMessage {
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

// Scenario 1: withdrawal happy path.
func TestProcessWithdrawalHappyPath(t *testing.T) {
	proc, dict, closeSrv := newTestProcessor(t, jsonHandler(t, http.StatusOK, map[string]interface{}{
		"responseCode":      "00",
		"authorizationCode": "AUTH01",
		"availableBalance":  1234.56,
		"ledgerBalance":     1234.56,
		"transactionId":     "RRN000000001",
	}))
	defer closeSrv()

	table, _ := dict.Table("0200")
	request := withdrawalRequest(table)

	resp := proc.Process(context.Background(), request)

	if resp.MTI != "0210" {
		t.Errorf("MTI = %q, want 0210", resp.MTI)
	}
	if got := resp.GetString(39); got != "00" {
		t.Errorf("field 39 = %q, want 00", got)
	}
	if got := resp.GetString(38); got != "AUTH01" {
		t.Errorf("field 38 = %q, want AUTH01", got)
	}
	if got := resp.GetString(37); got != "RRN000000001" {
		t.Errorf("field 37 = %q, want RRN000000001", got)
	}
	want54 := "0001800C000000123456" + "0002800C000000123456"
	if got := resp.GetString(54); got != want54 {
		t.Errorf("field 54 = %q, want %q", got, want54)
	}
	for _, n := range request.FieldNumbers() {
		if !resp.Has(n) {
			t.Errorf("response missing request field %d", n)
		}
	}
}

// Scenario 2: validation failure, no ESB call.
func TestProcessValidationFailure(t *testing.T) {
	called := false
	proc, dict, closeSrv := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	defer closeSrv()

	table, _ := dict.Table("0200")
	request := iso8583.NewMessage("0200", table)
	request.SetString(3, "010000")
	request.SetString(4, "000000050000")
	request.SetString(7, "0101120000")
	request.SetString(11, "000001")
	request.SetString(41, "ATM00001")
	request.SetString(49, "800")
	// field 2 (PAN) deliberately omitted

	resp := proc.Process(context.Background(), request)

	if resp.MTI != "0231" {
		t.Errorf("MTI = %q, want 0231", resp.MTI)
	}
	if got := resp.GetString(39); got != "30" {
		t.Errorf("field 39 = %q, want 30", got)
	}
	if resp.GetString(44) == "" {
		t.Error("field 44 should carry a validation summary")
	}
	if len(resp.GetString(44)) > 25 {
		t.Errorf("field 44 must be <= 25 chars, got %d", len(resp.GetString(44)))
	}
	if called {
		t.Error("ESB must not be called on validation failure")
	}
}

// Scenario 3: limit exceeded, no ESB call.
func TestProcessLimitExceeded(t *testing.T) {
	called := false
	proc, dict, closeSrv := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	defer closeSrv()

	table, _ := dict.Table("0200")
	request := withdrawalRequest(table)
	request.SetString(4, "500000000001")

	resp := proc.Process(context.Background(), request)

	if got := resp.GetString(39); got != "61" {
		t.Errorf("field 39 = %q, want 61", got)
	}
	if called {
		t.Error("ESB must not be called when the limit is exceeded")
	}
}

// Scenario 4: reversal carries exactly the request's own field set.
func TestProcessReversalExactFieldSet(t *testing.T) {
	proc, dict, closeSrv := newTestProcessor(t, jsonHandler(t, http.StatusOK, map[string]interface{}{
		"responseCode": "00",
	}))
	defer closeSrv()

	table, _ := dict.Table("0420")
	request := iso8583.NewMessage("0420", table)
	request.SetString(2, "4123456789012")
	request.SetString(3, "010000")
	request.SetString(4, "000000050000")
	request.SetString(7, "0101120000")
	request.SetString(11, "000001")
	request.SetString(37, "RRN000000001")
	request.SetString(41, "ATM00001")
	request.SetString(49, "800")

	resp := proc.Process(context.Background(), request)

	if resp.MTI != "0430" {
		t.Errorf("MTI = %q, want 0430", resp.MTI)
	}
	want := map[int]bool{2: true, 3: true, 4: true, 7: true, 11: true, 37: true, 41: true, 49: true}
	for n := range want {
		if !resp.Has(n) {
			t.Errorf("reversal response missing field %d", n)
		}
	}
	for _, n := range resp.FieldNumbers() {
		if !want[n] {
			t.Errorf("reversal response has unexpected field %d", n)
		}
	}
}

// Scenario 5: network management echo, no ESB call.
func TestProcessNetworkManagementEcho(t *testing.T) {
	called := false
	proc, dict, closeSrv := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	defer closeSrv()

	table, _ := dict.Table("0800")
	request := iso8583.NewMessage("0800", table)
	request.SetString(70, "001")
	request.SetString(11, "000001")

	resp := proc.Process(context.Background(), request)

	if resp.MTI != "0810" {
		t.Errorf("MTI = %q, want 0810", resp.MTI)
	}
	if got := resp.GetString(70); got != "001" {
		t.Errorf("field 70 = %q, want 001", got)
	}
	if len(resp.FieldNumbers()) != len(request.FieldNumbers()) {
		t.Errorf("echo response field count = %d, want %d", len(resp.FieldNumbers()), len(request.FieldNumbers()))
	}
	if called {
		t.Error("ESB must not be called for network management")
	}
}

// Scenario 6: mini-statement renders field 48, field 62 stays absent.
func TestProcessMiniStatement(t *testing.T) {
	proc, dict, closeSrv := newTestProcessor(t, jsonHandler(t, http.StatusOK, map[string]interface{}{
		"responseCode": "00",
		"miniStatement": []map[string]interface{}{
			{"date": "01/06/2026", "amountMinor": 10000, "currency": "800", "drCr": "D"},
			{"date": "02/06/2026", "amountMinor": 20000, "currency": "800", "drCr": "C"},
			{"date": "03/06/2026", "amountMinor": 30000, "currency": "800", "drCr": "D"},
		},
	}))
	defer closeSrv()

	table, _ := dict.Table("0200")
	request := withdrawalRequest(table)
	request.SetString(3, "380000")

	resp := proc.Process(context.Background(), request)

	if resp.GetString(48) == "" {
		t.Fatal("expected field 48 to be populated")
	}
	if resp.Has(62) {
		t.Error("field 62 should be absent when field 48 is used")
	}
}
