package translate

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nxgw/atmgateway/iso8583"
)

// EsbResponse is the fixed-shape reply body from the ESB (spec.md §6).
type EsbResponse struct {
	ResponseCode      string                 `json:"responseCode"`
	Message           string                 `json:"message"`
	AuthorizationCode string                 `json:"authorizationCode"`
	ApprovalCode      string                 `json:"approvalCode"`
	Stan              string                 `json:"stan"`
	TransactionId     string                 `json:"transactionId"`
	Amount            interface{}            `json:"amount"`
	AmountMinor       interface{}            `json:"amountMinor"`
	Currency          string                 `json:"currency"`
	AvailableBalance  interface{}            `json:"availableBalance"`
	LedgerBalance     interface{}            `json:"ledgerBalance"`
	MiniStatement     []MiniStatementRecord  `json:"miniStatement"`
	MiniStatementText string                 `json:"miniStatementText"`
	FromAccount       string                 `json:"fromAccount"`
	ToAccount         string                 `json:"toAccount"`
	MacBase64         string                 `json:"macBase64"`
	RawFields         map[string]interface{} `json:"rawFields"`
}

// MiniStatementRecord is one structured mini-statement line.
type MiniStatementRecord struct {
	Date        string      `json:"date"`
	AmountMinor interface{} `json:"amountMinor"`
	Amount      interface{} `json:"amount"`
	Currency    string      `json:"currency"`
	DrCr        string      `json:"drCr"` // "C" credit or "D" debit
}

// responseCodeMap maps textual ESB response codes to ISO response
// codes, per spec.md §4.5.
var responseCodeMap = map[string]string{
	"OK": "00", "SUCCESS": "00", "APPROVED": "00", "APPROVAL": "00",
	"INSUFFICIENT_FUNDS": "51", "INSUFFICIENT FUNDS": "51", "NOT_ENOUGH_FUNDS": "51",
	"INVALID_ACCOUNT": "14", "ACCOUNT_NOT_FOUND": "14", "NO_ACCOUNT": "14",
	"EXCEEDS_LIMIT": "61", "LIMIT_EXCEEDED": "61",
	"AUTH_FAILED": "05", "DECLINED": "05",
	"DUPLICATE": "94",
	"TIMEOUT":   "96", "UNAVAILABLE": "96", "SERVICE_UNAVAILABLE": "96",
}

// NormalizeResponseCode applies spec.md §4.5's response-code mapping.
func NormalizeResponseCode(code string) string {
	if len(code) == 2 && isAllDigits(code) {
		return code
	}
	if mapped, ok := responseCodeMap[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return mapped
	}
	return "96"
}

// responseMTI computes requestMTI+0x10 as a 4-digit decimal string.
func responseMTI(requestMTI string) (string, error) {
	n, err := strconv.Atoi(requestMTI)
	if err != nil {
		return "", fmt.Errorf("invalid request MTI %q: %w", requestMTI, err)
	}
	return fmt.Sprintf("%04d", n+10), nil
}

// JsonToIso builds an ISO response message from an ESB reply and the
// original request (spec.md §4.5). table is the field dictionary the
// response message is bound to (the same per-MTI table the request
// used, since response and request MTIs share a field catalog here).
func JsonToIso(resp EsbResponse, request *iso8583.IsoMessage, table iso8583.FieldTable) (*iso8583.IsoMessage, error) {
	mti, err := responseMTI(request.MTI)
	if err != nil {
		return nil, err
	}

	normalized := NormalizeResponseCode(resp.ResponseCode)
	if strings.EqualFold(resp.ResponseCode, "SYSTEM_ERROR") || normalized == "96" {
		out := iso8583.NewMessage(mti, table)
		out.SetString(39, "96")
		out.SetString(44, truncate(resp.Message, 25))
		return out, nil
	}

	out := iso8583.NewMessage(mti, table)
	out.SetString(39, normalized)

	if resp.TransactionId != "" {
		out.SetString(37, leftTruncate(resp.TransactionId, 12))
	}
	if resp.Stan != "" {
		out.SetString(11, last(digitsOnly(resp.Stan), 6))
	}

	if minor, ok := minorAmountString(resp.AmountMinor, resp.Amount); ok {
		out.SetString(4, leftPadDigits(minor, 12))
	}

	if resp.Currency != "" {
		out.SetString(49, leftPadDigits(digitsOnly(resp.Currency), 3))
	}

	populateBalances(out, resp, request)
	populateMiniStatement(out, resp, request)

	if resp.Message != "" {
		out.SetString(44, truncate(resp.Message, 25))
	}

	if auth := firstNonEmpty(resp.AuthorizationCode, resp.ApprovalCode); auth != "" {
		out.SetString(38, leftTruncate(auth, 6))
	}

	if resp.MacBase64 != "" {
		mac, err := base64.StdEncoding.DecodeString(resp.MacBase64)
		if err == nil {
			out.Set(64, iso8583.NewBinaryValue(iso8583.BINARY, fixedBytes(mac, 8)))
		}
	}

	if resp.FromAccount != "" {
		out.SetString(102, truncate(resp.FromAccount, 28))
	}
	if resp.ToAccount != "" {
		out.SetString(103, truncate(resp.ToAccount, 28))
	}

	applyRawFields(out, resp.RawFields, table)

	return out, nil
}

// populateBalances implements spec.md §4.5's field 54 format: two
// 20-byte segments "AATTCCCSNNNNNNNNNNNN" (account-type, amount-type,
// currency, sign, absolute minor amount), mirroring the present
// balance into the missing segment when only one is given.
func populateBalances(out *iso8583.IsoMessage, resp EsbResponse, request *iso8583.IsoMessage) {
	ledgerMinor, ledgerSign, hasLedger := balanceMinor(resp.LedgerBalance)
	availMinor, availSign, hasAvail := balanceMinor(resp.AvailableBalance)
	if !hasLedger && !hasAvail {
		return
	}
	if !hasLedger {
		ledgerMinor, ledgerSign = availMinor, availSign
	}
	if !hasAvail {
		availMinor, availSign = ledgerMinor, ledgerSign
	}

	currency := balanceCurrency(resp.Currency, request)

	ledgerSeg := "00" + "01" + currency + ledgerSign + leftPadDigits(strconv.FormatInt(ledgerMinor, 10), 12)
	availSeg := "00" + "02" + currency + availSign + leftPadDigits(strconv.FormatInt(availMinor, 10), 12)
	out.SetString(54, ledgerSeg+availSeg)
}

func balanceCurrency(esbCurrency string, request *iso8583.IsoMessage) string {
	if d := digitsOnly(esbCurrency); len(d) > 0 {
		return leftPadDigits(d, 3)
	}
	if request != nil {
		if v := request.Get(49); v != nil && v.Text != "" {
			return leftPadDigits(digitsOnly(v.Text), 3)
		}
	}
	return "800"
}

// balanceMinor converts a balance value (typically a major-unit
// decimal number) to its absolute minor-unit amount plus sign char.
func balanceMinor(v interface{}) (minor int64, sign string, ok bool) {
	major, present := toFloat(v)
	if !present {
		return 0, "", false
	}
	sign = "C"
	if major < 0 {
		sign = "D"
		major = -major
	}
	return int64(major*100 + 0.5), sign, true
}

// populateMiniStatement routes to field 48 (request processing code
// prefix 32/38) or field 62 (otherwise), preferring miniStatementText
// verbatim over a rendered record list, per spec.md §4.5.
func populateMiniStatement(out *iso8583.IsoMessage, resp EsbResponse, request *iso8583.IsoMessage) {
	text := resp.MiniStatementText
	if text == "" && len(resp.MiniStatement) > 0 {
		text = renderMiniStatement(resp.MiniStatement)
	}
	if text == "" {
		return
	}

	field := 62
	if request != nil {
		if pc := request.GetString(3); strings.HasPrefix(pc, "32") || strings.HasPrefix(pc, "38") {
			field = 48
		}
	}
	out.SetString(field, truncateBytes(text, 999))
}

func renderMiniStatement(records []MiniStatementRecord) string {
	var lines []string
	for i, r := range records {
		if i >= 10 {
			break
		}
		t, err := parseMiniStatementDate(r.Date)
		if err != nil {
			continue
		}
		amountMinor, _ := toFloat(r.AmountMinor)
		if amountMinor == 0 {
			if amt, ok := toFloat(r.Amount); ok {
				amountMinor = amt * 100
			}
		}
		drcr := r.DrCr
		if drcr == "" {
			drcr = "D"
		}
		currency := leftPadDigits(digitsOnly(r.Currency), 3)
		// The third token is the fixed record-type code "001" (cash
		// transaction), not the currency; currency appears only as the
		// trailing CCC token.
		line := fmt.Sprintf("%s|%s|001 CSH %s|%s",
			t.Format("20060102150405"),
			leftPadDigits(strconv.FormatInt(int64(amountMinor+0.5), 10), 12),
			drcr, currency)
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "~"
}

func parseMiniStatementDate(s string) (time.Time, error) {
	layouts := []string{"02/01/2006", time.RFC3339, "2006-01-02T15:04:05", "20060102150405", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized mini-statement date %q", s)
}

// applyRawFields sets fields from resp.RawFields that the response
// does not already carry. Dotted keys ("N.M") group into a JSON
// object serialized into field N; field 127 is excluded since its
// nested structure is mirrored directly from source IsoMessages by
// the response assembler, not reconstructed from text.
func applyRawFields(out *iso8583.IsoMessage, raw map[string]interface{}, table iso8583.FieldTable) {
	if len(raw) == 0 {
		return
	}
	groups := map[int]map[string]interface{}{}
	for key, val := range raw {
		if dot := strings.IndexByte(key, '.'); dot > 0 {
			n, err := strconv.Atoi(key[:dot])
			if err != nil || n == 127 {
				continue
			}
			if groups[n] == nil {
				groups[n] = map[string]interface{}{}
			}
			groups[n][key[dot+1:]] = val
			continue
		}
		n, err := strconv.Atoi(key)
		if err != nil || n == 127 {
			continue
		}
		if out.Has(n) {
			continue
		}
		if _, ok := table[n]; !ok {
			continue
		}
		out.SetString(n, fmt.Sprintf("%v", val))
	}

	// deterministic order for reproducible encoding in tests
	keys := make([]int, 0, len(groups))
	for n := range groups {
		keys = append(keys, n)
	}
	sort.Ints(keys)
	for _, n := range keys {
		if out.Has(n) {
			continue
		}
		if _, ok := table[n]; !ok {
			continue
		}
		b, err := json.Marshal(groups[n])
		if err != nil {
			continue
		}
		out.SetString(n, string(b))
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case string:
		if t == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// minorAmountString prefers an explicit minor-unit value; otherwise
// it derives one from a major-unit decimal.
func minorAmountString(minor, major interface{}) (string, bool) {
	if s, ok := minor.(string); ok && s != "" {
		return digitsOnly(s), true
	}
	if f, ok := toFloat(minor); ok {
		return strconv.FormatInt(int64(f+0.5), 10), true
	}
	if f, ok := toFloat(major); ok {
		return strconv.FormatInt(int64(f*100+0.5), 10), true
	}
	return "", false
}

func digitsOnly(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func leftPadDigits(s string, n int) string {
	if len(s) >= n {
		return s[len(s)-n:]
	}
	return strings.Repeat("0", n-len(s)) + s
}

func leftTruncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func last(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func fixedBytes(b []byte, n int) []byte {
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
