// Package esb implements the HTTP/JSON client to the core-banking
// enterprise service bus (spec.md §4.7): request augmentation,
// basic-auth, endpoint routing, and response normalization.
package esb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/nxgw/atmgateway/charge"
	"github.com/nxgw/atmgateway/config"
	"github.com/nxgw/atmgateway/metrics"
	"github.com/nxgw/atmgateway/translate"
)

// unhealthyThreshold is the number of consecutive call failures after
// which the client short-circuits new calls with a cached SYSTEM_ERROR
// response, per SPEC_FULL.md's Design Notes addition (the teacher's
// RegionHealth pattern reused at single-endpoint scale).
const unhealthyThreshold = 5

// health is a small mutex-guarded failure counter, the same shape as
// the teacher's region health tracking but sized for one endpoint.
type health struct {
	mu                 sync.Mutex
	consecutiveFailure int
}

func (h *health) recordSuccess() {
	h.mu.Lock()
	h.consecutiveFailure = 0
	h.mu.Unlock()
}

func (h *health) recordFailure() {
	h.mu.Lock()
	h.consecutiveFailure++
	h.mu.Unlock()
}

func (h *health) unhealthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.consecutiveFailure >= unhealthyThreshold
}

// Client is the stateless (per-request) ESB HTTP client. The
// underlying http.Client and health tracker are safe to share across
// concurrent requests.
type Client struct {
	cfg        config.EsbConfig
	httpClient *http.Client
	metrics    *metrics.Metrics
	health     *health
}

// NewClient builds a Client bound to cfg. timeout bounds each call.
func NewClient(cfg config.EsbConfig, timeout time.Duration, m *metrics.Metrics) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    m,
		health:     &health{},
	}
}

// endpointPath returns the configured path suffix for transactionType,
// and false if no endpoint is defined for it (spec.md §4.7 defines
// exactly five).
func (c *Client) endpointPath(transactionType string) (string, bool) {
	switch transactionType {
	case "WITHDRAWAL":
		return c.cfg.Withdrawal, true
	case "DEPOSIT":
		return c.cfg.Deposit, true
	case "PURCHASE":
		return c.cfg.Purchase, true
	case "BALANCE_INQUIRY":
		return c.cfg.BalanceInquiry, true
	case "MINI_STATEMENT":
		return c.cfg.MiniStatement, true
	default:
		return "", false
	}
}

// Send augments doc with externalRef, charges, commission, and (for
// MINI_STATEMENT) fromDate/toDate, then POSTs it to the endpoint
// routed by transactionType and normalizes the reply (spec.md §4.7).
func (c *Client) Send(ctx context.Context, transactionType string, doc translate.Document, result charge.Result) (translate.EsbResponse, error) {
	path, ok := c.endpointPath(transactionType)
	if !ok {
		return translate.EsbResponse{}, fmt.Errorf("esb: no endpoint configured for transaction type %q", transactionType)
	}

	if c.health.unhealthy() {
		c.observeError(transactionType, "circuit_open")
		return translate.EsbResponse{ResponseCode: "SYSTEM_ERROR", Message: "esb endpoint marked unhealthy"}, nil
	}

	body := augmentedBody(doc, result, transactionType)

	payload, err := json.Marshal(body)
	if err != nil {
		return translate.EsbResponse{}, fmt.Errorf("esb: failed to encode request body: %w", err)
	}

	url := c.cfg.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return translate.EsbResponse{}, fmt.Errorf("esb: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.health.recordFailure()
		c.observeError(transactionType, "io_error")
		return translate.EsbResponse{ResponseCode: "SYSTEM_ERROR", Message: err.Error()}, nil
	}
	defer resp.Body.Close()

	respBody, _ := ioutil.ReadAll(resp.Body)

	out, recordAsError := normalizeResponse(resp.StatusCode, respBody)
	if recordAsError {
		c.health.recordFailure()
		c.observeError(transactionType, "http_status")
	} else {
		c.health.recordSuccess()
	}
	return out, nil
}

// normalizeResponse implements spec.md §4.7's HTTP status
// normalization table.
func normalizeResponse(status int, body []byte) (translate.EsbResponse, bool) {
	switch {
	case status >= 200 && status < 300:
		if len(body) == 0 {
			return translate.EsbResponse{ResponseCode: "00", Message: http.StatusText(status)}, false
		}
		var out translate.EsbResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return translate.EsbResponse{ResponseCode: "96", Message: "malformed esb response body"}, true
		}
		return out, false
	case status >= 300 && status < 400:
		return translate.EsbResponse{ResponseCode: "51", Message: http.StatusText(status)}, true
	case status >= 400 && status < 500:
		return translate.EsbResponse{ResponseCode: "14", Message: http.StatusText(status)}, true
	default:
		return translate.EsbResponse{ResponseCode: "96", Message: http.StatusText(status)}, true
	}
}

func (c *Client) observeError(endpoint, kind string) {
	if c.metrics != nil {
		c.metrics.EsbErrorCount.WithLabelValues(endpoint, kind).Inc()
	}
}

// augmentedBody merges doc with the fields JsonToIso's counterpart
// adds before the call leaves the gateway (spec.md §4.7): externalRef,
// charges[], commission{}, and fromDate/toDate for mini-statement.
func augmentedBody(doc translate.Document, result charge.Result, transactionType string) map[string]interface{} {
	body := make(map[string]interface{}, len(doc)+4)
	for k, v := range doc {
		body[k] = v
	}

	body["externalRef"] = GenerateExternalRef()

	if len(result.Charges) > 0 {
		charges := make([]map[string]interface{}, 0, len(result.Charges))
		for _, ch := range result.Charges {
			charges = append(charges, map[string]interface{}{
				"amount":      float64(ch.AmountMinor) / 100.0,
				"description": ch.Description,
				"fromAccount": ch.FromAccount,
				"toAccount":   ch.ToAccount,
			})
		}
		body["charges"] = charges
	}

	if result.Commission != nil {
		body["commission"] = map[string]interface{}{
			"amount":      float64(result.Commission.AmountMinor) / 100.0,
			"description": result.Commission.Description,
			"fromAccount": result.Commission.FromAccount,
			"toAccount":   result.Commission.ToAccount,
		}
	}

	if transactionType == "MINI_STATEMENT" {
		from, to := MiniStatementRange()
		body["fromDate"] = from
		body["toDate"] = to
	}

	return body
}

// refLetters/refDigits back GenerateExternalRef's random suffix.
const refLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
const refDigits = "0123456789"

// GenerateExternalRef builds the external reference format spec.md
// §4.7 names: "Ref " + yyyyMMddHHmmssSSS + 5 uppercase letters + 5
// digits.
func GenerateExternalRef() string {
	now := time.Now()
	ts := now.Format("20060102150405") + fmt.Sprintf("%03d", now.Nanosecond()/1_000_000)

	letters := make([]byte, 5)
	for i := range letters {
		letters[i] = refLetters[rand.Intn(len(refLetters))]
	}
	digits := make([]byte, 5)
	for i := range digits {
		digits[i] = refDigits[rand.Intn(len(refDigits))]
	}

	return "Ref " + ts + string(letters) + string(digits)
}

// MiniStatementRange returns [today-3months, today] formatted
// dd/MM/yyyy, per spec.md §4.7.
func MiniStatementRange() (from, to string) {
	now := time.Now()
	return now.AddDate(0, -3, 0).Format("02/01/2006"), now.Format("02/01/2006")
}
