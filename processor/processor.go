// Package processor implements MTI dispatch and response assembly
// (spec.md §4.8 Processor, §4.10 ResponseAssembler): the orchestration
// layer between the wire codec and the ESB client.
package processor

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/nxgw/atmgateway/charge"
	"github.com/nxgw/atmgateway/esb"
	"github.com/nxgw/atmgateway/iso8583"
	"github.com/nxgw/atmgateway/metrics"
	"github.com/nxgw/atmgateway/translate"
	"github.com/nxgw/atmgateway/validator"
)

// mandatoryFinancialFields are added to the request's own field set
// for non-reversal financial responses, per spec.md §4.8.
var mandatoryFinancialFields = []int{38, 39, 54}

// Processor is the stateless request/response orchestrator. The same
// instance is shared by every connection worker.
type Processor struct {
	dict        *iso8583.Dictionary
	chargeEngine *charge.Engine
	esbClient   *esb.Client
	metrics     *metrics.Metrics
}

// New builds a Processor bound to its collaborators, constructor-
// injected rather than resolved from globals (spec.md §9).
func New(dict *iso8583.Dictionary, chargeEngine *charge.Engine, esbClient *esb.Client, m *metrics.Metrics) *Processor {
	return &Processor{dict: dict, chargeEngine: chargeEngine, esbClient: esbClient, metrics: m}
}

// Process dispatches request per spec.md §4.8's MTI state machine and
// always returns a response message — every recoverable failure is
// reported as an ISO response, never as a Go error, per spec.md §7.
func (p *Processor) Process(ctx context.Context, request *iso8583.IsoMessage) *iso8583.IsoMessage {
	start := time.Now()
	var response *iso8583.IsoMessage

	switch request.MTI {
	case "0800":
		response = p.handleNetworkManagement(request)
	case "0420", "0430":
		response = p.handleReversal(ctx, request)
	case "0200":
		response = p.handleFinancial(ctx, request, true)
	default:
		log.Printf("processor: unrecognized MTI %s, continuing on generic financial path", request.MTI)
		response = p.handleFinancial(ctx, request, false)
	}

	if p.metrics != nil {
		p.metrics.RequestCount.WithLabelValues(request.MTI, response.GetString(39)).Inc()
		p.metrics.ResponseLatency.WithLabelValues(request.MTI).Observe(time.Since(start).Seconds())
	}

	return response
}

// handleNetworkManagement implements the 0800 echo: the response
// contains exactly the request's field set, values drawn from the
// request itself, with no ESB call.
func (p *Processor) handleNetworkManagement(request *iso8583.IsoMessage) *iso8583.IsoMessage {
	table, ok := p.dict.Table("0810")
	if !ok {
		table = request.Table()
	}
	return assemble("0810", request.FieldNumbers(), request, nil, nil, table)
}

// handleReversal implements 0420/0430: skip validation, call the ESB
// as for a financial message, assemble exactly the request's field
// set (no mandatory additions).
func (p *Processor) handleReversal(ctx context.Context, request *iso8583.IsoMessage) *iso8583.IsoMessage {
	responseMTI, table := p.responseMTIAndTable(request)

	doc, err := translate.IsoToJson(request)
	if err != nil {
		return p.esbErrorResponse(responseMTI, table, request.FieldNumbers(), err.Error())
	}

	transactionType := transactionTypeOf(request)
	result := p.chargeEngine.Compute(transactionType, amountMinorOf(request))

	esbResp, err := p.esbClient.Send(ctx, transactionType, doc, result)
	if err != nil {
		return p.esbErrorResponse(responseMTI, table, request.FieldNumbers(), err.Error())
	}

	esbMsg, err := translate.JsonToIso(esbResp, request, table)
	if err != nil {
		return p.esbErrorResponse(responseMTI, table, request.FieldNumbers(), err.Error())
	}

	template := iso8583.NewMessage(responseMTI, table)
	return assemble(responseMTI, request.FieldNumbers(), request, esbMsg, template, table)
}

// handleFinancial implements the 0200 financial path (runValidation
// true) and the generic "other MTI" fallback path (runValidation
// false), per spec.md §4.8.
func (p *Processor) handleFinancial(ctx context.Context, request *iso8583.IsoMessage, runValidation bool) *iso8583.IsoMessage {
	responseMTI, table := p.responseMTIAndTable(request)

	if runValidation {
		if result := validator.ValidateFinancial(request); !result.Ok() {
			return p.validationErrorResponse(request, result)
		}
	}

	transactionType := transactionTypeOf(request)
	amountMinor := amountMinorOf(request)

	chargeResult := p.chargeEngine.Compute(transactionType, amountMinor)
	if chargeResult.Exceeded {
		out := iso8583.NewMessage(responseMTI, table)
		out.SetString(39, "61")
		out.SetString(44, truncate(chargeResult.Message, 25))
		return out
	}

	doc, err := translate.IsoToJson(request)
	if err != nil {
		return p.esbErrorResponse(responseMTI, table, p.allowedFinancialFields(request), err.Error())
	}

	esbResp, err := p.esbClient.Send(ctx, transactionType, doc, chargeResult)
	if err != nil {
		return p.esbErrorResponse(responseMTI, table, p.allowedFinancialFields(request), err.Error())
	}

	esbMsg, err := translate.JsonToIso(esbResp, request, table)
	if err != nil {
		return p.esbErrorResponse(responseMTI, table, p.allowedFinancialFields(request), err.Error())
	}

	allowed := p.allowedFinancialFields(request)
	template := iso8583.NewMessage(responseMTI, table)
	out := assemble(responseMTI, allowed, request, esbMsg, template, table)

	// Transaction-specific post-processing (spec.md §4.8): the
	// non-"00" branch and the "ensure 39" branches both collapse to
	// one assignment of the normalized code.
	out.SetString(39, translate.NormalizeResponseCode(esbResp.ResponseCode))

	return out
}

// allowedFinancialFields implements spec.md §4.8's allowed-field
// policy for non-reversal financial transactions: the request's own
// fields, plus {38,39,54}, plus 48 if the request is mini-statement.
func (p *Processor) allowedFinancialFields(request *iso8583.IsoMessage) []int {
	set := map[int]bool{}
	for _, n := range request.FieldNumbers() {
		set[n] = true
	}
	for _, n := range mandatoryFinancialFields {
		set[n] = true
	}
	if transactionTypeOf(request) == "MINI_STATEMENT" {
		set[48] = true
	}

	out := make([]int, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sortInts(out)
	return out
}

func (p *Processor) validationErrorResponse(request *iso8583.IsoMessage, result validator.Result) *iso8583.IsoMessage {
	table, ok := p.dict.Table("0231")
	if !ok {
		table = request.Table()
	}
	out := iso8583.NewMessage("0231", table)
	out.SetString(39, "30")
	out.SetString(44, truncate(strings.Join(result.Errors, "; "), 25))
	return out
}

func (p *Processor) esbErrorResponse(mti string, table iso8583.FieldTable, allowed []int, reason string) *iso8583.IsoMessage {
	out := iso8583.NewMessage(mti, table)
	out.SetString(39, "96")
	out.SetString(44, truncate(reason, 25))
	return out
}

// responseMTIAndTable computes requestMTI+10 and resolves its field
// table, falling back to the request's own table when the dictionary
// has no distinct response template (e.g. an unrecognized MTI on the
// generic financial path).
func (p *Processor) responseMTIAndTable(request *iso8583.IsoMessage) (string, iso8583.FieldTable) {
	n, err := strconv.Atoi(request.MTI)
	mti := request.MTI
	if err == nil {
		mti = strconv.Itoa(n + 10)
		for len(mti) < 4 {
			mti = "0" + mti
		}
	}
	if table, ok := p.dict.Table(mti); ok {
		return mti, table
	}
	return mti, request.Table()
}

func transactionTypeOf(request *iso8583.IsoMessage) string {
	return translate.ProcessingCodeTransactionType(request.GetString(3))
}

func amountMinorOf(request *iso8583.IsoMessage) int64 {
	v := request.GetString(4)
	n, err := strconv.ParseInt(strings.TrimLeft(v, "0"), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
