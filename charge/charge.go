// Package charge implements the fee/commission decomposition applied
// before a transaction is forwarded to the ESB (spec.md §4.6).
package charge

import "math"

// Config holds the fee parameters and collection accounts recognized
// under the esb.* configuration keys (spec.md §6). It is passed to
// NewEngine at construction; there are no process-wide singletons
// (spec.md §9).
type Config struct {
	BaseInitial       float64 // esb.charges.base.initial, default 2500
	BandSize          float64 // esb.charges.base.band_size, default 500000
	BandIncrement     float64 // esb.charges.base.increment, default 1000
	ExciseDutyRate    float64 // esb.charges.excise.rate
	PrideSharePercent float64 // esb.charges.pride.share_percent, default 0.20

	SettlementAccount             string // esb.inter_switch_settlement_account
	TaxAccount                    string // esb.tax_account
	PrideChargeAccount            string // esb.pride_charge_account
	InterSwitchChargeAccount      string // esb.inter_switch_charge_account
	InterSwitchCommissionsAccount string // esb.inter_switch_commissions_account
}

// DefaultConfig returns the parameter defaults named in spec.md §4.6.
func DefaultConfig() Config {
	return Config{
		BaseInitial:       2500,
		BandSize:          500000,
		BandIncrement:     1000,
		ExciseDutyRate:    0,
		PrideSharePercent: 0.20,
	}
}

// CustomerAccount is a sentinel FromAccount/ToAccount value meaning
// "the account the transaction itself moves funds from/to" — the
// Engine has no access to the originating ISO message's account
// fields (spec.md §4.6: it is driven only by transaction type and
// amount). No component replaces this sentinel with a real account
// number: esb.Client sends it unchanged as the fromAccount of each
// charges[] entry.
const CustomerAccount = "CUSTOMER"

// Charge is one fee line item.
type Charge struct {
	AmountMinor int64
	Description string
	FromAccount string
	ToAccount   string
}

// Commission is the optional commission line item generated for
// DEPOSIT transactions.
type Commission struct {
	AmountMinor int64
	Description string
	FromAccount string
	ToAccount   string
}

// Result is the outcome of Compute.
type Result struct {
	Charges    []Charge
	Commission *Commission

	// Exceeded is set when the transaction-limit gate (spec.md §4.6)
	// short-circuits the computation; ResponseCode/Message are then
	// the values to surface in the ISO response.
	Exceeded     bool
	ResponseCode string
	Message      string
}

// maxTransactionMinor is the transaction-limit gate from spec.md §4.6.
const maxTransactionMinor = 500_000_000

// Engine computes fee/commission decomposition. It is stateless; the
// same Engine instance is safe to share across concurrent requests.
type Engine struct {
	cfg Config
}

// NewEngine builds an Engine bound to cfg.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Compute decomposes amountMinor (minor units) for transactionType.
// Only DEPOSIT, WITHDRAWAL, and PURCHASE incur charges; every other
// transaction type returns an empty, non-exceeded Result.
func (e *Engine) Compute(transactionType string, amountMinor int64) Result {
	if amountMinor > maxTransactionMinor {
		return Result{
			Exceeded:     true,
			ResponseCode: "EXCEEDS_LIMIT",
			Message:      "Transaction amount exceeds allowed limit",
		}
	}

	switch transactionType {
	case "DEPOSIT", "WITHDRAWAL", "PURCHASE":
	default:
		return Result{}
	}

	amountMajor := float64(amountMinor) / 100.0
	base := e.baseCharge(amountMajor)

	prideFee := roundHalfUp(base * e.cfg.PrideSharePercent)
	interSwitchFee := base - prideFee
	exciseDuty := roundHalfUp(base * e.cfg.ExciseDutyRate)

	from, to := e.route(transactionType)

	var charges []Charge
	if prideFee > 0 {
		charges = append(charges, Charge{
			AmountMinor: toMinor(prideFee),
			Description: "Pride Innovation charge",
			FromAccount: from,
			ToAccount:   e.cfg.PrideChargeAccount,
		})
	}
	if interSwitchFee > 0 {
		charges = append(charges, Charge{
			AmountMinor: toMinor(interSwitchFee),
			Description: "Inter-switch charge",
			FromAccount: from,
			ToAccount:   e.cfg.InterSwitchChargeAccount,
		})
	}
	if exciseDuty > 0 {
		charges = append(charges, Charge{
			AmountMinor: toMinor(exciseDuty),
			Description: "Excise duty",
			FromAccount: from,
			ToAccount:   e.cfg.TaxAccount,
		})
	}

	result := Result{Charges: charges}
	if transactionType == "DEPOSIT" {
		commissionAmount := roundHalfUp(base * e.cfg.PrideSharePercent)
		if commissionAmount > 0 {
			result.Commission = &Commission{
				AmountMinor: toMinor(commissionAmount),
				Description: "Inter-switch commission",
				FromAccount: e.cfg.SettlementAccount,
				ToAccount:   e.cfg.InterSwitchCommissionsAccount,
			}
		}
	}
	_ = to // to is the transaction's own destination side, resolved by the caller, not a charge field
	return result
}

// baseCharge implements spec.md §4.6's banded base-charge formula.
func (e *Engine) baseCharge(amountMajor float64) float64 {
	if amountMajor <= e.cfg.BandSize {
		return e.cfg.BaseInitial
	}
	bands := math.Ceil((amountMajor - e.cfg.BandSize) / e.cfg.BandSize)
	return e.cfg.BaseInitial + e.cfg.BandIncrement*bands
}

// route returns (from, to) for the transaction's own fund movement,
// per spec.md §4.6: DEPOSIT moves funds from the settlement account to
// the customer; WITHDRAWAL/PURCHASE move funds from the customer to
// the settlement account.
func (e *Engine) route(transactionType string) (from, to string) {
	if transactionType == "DEPOSIT" {
		return e.cfg.SettlementAccount, CustomerAccount
	}
	return CustomerAccount, e.cfg.SettlementAccount
}

func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}

func toMinor(major float64) int64 {
	return int64(roundHalfUp(major * 100))
}
