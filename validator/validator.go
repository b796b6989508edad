// Package validator implements structural validation of inbound
// financial (MTI 0200) requests, per spec.md §4.3.
package validator

import (
	"fmt"

	"github.com/nxgw/atmgateway/iso8583"
)

// requiredFields are the fields that must be present and non-empty on
// every 0200 request.
var requiredFields = []int{2, 3, 4, 7, 11, 41, 49}

// Result is the outcome of validating a financial request: either Ok,
// or Failed with the list of violations that caused the failure.
type Result struct {
	Errors []string
}

// Ok reports whether validation passed.
func (r Result) Ok() bool { return len(r.Errors) == 0 }

// ValidateFinancial checks msg against spec.md §4.3's structural
// rules. It is used only for MTI 0200.
func ValidateFinancial(msg *iso8583.IsoMessage) Result {
	var errs []string

	for _, f := range requiredFields {
		v := msg.Get(f)
		if v == nil || fieldEmpty(v) {
			errs = append(errs, fmt.Sprintf("field %d is required", f))
		}
	}

	if v := msg.Get(4); v != nil {
		if !isAllDigits(v.Text) || len(v.Text) != 12 {
			errs = append(errs, "field 4 must be 12 ASCII digits")
		}
	}

	if v := msg.Get(7); v != nil {
		if !isAllDigits(v.Text) || len(v.Text) != 10 {
			errs = append(errs, "field 7 must be a valid DATE10 value")
		}
	}

	if v := msg.Get(49); v != nil {
		if !isAllDigits(v.Text) || len(v.Text) != 3 {
			errs = append(errs, "field 49 must be exactly 3 digits")
		}
	}

	if v := msg.Get(2); v != nil {
		if len(v.Text) < 13 {
			errs = append(errs, "PAN length must be at least 13")
		}
	}

	return Result{Errors: errs}
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

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
