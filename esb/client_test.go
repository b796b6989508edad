package esb

import (
	"net/http"
	"regexp"
	"testing"
)

func TestGenerateExternalRefFormat(t *testing.T) {
	ref := GenerateExternalRef()
	pattern := regexp.MustCompile(`^Ref \d{17}[A-Z]{5}\d{5}$`)
	if !pattern.MatchString(ref) {
		t.Errorf("GenerateExternalRef() = %q, does not match expected format", ref)
	}
}

func TestMiniStatementRangeFormat(t *testing.T) {
	from, to := MiniStatementRange()
	pattern := regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
	if !pattern.MatchString(from) || !pattern.MatchString(to) {
		t.Errorf("MiniStatementRange() = (%q, %q), want dd/MM/yyyy", from, to)
	}
}

func TestNormalizeResponse2xxWithBody(t *testing.T) {
	body := []byte(`{"responseCode":"00","message":"approved"}`)
	out, isErr := normalizeResponse(http.StatusOK, body)
	if isErr {
		t.Error("2xx with valid body should not be recorded as an error")
	}
	if out.ResponseCode != "00" {
		t.Errorf("ResponseCode = %q, want 00", out.ResponseCode)
	}
}

func TestNormalizeResponse2xxNoBody(t *testing.T) {
	out, isErr := normalizeResponse(http.StatusOK, nil)
	if isErr {
		t.Error("2xx with empty body should not be recorded as an error")
	}
	if out.ResponseCode != "00" {
		t.Errorf("ResponseCode = %q, want 00", out.ResponseCode)
	}
}

func TestNormalizeResponse3xx(t *testing.T) {
	out, isErr := normalizeResponse(http.StatusFound, nil)
	if !isErr {
		t.Error("3xx should be recorded as an error")
	}
	if out.ResponseCode != "51" {
		t.Errorf("ResponseCode = %q, want 51", out.ResponseCode)
	}
}

func TestNormalizeResponse4xx(t *testing.T) {
	out, isErr := normalizeResponse(http.StatusBadRequest, nil)
	if !isErr {
		t.Error("4xx should be recorded as an error")
	}
	if out.ResponseCode != "14" {
		t.Errorf("ResponseCode = %q, want 14", out.ResponseCode)
	}
}

func TestNormalizeResponseOther(t *testing.T) {
	out, isErr := normalizeResponse(http.StatusInternalServerError, nil)
	if !isErr {
		t.Error("5xx should be recorded as an error")
	}
	if out.ResponseCode != "96" {
		t.Errorf("ResponseCode = %q, want 96", out.ResponseCode)
	}
}
