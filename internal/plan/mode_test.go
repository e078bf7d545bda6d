package plan

import (
	"strings"
	"testing"
)

func TestParseMode_Valid(t *testing.T) {
	m, err := ParseMode("estimated")
	if err != nil || m != Estimated {
		t.Errorf("ParseMode(estimated) = %v, %v", m, err)
	}
	m, err = ParseMode("ACTUAL")
	if err != nil || m != Actual {
		t.Errorf("ParseMode(ACTUAL) = %v, %v", m, err)
	}
}

func TestParseMode_Invalid(t *testing.T) {
	if _, err := ParseMode("full"); err == nil {
		t.Error("expected error for invalid mode")
	}
}

func TestMode_ExplainPrefix(t *testing.T) {
	est := Estimated.explainPrefix()
	if strings.Contains(est, "ANALYZE") {
		t.Errorf("estimated prefix must not execute: %q", est)
	}
	if !strings.Contains(est, "FORMAT XML") {
		t.Errorf("estimated prefix missing XML format: %q", est)
	}

	act := Actual.explainPrefix()
	if !strings.Contains(act, "ANALYZE") || !strings.Contains(act, "BUFFERS") {
		t.Errorf("actual prefix missing runtime options: %q", act)
	}
	if !strings.Contains(act, "FORMAT XML") {
		t.Errorf("actual prefix missing XML format: %q", act)
	}
}

func TestMode_String(t *testing.T) {
	if Estimated.String() != "estimated" || Actual.String() != "actual" {
		t.Errorf("Mode strings = %q, %q", Estimated.String(), Actual.String())
	}
}
