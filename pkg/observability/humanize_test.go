package observability

import "testing"

func TestFormatBytes(t *testing.T) {
	if got := FormatBytes(128 * 1024); got == "" {
		t.Fatalf("expected non-empty formatted string")
	}
	if got := FormatBytes(-1024); got[0] != '-' {
		t.Fatalf("expected leading '-' for negative byte counts, got %q", got)
	}
}
