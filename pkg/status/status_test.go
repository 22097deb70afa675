package status

import "testing"

func TestOKStatusHasNoError(t *testing.T) {
	if !OKStatus().IsOK() {
		t.Fatalf("expected OKStatus to be OK")
	}
	if err := Err(OKStatus()); err != nil {
		t.Fatalf("expected nil error for OK status, got %v", err)
	}
}

func TestErrAdaptsNonOKStatus(t *testing.T) {
	st := Unavailablef("peer gone")
	err := Err(st)
	if err == nil {
		t.Fatalf("expected non-nil error")
	}
	if err.Error() != st.Error() {
		t.Fatalf("expected adapted error to match status.Error(), got %q vs %q", err.Error(), st.Error())
	}
}

func TestErrorFormatsCodeAndMessage(t *testing.T) {
	st := New(Internal, "boom %d", 42)
	want := "INTERNAL: boom 42"
	if got := st.Error(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestErrorOmitsColonWhenMessageEmpty(t *testing.T) {
	st := Status{Code: Canceled}
	if got := st.Error(); got != "CANCELED" {
		t.Fatalf("expected bare code string, got %q", got)
	}
}
