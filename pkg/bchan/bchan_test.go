package bchan

import "testing"

// fakeChannel is the minimal Channel implementation used to check the
// interfaces compile against a real type and that UIDSource composes
// cleanly with Channel without being required by it.
type fakeChannel struct {
	peerUID int32
}

func (f *fakeChannel) Transact(code int32, data []byte) error { return nil }
func (f *fakeChannel) SetReceiver(r Receiver)                 {}
func (f *fakeChannel) LocalHandle() []byte                    { return []byte("fake") }
func (f *fakeChannel) Close() error                           { return nil }
func (f *fakeChannel) WatchPeerDeath(cb func()) (func(), error) {
	return func() {}, nil
}
func (f *fakeChannel) CallingUID() int32 { return f.peerUID }

// fakeUIDChannel additionally implements LocalUIDSource, since fakeChannel
// deliberately doesn't — LocalUIDSource is optional the same way UIDSource
// is, and both need a type that leaves it unimplemented to prove that.
type fakeUIDChannel struct {
	fakeChannel
	selfUID int32
}

func (f *fakeUIDChannel) LocalUID() int32 { return f.selfUID }

func TestFakeChannelSatisfiesChannelAndUIDSource(t *testing.T) {
	var ch Channel = &fakeChannel{peerUID: 1000}
	var src UIDSource = &fakeChannel{peerUID: 2000}

	if len(ch.LocalHandle()) == 0 {
		t.Fatalf("expected a non-empty local handle")
	}
	if src.CallingUID() != 2000 {
		t.Fatalf("expected 2000, got %d", src.CallingUID())
	}

	if _, ok := ch.(LocalUIDSource); ok {
		t.Fatalf("fakeChannel should not satisfy LocalUIDSource")
	}

	var full Channel = &fakeUIDChannel{fakeChannel: fakeChannel{peerUID: 2000}, selfUID: 1000}
	localSrc, ok := full.(LocalUIDSource)
	if !ok {
		t.Fatalf("fakeUIDChannel should satisfy LocalUIDSource")
	}
	if localSrc.LocalUID() != 1000 {
		t.Fatalf("expected LocalUID 1000, got %d", localSrc.LocalUID())
	}
}

func TestErrClosedIsDistinctSentinel(t *testing.T) {
	if ErrClosed == nil {
		t.Fatalf("expected ErrClosed to be non-nil")
	}
	if ErrClosed.Error() == "" {
		t.Fatalf("expected non-empty error message")
	}
}
