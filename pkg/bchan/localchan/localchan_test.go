package localchan

import (
	"sync"
	"testing"
	"time"
)

type recordingReceiver struct {
	mu   sync.Mutex
	got  []int32
	data [][]byte
}

func (r *recordingReceiver) OnTransaction(code int32, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, code)
	cp := make([]byte, len(data))
	copy(cp, data)
	r.data = append(r.data, cp)
	return nil
}

func (r *recordingReceiver) codes() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int32, len(r.got))
	copy(out, r.got)
	return out
}

func TestTransactDeliversInOrder(t *testing.T) {
	a, b := NewPair(1000, 2000)
	defer a.Close()
	defer b.Close()

	rb := &recordingReceiver{}
	b.SetReceiver(rb)

	for i := int32(1); i <= 5; i++ {
		if err := a.Transact(i, []byte{byte(i)}); err != nil {
			t.Fatalf("transact %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(rb.codes()) == 5 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	codes := rb.codes()
	if len(codes) != 5 {
		t.Fatalf("expected 5 deliveries, got %d", len(codes))
	}
	for i, c := range codes {
		if c != int32(i+1) {
			t.Fatalf("out of order delivery at %d: got %d", i, c)
		}
	}
}

func TestCallingUIDAndLocalUIDAreEachOthersMirror(t *testing.T) {
	a, b := NewPair(1000, 2000)
	defer a.Close()
	defer b.Close()

	if a.LocalUID() != 1000 || a.CallingUID() != 2000 {
		t.Fatalf("a: expected local=1000 peer=2000, got local=%d peer=%d", a.LocalUID(), a.CallingUID())
	}
	if b.LocalUID() != 2000 || b.CallingUID() != 1000 {
		t.Fatalf("b: expected local=2000 peer=1000, got local=%d peer=%d", b.LocalUID(), b.CallingUID())
	}
}

func TestLocalHandleDistinctPerChannel(t *testing.T) {
	a, b := NewPair(1000, 2000)
	defer a.Close()
	defer b.Close()
	if string(a.LocalHandle()) == "" {
		t.Fatalf("expected non-empty handle")
	}
	if string(a.LocalHandle()) == string(b.LocalHandle()) {
		t.Fatalf("expected the two ends of a pair to have distinct handles")
	}
}

func TestPeerDeathNotifiesOnClose(t *testing.T) {
	a, b := NewPair(1000, 2000)
	defer a.Close()

	done := make(chan struct{})
	cancel, err := b.WatchPeerDeath(func() { close(done) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cancel()

	a.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected peer death notification after close")
	}
}

func TestWatchPeerDeathAfterCloseFiresImmediately(t *testing.T) {
	a, b := NewPair(1000, 2000)
	a.Close()
	b.Close()

	done := make(chan struct{})
	if _, err := a.WatchPeerDeath(func() { close(done) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected immediate death notification for already-closed channel")
	}
}
