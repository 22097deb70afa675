package wireattrs

import (
	"testing"

	"github.com/relaymesh/bindrpc/pkg/attrs"
)

func testSet() *attrs.Set {
	s := attrs.New()
	s.Set(attrs.KeyRemoteUID, int32(4242))
	s.Set(attrs.KeyLocalAddr, "127.0.0.1:8737")
	return s
}

func TestJSONRoundTrip(t *testing.T) {
	snap := SnapshotOf(testSet())
	c := JSON()
	data, err := c.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Snapshot
	if err := c.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got[string(attrs.KeyLocalAddr)] != "127.0.0.1:8737" {
		t.Fatalf("unexpected round trip: %+v", got)
	}
}

func TestCBORRoundTrip(t *testing.T) {
	c := MustCBOR()
	snap := SnapshotOf(testSet())
	data, err := c.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Snapshot
	if err := c.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got[string(attrs.KeyLocalAddr)] != "127.0.0.1:8737" {
		t.Fatalf("unexpected round trip: %+v", got)
	}
}

func TestProtobufRoundTrip(t *testing.T) {
	c := Protobuf()
	snap := Snapshot{string(attrs.KeyLocalAddr): "127.0.0.1:8737"}
	data, err := c.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Snapshot
	if err := c.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got[string(attrs.KeyLocalAddr)] != "127.0.0.1:8737" {
		t.Fatalf("unexpected round trip: %+v", got)
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	if r.Get("application/json") == nil {
		t.Fatalf("expected JSON codec registered by default")
	}
	if r.Get("application/x-protobuf") == nil {
		t.Fatalf("expected Protobuf codec registered by default")
	}
	if r.Get("application/cbor") != nil {
		t.Fatalf("expected CBOR to require explicit registration")
	}
	r.Register(MustCBOR())
	if r.Get("application/cbor") == nil {
		t.Fatalf("expected CBOR registered after explicit Register call")
	}
}
