// Package wireattrs serializes a transport's attrs.Set for anything outside
// the process that wants to inspect it — bindctl's codecs subcommand, a
// debug log line, a future admin endpoint — without those callers needing
// to know attrs.Set's internal representation. The Codec/Registry split is
// a content-type-keyed codec registry narrowed to the one thing this
// module actually needs to serialize: a flat attribute snapshot.
package wireattrs

import "github.com/relaymesh/bindrpc/pkg/attrs"

// Snapshot is a JSON/CBOR/protobuf-friendly copy of an attrs.Set, keyed by
// the string form of each attrs.Key.
type Snapshot map[string]any

// SnapshotOf copies s into a Snapshot suitable for encoding. Values attrs
// itself doesn't know how to serialize (nothing today, but a future
// attribute value type might not round-trip through every codec) are the
// codec's problem, not this function's.
func SnapshotOf(s *attrs.Set) Snapshot {
	out := make(Snapshot)
	for _, k := range s.Keys() {
		if v, ok := s.Get(k); ok {
			out[string(k)] = v
		}
	}
	return out
}

// Codec marshals and unmarshals a Snapshot.
type Codec interface {
	ContentType() string
	Marshal(s Snapshot) ([]byte, error)
	Unmarshal(data []byte, s *Snapshot) error
}

// Registry maps content-type strings to Codecs.
type Registry struct {
	byType map[string]Codec
}

// NewRegistry returns a Registry preloaded with the JSON and Protobuf
// codecs, which need no fallible initialization. CBOR requires a
// constructed encoding mode and must be added explicitly:
// r.Register(wireattrs.MustCBOR()).
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]Codec)}
	r.Register(JSON())
	r.Register(Protobuf())
	return r
}

// Register adds or replaces the codec for its own ContentType.
func (r *Registry) Register(c Codec) { r.byType[c.ContentType()] = c }

// Get returns the codec registered for contentType, or nil.
func (r *Registry) Get(contentType string) Codec { return r.byType[contentType] }
