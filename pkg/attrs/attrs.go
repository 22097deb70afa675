// Package attrs holds the transport's well-known attribute set: local and
// remote addressing, the remote uid, the parcelable policy, the server
// authority string and the negotiated security level. Mutation is guarded
// entirely by the owning transport's lock; Set itself does no locking of
// its own, the same way a plain metadata struct is mutated under its
// owning store's lock rather than carrying its own.
package attrs

// Key names a well-known attribute.
type Key string

const (
	KeyRemoteUID        Key = "remote-uid"
	KeyServerAuthority  Key = "server-authority"
	KeyParcelablePolicy Key = "inbound-parcelable-policy"
	KeyLocalAddr        Key = "local-addr"
	KeyRemoteAddr       Key = "remote-addr"
	KeySecurityLevel    Key = "security-level"
)

// SecurityLevel mirrors the two levels the transport core can attribute to
// a connection once the peer's identity has been authenticated.
type SecurityLevel int

const (
	SecurityLevelNone SecurityLevel = iota
	SecurityLevelIntegrity
	SecurityLevelPrivacyAndIntegrity
)

func (l SecurityLevel) String() string {
	switch l {
	case SecurityLevelIntegrity:
		return "INTEGRITY"
	case SecurityLevelPrivacyAndIntegrity:
		return "PRIVACY_AND_INTEGRITY"
	default:
		return "NONE"
	}
}

// ParcelablePolicy governs how inbound parcelables are accepted; the exact
// enum lives with the Inbound collaborator (out of scope here) — the
// transport core only carries the value through as an attribute.
type ParcelablePolicy int

const (
	ParcelablePolicyDefault ParcelablePolicy = iota
	ParcelablePolicyForceCoerced
)

// Set is a mutable bag of well-known and free-form attributes.
type Set struct {
	values map[Key]any
}

// New returns an empty Set.
func New() *Set { return &Set{values: make(map[Key]any, 8)} }

// Set stores a value under key.
func (s *Set) Set(key Key, val any) { s.values[key] = val }

// Get returns the raw value and whether it was present.
func (s *Set) Get(key Key) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// RemoteUID returns the remote-uid attribute, or (0, false) if unset.
func (s *Set) RemoteUID() (int32, bool) {
	v, ok := s.values[KeyRemoteUID]
	if !ok {
		return 0, false
	}
	uid, ok := v.(int32)
	return uid, ok
}

// SecurityLevel returns the negotiated security level, defaulting to None.
func (s *Set) SecurityLevel() SecurityLevel {
	v, ok := s.values[KeySecurityLevel]
	if !ok {
		return SecurityLevelNone
	}
	lvl, ok := v.(SecurityLevel)
	if !ok {
		return SecurityLevelNone
	}
	return lvl
}

// Snapshot returns a shallow copy safe to hand to a listener outside the
// owning transport's lock.
func (s *Set) Snapshot() *Set {
	out := New()
	for k, v := range s.values {
		out.values[k] = v
	}
	return out
}

// Keys returns the set of populated keys, for logging/debugging.
func (s *Set) Keys() []Key {
	out := make([]Key, 0, len(s.values))
	for k := range s.values {
		out = append(out, k)
	}
	return out
}
