// Package security defines the authorization collaborator consulted during
// transport setup. SecurityPolicy's own internals (uid-to-permission
// resolution, caching, revocation) are out of scope; this package only
// names the interface TransportCore's setup handshake depends on and
// provides a permissive default for tests and the demo binaries.
package security

import "github.com/relaymesh/bindrpc/pkg/status"

// Policy authorizes a peer identified by its caller uid, the only identity
// Binder-style transports have available at setup time.
type Policy interface {
	// Check returns status.OKStatus() if uid is authorized to use this
	// transport, or an Unauthenticated/PermissionDenied status otherwise.
	Check(uid int32) status.Status
}

// NonBlocking is an optional marker a Policy can implement to tell
// TransportCore's setup handshake that Check never blocks and never takes
// a lock of its own, so the handshake can skip dispatching the call through
// an executor and run it inline on the channel's own dispatch goroutine
// instead.
type NonBlocking interface {
	NonBlocking() bool
}

// AllowAll authorizes every uid. It implements NonBlocking and returns
// true, since it does no work at all.
type AllowAll struct{}

func (AllowAll) Check(uid int32) status.Status { return status.OKStatus() }
func (AllowAll) NonBlocking() bool             { return true }

// DenyAll rejects every uid with Unauthenticated.
type DenyAll struct{}

func (DenyAll) Check(uid int32) status.Status {
	return status.New(status.Unauthenticated, "security: uid %d denied by DenyAll policy", uid)
}
func (DenyAll) NonBlocking() bool { return true }

// AllowUIDs authorizes exactly the uids in the set.
type AllowUIDs struct {
	Allowed map[int32]bool
}

func (p AllowUIDs) Check(uid int32) status.Status {
	if p.Allowed[uid] {
		return status.OKStatus()
	}
	return status.New(status.Unauthenticated, "security: uid %d not in allowlist", uid)
}

func (p AllowUIDs) NonBlocking() bool { return true }
