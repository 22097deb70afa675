// Package status carries the small taxonomy of outcome codes the transport
// core uses to describe shutdowns, setup failures and send errors. It uses
// a single typed value implementing error, with a Code so a caller can
// branch on cause without string matching.
package status

import "fmt"

// Code enumerates the transport-core error taxonomy.
type Code int

const (
	// OK is not itself an error; Status{Code: OK} is used for graceful
	// shutdowns that were not caused by any failure.
	OK Code = iota
	Unavailable
	Internal
	FailedPrecondition
	Unauthenticated
	PermissionDenied
	Canceled
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case Unavailable:
		return "UNAVAILABLE"
	case Internal:
		return "INTERNAL"
	case FailedPrecondition:
		return "FAILED_PRECONDITION"
	case Unauthenticated:
		return "UNAUTHENTICATED"
	case PermissionDenied:
		return "PERMISSION_DENIED"
	case Canceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// Status is a code plus a human-readable message, the unit of error the
// transport core hands to listeners and callers.
type Status struct {
	Code    Code
	Message string
}

// New builds a Status.
func New(code Code, format string, args ...any) Status {
	return Status{Code: code, Message: fmt.Sprintf(format, args...)}
}

// OKStatus is the canonical non-error status.
func OKStatus() Status { return Status{Code: OK} }

func (s Status) IsOK() bool { return s.Code == OK }

func (s Status) Error() string {
	if s.Message == "" {
		return s.Code.String()
	}
	return fmt.Sprintf("%s: %s", s.Code, s.Message)
}

// Err adapts a Status to an error, returning nil for OK so call sites can
// write `return status.Err(st)` uniformly.
func Err(s Status) error {
	if s.IsOK() {
		return nil
	}
	return s
}

// Unavailablef is a convenience constructor used throughout the transport
// core for the most common failure class.
func Unavailablef(format string, args ...any) Status {
	return New(Unavailable, format, args...)
}

func Internalf(format string, args ...any) Status {
	return New(Internal, format, args...)
}

func FailedPreconditionf(format string, args ...any) Status {
	return New(FailedPrecondition, format, args...)
}
