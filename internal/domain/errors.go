package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an expected failure.
type Kind int

const (
	KindNetwork Kind = iota + 1
	KindInvalidTransition
	KindAuthExpired
	KindNotFound
	KindUnauthenticated
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network_failure"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindAuthExpired:
		return "auth_expired"
	case KindNotFound:
		return "not_found"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Retryable reports whether the caller may retry the same operation as-is.
func (k Kind) Retryable() bool {
	return k == KindNetwork
}

// Sentinels for errors.Is. A *Failure matches the sentinel of its Kind.
var (
	ErrNetwork           = errors.New("network failure")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAuthExpired       = errors.New("auth expired")
	ErrNotFound          = errors.New("not found")
	ErrUnauthenticated   = errors.New("unauthenticated")
)

var sentinels = map[Kind]error{
	KindNetwork:           ErrNetwork,
	KindInvalidTransition: ErrInvalidTransition,
	KindAuthExpired:       ErrAuthExpired,
	KindNotFound:          ErrNotFound,
	KindUnauthenticated:   ErrUnauthenticated,
}

// Failure is the tagged result returned for expected conditions.
type Failure struct {
	Kind   Kind
	Op     string // operation that failed, ex: "fetch_page"
	Reason string // human readable, safe to surface in a notification
	Err    error  // underlying cause, may be nil
}

func (f *Failure) Error() string {
	msg := f.Kind.String()
	if f.Op != "" {
		msg = f.Op + ": " + msg
	}
	if f.Reason != "" {
		msg += ": " + f.Reason
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error { return f.Err }

func (f *Failure) Is(target error) bool {
	return sentinels[f.Kind] == target
}

// Fail builds a Failure.
func Fail(kind Kind, op, reason string, err error) *Failure {
	return &Failure{Kind: kind, Op: op, Reason: reason, Err: err}
}

// Failf builds a Failure with a formatted reason and no cause.
func Failf(kind Kind, op, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// KindOf extracts the failure kind from err, or 0 when err is not a Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return 0
}
