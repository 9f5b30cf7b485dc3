// Package vaulterr defines the closed error taxonomy returned by the vault,
// signing and relay layers.
package vaulterr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure categories a caller can branch on.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindVaultLocked
	KindKdfFailure
	KindAuthenticationFailure
	KindCorruption
	KindIdentityNotFound
	KindSerialization
	KindNetworkTimeout
	KindNetworkUnavailable
	KindInvalidInput
	KindThrottled
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindVaultLocked:
		return "vault_locked"
	case KindKdfFailure:
		return "kdf_failure"
	case KindAuthenticationFailure:
		return "authentication_failure"
	case KindCorruption:
		return "corruption"
	case KindIdentityNotFound:
		return "identity_not_found"
	case KindSerialization:
		return "serialization_error"
	case KindNetworkTimeout:
		return "network_timeout"
	case KindNetworkUnavailable:
		return "network_unavailable"
	case KindInvalidInput:
		return "invalid_input"
	case KindThrottled:
		return "throttled"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Recoverable reports whether a caller may retry the same operation unchanged.
func (k Kind) Recoverable() bool {
	return k == KindNetworkTimeout || k == KindNetworkUnavailable || k == KindThrottled
}

// Sentinels for errors.Is matching. They carry no operation or cause.
var (
	ErrVaultLocked           = &Error{Kind: KindVaultLocked}
	ErrKdfFailure            = &Error{Kind: KindKdfFailure}
	ErrAuthenticationFailure = &Error{Kind: KindAuthenticationFailure}
	ErrCorruption            = &Error{Kind: KindCorruption}
	ErrIdentityNotFound      = &Error{Kind: KindIdentityNotFound}
	ErrSerialization         = &Error{Kind: KindSerialization}
	ErrNetworkTimeout        = &Error{Kind: KindNetworkTimeout}
	ErrNetworkUnavailable    = &Error{Kind: KindNetworkUnavailable}
	ErrInvalidInput          = &Error{Kind: KindInvalidInput}
	ErrThrottled             = &Error{Kind: KindThrottled}
	ErrStorage               = &Error{Kind: KindStorage}
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New wraps err with a kind and the operation that produced it.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	// Authentication failures never describe which factor was wrong.
	if e.Kind == KindAuthenticationFailure || e.Err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindUnknown
}
