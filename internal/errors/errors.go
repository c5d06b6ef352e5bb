package errors

import (
	"errors"
	"fmt"
)

// Kind is a stable, machine-readable classification for failures the bot
// can act on: re-prompt, abort the flow, or surface a canned message.
type Kind int

const (
	KindInternal Kind = iota
	// KindValidation covers malformed user input (address, amount). The
	// session machine re-prompts the same state.
	KindValidation
	// KindInsufficientBalance marks an amount exceeding the last-known
	// balance for the selected asset.
	KindInsufficientBalance
	// KindNoPool means no configured router resolves the token pair.
	KindNoPool
	// KindPendingTx is the nonce-too-low condition: an earlier transaction
	// from the wallet is still unmined.
	KindPendingTx
	// KindRPC is any other remote-call failure; the raw message is surfaced.
	KindRPC
	// KindPartial marks a multi-step plan that failed after at least one
	// step already confirmed. Hashes obtained so far are preserved.
	KindPartial
	KindUsage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindNoPool:
		return "no_pool"
	case KindPendingTx:
		return "pending_tx"
	case KindRPC:
		return "rpc"
	case KindPartial:
		return "partial"
	case KindUsage:
		return "usage"
	default:
		return "internal"
	}
}

// Error is a typed error carrying a stable kind.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	if typed, ok := As(err); ok {
		return typed.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	typed, ok := As(err)
	return ok && typed.Kind == kind
}
