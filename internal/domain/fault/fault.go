// Package fault classifies domain errors so callers can branch on the kind
// of failure without knowing the concrete error type.
package fault

import (
	"github.com/go-faster/errors"
)

// Kind is the broad class of a failure.
type Kind int

const (
	// Internal is any failure that is not caused by the caller.
	Internal Kind = iota
	// NotFound means a referenced entity does not exist.
	NotFound
	// Conflict means the request is well formed but clashes with current state.
	Conflict
	// InvalidInput means the request itself is malformed.
	InvalidInput
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case InvalidInput:
		return "invalid_input"
	default:
		return "internal"
	}
}

// Condition codes reported to clients.
const (
	CodeInternal            = "INTERNAL"
	CodeItemNotFound        = "ITEM_NOT_FOUND"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeOrderNotFound       = "ORDER_NOT_FOUND"
	CodeIntentNotFound      = "INTENT_NOT_FOUND"
	CodeCartLineNotFound    = "CART_LINE_NOT_FOUND"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeIntentAlreadyExists = "INTENT_ALREADY_EXISTS"
	CodeInvalidOrderState   = "INVALID_ORDER_STATE"
	CodeSettlementConflict  = "SETTLEMENT_CONFLICT"
	CodeDuplicateUser       = "DUPLICATE_USER"
	CodeEmptyCart           = "EMPTY_CART"
	CodeCartChanged         = "CART_CHANGED"
	CodeInvalidQuantity     = "INVALID_QUANTITY"
	CodeInvalidAmount       = "INVALID_AMOUNT"
	CodeInvalidArgument     = "INVALID_ARGUMENT"
)

// Classified is implemented by errors that know their kind and code.
type Classified interface {
	error
	Kind() Kind
	Code() string
}

// Error is a plain classified error, suitable for sentinels.
type Error struct {
	kind Kind
	code string
	msg  string
}

// New returns a classified error.
func New(kind Kind, code, msg string) *Error {
	return &Error{kind: kind, code: code, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind implements Classified.
func (e *Error) Kind() Kind { return e.kind }

// Code implements Classified.
func (e *Error) Code() string { return e.code }

// Invalid returns an InvalidInput error with the generic argument code.
func Invalid(format string, args ...any) error {
	return &Error{kind: InvalidInput, code: CodeInvalidArgument, msg: errors.Errorf(format, args...).Error()}
}

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified errors are Internal.
func KindOf(err error) Kind {
	var c Classified
	if errors.As(err, &c) {
		return c.Kind()
	}
	return Internal
}

// CodeOf returns the condition code of the first classified error in err's chain.
func CodeOf(err error) string {
	var c Classified
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeInternal
}

// Is reports whether err is classified with the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
