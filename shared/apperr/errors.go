// Package apperr defines the error taxonomy shared by the wallet services.
//
// Every error that crosses a service boundary is an *Error carrying a Kind
// (which decides the HTTP status) and a stable Code (which survives the trip
// over the wire, so a client can rebuild the same sentinel on its side).
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindForbidden
	KindInsufficientFunds
	KindUnreachable
	// KindOutcomeUnknown means the request reached a service that may have
	// acted on it before the answer was lost.
	KindOutcomeUnknown
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindUnreachable:
		return "unreachable"
	case KindOutcomeUnknown:
		return "outcome_unknown"
	default:
		return "internal"
	}
}

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so that errors rebuilt from a remote response compare
// equal to the local sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap returns a copy of sentinel with cause attached.
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: sentinel.Message, Err: cause}
}

// WithMessage returns a copy of sentinel with a more specific message.
func WithMessage(sentinel *Error, message string) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: message}
}

var (
	ErrInvalidAmount         = New(KindValidation, "INVALID_AMOUNT", "amount must be greater than zero with at most two decimal places")
	ErrInvalidRequest        = New(KindValidation, "INVALID_REQUEST", "invalid request")
	ErrSenderLedgerMissing   = New(KindNotFound, "SENDER_LEDGER_MISSING", "active ledger not found for sender")
	ErrReceiverNotFound      = New(KindNotFound, "RECEIVER_NOT_FOUND", "receiver not found")
	ErrReceiverLedgerMissing = New(KindNotFound, "RECEIVER_LEDGER_MISSING", "active ledger not found for receiver")
	ErrLedgerNotFound        = New(KindNotFound, "LEDGER_NOT_FOUND", "ledger not found")
	ErrMutationNotFound      = New(KindNotFound, "MUTATION_NOT_FOUND", "ledger mutation not found")
	ErrTransferNotFound      = New(KindNotFound, "TRANSFER_NOT_FOUND", "transfer not found")
	ErrSelfTransfer          = New(KindConflict, "SELF_TRANSFER", "cannot transfer to yourself")
	ErrDuplicateLedger       = New(KindConflict, "DUPLICATE_LEDGER", "an active ledger already exists for this owner")
	ErrLedgerClosed          = New(KindConflict, "LEDGER_CLOSED", "ledger is closed")
	ErrNonZeroBalance        = New(KindConflict, "NON_ZERO_BALANCE", "ledger cannot be closed while its balance is not zero")
	ErrMutationVoided        = New(KindConflict, "MUTATION_VOIDED", "mutation reference was voided")
	ErrReferenceReused       = New(KindConflict, "REFERENCE_REUSED", "mutation reference already used for a different mutation")
	ErrIdempotencyMismatch   = New(KindConflict, "IDEMPOTENCY_MISMATCH", "idempotency key was used with a different request")
	ErrIdempotencyKeyExists  = New(KindConflict, "IDEMPOTENCY_KEY_EXISTS", "idempotency key already used")
	ErrForbidden             = New(KindForbidden, "FORBIDDEN", "you can only access your own transfers")
	ErrInsufficientFunds     = New(KindInsufficientFunds, "INSUFFICIENT_FUNDS", "insufficient funds")
	ErrUnreachable           = New(KindUnreachable, "UNREACHABLE", "a collaborator service did not respond")
	ErrTransferInFlight      = New(KindConflict, "TRANSFER_IN_FLIGHT", "ledger cannot be closed while a transfer against it is unsettled")
	ErrOutcomeUnknown        = New(KindOutcomeUnknown, "OUTCOME_UNKNOWN", "the request may have been applied; retry with the same Idempotency-Key to learn its outcome")
	ErrInternal              = New(KindInternal, "INTERNAL", "internal error")
)

var byCode = map[string]*Error{}

func init() {
	for _, e := range []*Error{
		ErrInvalidAmount, ErrInvalidRequest, ErrSenderLedgerMissing, ErrReceiverNotFound,
		ErrReceiverLedgerMissing, ErrLedgerNotFound, ErrMutationNotFound, ErrTransferNotFound,
		ErrSelfTransfer, ErrDuplicateLedger, ErrLedgerClosed, ErrNonZeroBalance, ErrMutationVoided,
		ErrReferenceReused, ErrIdempotencyMismatch, ErrIdempotencyKeyExists, ErrForbidden,
		ErrInsufficientFunds, ErrUnreachable, ErrTransferInFlight, ErrOutcomeUnknown, ErrInternal,
	} {
		byCode[e.Code] = e
	}
}

// FromCode rebuilds an error from its wire code. Unknown codes fall back to
// a kind derived from the HTTP status.
func FromCode(code, message string, status int) *Error {
	if sentinel, ok := byCode[code]; ok {
		if message == "" {
			message = sentinel.Message
		}
		return WithMessage(sentinel, message)
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Kind: kindForStatus(status), Code: code, Message: message}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusForbidden:
		return KindForbidden
	case status >= 400 && status < 500:
		return KindValidation
	case status >= 500:
		return KindUnreachable
	default:
		return KindInternal
	}
}

// KindOf reports the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the code of err, INTERNAL for foreign errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal.Code
}

// MessageOf returns the client-facing message of err. Foreign errors are
// never echoed back to callers.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ErrInternal.Message
}

func IsUnreachable(err error) bool { return err != nil && KindOf(err) == KindUnreachable }

// IsDefinite reports whether err is an answer in which the callee refused
// the request, so nothing it guards was changed. Transport failures, lost or
// garbled answers and foreign errors are not definite.
func IsDefinite(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindConflict, KindInsufficientFunds:
		return true
	}
	return false
}

// HTTPStatus maps err onto the status code the services answer with.
func HTTPStatus(err error) int {
	if CodeOf(err) == ErrSelfTransfer.Code {
		return http.StatusBadRequest
	}
	switch KindOf(err) {
	case KindValidation, KindInsufficientFunds:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindUnreachable:
		return http.StatusServiceUnavailable
	case KindOutcomeUnknown:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
