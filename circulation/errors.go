package circulation

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeNotFound                   Code = "NOT_FOUND"
	CodeForbidden                  Code = "FORBIDDEN"
	CodeInvalidArgument            Code = "INVALID_ARGUMENT"
	CodeInvalidState               Code = "INVALID_STATE"
	CodePolicyLimitExceeded        Code = "POLICY_LIMIT_EXCEEDED"
	CodeOutOfStock                 Code = "OUT_OF_STOCK"
	CodeStockCeiling               Code = "STOCK_CEILING"
	CodeDuplicateLoan              Code = "DUPLICATE_LOAN"
	CodeDuplicateReservation       Code = "DUPLICATE_RESERVATION"
	CodeNotAvailableForReservation Code = "NOT_AVAILABLE_FOR_RESERVATION"
	CodeOverdue                    Code = "OVERDUE"
	CodeReservationConflict        Code = "RESERVATION_CONFLICT"
	CodeRenewalLimitExceeded       Code = "RENEWAL_LIMIT_EXCEEDED"
	CodeNoFine                     Code = "NO_FINE"
	CodeTransientStore             Code = "TRANSIENT_STORE_ERROR"
	CodeInternal                   Code = "INTERNAL"
)

// Error is a business-rule or infrastructure failure with a stable code.
// errors.Is matches on Code, so a detailed error still matches its sentinel.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrNotFound                   = &Error{Code: CodeNotFound, Message: "not found"}
	ErrForbidden                  = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrInvalidArgument            = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrInvalidState               = &Error{Code: CodeInvalidState, Message: "invalid state"}
	ErrPolicyLimitExceeded        = &Error{Code: CodePolicyLimitExceeded, Message: "policy limit exceeded"}
	ErrOutOfStock                 = &Error{Code: CodeOutOfStock, Message: "no copy available"}
	ErrStockCeiling               = &Error{Code: CodeStockCeiling, Message: "available already equals quantity"}
	ErrDuplicateLoan              = &Error{Code: CodeDuplicateLoan, Message: "book already on loan to user"}
	ErrDuplicateReservation       = &Error{Code: CodeDuplicateReservation, Message: "book already reserved by user"}
	ErrNotAvailableForReservation = &Error{Code: CodeNotAvailableForReservation, Message: "book has free copies, borrow it instead"}
	ErrOverdue                    = &Error{Code: CodeOverdue, Message: "loan is overdue"}
	ErrReservationConflict        = &Error{Code: CodeReservationConflict, Message: "other readers are waiting for this book"}
	ErrRenewalLimitExceeded       = &Error{Code: CodeRenewalLimitExceeded, Message: "renewal limit reached"}
	ErrNoFine                     = &Error{Code: CodeNoFine, Message: "loan has no fine"}
	ErrTransientStore             = &Error{Code: CodeTransientStore, Message: "store temporarily unavailable"}

	// ErrConcurrencyConflict marks a conditional update that lost a race.
	// The transaction wrapper retries it; callers never see it on success.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

func newError(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Transient wraps an infrastructure fault that survived the retry budget.
func Transient(err error) error {
	return &Error{Code: CodeTransientStore, Message: "store temporarily unavailable", Err: err}
}

// CodeOf extracts the code of err, CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
