package model

import "errors"

// ErrorKind は呼び出し側が表示を切り替えるためのエラー分類です
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// DomainError は分類付きのドメインエラーです
type DomainError struct {
	Kind    ErrorKind
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func newError(kind ErrorKind, message string) *DomainError {
	return &DomainError{Kind: kind, Message: message}
}

var (
	ErrInvalidInterval      = newError(KindValidation, "start time must be before end time")
	ErrStartNotInFuture     = newError(KindValidation, "booking must start in the future")
	ErrBlankField           = newError(KindValidation, "required field is blank")
	ErrOutsideCheckInWindow = newError(KindValidation, "check-in is only possible inside the check-in window")

	ErrRoomNotFound    = newError(KindNotFound, "room not found")
	ErrUserNotFound    = newError(KindNotFound, "user not found")
	ErrBookingNotFound = newError(KindNotFound, "booking not found")

	ErrSlotUnavailable   = newError(KindConflict, "slot not available")
	ErrAlreadyCancelled  = newError(KindConflict, "booking is already cancelled")
	ErrPastBooking       = newError(KindConflict, "booking is in the past and cannot be cancelled")
	ErrInvalidTransition = newError(KindConflict, "booking status does not allow this operation")

	ErrUnauthorized = newError(KindUnauthorized, "not authorized for this booking")
	ErrCodeMismatch = newError(KindUnauthorized, "confirmation code not matching")
)

// KindOf はラップされたエラーも含めて分類を返します
func KindOf(err error) ErrorKind {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindInternal
}
