package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport layer.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindPermission   Kind = "permission"
	KindConflict     Kind = "conflict"
	KindNotFound     Kind = "not_found"
	KindPersistence  Kind = "persistence"
	KindUnauthorized Kind = "unauthorized"
	KindExternal     Kind = "external"
)

// Error carries a user-facing Message. Err is the internal cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind and Message so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func Validation(msg string) *Error   { return &Error{Kind: KindValidation, Message: msg} }
func Permission(msg string) *Error   { return &Error{Kind: KindPermission, Message: msg} }
func Conflict(msg string) *Error     { return &Error{Kind: KindConflict, Message: msg} }
func NotFound(msg string) *Error     { return &Error{Kind: KindNotFound, Message: msg} }
func Unauthorized(msg string) *Error { return &Error{Kind: KindUnauthorized, Message: msg} }

func Persistence(msg string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: msg, Err: err}
}

func External(msg string, err error) *Error {
	return &Error{Kind: KindExternal, Message: msg, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindPersistence
// for anything unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}

// MessageOf returns the user-facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

var (
	ErrTicketNotFound = NotFound("ticket not found")
	ErrAdminNotFound  = NotFound("admin not found")
	ErrUserNotFound   = NotFound("user not found")

	ErrTicketNotOpen        = Conflict("ticket is already locked or resolved")
	ErrTicketNotInProgress  = Conflict("ticket is not in progress")
	ErrTicketResolved       = Conflict("ticket is already resolved")
	ErrTicketNotResolved    = Conflict("feedback can only be submitted for resolved tickets")
	ErrFeedbackExists       = Conflict("feedback has already been submitted")
	ErrAlreadyHeldByTarget  = Conflict("ticket is already held by the target admin")
	ErrEmailTaken           = Conflict("an admin with this email already exists")
	ErrNotTicketHolder      = Permission("you can only act on tickets you hold")
	ErrTransferNotForYou    = Permission("this transfer is not addressed to you")
	ErrNotTicketRequester   = Permission("you can only rate your own tickets")
	ErrSuperAdminOnly       = Permission("only the super admin can perform this action")
	ErrInvalidCredentials   = Unauthorized("invalid credentials")
	ErrInvalidOTP           = Validation("invalid or expired code")
	ErrIncorrectOldPassword = Validation("incorrect current password")
)
