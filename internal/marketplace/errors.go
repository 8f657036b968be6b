package marketplace

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// FaultCode is a fault code reported by the marketplace API
type FaultCode string

const (
	FaultNoSession          FaultCode = "ERR_NO_SESSION"
	FaultSessionExpired     FaultCode = "ERR_SESSION_EXPIRED"
	FaultInvalidItemID      FaultCode = "ERR_INVALID_ITEM_ID"
	FaultIncorrectRefundID  FaultCode = "ERR_INCORRECT_REFUND_ID"
	FaultCancelled          FaultCode = "ERR_CANCELLED"
	FaultUserPasswdInvalid  FaultCode = "ERR_USER_PASSWD"
	FaultWebapiKeyInvalid   FaultCode = "ERR_WEBAPI_KEY"
	FaultServiceUnavailable FaultCode = "ERR_SERVICE_UNAVAILABLE"
)

var (
	// ErrNotLoggedIn is returned when an operation runs for a user without a valid session
	ErrNotLoggedIn = errors.New("marketplace: not logged in")

	// ErrTimeout is returned when a remote call does not complete in time
	ErrTimeout = errors.New("marketplace: request timed out")

	// ErrBuyerNotFound is returned when the post-purchase data lacks the buyer
	ErrBuyerNotFound = errors.New("marketplace: buyer not found")
)

// Fault is a typed fault returned by the marketplace
type Fault struct {
	Code    FaultCode
	Message string
}

func (f *Fault) Error() string {
	if f.Message == "" {
		return fmt.Sprintf("marketplace fault %s", f.Code)
	}
	return fmt.Sprintf("marketplace fault %s: %s", f.Code, f.Message)
}

// Is matches faults by code, so errors.Is(err, &Fault{Code: FaultCancelled}) works
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	return ok && t.Code == f.Code
}

// HasFault reports whether err carries a fault with one of the codes
func HasFault(err error, codes ...FaultCode) bool {
	var fault *Fault
	if !errors.As(err, &fault) {
		return false
	}
	for _, code := range codes {
		if fault.Code == code {
			return true
		}
	}
	return false
}

func isSessionFault(err error) bool {
	return HasFault(err, FaultNoSession, FaultSessionExpired)
}

// CommunicationError is a transport-level failure talking to the marketplace
type CommunicationError struct {
	Op  string
	Err error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("marketplace %s: communication failure: %v", e.Op, e.Err)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

// AggregateError carries several faults returned by a single call
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return "marketplace: multiple faults: " + strings.Join(msgs, "; ")
}

func (e *AggregateError) Unwrap() []error { return e.Errors }

// IsTransient reports whether err is a marketplace failure worth retrying on the
// next tick: timeouts, communication failures, any remote fault (session faults
// that survived the re-login included) and missing sessions or remote records.
// Anything else, such as database or programming errors, is not. A joined error
// is transient only when every error it joins is.
func IsTransient(err error) bool {
	for err != nil {
		switch e := err.(type) {
		case *AggregateError, *CommunicationError, *Fault:
			return true
		case interface{ Unwrap() []error }:
			children := e.Unwrap()
			if len(children) == 0 {
				return false
			}
			for _, child := range children {
				if !IsTransient(child) {
					return false
				}
			}
			return true
		}

		switch err {
		case ErrTimeout, ErrNotLoggedIn, ErrBuyerNotFound, ErrTransactionNotFound, context.DeadlineExceeded:
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
