// Package flatex provides a client for the flatex brokerage JSON proxy protocol.
package flatex

import (
	"errors"
	"fmt"
)

// Brokerage error codes.
const (
	CodeOK                               = "0"
	CodeError                            = "1"
	CodeSessionInvalid                   = "10"
	CodeLengthInvalid                    = "107"
	CodeIdentificationInvalid            = "291"
	CodeIdentRequestInvalid              = "304"
	CodePINInvalid                       = "348"
	CodeConfirmAuthUseCaseRequestInvalid = "403"
	CodeAuthUseCaseIDInvalid             = "465"
	CodeIdentificationChallengeExpired   = "PTS_100"
)

var (
	// ErrTransport indicates the request never produced a decodable body.
	ErrTransport = errors.New("transport failure")

	// ErrDecode indicates the response body matched no expected shape.
	ErrDecode = errors.New("decode failure")

	// ErrUnsupportedOrder indicates an order field combination outside the known shapes.
	ErrUnsupportedOrder = errors.New("unsupported order type")
)

// Error is a brokerage domain failure carrying the effective envelope error.
type Error struct {
	Code string
	Text string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Text)
}

// SessionInvalid reports whether the server rejected the session id.
func (e *Error) SessionInvalid() bool {
	return e.Code == CodeSessionInvalid
}

// DecodeError carries the first structural complaint about a response body.
type DecodeError struct {
	Message string
}

func (e *DecodeError) Error() string {
	return e.Message
}

func (e *DecodeError) Unwrap() error {
	return ErrDecode
}

// TransportError wraps network failures and unexpected HTTP statuses.
type TransportError struct {
	Action string
	Status int // zero when no response was received
	Cause  error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Action, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Action, e.Cause)
}

func (e *TransportError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Cause}
}

// IsSessionInvalid reports whether err is a domain failure with the session-invalid code.
func IsSessionInvalid(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.SessionInvalid()
}

// Code returns the brokerage code carried by err, or "" if err is not a domain failure.
func Code(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}
