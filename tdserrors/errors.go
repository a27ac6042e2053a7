// Package tdserrors defines the two structured error kinds the core
// surfaces — ConnectionError and RequestError — and the fixed set of
// named codes from spec §6. Grounded on pkg/errors.Error's shape
// (fields, cause chain, fmt.Formatter support, fluent With* builders),
// with its numeric Code replaced by the driver's string-enum codes:
// this core has a small, closed vocabulary of failure reasons rather
// than the teacher's open, hierarchical numeric scheme.
package tdserrors

import (
	"errors"
	"fmt"
)

// Code is one of the driver's named error codes.
type Code string

const (
	ETimeout       Code = "ETIMEOUT"
	ESocket        Code = "ESOCKET"
	EInstLookup    Code = "EINSTLOOKUP"
	ELogin         Code = "ELOGIN"
	ERequest       Code = "EREQUEST"
	ECancel        Code = "ECANCEL"
	ENotInTran     Code = "ENOTRNINPROG"
	EInvalidState  Code = "EINVALIDSTATE"
)

// ConnectionError is session-scoped: surfaced via the connect callback
// at login time, or as a fatal `error` event thereafter.
type ConnectionError struct {
	Code    Code
	Message string
	Cause   error
	Fields  map[string]interface{}
}

func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// Format supports %+v for a field dump alongside the plain message.
func (e *ConnectionError) Format(f fmt.State, verb rune) {
	switch {
	case verb == 'v' && f.Flag('+'):
		fmt.Fprintf(f, "%s: %s", e.Code, e.Message)
		for k, v := range e.Fields {
			fmt.Fprintf(f, " %s=%v", k, v)
		}
		if e.Cause != nil {
			fmt.Fprintf(f, " cause=%v", e.Cause)
		}
	default:
		fmt.Fprint(f, e.Error())
	}
}

// WithField attaches a context field and returns the receiver.
func (e *ConnectionError) WithField(key string, value interface{}) *ConnectionError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// NewConnectionError builds a ConnectionError with the given code.
func NewConnectionError(code Code, message string) *ConnectionError {
	return &ConnectionError{Code: code, Message: message}
}

// WrapConnectionError builds a ConnectionError wrapping cause.
func WrapConnectionError(cause error, code Code, message string) *ConnectionError {
	return &ConnectionError{Code: code, Message: message, Cause: cause}
}

// RequestError is scoped to the in-flight Request: surfaced through its
// completion callback, never closing the connection.
type RequestError struct {
	Code    Code
	Message string
	Cause   error
	Fields  map[string]interface{}
}

func (e *RequestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Cause }

func (e *RequestError) Format(f fmt.State, verb rune) {
	switch {
	case verb == 'v' && f.Flag('+'):
		fmt.Fprintf(f, "%s: %s", e.Code, e.Message)
		for k, v := range e.Fields {
			fmt.Fprintf(f, " %s=%v", k, v)
		}
		if e.Cause != nil {
			fmt.Fprintf(f, " cause=%v", e.Cause)
		}
	default:
		fmt.Fprint(f, e.Error())
	}
}

// WithField attaches a context field and returns the receiver.
func (e *RequestError) WithField(key string, value interface{}) *RequestError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// NewRequestError builds a RequestError with the given code.
func NewRequestError(code Code, message string) *RequestError {
	return &RequestError{Code: code, Message: message}
}

// WrapRequestError builds a RequestError wrapping cause.
func WrapRequestError(cause error, code Code, message string) *RequestError {
	return &RequestError{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the Code from a ConnectionError or RequestError in
// err's chain, or "" if neither is present.
func CodeOf(err error) Code {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var re *RequestError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
