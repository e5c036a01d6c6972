// Unified error handling for the stdio shepherd
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorCode is the category of an error. Codes double as the reason
// token written in `fail` protocol rows, so they must not contain spaces.
type ErrorCode string

const (
	// Device and connection errors
	ErrNotOnline     ErrorCode = "NotOnline"
	ErrNoDeviceFound ErrorCode = "NoDeviceFound"
	ErrConnectFailed ErrorCode = "ConnectFailed"

	// Print process errors
	ErrAlreadyPrinting ErrorCode = "AlreadyPrinting"
	ErrLiftTimeout     ErrorCode = "LiftTimeout"
	ErrStopped         ErrorCode = "Stopped"
	ErrInvalidJob      ErrorCode = "InvalidJob"

	// Request errors
	ErrMalformedRequest ErrorCode = "MalformedRequest"
	ErrUnknownVerb      ErrorCode = "UnknownVerb"

	// Caught unexpected faults
	ErrInternal ErrorCode = "InternalError"
)

// HostError is the unified error type for the host process
type HostError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *HostError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *HostError) Unwrap() error {
	return e.Err
}

// SetContext adds additional context
func (e *HostError) SetContext(key string, value interface{}) *HostError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Wrap wraps an existing error with a code and message
func Wrap(err error, code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// New creates a new HostError
func New(code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
	}
}

// Device errors

// NotOnline creates an error for an operation that needs a connected device
func NotOnline(operation string) *HostError {
	return New(ErrNotOnline, fmt.Sprintf("%s requires an online printer", operation)).
		SetContext("operation", operation)
}

// NoDeviceFound creates an error for an empty candidate list
func NoDeviceFound() *HostError {
	return New(ErrNoDeviceFound, "no device found")
}

// ConnectFailed creates an error for a candidate list where no port opened
func ConnectFailed(tried []string, last error) *HostError {
	return Wrap(last, ErrConnectFailed, fmt.Sprintf("could not open any of %v", tried))
}

// Print process errors

// AlreadyPrinting creates an error for a job start while a job is active
func AlreadyPrinting(state string) *HostError {
	return New(ErrAlreadyPrinting, fmt.Sprintf("a job is already active (state %s)", state))
}

// LiftTimeout creates an error for a position confirmation that never arrived
func LiftTimeout(expectedZ float64, waited string) *HostError {
	return New(ErrLiftTimeout, fmt.Sprintf("no position report matching Z=%.3f within %s", expectedZ, waited)).
		SetContext("expected_z", expectedZ)
}

// Stopped creates an error for a wait aborted by a stop request
func Stopped() *HostError {
	return New(ErrStopped, "print process stopped")
}

// InvalidJob creates an error for an unusable job spec
func InvalidJob(reason string, err error) *HostError {
	if err != nil {
		return Wrap(err, ErrInvalidJob, reason)
	}
	return New(ErrInvalidJob, reason)
}

// Request errors

// MalformedRequest creates an error for an unparseable or incomplete request
func MalformedRequest(reason string) *HostError {
	return New(ErrMalformedRequest, reason)
}

// UnknownVerb creates an error for a verb outside the verb table
func UnknownVerb(verb string) *HostError {
	return New(ErrUnknownVerb, fmt.Sprintf("unknown verb %q", verb))
}

// Internal creates a general internal error
func Internal(message string) *HostError {
	return New(ErrInternal, message)
}

// RecoverPanic converts a recovered panic value to an InternalError.
// It must be called with the result of recover() from a deferred function.
func RecoverPanic(r interface{}) *HostError {
	if r == nil {
		return nil
	}
	switch x := r.(type) {
	case runtime.Error:
		return Internal(fmt.Sprintf("panic: %s", x.Error()))
	case error:
		return Wrap(x, ErrInternal, "panic")
	case string:
		return Internal(fmt.Sprintf("panic: %s", x))
	default:
		return Internal(fmt.Sprintf("panic: %v", x))
	}
}

// CodeOf returns the code of the first HostError in err's chain.
// Errors that carry no code are reported as InternalError.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var hostErr *HostError
	if stderrors.As(err, &hostErr) {
		return hostErr.Code
	}
	return ErrInternal
}

// Is checks if err's chain contains a HostError with the given code
func Is(err error, code ErrorCode) bool {
	var hostErr *HostError
	for err != nil {
		if !stderrors.As(err, &hostErr) {
			return false
		}
		if hostErr.Code == code {
			return true
		}
		err = hostErr.Err
	}
	return false
}

// IsDevice checks if err is a device or connection error
func IsDevice(err error) bool {
	return Is(err, ErrNotOnline) ||
		Is(err, ErrNoDeviceFound) ||
		Is(err, ErrConnectFailed)
}

// IsAbort checks if err ended a print process early
func IsAbort(err error) bool {
	return Is(err, ErrLiftTimeout) || Is(err, ErrStopped)
}
