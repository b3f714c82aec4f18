// Package bridgeerrors is the structured error type shared by every
// component in this repository. It mirrors the teacher's errors.Error:
// a code, a message, an optional wrapped error and optional structured
// data, convertible to and from a gRPC status so that duty dispatch and
// persistence layers (which sit behind gRPC in the wider system this
// repo plugs into) can cross a service boundary without losing the code.
package bridgeerrors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrData lets a caller attach structured context (e.g. the offending
// machine identifiers in a non-convergence error) without widening
// Error's own fields for every use case.
type ErrData interface {
	Error() string
}

type Error struct {
	Code       ERR
	Message    string
	WrappedErr error
	Data       ErrData
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	dataMsg := ""
	if e.Data != nil {
		dataMsg = e.Data.Error()
	}

	if e.WrappedErr == nil {
		if dataMsg == "" {
			return fmt.Sprintf("%s: %s", e.Code, e.Message)
		}
		return fmt.Sprintf("%s: %s, data: %s", e.Code, e.Message, dataMsg)
	}

	if dataMsg == "" {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.WrappedErr)
	}
	return fmt.Sprintf("%s: %s: %v, data: %s", e.Code, e.Message, e.WrappedErr, dataMsg)
}

func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}

	var ue *Error
	if errors.As(target, &ue) {
		if e.Code == ue.Code {
			return true
		}
	}

	if unwrapped := errors.Unwrap(e); unwrapped != nil {
		if ue, ok := unwrapped.(*Error); ok {
			return ue.Is(target)
		}
	}

	return false
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.WrappedErr
}

// New builds an Error, optionally wrapping a trailing error/*Error
// argument and formatting message against any remaining params, the
// same calling convention as the teacher's errors.New.
func New(code ERR, message string, params ...interface{}) *Error {
	var wrapped error

	if len(params) > 0 {
		last := params[len(params)-1]
		if err, ok := last.(error); ok {
			wrapped = err
			params = params[:len(params)-1]
		}
	}

	if len(params) > 0 {
		message = fmt.Sprintf(message, params...)
	}

	return &Error{Code: code, Message: message, WrappedErr: wrapped}
}

func NewConsensusError(message string, params ...interface{}) *Error {
	return New(ERR_CONSENSUS_VIOLATION, message, params...)
}

func NewGraphBuildError(message string, params ...interface{}) *Error {
	return New(ERR_GRAPH_BUILD, message, params...)
}

func NewSigningError(message string, params ...interface{}) *Error {
	return New(ERR_SIGNING, message, params...)
}

func NewBroadcastError(message string, params ...interface{}) *Error {
	return New(ERR_BROADCAST, message, params...)
}

func NewPersistenceError(message string, params ...interface{}) *Error {
	return New(ERR_PERSISTENCE, message, params...)
}

func NewNonConvergenceError(message string, params ...interface{}) *Error {
	return New(ERR_NON_CONVERGENCE, message, params...)
}

func NewConfigurationError(message string, params ...interface{}) *Error {
	return New(ERR_CONFIGURATION, message, params...)
}

func NewNotFoundError(message string, params ...interface{}) *Error {
	return New(ERR_NOT_FOUND, message, params...)
}

// WrapGRPC converts a bridgeerrors.Error into one whose WrappedErr is a
// gRPC status error, so that duty dispatch across a service boundary
// preserves the error code.
func WrapGRPC(err *Error) *Error {
	if err == nil {
		return nil
	}

	st := status.New(errorCodeToGRPCCode(err.Code), err.Message)

	return &Error{
		Code:       err.Code,
		Message:    err.Message,
		WrappedErr: st.Err(),
	}
}

// UnwrapGRPC recovers a bridgeerrors.Error from a gRPC status error,
// falling back to mapping the standard gRPC code when no application
// code was attached.
func UnwrapGRPC(err error) *Error {
	if err == nil {
		return nil
	}

	var be *Error
	if errors.As(err, &be) {
		return be
	}

	st, ok := status.FromError(err)
	if !ok {
		return New(ERR_UNKNOWN, err.Error())
	}

	switch st.Code() {
	case codes.NotFound:
		return New(ERR_NOT_FOUND, st.Message())
	case codes.InvalidArgument:
		return New(ERR_INVALID_ARGUMENT, st.Message())
	case codes.ResourceExhausted:
		return New(ERR_THRESHOLD_EXCEEDED, st.Message())
	default:
		return New(ERR_UNKNOWN, st.Message())
	}
}

func errorCodeToGRPCCode(code ERR) codes.Code {
	switch code {
	case ERR_NOT_FOUND:
		return codes.NotFound
	case ERR_INVALID_ARGUMENT, ERR_CONFIGURATION:
		return codes.InvalidArgument
	case ERR_THRESHOLD_EXCEEDED:
		return codes.ResourceExhausted
	case ERR_CONSENSUS_VIOLATION:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// Is reports whether err (or anything it wraps) carries the given code.
func Is(err error, code ERR) bool {
	for err != nil {
		var be *Error
		if !errors.As(err, &be) {
			return false
		}
		if be.Code == code {
			return true
		}
		err = be.WrappedErr
	}
	return false
}
