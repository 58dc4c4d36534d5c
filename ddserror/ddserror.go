// Package ddserror defines the return-code taxonomy shared by every data-plane
// package in this module. It models the C API's small set of return "kinds"
// (not Go-idiomatic typed errors per component) as a single Code enum wrapped
// in a grpc status, mirroring the way inprocgrpc reports handler failure
// across an in-process call boundary.
package ddserror

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code enumerates the kinds of failure a data-plane operation can report.
type Code int

const (
	// CodeOK is never wrapped into an error; it exists only so Code has a
	// documented zero value distinct from "unset".
	CodeOK Code = iota
	CodeError
	CodeUnsupported
	CodeBadParameter
	CodePreconditionNotMet
	CodeOutOfResources
	CodeNotEnabled
	CodeImmutablePolicy
	CodeInconsistentPolicy
	CodeAlreadyDeleted
	CodeTimeout
	CodeNoData
	CodeIllegalOperation
)

var codeNames = map[Code]string{
	CodeOK:                 "ok",
	CodeError:              "error",
	CodeUnsupported:        "unsupported",
	CodeBadParameter:       "bad_parameter",
	CodePreconditionNotMet: "precondition_not_met",
	CodeOutOfResources:     "out_of_resources",
	CodeNotEnabled:         "not_enabled",
	CodeImmutablePolicy:    "immutable_policy",
	CodeInconsistentPolicy: "inconsistent_policy",
	CodeAlreadyDeleted:     "already_deleted",
	CodeTimeout:            "timeout",
	CodeNoData:             "no_data",
	CodeIllegalOperation:   "illegal_operation",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "unknown"
}

// grpcCode maps a Code onto the closest standard grpc code, so that callers
// who only understand the grpc taxonomy (e.g. tooling built against
// google.golang.org/grpc/codes) still get a sensible classification. This
// mapping is lossy (several Codes share a grpc code), so it is never used
// to recover the original Code; Kind recovers that from the ddsError it was
// wrapped in, not by reversing this switch.
func (c Code) grpcCode() codes.Code {
	switch c {
	case CodeOK:
		return codes.OK
	case CodeUnsupported:
		return codes.Unimplemented
	case CodeBadParameter:
		return codes.InvalidArgument
	case CodePreconditionNotMet:
		return codes.FailedPrecondition
	case CodeOutOfResources:
		return codes.ResourceExhausted
	case CodeNotEnabled:
		return codes.FailedPrecondition
	case CodeImmutablePolicy, CodeInconsistentPolicy:
		return codes.InvalidArgument
	case CodeAlreadyDeleted:
		return codes.NotFound
	case CodeTimeout:
		return codes.DeadlineExceeded
	case CodeNoData:
		return codes.NotFound
	case CodeIllegalOperation:
		return codes.FailedPrecondition
	default:
		return codes.Unknown
	}
}

// ddsError pairs the exact Code a caller constructed with a grpc status, so
// that Kind can recover it precisely even though two different Codes (e.g.
// CodeNotEnabled and CodeIllegalOperation) may carry the same grpcCode.
// GRPCStatus makes it satisfy status.FromError's interface, so tooling built
// only against google.golang.org/grpc/status still gets the coarser
// classification grpcCode provides.
type ddsError struct {
	code Code
	st   *status.Status
}

func (e *ddsError) Error() string { return e.st.Message() }

func (e *ddsError) GRPCStatus() *status.Status { return e.st }

func (e *ddsError) Unwrap() error { return e.st.Err() }

// New wraps msg and code into an error carrying a grpc status, recoverable
// exactly with Kind.
func New(code Code, msg string) error {
	return &ddsError{code: code, st: status.New(code.grpcCode(), code.String()+": "+msg)}
}

// Newf is New with fmt-style formatting; kept separate from New to avoid an
// import of fmt at every call site that doesn't need it.
func Newf(code Code, format string, args ...any) error {
	return New(code, fmt.Sprintf(format, args...))
}

// Kind recovers the Code an error was created with, falling back to
// classifying by grpc status code for errors not produced by New/Newf (and
// further to CodeError for anything without a grpc status), and CodeOK for
// nil.
func Kind(err error) Code {
	if err == nil {
		return CodeOK
	}
	var de *ddsError
	if errors.As(err, &de) {
		return de.code
	}
	st, ok := status.FromError(err)
	if !ok {
		return CodeError
	}
	switch st.Code() {
	case codes.OK:
		return CodeOK
	case codes.Unimplemented:
		return CodeUnsupported
	case codes.InvalidArgument:
		return CodeBadParameter
	case codes.FailedPrecondition:
		return CodePreconditionNotMet
	case codes.ResourceExhausted:
		return CodeOutOfResources
	case codes.NotFound:
		return CodeNoData
	case codes.DeadlineExceeded:
		return CodeTimeout
	default:
		return CodeError
	}
}

// Is reports whether err was produced with the given Code.
func Is(err error, code Code) bool {
	return Kind(err) == code
}
