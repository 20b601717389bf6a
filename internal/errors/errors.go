package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type Code int

const (
	CodeInvalidArgument Code = iota + 1
	CodeNotFound
	CodeWindowClosed
	CodeAttemptLimit
	CodeAlreadyInProgress
	CodeAlreadySubmitted
	CodeUnauthenticated
	CodePermissionDenied
	CodeInternal
)

var codeNames = map[Code]string{
	CodeInvalidArgument:   "invalid_argument",
	CodeNotFound:          "not_found",
	CodeWindowClosed:      "quiz_window_closed",
	CodeAttemptLimit:      "attempt_limit_exceeded",
	CodeAlreadyInProgress: "attempt_already_in_progress",
	CodeAlreadySubmitted:  "already_submitted",
	CodeUnauthenticated:   "unauthenticated",
	CodePermissionDenied:  "permission_denied",
	CodeInternal:          "internal",
}

var code2http = map[Code]int{
	CodeInvalidArgument:   http.StatusBadRequest,
	CodeNotFound:          http.StatusNotFound,
	CodeWindowClosed:      http.StatusConflict,
	CodeAttemptLimit:      http.StatusConflict,
	CodeAlreadyInProgress: http.StatusConflict,
	CodeAlreadySubmitted:  http.StatusConflict,
	CodeUnauthenticated:   http.StatusUnauthorized,
	CodePermissionDenied:  http.StatusForbidden,
	CodeInternal:          http.StatusInternalServerError,
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "unknown"
}

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: code.String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %s, message: %s", e.Code, e.Message)
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

// Convert returns err as an *Error, wrapping unknown errors as internal.
func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

// HasCode reports whether err is an *Error carrying the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}
