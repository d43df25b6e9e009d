package webapi

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/nkiryanov/fireshare/internal/apperrors"
)

const (
	CodeAuth      = "auth"
	CodeTransport = "transport"
	CodeUnknown   = "unknown"
)

// Steam EResult values the client cares about
const (
	eresultOK              = 1
	eresultInvalidPassword = 5
	eresultFileNotFound    = 9
	eresultAccessDenied    = 15
	eresultBusy            = 10
	eresultServiceDown     = 20
	eresultExpired         = 27
	eresultRateLimited     = 84
)

type Error struct {
	Code    string
	Method  string
	Status  int // http status, 0 if request not sent
	EResult int // 0 if not reported
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("steam %s: code: %s, status: %d, eresult: %d, error: %v", e.Method, e.Code, e.Status, e.EResult, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Let callers match client errors with apperrors sentinels
func (e *Error) Is(target error) bool {
	switch target {
	case apperrors.ErrAuthFailure:
		return e.Code == CodeAuth
	case apperrors.ErrTransport:
		return e.Code == CodeTransport || e.Code == CodeUnknown
	default:
		return false
	}
}

func newError(code string, method string, status int, eresult int, err error) *Error {
	return &Error{Code: code, Method: method, Status: status, EResult: eresult, Err: err}
}

// Classify non OK EResult reported in 'X-eresult' header
func eresultCode(eresult int) string {
	switch eresult {
	case eresultInvalidPassword, eresultAccessDenied, eresultExpired:
		return CodeAuth
	case eresultBusy, eresultServiceDown, eresultRateLimited:
		return CodeTransport
	default:
		return CodeUnknown
	}
}

func parseEResult(header string) int {
	if header == "" {
		return eresultOK
	}
	v, err := strconv.Atoi(header)
	if err != nil {
		return 0
	}
	return v
}

var errSessionClosed = errors.New("session is closed")
