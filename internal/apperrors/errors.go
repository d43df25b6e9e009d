package apperrors

import (
	"errors"
	"fmt"
)

var (
	// Steam side
	ErrTransport   = errors.New("steam service unreachable")
	ErrAuthFailure = errors.New("steam refresh token is invalid or revoked")

	// QR login
	ErrTimedOut          = errors.New("qr challenge timed out")
	ErrRejected          = errors.New("qr challenge rejected by user")
	ErrChallengeNotFound = errors.New("qr challenge not found")
	ErrChallengeBusy     = errors.New("qr challenge is already being awaited")
	ErrChallengePending  = errors.New("qr challenge is not confirmed yet")
	ErrAccountMismatch   = errors.New("qr challenge confirmed by another steam account")

	// Lender has to log in again before the action can proceed
	ErrPendingAuth    = errors.New("lender needs to re-authenticate")
	ErrNoRefreshToken = errors.New("user has no refresh token")

	ErrNotFound      = errors.New("not found")
	ErrUserNotFound  = fmt.Errorf("user %w", ErrNotFound)
	ErrShareNotFound = fmt.Errorf("share %w", ErrNotFound)

	ErrMachineIDInvalid  = errors.New("machine id is invalid")
	ErrMachineIDRequired = errors.New("machine id is not set")
	ErrSteamIDInvalid    = errors.New("steam id is invalid")
	ErrSelfShare         = errors.New("user can't share with itself")
)
