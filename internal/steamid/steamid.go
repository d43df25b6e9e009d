// Package steamid converts between Steam account identifier forms.
//
// Only individual accounts of the public universe are accepted: those are the only
// accounts that may lend or borrow a library.
package steamid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nkiryanov/fireshare/internal/apperrors"
)

const (
	universePublic   = 1
	typeIndividual   = 1
	instanceDesktop  = 1
	accountIDMask    = 0xFFFFFFFF
	individualPrefix = uint64(universePublic)<<56 | uint64(typeIndividual)<<52 | uint64(instanceDesktop)<<32
)

// ID is a 64-bit Steam id ("steam64")
type ID uint64

// Parse parses steam64 decimal form, e.g. "76561197960287930"
func Parse(s string) (ID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, ErrInvalid(s)
	}

	id := ID(v)
	if uint64(id)&^accountIDMask != individualPrefix || id.AccountID() == 0 {
		return 0, fmt.Errorf("%w: %q is not an individual account", apperrors.ErrSteamIDInvalid, s)
	}

	return id, nil
}

// FromAccountID builds individual public steam id from 32-bit account id
func FromAccountID(accountID uint32) ID {
	return ID(individualPrefix | uint64(accountID))
}

func (id ID) AccountID() uint32 {
	return uint32(uint64(id) & accountIDMask)
}

// Steam3 renders id as "[U:1:<account id>]"
func (id ID) Steam3() string {
	return fmt.Sprintf("[U:%d:%d]", universePublic, id.AccountID())
}

// Short returns the account id part of the steam3 form.
// That's what Steam client stores in its local family sharing config.
func (id ID) Short() string {
	return strconv.FormatUint(uint64(id.AccountID()), 10)
}

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Error of invalid steam id, matches apperrors.ErrSteamIDInvalid
func ErrInvalid(s string) error {
	return fmt.Errorf("%w: %q", apperrors.ErrSteamIDInvalid, s)
}

// Valid reports whether s is a steam64 id of an individual account
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}
