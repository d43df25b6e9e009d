package models

import (
	"time"
)

// Device authorized for family sharing by a lender.
// Always fetched from Steam, never stored.
type AuthorizedDevice struct {
	DeviceName     string
	DeviceToken    string
	LastBorrowerID string
	LastUsedAt     *time.Time
	IsRevoked      bool
}

// Borrowers a lender currently allows to use the library
type BorrowerSet map[string]struct{}

func NewBorrowerSet(ids ...string) BorrowerSet {
	set := make(BorrowerSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s BorrowerSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Borrower view of a single lender
type LendInfo struct {
	LenderID                      string
	IsAuthenticated               bool
	BorrowerAuthorizedDeviceToken *string
	BorrowerInCurrentShareList    bool
}

// Unauthenticated entry: nothing is redeemable without lender refresh token
func UnauthenticatedLendInfo(lenderID string) LendInfo {
	return LendInfo{LenderID: lenderID}
}
