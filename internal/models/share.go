package models

import (
	"time"

	"github.com/google/uuid"
)

// Declared intent of a lender to share the library with a borrower
// It doesn't mean Steam has the borrower authorized
type ShareEdge struct {
	ID         uuid.UUID
	LenderID   string
	BorrowerID string
	CreatedAt  time.Time
}

// Lender side row of the shares list
type ShareInfo struct {
	BorrowerID string
	DeviceName string     // empty if Steam has no device for the borrower
	LastUsedAt *time.Time // nil if never used
	InUse      bool
}
