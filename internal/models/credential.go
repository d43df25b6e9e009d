package models

import (
	"time"
)

// Length of machine id produced by the machine id helper script
const MachineIDLength = 310

// Steam related credentials of a user
// RefreshToken == nil means the user has to log in to Steam again
type Credential struct {
	UserID       string // steam64
	RefreshToken *string
	MachineID    *string
	UpdatedAt    time.Time
}

func (c Credential) IsAuthenticated() bool {
	return c.RefreshToken != nil && *c.RefreshToken != ""
}

func (c Credential) HasMachineID() bool {
	return c.MachineID != nil
}
