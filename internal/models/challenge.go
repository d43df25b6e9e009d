package models

import (
	"time"
)

// QR login handshake state
// Lives in memory for a single login attempt only
type QRChallenge struct {
	UserID               string
	ClientID             string
	RequestID            string // base64 encoded
	PollInterval         time.Duration
	ChallengeURL         string
	Version              int
	AllowedConfirmations []string
	ExpiresAt            time.Time
}

func (c QRChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
