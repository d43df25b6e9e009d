package models

import (
	"time"
)

// Signed access token of the web user
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}
