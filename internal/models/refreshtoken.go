package models

import "time"

// TokenState is derived from the stored flags plus the clock. Used and
// Revoked are both terminal with respect to validity; Expired only applies
// to tokens that were never consumed or revoked.
type TokenState int

const (
	TokenValid TokenState = iota
	TokenUsed
	TokenRevoked
	TokenExpired
)

func (s TokenState) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenUsed:
		return "used"
	case TokenRevoked:
		return "revoked"
	case TokenExpired:
		return "expired"
	}
	return "unknown"
}

// RefreshToken is one link in a rotation chain. All tokens descending from a
// single login share a FamilyID; rotation creates a new row and marks the
// consumed row used. Raw token values are never stored, only their SHA-256.
type RefreshToken struct {
	ID        string `gorm:"primarykey"`
	TokenHash string `gorm:"uniqueIndex"`
	UserID    uint   `gorm:"index"`
	FamilyID  string `gorm:"index"` // one login = one family, immutable for the whole chain
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
	Revoked   bool

	// Client fingerprint captured at creation. Heuristic input for the risk
	// checks only, never an authorization signal on its own.
	IPAddress string
	UserAgent string
}

func (t *RefreshToken) State(now time.Time) TokenState {
	switch {
	case t.Used:
		return TokenUsed
	case t.Revoked:
		return TokenRevoked
	case !t.ExpiresAt.After(now):
		return TokenExpired
	}
	return TokenValid
}

// Valid reports whether the token can still be exchanged: never used, never
// revoked, not yet expired.
func (t *RefreshToken) Valid(now time.Time) bool {
	return t.State(now) == TokenValid
}
