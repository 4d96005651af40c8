package domain

import "time"

// APIKey is the stored record for an admin API key. The plaintext key is
// shown exactly once at mint time; only the bcrypt digest survives.
type APIKey struct {
	ID           string
	Name         string
	Hash         string
	OwnerAddress string
	Permissions  []string
	IsActive     bool
	ExpiresAt    *time.Time
	LastUsedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Usable reports whether the key may authenticate requests at the given
// time. Revoked and expired keys are kept for audit but never match.
func (k APIKey) Usable(now time.Time) bool {
	if !k.IsActive {
		return false
	}
	if k.ExpiresAt != nil && !k.ExpiresAt.After(now) {
		return false
	}
	return true
}
