package domain

import "time"

// TokenStatus enumerates lifecycle states for a download token.
type TokenStatus string

const (
	TokenStatusActive    TokenStatus = "ACTIVE"
	TokenStatusExhausted TokenStatus = "EXHAUSTED"
	TokenStatusExpired   TokenStatus = "EXPIRED"
)

// TokenRecord is the immutable half of a download token. It is written once
// at issuance; ResourceKey and ExpiresAt never change afterwards. Re-issuance
// mints a new token instead of mutating an old one.
type TokenRecord struct {
	ID          string
	OrderID     string
	ResourceKey string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// UsageState is the mutable half, stored separately so the high-churn counter
// never touches the immutable record. VersionTag is the store-supplied
// concurrency token: it must match on conditional writes and changes on every
// successful write.
type UsageState struct {
	Uses       int
	MaxUses    int
	ExpiresAt  time.Time
	VersionTag string
}

// Remaining returns how many redemptions are left, never negative.
func (s UsageState) Remaining() int {
	if s.MaxUses <= s.Uses {
		return 0
	}
	return s.MaxUses - s.Uses
}

// ExpiredAt reports whether the state is past expiry at the given instant,
// after the grace window has been applied by the caller. A zero ExpiresAt
// means no expiry was recorded and the token record's value governs.
func (s UsageState) ExpiredAt(now time.Time, grace time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return now.After(s.ExpiresAt.Add(grace))
}

// Status derives the lifecycle state at the given instant.
func (s UsageState) Status(now time.Time, grace time.Duration) TokenStatus {
	switch {
	case s.ExpiredAt(now, grace):
		return TokenStatusExpired
	case s.Remaining() == 0:
		return TokenStatusExhausted
	default:
		return TokenStatusActive
	}
}

// UsageSnapshot is the client-facing view of a token's consumption, returned
// by peek and alongside every successful redemption.
type UsageSnapshot struct {
	Uses      int
	MaxUses   int
	Remaining int
	ExpiresAt time.Time
	Last      bool
}

// Snapshot renders the state for client display.
func (s UsageState) Snapshot(now time.Time, grace time.Duration) UsageSnapshot {
	remaining := s.Remaining()
	return UsageSnapshot{
		Uses:      s.Uses,
		MaxUses:   s.MaxUses,
		Remaining: remaining,
		ExpiresAt: s.ExpiresAt,
		Last:      remaining == 1 && !s.ExpiredAt(now, grace),
	}
}
